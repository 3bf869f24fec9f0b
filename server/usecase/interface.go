package usecase

import (
	"context"
	"time"

	"github.com/ponyo877/relaychat/server/domain"
)

// Ledger is the shared store of room ownership and topics. Every entry
// carries a lease; an expired lease behaves as if the room was never claimed.
type Ledger interface {
	Get(ctx context.Context, room string) (domain.RoomInfo, error)
	// Claim sets owner only if the room currently has none. It reports
	// whether this call won the claim.
	Claim(ctx context.Context, room, owner string, ttl time.Duration) (bool, error)
	// SetTopic writes topic only while owner holds an unexpired lease on
	// room. It reports whether the write happened.
	SetTopic(ctx context.Context, room, owner, topic string) (bool, error)
	Renew(ctx context.Context, rooms []string, ttl time.Duration) error
}

type Bus interface {
	Publish(ctx context.Context, room, message string) error
	// Subscribe delivers every message published to any room until ctx is
	// done or the subscription fails, after which the channel is closed.
	Subscribe(ctx context.Context) (<-chan domain.Delivery, error)
}

type TokenCodec interface {
	Encode(identity domain.Identity) (string, error)
	Decode(token string) (domain.Identity, error)
}

// Transport is one bidirectional client link. Events ends with a single
// EventClose and is then closed.
type Transport interface {
	Events() <-chan domain.Event
	Send(text string) error
	Ping() error
	Close() error
	Closed() bool
	RemoteAddr() string
}
