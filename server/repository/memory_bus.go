package repository

import (
	"context"
	"sync"

	"github.com/ponyo877/relaychat/server/domain"
	"github.com/ponyo877/relaychat/server/usecase"
	"go.uber.org/zap"
)

const memoryBusBuffer = 1024

// MemoryBus fans messages out to subscribers in the same process. Several
// registries may share one to behave like separate nodes.
type MemoryBus struct {
	origin string
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[chan domain.Delivery]struct{}
}

func NewMemoryBus(origin string, logger *zap.Logger) usecase.Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryBus{
		origin:      origin,
		logger:      logger,
		subscribers: make(map[chan domain.Delivery]struct{}),
	}
}

// Publish never blocks; a subscriber whose buffer is full misses the message.
func (b *MemoryBus) Publish(ctx context.Context, room, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := domain.Delivery{Room: room, Message: message, Origin: b.origin}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- d:
		default:
			b.logger.Warn("bus subscriber is full, dropping message", zap.String("room", room))
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan domain.Delivery, error) {
	ch := make(chan domain.Delivery, memoryBusBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers, ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}
