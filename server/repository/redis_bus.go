package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ponyo877/relaychat/server/domain"
	"github.com/ponyo877/relaychat/server/usecase"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "relay:room:"

type RedisBus struct {
	client redis.UniversalClient
	origin string
	logger *zap.Logger
}

func NewRedisBus(client redis.UniversalClient, origin string, logger *zap.Logger) usecase.Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{client: client, origin: origin, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, room, message string) error {
	payload, err := envelope{Origin: b.origin, Message: message, SentAt: time.Now()}.marshal()
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channelPrefix+room, payload).Err(); err != nil {
		return fmt.Errorf("error publishing to %s: %w", room, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context) (<-chan domain.Delivery, error) {
	ps := b.client.PSubscribe(ctx, channelPrefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("error subscribing: %w", err)
	}

	out := make(chan domain.Delivery)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				env, err := unmarshalEnvelope([]byte(msg.Payload))
				if err != nil {
					b.logger.Warn("dropping malformed bus message", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				d := domain.Delivery{
					Room:    strings.TrimPrefix(msg.Channel, channelPrefix),
					Message: env.Message,
					Origin:  env.Origin,
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
