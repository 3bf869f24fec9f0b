package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ponyo877/relaychat/server/domain"
	"github.com/ponyo877/relaychat/server/usecase"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan domain.Delivery) domain.Delivery {
	t.Helper()
	select {
	case d, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return domain.Delivery{}
	}
}

func TestBusDeliversToEverySubscriber(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { c.Close() })
		return c
	}
	shared := NewMemoryBus("node-a", nil)

	buses := map[string][2]usecase.Bus{
		"redis":  {NewRedisBus(newClient(), "node-a", nil), NewRedisBus(newClient(), "node-b", nil)},
		"memory": {shared, shared},
	}
	for name, pair := range buses {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			first, err := pair[0].Subscribe(ctx)
			require.NoError(t, err)
			second, err := pair[1].Subscribe(ctx)
			require.NoError(t, err)

			msg := domain.ChatMessage("01H", "alice", `say "hi"`)
			require.NoError(t, pair[0].Publish(ctx, "lobby", msg))

			for _, ch := range []<-chan domain.Delivery{first, second} {
				d := receive(t, ch)
				assert.Equal(t, "lobby", d.Room)
				assert.Equal(t, msg, d.Message)
				assert.Equal(t, "node-a", d.Origin)
			}
		})
	}
}

func TestMemoryBusClosesOnCancel(t *testing.T) {
	bus := NewMemoryBus("node", nil)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	sent := time.UnixMilli(1700000000123)
	b, err := envelope{Origin: "n1", Message: `CHAT 1 "a" "b"`, SentAt: sent}.marshal()
	require.NoError(t, err)

	env, err := unmarshalEnvelope(b)
	require.NoError(t, err)
	assert.Equal(t, "n1", env.Origin)
	assert.Equal(t, `CHAT 1 "a" "b"`, env.Message)
	assert.True(t, sent.Equal(env.SentAt))

	_, err = unmarshalEnvelope([]byte("not a proto"))
	assert.Error(t, err)
}
