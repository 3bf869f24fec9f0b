package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ponyo877/relaychat/server/domain"
	"github.com/ponyo877/relaychat/server/usecase"
	"github.com/redis/go-redis/v9"
)

const (
	roomKeyPrefix = "room:"
	fieldOwner    = "owner"
	fieldTopic    = "topic"
)

var claimScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], 'owner') == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'owner', ARGV[1], 'topic', '')
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

var setTopicScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'owner') ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'topic', ARGV[2])
return 1
`)

// RedisLedger keeps each room in a hash whose key TTL is the lease.
type RedisLedger struct {
	client redis.UniversalClient
}

func NewRedisLedger(client redis.UniversalClient) usecase.Ledger {
	return &RedisLedger{client: client}
}

func roomKey(room string) string {
	return roomKeyPrefix + room
}

func (l *RedisLedger) Get(ctx context.Context, room string) (domain.RoomInfo, error) {
	var fields *redis.MapStringStringCmd
	var ttl *redis.DurationCmd
	_, err := l.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		fields = p.HGetAll(ctx, roomKey(room))
		ttl = p.PTTL(ctx, roomKey(room))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.RoomInfo{}, fmt.Errorf("error reading room: %w", err)
	}
	info := domain.RoomInfo{Key: room}
	values := fields.Val()
	info.Owner = values[fieldOwner]
	info.Topic = values[fieldTopic]
	if d := ttl.Val(); info.Owner != "" && d > 0 {
		info.Expiry = time.Now().Add(d)
	}
	return info, nil
}

func (l *RedisLedger) Claim(ctx context.Context, room, owner string, ttl time.Duration) (bool, error) {
	n, err := claimScript.Run(ctx, l.client, []string{roomKey(room)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("error claiming room: %w", err)
	}
	return n == 1, nil
}

func (l *RedisLedger) SetTopic(ctx context.Context, room, owner, topic string) (bool, error) {
	n, err := setTopicScript.Run(ctx, l.client, []string{roomKey(room)}, owner, topic).Int()
	if err != nil {
		return false, fmt.Errorf("error updating topic: %w", err)
	}
	return n == 1, nil
}

func (l *RedisLedger) Renew(ctx context.Context, rooms []string, ttl time.Duration) error {
	if len(rooms) == 0 {
		return nil
	}
	_, err := l.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, room := range rooms {
			p.PExpire(ctx, roomKey(room), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error renewing rooms: %w", err)
	}
	return nil
}
