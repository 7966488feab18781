package service

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Notifier доставляет изменения до инстансов шлюза.
type Notifier interface {
	Publish(ctx context.Context, channel, payload string) error
	// SetMember поддерживает Redis-множество состояния (kill switch, simulation).
	SetMember(ctx context.Context, key, member string, present bool) error
}

// RedisNotifier реализует Notifier поверх Redis pub/sub и sets.
type RedisNotifier struct {
	rdb redis.UniversalClient
}

func NewRedisNotifier(rdb redis.UniversalClient) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func (n *RedisNotifier) Publish(ctx context.Context, channel, payload string) error {
	return n.rdb.Publish(ctx, channel, payload).Err()
}

func (n *RedisNotifier) SetMember(ctx context.Context, key, member string, present bool) error {
	if present {
		return n.rdb.SAdd(ctx, key, member).Err()
	}
	return n.rdb.SRem(ctx, key, member).Err()
}
