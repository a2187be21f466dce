package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 60 * time.Second

// RedisOracle tracks live connections as expiring keys. The socket layer
// calls Touch on connect and on every heartbeat and Clear on disconnect; a
// missed heartbeat lets the key expire, which reads as offline.
type RedisOracle struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisOracle(client redis.UniversalClient, ttl time.Duration) *RedisOracle {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisOracle{client: client, ttl: ttl}
}

func key(memberType, id string) string {
	return fmt.Sprintf("presence:%s:%s", memberType, id)
}

func (o *RedisOracle) IsOnline(ctx context.Context, memberType, id string) (bool, error) {
	err := o.client.Get(ctx, key(memberType, id)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read presence: %w", err)
	}
	return true, nil
}

func (o *RedisOracle) Touch(ctx context.Context, memberType, id string) error {
	if err := o.client.Set(ctx, key(memberType, id), time.Now().Unix(), o.ttl).Err(); err != nil {
		return fmt.Errorf("failed to record presence: %w", err)
	}
	return nil
}

func (o *RedisOracle) Clear(ctx context.Context, memberType, id string) error {
	if err := o.client.Del(ctx, key(memberType, id)).Err(); err != nil {
		return fmt.Errorf("failed to clear presence: %w", err)
	}
	return nil
}
