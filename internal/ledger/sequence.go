package ledger

import (
	"context"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// MemorySequence is a process-local monotonic counter. Suitable for a single
// instance; multi-instance deployments should use RedisSequence so positions
// stay monotonic across the fleet.
type MemorySequence struct {
	n atomic.Int64
}

func NewMemorySequence() *MemorySequence {
	return &MemorySequence{}
}

func (s *MemorySequence) Next(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.n.Add(1), nil
}

// RedisSequence backs the anchor position with a Redis INCR key.
type RedisSequence struct {
	client redis.Cmdable
	key    string
}

func NewRedisSequence(client redis.Cmdable, key string) *RedisSequence {
	if key == "" {
		key = "cadastra:ledger:position"
	}
	return &RedisSequence{client: client, key: key}
}

func (s *RedisSequence) Next(ctx context.Context) (int64, error) {
	return s.client.Incr(ctx, s.key).Result()
}
