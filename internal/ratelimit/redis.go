package ratelimit

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore shares counters between service instances. Each window is one key holding the hit
// count, expiring when the window ends.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

// NewRedisClient parses a redis:// URL, falling back to treating it as a host:port address.
func NewRedisClient(url string) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	return redis.NewClient(opts)
}

func (s *RedisStore) Increment(ctx context.Context, key string, length time.Duration) (int64, time.Time, error) {
	key = s.prefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, err
	}

	now := s.now()
	remaining := ttl.Val()
	if remaining <= 0 {
		// First hit of a new window, or a key left without expiry.
		if err := s.client.PExpire(ctx, key, length).Err(); err != nil {
			return 0, time.Time{}, err
		}
		remaining = length
	}
	return incr.Val(), now.Add(remaining), nil
}
