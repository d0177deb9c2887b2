package noncestore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore shares the replay window across instances. SET NX PX does
// the check-and-record in one atomic call.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*redisStore, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &redisStore{client: client, ttl: ttl, prefix: "nonce:"}, nil
}

func (r *redisStore) PutIfAbsent(ctx context.Context, nonce string) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+nonce, 1, r.ttl).Result()
}

func (r *redisStore) TTL() time.Duration { return r.ttl }
