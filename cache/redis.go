package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/git-pkgs/npmjs/client"
)

const redisKeyPrefix = "npmjs:response:"

// Redis stores responses in a shared Redis instance so separate
// processes reuse each other's conditional requests.
type Redis struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

var _ client.Cache = (*Redis)(nil)

// NewRedis wraps an existing Redis client. Entries expire after ttl; a
// ttl of zero keeps them until evicted.
func NewRedis(rdb redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

// Get returns the stored response for key, or (nil, nil) on a miss.
func (r *Redis) Get(ctx context.Context, key string) (*client.CachedResponse, error) {
	data, err := r.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var res client.CachedResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decoding cached response for %s: %w", key, err)
	}
	return &res, nil
}

// Set stores the response under key with the configured TTL.
func (r *Redis) Set(ctx context.Context, key string, res *client.CachedResponse) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding cached response for %s: %w", key, err)
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
