// Package replycache keeps raw Lichess replies in redis so repeated lookups of
// the same profile do not hit the API.
package replycache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chessinsight:reply:"

// Cache is safe to use as a nil pointer; every call is then a miss.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Dial parses a redis:// URL. An empty URL returns a nil cache.
func Dial(ctx context.Context, rawURL string, ttl time.Duration) (*Cache, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return New(rdb, ttl), nil
}

func (c *Cache) key(k string) string { return keyPrefix + k }

// Get decodes the cached value into dst. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil {
		return false, nil
	}
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) Put(ctx context.Context, key string, v any) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(key), raw, c.ttl).Err()
}

// Forget drops every cached reply for a user.
func (c *Cache) Forget(ctx context.Context, userID string) error {
	if c == nil {
		return nil
	}
	return c.rdb.Del(ctx, c.key(userKey(userID)), c.key(historyKey(userID))).Err()
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
