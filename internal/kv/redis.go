// Package kv holds the optional Redis connection shared by every replica.
package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotConfigured = errors.New("redis not configured")

type Client struct {
	rdb    *redis.Client
	prefix string
}

// Open parses a redis:// or rediss:// URL. Keys are namespaced under prefix.
func Open(redisURL, prefix string) (*Client, error) {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		return nil, ErrNotConfigured
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Client{rdb: redis.NewClient(opt), prefix: prefix}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return ErrNotConfigured
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// AllowRate counts one hit against key in a fixed window and reports whether
// the hit is within limit. The window starts with the first hit.
func (c *Client) AllowRate(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	if c == nil {
		return true, 0, ErrNotConfigured
	}

	fullKey := c.prefix + "ratelimit:" + key
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, err
	}

	n := incr.Val()
	return n <= limit, n, nil
}
