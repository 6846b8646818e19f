package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"trusight/logger"
)

// ErrMiss is returned on a cache miss, including when redis is disabled.
var ErrMiss = redis.Nil

// Client wraps a redis connection. A nil *Client, or one built without a
// connection, behaves as an always-empty cache so callers never branch.
type Client struct {
	rdb *redis.Client
}

// InitRedis connects to url. url may be a bare "host:port" or a
// redis:// URL. It returns a disabled client when url is empty or the
// server does not answer a ping.
func InitRedis(ctx context.Context, url string) *Client {
	if url == "" {
		logger.Log.Warn("REDIS_URL not set, running without cache")
		return &Client{}
	}

	opts := &redis.Options{Addr: url}
	if strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			logger.Log.Warnf("invalid REDIS_URL: %v", err)
			return &Client{}
		}
		opts = parsed
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Log.Warnf("redis unavailable: %v", err)
		rdb.Close()
		return &Client{}
	}

	logger.Log.Info("connected to redis")
	return &Client{rdb: rdb}
}

// New wraps an existing redis client.
func New(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Enabled() bool {
	return c != nil && c.rdb != nil
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if !c.Enabled() {
		return "", ErrMiss
	}
	return c.rdb.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Set(ctx, key, value, expiration).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if !c.Enabled() || len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// GetJSON decodes the value at key into dst. It returns ErrMiss when the
// key is absent.
func (c *Client) GetJSON(ctx context.Context, key string, dst interface{}) error {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), dst)
}

func (c *Client) SetJSON(ctx context.Context, key string, v interface{}, expiration time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, string(data), expiration)
}

// IsMiss reports whether err means the key was not cached.
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}

func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}
