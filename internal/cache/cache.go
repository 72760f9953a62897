package cache

import (
	"context"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/redis/go-redis/v9"
)

// Store is a fail-safe byte cache: misses and backend failures both read as nil.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

var (
	_ Store = (*Client)(nil)
	_ Store = (*Memory)(nil)
)

// Client wraps redis.Client but fails safe by swallowing connectivity errors.
type Client struct {
	client *redis.Client
}

// New creates a new Redis client.
func New(addr, password string, db int) *Client {
	opts := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
	return &Client{client: redis.NewClient(opts)}
}

// Get returns value or nil if missing or redis unavailable.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	res, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		// fail safe: behave like cache miss
		return nil, nil
	}
	return res, nil
}

// Set stores value with TTL, ignoring redis errors.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	_ = c.client.Set(ctx, key, value, ttl).Err()
	return nil
}

// Delete removes a key, ignoring redis errors.
func (c *Client) Delete(ctx context.Context, key string) error {
	if c == nil || c.client == nil {
		return nil
	}
	_ = c.client.Del(ctx, key).Err()
	return nil
}

// Close releases the redis connection pool.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Memory is an in-process cache used when no redis address is configured.
// Entries share one life window; the per-call ttl is ignored.
type Memory struct {
	cache *bigcache.BigCache
}

// NewMemory creates an in-process cache whose entries expire after lifeWindow.
func NewMemory(lifeWindow time.Duration) (*Memory, error) {
	cfg := bigcache.DefaultConfig(lifeWindow)
	cfg.Verbose = false
	c, err := bigcache.NewBigCache(cfg)
	if err != nil {
		return nil, err
	}
	return &Memory{cache: c}, nil
}

// Get returns value or nil when the key is absent.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	if m == nil || m.cache == nil {
		return nil, nil
	}
	buf, err := m.cache.Get(key)
	if err != nil {
		// bigcache.ErrEntryNotFound and decode failures both read as a miss
		return nil, nil
	}
	return buf, nil
}

// Set stores value, ignoring cache errors.
func (m *Memory) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if m == nil || m.cache == nil {
		return nil
	}
	_ = m.cache.Set(key, value)
	return nil
}

// Delete removes a key, ignoring cache errors.
func (m *Memory) Delete(_ context.Context, key string) error {
	if m == nil || m.cache == nil {
		return nil
	}
	_ = m.cache.Delete(key)
	return nil
}

// Close stops the cache's cleanup goroutine.
func (m *Memory) Close() error {
	if m == nil || m.cache == nil {
		return nil
	}
	return m.cache.Close()
}
