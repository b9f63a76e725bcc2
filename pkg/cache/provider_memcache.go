package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/bitechdev/ModelSpec/pkg/logger"
)

// MemcacheProvider stores items in memcached.
type MemcacheProvider struct {
	client  *memcache.Client
	options *Options
}

// MemcacheConfig contains Memcache-specific configuration.
type MemcacheConfig struct {
	// Servers is a list of memcache server addresses (default: localhost:11211)
	Servers []string
	// MaxIdleConns is the maximum number of idle connections (default: 2)
	MaxIdleConns int
	// Timeout for connection operations (default: 1 second)
	Timeout time.Duration

	Options *Options
}

// NewMemcacheProvider connects and pings the servers.
func NewMemcacheProvider(config *MemcacheConfig) (*MemcacheProvider, error) {
	if config == nil {
		config = &MemcacheConfig{}
	}
	if len(config.Servers) == 0 {
		config.Servers = []string{"localhost:11211"}
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 2
	}
	if config.Timeout == 0 {
		config.Timeout = time.Second
	}

	client := memcache.New(config.Servers...)
	client.MaxIdleConns = config.MaxIdleConns
	client.Timeout = config.Timeout

	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to Memcache: %w", err)
	}
	return &MemcacheProvider{client: client, options: defaultOptions(config.Options)}, nil
}

func (m *MemcacheProvider) Get(_ context.Context, key string) ([]byte, bool) {
	item, err := m.client.Get(key)
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			logger.Warn("Memcache get %s failed: %v", key, err)
		}
		return nil, false
	}
	return item.Value, true
}

func (m *MemcacheProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.options.DefaultTTL
	}
	return m.client.Set(&memcache.Item{Key: key, Value: value, Expiration: int32(ttl.Seconds())})
}

// Incr uses memcached's atomic increment, seeding the key with Add when it
// is missing. A lost seeding race falls back to incrementing.
func (m *MemcacheProvider) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := m.client.Increment(key, 1)
	if err == nil {
		return int64(n), nil
	}
	if !errors.Is(err, memcache.ErrCacheMiss) {
		return 0, err
	}
	err = m.client.Add(&memcache.Item{Key: key, Value: []byte("1"), Expiration: int32(ttl.Seconds())})
	if err == nil {
		return 1, nil
	}
	if !errors.Is(err, memcache.ErrNotStored) {
		return 0, err
	}
	n, err = m.client.Increment(key, 1)
	return int64(n), err
}

func (m *MemcacheProvider) Delete(_ context.Context, key string) error {
	if err := m.client.Delete(key); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return err
	}
	return nil
}

// Close is a no-op; idle connections are dropped by the client.
func (m *MemcacheProvider) Close() error {
	return nil
}

func (m *MemcacheProvider) Name() string {
	return "memcache"
}
