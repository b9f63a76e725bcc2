package cache

import (
	"fmt"

	"github.com/bitechdev/ModelSpec/pkg/config"
)

// NewProviderFromConfig creates the provider named by cfg.Provider.
func NewProviderFromConfig(cfg config.CacheConfig) (Provider, error) {
	opts := &Options{DefaultTTL: cfg.TTL, MaxSize: cfg.MaxSize}

	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider(opts), nil
	case "redis":
		return NewRedisProvider(&RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Options:  opts,
		})
	case "memcache":
		return NewMemcacheProvider(&MemcacheConfig{
			Servers:      cfg.Memcache.Servers,
			MaxIdleConns: cfg.Memcache.MaxIdleConns,
			Timeout:      cfg.Memcache.Timeout,
			Options:      opts,
		})
	default:
		return nil, fmt.Errorf("unknown cache provider: %s", cfg.Provider)
	}
}
