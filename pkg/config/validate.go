package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate reports every setting the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	ms := c.ModelSpec
	if ms.DefaultPageSize <= 0 {
		errs = append(errs, fmt.Errorf("modelspec.default_page_size must be positive, got %d", ms.DefaultPageSize))
	}
	if ms.MaxPageSize < 0 || (ms.MaxPageSize > 0 && ms.MaxPageSize < ms.DefaultPageSize) {
		errs = append(errs, fmt.Errorf("modelspec.max_page_size %d must be 0 or at least the default page size", ms.MaxPageSize))
	}
	if ms.DefaultTimeZone != "" {
		if _, err := time.LoadLocation(ms.DefaultTimeZone); err != nil {
			errs = append(errs, fmt.Errorf("modelspec.default_time_zone: %w", err))
		}
	}
	switch c.Cache.Provider {
	case "", "memory", "redis", "memcache":
	default:
		errs = append(errs, fmt.Errorf("cache.provider %q is not one of memory, redis, memcache", c.Cache.Provider))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative"))
	}
	return errors.Join(errs...)
}
