package cache

import (
	"context"
	"time"
)

// Provider defines the byte store a cache is built on.
type Provider interface {
	// Get retrieves a value by key. Returns nil, false if the key doesn't exist or is expired.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value with the specified TTL. If ttl is 0 the provider default applies.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources.
	Close() error

	// Name identifies the provider in logs and metrics.
	Name() string
}

// Counter is implemented by providers that can increment a numeric key
// atomically. A missing key counts from zero; ttl applies to the key as a whole.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Options contains configuration options for cache providers.
type Options struct {
	// DefaultTTL is the default time-to-live for cache items.
	DefaultTTL time.Duration

	// MaxSize is the maximum number of items (for in-memory provider).
	MaxSize int
}

func defaultOptions(opts *Options) *Options {
	if opts == nil {
		opts = &Options{}
	}
	if opts.DefaultTTL == 0 {
		opts.DefaultTTL = 5 * time.Minute
	}
	return opts
}
