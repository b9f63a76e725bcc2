package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/bitechdev/ModelSpec/pkg/logger"
	"github.com/bitechdev/ModelSpec/pkg/metrics"
)

const keyPrefix = "modelspec:"

// generationTTL must outlive any cached total.
const generationTTL = 24 * time.Hour

// CountCache caches collection totals per table. Every table has a
// generation stamp; invalidating a table bumps it so all totals computed
// under the previous generation are never read again and expire on their own.
// This works with providers that cannot enumerate keys. Providers that
// implement Counter bump the generation atomically, others get a clock stamp.
type CountCache struct {
	provider Provider
	ttl      time.Duration
}

// NewCountCache wraps provider. A ttl of 0 uses the provider default.
func NewCountCache(provider Provider, ttl time.Duration) *CountCache {
	return &CountCache{provider: provider, ttl: ttl}
}

type cachedTotal struct {
	Total int `json:"total"`
}

// Fingerprint hashes the parts that determine a total, typically predicates and scope.
func Fingerprint(parts ...interface{}) string {
	data, err := json.Marshal(parts)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", parts))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get returns a cached total. Provider failures count as misses.
func (c *CountCache) Get(ctx context.Context, table, fingerprint string) (int, bool) {
	if c == nil {
		return 0, false
	}
	data, ok := c.provider.Get(ctx, c.key(ctx, table, fingerprint))
	if !ok {
		metrics.GetProvider().RecordCacheMiss(c.provider.Name())
		return 0, false
	}
	metrics.GetProvider().RecordCacheHit(c.provider.Name())
	var ct cachedTotal
	if err := json.Unmarshal(data, &ct); err != nil {
		logger.Warn("Discarding unreadable cached total for %s: %v", table, err)
		return 0, false
	}
	return ct.Total, true
}

// Set stores a total. Failures are logged and otherwise ignored.
func (c *CountCache) Set(ctx context.Context, table, fingerprint string, total int) {
	if c == nil {
		return
	}
	data, _ := json.Marshal(cachedTotal{Total: total})
	if err := c.provider.Set(ctx, c.key(ctx, table, fingerprint), data, c.ttl); err != nil {
		logger.Warn("Failed to cache total for %s: %v", table, err)
	}
}

// Invalidate forgets every cached total of table.
func (c *CountCache) Invalidate(ctx context.Context, table string) {
	if c == nil {
		return
	}
	var err error
	if counter, ok := c.provider.(Counter); ok {
		_, err = counter.Incr(ctx, generationKey(table), generationTTL)
	} else {
		stamp := strconv.FormatInt(time.Now().UnixNano(), 36)
		err = c.provider.Set(ctx, generationKey(table), []byte(stamp), generationTTL)
	}
	if err != nil {
		logger.Warn("Failed to invalidate cached totals for %s: %v", table, err)
	}
}

// Provider returns the underlying provider.
func (c *CountCache) Provider() Provider {
	return c.provider
}

func (c *CountCache) key(ctx context.Context, table, fingerprint string) string {
	gen := "0"
	if data, ok := c.provider.Get(ctx, generationKey(table)); ok {
		gen = string(data)
	}
	return keyPrefix + "total:" + table + ":" + gen + ":" + fingerprint
}

func generationKey(table string) string {
	return keyPrefix + "gen:" + table
}
