package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type memoryItem struct {
	value      []byte
	expiration time.Time
	lastAccess time.Time
}

func (m *memoryItem) isExpired(now time.Time) bool {
	return !m.expiration.IsZero() && now.After(m.expiration)
}

// MemoryProvider keeps items in process memory with LRU eviction.
type MemoryProvider struct {
	mu      sync.Mutex
	items   map[string]*memoryItem
	options *Options
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewMemoryProvider(opts *Options) *MemoryProvider {
	opts = defaultOptions(opts)
	if opts.MaxSize == 0 {
		opts.MaxSize = 10000
	}
	return &MemoryProvider{
		items:   make(map[string]*memoryItem),
		options: opts,
	}
}

func (m *MemoryProvider) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	item, ok := m.items[key]
	if !ok || item.isExpired(now) {
		if ok {
			delete(m.items, key)
		}
		m.misses.Add(1)
		return nil, false
	}
	item.lastAccess = now
	m.hits.Add(1)
	return item.value, true
}

func (m *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl == 0 {
		ttl = m.options.DefaultTTL
	}
	now := time.Now()
	var expiration time.Time
	if ttl > 0 {
		expiration = now.Add(ttl)
	}

	if _, exists := m.items[key]; !exists && m.options.MaxSize > 0 && len(m.items) >= m.options.MaxSize {
		m.evictOne(now)
	}
	m.items[key] = &memoryItem{value: value, expiration: expiration, lastAccess: now}
	return nil
}

// Incr bumps a counter stored as decimal text. Unreadable values restart at 1.
func (m *MemoryProvider) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var n int64
	if item, ok := m.items[key]; ok && !item.isExpired(now) {
		n, _ = strconv.ParseInt(string(item.value), 10, 64)
	}
	n++
	var expiration time.Time
	if ttl > 0 {
		expiration = now.Add(ttl)
	}
	m.items[key] = &memoryItem{value: []byte(strconv.FormatInt(n, 10)), expiration: expiration, lastAccess: now}
	return n, nil
}

func (m *MemoryProvider) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *MemoryProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*memoryItem)
	return nil
}

func (m *MemoryProvider) Name() string {
	return "memory"
}

// Len returns the number of stored items, expired ones included.
func (m *MemoryProvider) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Stats returns the hit and miss counters.
func (m *MemoryProvider) Stats() (hits, misses int64) {
	return m.hits.Load(), m.misses.Load()
}

// evictOne drops an expired item if there is one, else the least recently used.
func (m *MemoryProvider) evictOne(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for key, item := range m.items {
		if item.isExpired(now) {
			delete(m.items, key)
			return
		}
		if oldestKey == "" || item.lastAccess.Before(oldest) {
			oldestKey, oldest = key, item.lastAccess
		}
	}
	if oldestKey != "" {
		delete(m.items, oldestKey)
	}
}
