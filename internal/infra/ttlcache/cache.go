package ttlcache

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"holmes/internal/domain"
)

type item struct {
	payload   []byte
	expiresAt time.Time
}

// Options configures a Cache.
type Options struct {
	TTL time.Duration
	// SweepInterval overrides the default max(TTL/10, 60s).
	SweepInterval time.Duration
	// Sweeper is shared between caches; a private one is created when nil.
	Sweeper *Sweeper
	Logger  *zap.Logger
	Clock   func() time.Time
}

// Cache is an in-memory key/value store whose entries expire after a fixed TTL.
// Values are stored compressed.
type Cache[V any] struct {
	mu    sync.Mutex
	items map[string]item

	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	sweeper      *Sweeper
	ownsSweeper  bool
	registration uint64
	closeOnce    sync.Once
}

// New creates a cache and registers its sweep with the sweeper.
func New[V any](opts Options) (*Cache[V], error) {
	if opts.TTL <= 0 {
		return nil, errors.New("ttlcache: ttl must be > 0")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	c := &Cache[V]{
		items:  make(map[string]item),
		ttl:    opts.TTL,
		now:    now,
		logger: logger.Named("ttlcache"),
	}

	sweeper := opts.Sweeper
	if sweeper == nil {
		sweeper = NewSweeper(logger)
		c.ownsSweeper = true
	}
	c.sweeper = sweeper

	interval := opts.SweepInterval
	if interval <= 0 {
		interval = SweepInterval(opts.TTL)
	}
	c.registration = sweeper.Register(interval, c.Purge)
	return c, nil
}

// SweepInterval returns the background eviction period for a TTL.
func SweepInterval(ttl time.Duration) time.Duration {
	return max(ttl/10, domain.DefaultTTLCacheMinSweep)
}

// Set stores value under key with expiry now+TTL.
func (c *Cache[V]) Set(key string, value V) error {
	payload, err := encodeValue(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[key] = item{payload: payload, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Lookup returns the value for key. Expired entries are deleted and reported absent.
// A value that fails to decompress is deleted and returned with ErrDecompress.
func (c *Cache[V]) Lookup(key string) (V, bool, error) {
	var zero V

	c.mu.Lock()
	entry, ok := c.items[key]
	if ok && !c.now().Before(entry.expiresAt) {
		delete(c.items, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return zero, false, nil
	}

	value, err := decodeValue[V](entry.payload)
	if err != nil {
		c.Delete(key)
		return zero, false, err
	}
	return value, true, nil
}

// Get is Lookup with decompression failures folded into a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	value, ok, err := c.Lookup(key)
	if err != nil {
		c.logger.Warn("cache value unreadable; treating as miss", zap.String("key", key), zap.Error(err))
		return value, false
	}
	return value, ok
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Purge removes every expired entry and returns how many were dropped.
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.items {
		if !now.Before(entry.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Close stops background eviction for this cache.
func (c *Cache[V]) Close() {
	c.closeOnce.Do(func() {
		c.sweeper.Unregister(c.registration)
		if c.ownsSweeper {
			c.sweeper.Stop()
		}
	})
}
