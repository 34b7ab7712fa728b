package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Defaults match a binary image cache on a client device.
const (
	DefaultMaxEntries = 1000
	DefaultMaxCost    = 640 * 1024 * 1024
)

var (
	// ErrNilLoader is returned by New when no loader is supplied.
	ErrNilLoader = errors.New("cache loader cannot be nil")

	// ErrLoadPanic wraps a panic raised inside the loader.
	ErrLoadPanic = errors.New("cache loader panicked")
)

// Loader fetches the value for a key on a cache miss.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Options configures a Coordinator. Zero values select the defaults.
type Options[K comparable, V any] struct {
	// Name labels metrics and logs (default "default").
	Name string

	// MaxEntries caps the number of resident entries (default DefaultMaxEntries).
	MaxEntries int

	// MaxCost caps the aggregate cost of resident entries (default DefaultMaxCost).
	// A negative value disables the cost ceiling.
	MaxCost int64

	// Cost returns the weight of a value, e.g. its byte size. Nil means 0.
	Cost func(V) int64

	// Logger receives debug output; the coordinator adds only a "cache" field.
	// Defaults to the global logger with component "cache".
	Logger *zerolog.Logger
}

// Stats is a point-in-time view of the coordinator.
type Stats struct {
	Entries    int
	Cost       int64
	InFlight   int
	MaxEntries int
	MaxCost    int64
}

// call is one in-flight load shared by every caller of the same key.
type call[V any] struct {
	done    chan struct{} // closed after val/err are published
	val     V
	err     error
	waiters int
}

// Coordinator is a bounded LRU cache that loads missing keys through a
// Loader, coalescing concurrent misses for the same key into one load.
// Only successful loads are cached. Safe for concurrent use.
type Coordinator[K comparable, V any] struct {
	load   Loader[K, V]
	opts   Options[K, V]
	logger zerolog.Logger

	// ---- guarded by mu ----
	mu       sync.Mutex
	entries  map[K]*entry[K, V]
	list     lruList[K, V]
	inflight map[K]*call[V]
}

// New creates a coordinator. It panics if load is nil.
func New[K comparable, V any](load Loader[K, V], opts Options[K, V]) *Coordinator[K, V] {
	if load == nil {
		panic(ErrNilLoader)
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.MaxCost == 0 {
		opts.MaxCost = DefaultMaxCost
	}

	logger := log.With().Str("component", "cache").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Coordinator[K, V]{
		load:     load,
		opts:     opts,
		logger:   logger.With().Str("cache", opts.Name).Logger(),
		entries:  make(map[K]*entry[K, V]),
		inflight: make(map[K]*call[V]),
	}
}

// Get returns the cached value for key, or loads it. Concurrent callers for
// the same key share one load and observe the same value or error.
// Cancelling ctx only stops this caller from waiting.
func (c *Coordinator[K, V]) Get(ctx context.Context, key K) (V, error) {
	c.mu.Lock()

	if e, ok := c.entries[key]; ok {
		c.list.moveToFront(e)
		e.lastAccess = time.Now()
		val := e.val
		c.mu.Unlock()

		CacheHits.WithLabelValues(c.opts.Name).Inc()
		c.logger.Debug().Interface("key", key).Msg("Cache hit")
		return val, nil
	}

	if cl, ok := c.inflight[key]; ok {
		cl.waiters++
		c.mu.Unlock()

		CacheJoins.WithLabelValues(c.opts.Name).Inc()
		c.logger.Debug().Interface("key", key).Msg("Joined in-flight load")
		return c.wait(ctx, cl)
	}

	cl := &call[V]{done: make(chan struct{}), waiters: 1}
	c.inflight[key] = cl
	c.mu.Unlock()

	CacheMisses.WithLabelValues(c.opts.Name).Inc()
	c.logger.Debug().Interface("key", key).Msg("Cache miss - loading")

	go c.run(context.WithoutCancel(ctx), key, cl)

	return c.wait(ctx, cl)
}

// wait blocks until cl resolves or ctx is done.
func (c *Coordinator[K, V]) wait(ctx context.Context, cl *call[V]) (V, error) {
	select {
	case <-cl.done:
		return cl.val, cl.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// run executes the load and publishes its outcome. Storing the value and
// retiring the in-flight marker happen in one critical section, so a
// concurrent Get sees either the marker or the entry, never neither.
func (c *Coordinator[K, V]) run(ctx context.Context, key K, cl *call[V]) {
	start := time.Now()
	val, err := c.safeLoad(ctx, key)

	c.mu.Lock()
	if err == nil {
		c.storeLocked(key, val)
	}
	delete(c.inflight, key)
	cl.val, cl.err = val, err
	close(cl.done)
	waiters := cl.waiters
	c.mu.Unlock()

	if err != nil {
		CacheLoadErrors.WithLabelValues(c.opts.Name).Inc()
		c.logger.Warn().
			Err(err).
			Interface("key", key).
			Int("waiters", waiters).
			Msg("Cache load failed")
		return
	}

	c.logger.Debug().
		Interface("key", key).
		Int("waiters", waiters).
		Dur("duration", time.Since(start)).
		Msg("Cache load complete")
}

// safeLoad calls the loader and converts a panic into an error so that
// waiters are always released.
func (c *Coordinator[K, V]) safeLoad(ctx context.Context, key K) (val V, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero V
			val = zero
			err = fmt.Errorf("%w: %v", ErrLoadPanic, r)
		}
	}()
	return c.load(ctx, key)
}

// storeLocked inserts or replaces key and enforces the ceilings. mu must be held.
func (c *Coordinator[K, V]) storeLocked(key K, val V) {
	now := time.Now()

	if old, ok := c.entries[key]; ok {
		c.list.remove(old)
		delete(c.entries, key)
	}

	e := &entry[K, V]{
		key:        key,
		val:        val,
		cost:       c.costOf(val),
		lastAccess: now,
		cachedAt:   now,
	}
	c.entries[key] = e
	c.list.pushFront(e)

	c.enforceLimitsLocked()
}

// enforceLimitsLocked evicts LRU entries until count and cost ceilings hold.
// An entry heavier than MaxCost on its own is evicted too.
func (c *Coordinator[K, V]) enforceLimitsLocked() {
	for c.list.len > c.opts.MaxEntries {
		tail := c.list.back()
		if tail == nil {
			break
		}
		c.evictLocked(tail, "count")
	}

	if c.opts.MaxCost > 0 {
		for c.list.cost > c.opts.MaxCost {
			tail := c.list.back()
			if tail == nil {
				break
			}
			c.evictLocked(tail, "cost")
		}
	}

	CacheEntries.WithLabelValues(c.opts.Name).Set(float64(c.list.len))
	CacheCost.WithLabelValues(c.opts.Name).Set(float64(c.list.cost))
}

func (c *Coordinator[K, V]) evictLocked(e *entry[K, V], reason string) {
	c.list.remove(e)
	delete(c.entries, e.key)
	CacheEvictions.WithLabelValues(c.opts.Name, reason).Inc()
	c.logger.Debug().
		Interface("key", e.key).
		Int64("cost", e.cost).
		Str("reason", reason).
		Time("last_access", e.lastAccess).
		Msg("Evicted cache entry")
}

func (c *Coordinator[K, V]) costOf(v V) int64 {
	if c.opts.Cost == nil {
		return 0
	}
	cost := c.opts.Cost(v)
	if cost < 0 {
		return 0
	}
	return cost
}

// Peek returns a cached value without loading or promoting it.
func (c *Coordinator[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return e.val, true
	}
	var zero V
	return zero, false
}

// Contains reports whether key is resident.
func (c *Coordinator[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Remove drops key from the cache. An in-flight load is not affected.
func (c *Coordinator[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.list.remove(e)
	delete(c.entries, key)
	CacheEntries.WithLabelValues(c.opts.Name).Set(float64(c.list.len))
	CacheCost.WithLabelValues(c.opts.Name).Set(float64(c.list.cost))
	return true
}

// Purge drops every resident entry. In-flight loads still complete and
// store their results.
func (c *Coordinator[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*entry[K, V])
	c.list = lruList[K, V]{}
	CacheEntries.WithLabelValues(c.opts.Name).Set(0)
	CacheCost.WithLabelValues(c.opts.Name).Set(0)
}

// Len returns the number of resident entries.
func (c *Coordinator[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.len
}

// Cost returns the aggregate cost of resident entries.
func (c *Coordinator[K, V]) Cost() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.cost
}

// Stats returns a snapshot of sizes and limits.
func (c *Coordinator[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:    c.list.len,
		Cost:       c.list.cost,
		InFlight:   len(c.inflight),
		MaxEntries: c.opts.MaxEntries,
		MaxCost:    c.opts.MaxCost,
	}
}

// Prefetch warms the cache for keys with at most concurrency parallel Gets.
// It returns the first load error; remaining keys are still attempted
// unless ctx is cancelled.
func (c *Coordinator[K, V]) Prefetch(ctx context.Context, keys []K, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 4
	}

	var g errgroup.Group
	g.SetLimit(concurrency)

	for _, key := range keys {
		key := key
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if _, err := c.Get(ctx, key); err != nil {
				return fmt.Errorf("prefetch %v: %w", key, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
