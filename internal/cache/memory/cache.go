// Package memory is the process-local repository.Cache used when Redis is off.
// Entries are bounded and evicted least-recently-used first.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/prn-tf/hermes/internal/repository"
)

const (
	defaultMaxEntries = 10000
	defaultSweepEvery = time.Minute
)

// Option tunes a Cache.
type Option func(*Cache)

// WithMaxEntries caps the number of live entries. n <= 0 means unbounded.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

// WithSweepInterval sets how often expired entries are purged in the background.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.sweepEvery = d
		}
	}
}

type entry struct {
	key      string
	value    []byte
	deadline time.Time // zero: never expires
}

func (e *entry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && !now.Before(e.deadline)
}

// Cache is safe for concurrent use. Values are copied in and out.
type Cache struct {
	mu         sync.Mutex
	index      map[string]*list.Element
	order      *list.List // front is most recently used
	maxEntries int
	sweepEvery time.Duration
	now        func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// NewCache starts a cache and its background sweeper. Call Stop to release it.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		index:      make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: defaultMaxEntries,
		sweepEvery: defaultSweepEvery,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.sweepLoop()
	return c
}

func (c *Cache) sweepLoop() {
	t := time.NewTicker(c.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.cleanup()
		case <-c.done:
			return
		}
	}
}

// cleanup drops every expired entry.
func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*entry).expired(now) {
			c.removeElement(el)
		}
		el = prev
	}
}

// Stop ends the sweeper. It is safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Len counts stored entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return nil, repository.ErrCacheMiss
	}
	e := el.Value.(*entry)
	if e.expired(c.now()) {
		c.removeElement(el)
		return nil, repository.ErrCacheMiss
	}
	c.order.MoveToFront(el)
	return clone(e.value), nil
}

// Set stores value under key. ttl <= 0 keeps it until evicted or deleted.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var deadline time.Time
	if ttl > 0 {
		deadline = c.now().Add(ttl)
	}

	if el, ok := c.index[key]; ok {
		e := el.Value.(*entry)
		e.value = clone(value)
		e.deadline = deadline
		c.order.MoveToFront(el)
		return nil
	}

	c.index[key] = c.order.PushFront(&entry{key: key, value: clone(value), deadline: deadline})
	for c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		c.removeElement(c.order.Back())
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.DeleteMulti(ctx, key)
}

func (c *Cache) DeleteMulti(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		if el, ok := c.index[key]; ok {
			c.removeElement(el)
		}
	}
	return nil
}

// Exists reports a live entry without touching its recency.
func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	return ok && !el.Value.(*entry).expired(c.now()), nil
}

// removeElement requires c.mu.
func (c *Cache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.index, el.Value.(*entry).key)
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

var _ repository.Cache = (*Cache)(nil)
