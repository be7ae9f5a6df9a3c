// Package cache holds the change-detection cache that decides which scraped
// products are new or repriced since they were last seen.
//
// Entries expire lazily: an expired entry is dropped when it is next looked up,
// so a product whose entry expired is reported as changed again.
package cache

import (
	"hash/maphash"
	"sync"
	"time"

	"github.com/bradykim7/dentscraper/internal/models"
)

// DefaultTTL is how long a seen price is remembered
const DefaultTTL = time.Hour

const shardCount = 64

type entry struct {
	price      float64
	insertedAt time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]entry
}

// ChangeCache maps product title to last-seen price for a fixed TTL.
// It is safe for concurrent use; operations on one title are serialized,
// titles in different shards do not contend.
type ChangeCache struct {
	ttl    time.Duration
	now    func() time.Time
	seed   maphash.Seed
	shards [shardCount]*shard
}

// Option configures a ChangeCache
type Option func(*ChangeCache)

// WithClock replaces the time source used for expiry
func WithClock(now func() time.Time) Option {
	return func(c *ChangeCache) {
		c.now = now
	}
}

// New creates a cache whose entries live for ttl. A non-positive ttl uses DefaultTTL.
func New(ttl time.Duration, opts ...Option) *ChangeCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &ChangeCache{
		ttl:  ttl,
		now:  time.Now,
		seed: maphash.MakeSeed(),
	}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]entry)}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the entry lifetime
func (c *ChangeCache) TTL() time.Duration {
	return c.ttl
}

func (c *ChangeCache) shardFor(title string) *shard {
	return c.shards[maphash.String(c.seed, title)%shardCount]
}

// lookup returns the live entry for title. The shard lock must be held.
func (c *ChangeCache) lookup(s *shard, title string) (entry, bool) {
	e, ok := s.entries[title]
	if !ok {
		return entry{}, false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		delete(s.entries, title)
		return entry{}, false
	}
	return e, true
}

// Get returns the last-seen price for title. It does not extend the entry's lifetime.
func (c *ChangeCache) Get(title string) (float64, bool) {
	s := c.shardFor(title)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := c.lookup(s, title)
	return e.price, ok
}

// Set records price for title and restarts its lifetime
func (c *ChangeCache) Set(title string, price float64) {
	s := c.shardFor(title)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[title] = entry{price: price, insertedAt: c.now()}
}

// Observe reports whether price is new or different for title, recording it if so.
// An unchanged price leaves the entry and its lifetime untouched.
func (c *ChangeCache) Observe(title string, price float64) bool {
	s := c.shardFor(title)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := c.lookup(s, title); ok && e.price == price {
		return false
	}
	s.entries[title] = entry{price: price, insertedAt: c.now()}
	return true
}

// FilterChanged returns the products that are new or repriced, in input order,
// and records every changed price.
func (c *ChangeCache) FilterChanged(products []models.Product) []models.Product {
	changed := make([]models.Product, 0, len(products))
	for _, p := range products {
		if c.Observe(p.Title, p.Price) {
			changed = append(changed, p)
		}
	}
	return changed
}

// Len returns the number of stored entries, including expired ones not yet looked up
func (c *ChangeCache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
