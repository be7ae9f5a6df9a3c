package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bradykim7/dentscraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func batch() []models.Product {
	return []models.Product{
		{Title: "Product 1", Price: 1000, ImagePath: "a.jpg"},
		{Title: "Product 2", Price: 250.5, ImagePath: "b.jpg"},
	}
}

func TestFilterChangedIsIdempotentWithinTTL(t *testing.T) {
	c := New(DefaultTTL, WithClock(newClock().Now))

	first := c.FilterChanged(batch())
	assert.Equal(t, batch(), first)

	second := c.FilterChanged(batch())
	assert.Empty(t, second)
	assert.NotNil(t, second)
}

func TestFilterChangedReportsPriceChanges(t *testing.T) {
	c := New(DefaultTTL, WithClock(newClock().Now))
	c.FilterChanged(batch())

	next := batch()
	next[1].Price = 199.99
	next = append(next, models.Product{Title: "Product 3", Price: 10})

	changed := c.FilterChanged(next)
	require.Len(t, changed, 2)
	assert.Equal(t, "Product 2", changed[0].Title)
	assert.Equal(t, "Product 3", changed[1].Title)

	price, ok := c.Get("Product 2")
	require.True(t, ok)
	assert.Equal(t, 199.99, price)
}

func TestEntriesExpireAfterTTL(t *testing.T) {
	clock := newClock()
	c := New(time.Hour, WithClock(clock.Now))

	require.True(t, c.Observe("Product 1", 1000))

	clock.Advance(59 * time.Minute)
	assert.False(t, c.Observe("Product 1", 1000))

	clock.Advance(time.Minute)
	_, ok := c.Get("Product 1")
	assert.False(t, ok)
	assert.True(t, c.Observe("Product 1", 1000), "expired title must look new even at the same price")
}

func TestUnchangedLookupDoesNotRefreshTTL(t *testing.T) {
	clock := newClock()
	c := New(time.Hour, WithClock(clock.Now))

	c.Observe("Product 1", 1000)

	clock.Advance(45 * time.Minute)
	assert.False(t, c.Observe("Product 1", 1000))
	_, _ = c.Get("Product 1")

	clock.Advance(15 * time.Minute)
	assert.True(t, c.Observe("Product 1", 1000))
}

func TestPriceChangeRestartsTTL(t *testing.T) {
	clock := newClock()
	c := New(time.Hour, WithClock(clock.Now))

	c.Observe("Product 1", 1000)
	clock.Advance(50 * time.Minute)
	assert.True(t, c.Observe("Product 1", 900))

	clock.Advance(50 * time.Minute)
	assert.False(t, c.Observe("Product 1", 900))
}

func TestConcurrentObserveCountsNewTitleOnce(t *testing.T) {
	c := New(DefaultTTL)

	const workers = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if c.Observe("Contended Title", 42) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestConcurrentIndependentKeys(t *testing.T) {
	c := New(DefaultTTL)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				title := fmt.Sprintf("worker-%d-item-%d", i, j)
				assert.True(t, c.Observe(title, float64(j)))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1600, c.Len())
}

func TestNewUsesDefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, New(0).TTL())
	assert.Equal(t, 5*time.Minute, New(5*time.Minute).TTL())
}
