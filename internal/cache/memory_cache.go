package cache

import (
	"sync"
	"time"

	"github.com/tlemoine/peatrack/internal/models"
)

// MemoryCache provides an in-memory L1 cache in front of the price store.
// Latest price points are pushed by the sync job and read by valuation;
// quotes expire after a TTL.
type MemoryCache struct {
	latest   map[int64]models.PricePoint
	quotes   map[int64]quoteEntry
	latestMu sync.RWMutex
	quoteMu  sync.RWMutex
	quoteTTL time.Duration
}

type quoteEntry struct {
	quote     *models.Quote
	fetchedAt time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(quoteTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		latest:   make(map[int64]models.PricePoint),
		quotes:   make(map[int64]quoteEntry),
		quoteTTL: quoteTTL,
	}
}

// GetLatest retrieves the cached latest price point for a ticker
func (c *MemoryCache) GetLatest(tickerID int64) (models.PricePoint, bool) {
	c.latestMu.RLock()
	defer c.latestMu.RUnlock()

	p, exists := c.latest[tickerID]
	return p, exists
}

// SetLatest caches a price point if it is at least as recent as the one held
func (c *MemoryCache) SetLatest(p models.PricePoint) {
	c.latestMu.Lock()
	defer c.latestMu.Unlock()

	if held, exists := c.latest[p.TickerID]; exists && held.Date.After(p.Date) {
		return
	}
	c.latest[p.TickerID] = p
}

// GetQuote retrieves a cached quote if fresh
func (c *MemoryCache) GetQuote(tickerID int64) (*models.Quote, bool) {
	c.quoteMu.RLock()
	defer c.quoteMu.RUnlock()

	entry, exists := c.quotes[tickerID]
	if !exists {
		return nil, false
	}
	if time.Since(entry.fetchedAt) > c.quoteTTL {
		return nil, false
	}
	return entry.quote, true
}

// SetQuote caches a quote
func (c *MemoryCache) SetQuote(tickerID int64, quote *models.Quote) {
	c.quoteMu.Lock()
	defer c.quoteMu.Unlock()

	c.quotes[tickerID] = quoteEntry{
		quote:     quote,
		fetchedAt: time.Now(),
	}
}

// Clear removes all cached data
func (c *MemoryCache) Clear() {
	c.latestMu.Lock()
	c.latest = make(map[int64]models.PricePoint)
	c.latestMu.Unlock()

	c.quoteMu.Lock()
	c.quotes = make(map[int64]quoteEntry)
	c.quoteMu.Unlock()
}
