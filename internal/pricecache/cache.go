// Package pricecache stores the latest known price per traded symbol.
// Only the most recent observation is retained; history is not kept here.
package pricecache

import (
	"sync"
	"time"
)

type entry struct {
	price      float64
	receivedAt time.Time
}

// Cache holds latest prices keyed by base symbol (e.g. "BTC"). Each symbol
// is expected to have a single feed goroutine writing it, which keeps
// same-symbol updates in arrival order.
type Cache struct {
	mu     sync.RWMutex
	prices map[string]entry
}

// New creates an empty price cache.
func New() *Cache {
	return &Cache{prices: make(map[string]entry)}
}

// Update stores the price for symbol and reports whether it changed.
// An update equal to the cached value is a no-op so downstream matching
// is not re-triggered redundantly.
func (c *Cache) Update(symbol string, price float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.prices[symbol]; ok && cur.price == price {
		return false
	}
	c.prices[symbol] = entry{price: price, receivedAt: time.Now().UTC()}
	return true
}

// Get returns the latest price for symbol, false if never received.
func (c *Cache) Get(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.prices[symbol]
	return e.price, ok
}

// Symbols returns the symbols with a cached price.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.prices))
	for s := range c.prices {
		out = append(out, s)
	}
	return out
}
