// Package cache keeps recent harvest responses in memory so repeated
// requests for the same note within max_age skip the browser entirely.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/use-agent/harvest/models"
)

const (
	cleanupInterval = 5 * time.Minute
	entryTTL        = time.Hour
)

// entry holds a cached response with its creation timestamp.
type entry struct {
	response  *models.HarvestResponse
	createdAt time.Time
}

// Cache is a simple in-memory cache for harvest responses.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	now        func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

// New creates a new Cache with the given maximum number of entries.
// A background goroutine evicts entries older than an hour every 5 minutes
// until Close is called.
func New(maxEntries int) *Cache {
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	go c.cleanupLoop(cleanupInterval)
	return c
}

// Key derives a cache key from everything that changes what a harvest
// returns: the URL, the cookie material, and the result-shaping options.
// Pacing options (settle, timeout) are left out.
func Key(req *models.HarvestRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|", req.URL, req.CookieString, req.Cookies)
	fmt.Fprintf(h, "%d|%s|%d|%t|%t|%t|%t|%t",
		req.MaxRounds, req.ExtractMode, req.SimilarityThreshold,
		req.CollectImages, req.Analyze, req.Summarize, req.SkipProbe, req.Preflight,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached response if it exists and is younger than maxAge.
// maxAge is in milliseconds. If maxAge <= 0, no cache lookup is performed.
// Returns the response and whether it was a cache hit.
func (c *Cache) Get(key string, maxAgeMs int) (*models.HarvestResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	maxAge := time.Duration(maxAgeMs) * time.Millisecond
	if c.now().Sub(e.createdAt) > maxAge {
		return nil, false
	}

	return e.response, true
}

// Set stores a response in the cache. If the cache is at capacity,
// a random entry is evicted to make room.
func (c *Cache) Set(key string, resp *models.HarvestResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		response:  resp,
		createdAt: c.now(),
	}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) evictExpired() {
	cutoff := c.now().Add(-entryTTL)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
