// Package cache stores response bodies keyed by canonical URL and honors
// their declared freshness lifetime.
package cache

import (
	"time"

	"bowsernet/internal/weburl"
)

// Entry is one cached response.
type Entry struct {
	Response  string
	MaxAge    time.Duration // zero means the entry never goes stale
	FetchedAt time.Time
}

// Stale reports whether the entry has outlived its max-age at now.
func (e Entry) Stale(now time.Time) bool {
	return e.MaxAge > 0 && now.Sub(e.FetchedAt) > e.MaxAge
}

// Cache maps canonical HTTP URLs to response bodies. Stale entries stay in
// place until overwritten; nothing bounds the number of entries.
// A Cache is not safe for concurrent use.
type Cache struct {
	entries map[string]Entry
	now     func() time.Time
}

// New creates an empty Cache.
func New() *Cache {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty Cache that reads the time from now.
func NewWithClock(now func() time.Time) *Cache {
	return &Cache{
		entries: make(map[string]Entry),
		now:     now,
	}
}

// Get returns the cached body for u if it exists and is fresh.
func (c *Cache) Get(u weburl.HTTP) (string, bool) {
	e, ok := c.entries[u.String()]
	if !ok || e.Stale(c.now()) {
		return "", false
	}
	return e.Response, true
}

// Set stores body for u, overwriting any previous entry. A zero maxAge
// stores the body without expiry.
func (c *Cache) Set(u weburl.HTTP, body string, maxAge time.Duration) {
	c.entries[u.String()] = Entry{
		Response:  body,
		MaxAge:    maxAge,
		FetchedAt: c.now(),
	}
}

// Len returns the number of entries, stale ones included.
func (c *Cache) Len() int {
	return len(c.entries)
}
