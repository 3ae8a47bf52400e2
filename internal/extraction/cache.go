package extraction

import (
	"github.com/patrickmn/go-cache"

	"github.com/zombor/receipt2json/internal/document"
	"github.com/zombor/receipt2json/internal/scanning"
)

// Cache maps fingerprints to extracted records for the life of one
// session. Entries never expire and are never replaced.
type Cache struct {
	items *cache.Cache
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	// No default expiration and no janitor goroutine.
	return &Cache{items: cache.New(cache.NoExpiration, 0)}
}

// Get returns a copy of the record stored for fp.
func (c *Cache) Get(fp document.Fingerprint) (scanning.Record, bool) {
	v, ok := c.items.Get(fp.String())
	if !ok {
		return scanning.Record{}, false
	}
	return v.(scanning.Record).Clone(), true
}

// Put stores rec under fp unless fp is already present. It reports whether
// rec was stored.
func (c *Cache) Put(fp document.Fingerprint, rec scanning.Record) bool {
	return c.items.Add(fp.String(), rec.Clone(), cache.NoExpiration) == nil
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	return c.items.ItemCount()
}
