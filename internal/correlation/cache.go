package correlation

import (
	"sync"
	"time"

	"github.com/omen-systems/omen/internal/domain"
)

const (
	defaultCacheSize = 1000
	defaultCacheTTL  = 24 * time.Hour
	similarityFloor  = 0.7
)

// CacheEntry is one remembered event in the fingerprint cache
type CacheEntry struct {
	EventID     string        `json:"event_id"`
	Source      domain.Source `json:"source"`
	Fingerprint string        `json:"fingerprint"`
	Probability float64       `json:"probability"`
	Sentiment   float64       `json:"sentiment"`
	Locations   []string      `json:"locations,omitempty"`
	Keywords    []string      `json:"keywords,omitempty"`
	CachedAt    time.Time     `json:"cached_at"`
}

// Cache is a bounded, TTL'd fingerprint cache indexed by both event id and
// fingerprint. Eviction is insertion-ordered: oldest first. Safe for
// concurrent use.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	order   []string // event ids, oldest first
	byEvent map[string]*CacheEntry
	byPrint map[string][]string // fingerprint -> event ids
	now     func() time.Time
}

// NewCache creates a cache with the given bounds; zero values select the
// defaults (1000 entries, 24h TTL).
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{
		maxSize: maxSize,
		ttl:     ttl,
		byEvent: make(map[string]*CacheEntry),
		byPrint: make(map[string][]string),
		now:     time.Now,
	}
}

// Put remembers an event, evicting the oldest entry on overflow
func (c *Cache) Put(entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.CachedAt = c.now()

	if _, exists := c.byEvent[entry.EventID]; exists {
		c.removeLocked(entry.EventID)
	}

	for len(c.order) >= c.maxSize {
		c.removeLocked(c.order[0])
	}

	c.byEvent[entry.EventID] = &entry
	c.byPrint[entry.Fingerprint] = append(c.byPrint[entry.Fingerprint], entry.EventID)
	c.order = append(c.order, entry.EventID)
}

// Get returns the entry for an event id, honoring TTL
func (c *Cache) Get(eventID string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.byEvent[eventID]
	if !ok || c.expired(entry) {
		return CacheEntry{}, false
	}
	return *entry, true
}

// FindSimilar returns cached entries matching the fingerprint: exact
// matches first, then entries whose fingerprint similarity is at least 0.7.
// When crossSource is set, entries from excludeSource are skipped.
func (c *Cache) FindSimilar(fingerprint string, excludeSource domain.Source, crossSource bool) []CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []CacheEntry
	seen := map[string]bool{}

	for _, id := range c.byPrint[fingerprint] {
		entry, ok := c.byEvent[id]
		if !ok || c.expired(entry) {
			continue
		}
		if crossSource && entry.Source == excludeSource {
			continue
		}
		out = append(out, *entry)
		seen[id] = true
	}

	for print, ids := range c.byPrint {
		if print == fingerprint {
			continue
		}
		if Similarity(print, fingerprint) < similarityFloor {
			continue
		}
		for _, id := range ids {
			entry, ok := c.byEvent[id]
			if !ok || seen[id] || c.expired(entry) {
				continue
			}
			if crossSource && entry.Source == excludeSource {
				continue
			}
			out = append(out, *entry)
			seen[id] = true
		}
	}

	return out
}

// Len reports the number of live entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byEvent)
}

// Reset empties the cache. Test hook.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.byEvent = make(map[string]*CacheEntry)
	c.byPrint = make(map[string][]string)
}

func (c *Cache) expired(e *CacheEntry) bool {
	return c.now().Sub(e.CachedAt) > c.ttl
}

func (c *Cache) removeLocked(eventID string) {
	entry, ok := c.byEvent[eventID]
	if !ok {
		return
	}
	delete(c.byEvent, eventID)

	ids := c.byPrint[entry.Fingerprint]
	for i, id := range ids {
		if id == eventID {
			c.byPrint[entry.Fingerprint] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(c.byPrint[entry.Fingerprint]) == 0 {
		delete(c.byPrint, entry.Fingerprint)
	}

	for i, id := range c.order {
		if id == eventID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
