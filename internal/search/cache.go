package search

import (
	"sort"
	"sync"
	"time"

	"github.com/Parts-Partner/PartsPartners-sub001/internal/obs"
)

type resultEntry struct {
	parts     []Part
	storedAt  time.Time
	expiresAt time.Time
	hits      int
}

// ResultCache memoizes search results for a fixed TTL. Expired entries are
// deleted lazily on read. When the map would exceed its size bound the
// oldest ~20% are evicted, except entries hot enough to clear the popular
// threshold; if protection leaves nothing to evict, the single oldest entry
// goes anyway so the bound holds.
type ResultCache struct {
	mu          sync.Mutex
	ttl         time.Duration
	maxEntries  int
	popularHits int
	maxResults  int
	items       map[string]*resultEntry
	metrics     *obs.Metrics
	now         func() time.Time
}

func NewResultCache(ttl time.Duration, maxEntries, popularHits, maxResults int, m *obs.Metrics) *ResultCache {
	return &ResultCache{
		ttl:         ttl,
		maxEntries:  maxEntries,
		popularHits: popularHits,
		maxResults:  maxResults,
		items:       make(map[string]*resultEntry),
		metrics:     m,
		now:         time.Now,
	}
}

// Get returns a defensive copy of a fresh entry and bumps its hit count.
func (c *ResultCache) Get(key string) ([]Part, bool) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if !now.Before(e.expiresAt) {
		delete(c.items, key)
		return nil, false
	}
	e.hits++
	return cloneParts(e.parts), true
}

// Put stores a result set. Empty sets are not worth caching and oversized
// sets would bloat memory, so both are skipped.
func (c *ResultCache) Put(key string, parts []Part) {
	if len(parts) == 0 || (c.maxResults > 0 && len(parts) > c.maxResults) {
		return
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		c.evictLocked()
	}
	c.items[key] = &resultEntry{
		parts:     cloneParts(parts),
		storedAt:  now,
		expiresAt: now.Add(c.ttl),
	}
}

func (c *ResultCache) evictLocked() {
	type aged struct {
		key      string
		storedAt time.Time
		hits     int
	}
	all := make([]aged, 0, len(c.items))
	for k, e := range c.items {
		all = append(all, aged{key: k, storedAt: e.storedAt, hits: e.hits})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].storedAt.Before(all[j].storedAt) })

	target := len(all) / 5
	if target < 1 {
		target = 1
	}
	removed := 0
	for _, a := range all {
		if removed >= target {
			break
		}
		if a.hits >= c.popularHits && c.popularHits > 0 {
			continue
		}
		delete(c.items, a.key)
		removed++
	}
	if removed == 0 && len(all) > 0 {
		delete(c.items, all[0].key)
		removed = 1
	}
	if c.metrics != nil {
		for i := 0; i < removed; i++ {
			c.metrics.IncCacheEvictions()
		}
	}
}

func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *ResultCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*resultEntry)
}

func cloneParts(parts []Part) []Part {
	out := make([]Part, len(parts))
	copy(out, parts)
	return out
}

type suggestEntry struct {
	suggestions []Suggestion
	expiresAt   time.Time
}

// SuggestionCache is the TTL-only variant for the suggestions path. Cheap
// idempotent data, so no hit counting and no dedup; over the size bound the
// whole map is dropped.
type SuggestionCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	items      map[string]*suggestEntry
	now        func() time.Time
}

func NewSuggestionCache(ttl time.Duration, maxEntries int) *SuggestionCache {
	return &SuggestionCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		items:      make(map[string]*suggestEntry),
		now:        time.Now,
	}
}

func (c *SuggestionCache) Get(key string) ([]Suggestion, bool) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if !now.Before(e.expiresAt) {
		delete(c.items, key)
		return nil, false
	}
	out := make([]Suggestion, len(e.suggestions))
	copy(out, e.suggestions)
	return out, true
}

func (c *SuggestionCache) Put(key string, suggestions []Suggestion) {
	if len(suggestions) == 0 {
		return
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		c.items = make(map[string]*suggestEntry)
	}
	stored := make([]Suggestion, len(suggestions))
	copy(stored, suggestions)
	c.items[key] = &suggestEntry{suggestions: stored, expiresAt: now.Add(c.ttl)}
}

func (c *SuggestionCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*suggestEntry)
}
