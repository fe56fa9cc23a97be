// Package cache implements the content-aware LRU response cache.
//
// Keys are hashes of the normalized query text, so "Kolik je hodin?" and
// "kolik je hodin?  " share an entry. Time-to-live comes from a Classifier
// applied to the query before insertion; expired entries are removed lazily
// on lookup rather than by a background sweep.
package cache

import (
	"container/list"
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
)

// Config tunes one cache instance.
type Config struct {
	// Enabled set to false disables both lookups and inserts.
	Enabled bool

	// MaxSize is the entry capacity; inserting into a full cache evicts
	// the least-recently-used entry first.
	MaxSize int

	// DefaultTTL applies when no Classifier is supplied.
	DefaultTTL time.Duration
}

// DefaultConfig returns the standard 100-entry, 5-minute-default cache.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		MaxSize:    100,
		DefaultTTL: 5 * time.Minute,
	}
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Enabled   bool    `json:"enabled"`
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Evictions uint64  `json:"evictions"`
}

type entry struct {
	key       string
	response  string
	createdAt time.Time
	ttl       time.Duration
	hits      int
}

// Cache is an in-memory LRU store of previously computed answers.
type Cache struct {
	cfg        Config
	classifier Classifier

	mu    sync.Mutex
	ll    *list.List // front = most recently used
	items map[string]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64

	// now is swappable so TTL expiry is testable without sleeping.
	now func() time.Time
}

// New creates a cache. A nil classifier falls back to Config.DefaultTTL
// for every insert.
func New(cfg Config, classifier Classifier) *Cache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	return &Cache{
		cfg:        cfg,
		classifier: classifier,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		now:        time.Now,
	}
}

// Get returns the cached answer for query, if present and fresh. A stale
// entry is deleted on the spot and counts as a miss. A hit refreshes the
// entry's LRU position.
func (c *Cache) Get(query string) (string, bool) {
	if !c.cfg.Enabled {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := hashQuery(query)
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return "", false
	}

	ent := el.Value.(*entry)
	if c.expired(ent) {
		c.ll.Remove(el)
		delete(c.items, key)
		c.misses++
		slog.Debug("cache entry expired", "age", c.now().Sub(ent.createdAt), "ttl", ent.ttl)
		return "", false
	}

	c.ll.MoveToFront(el)
	ent.hits++
	c.hits++
	return ent.response, true
}

// Set stores an answer under the query's normalized key. The TTL comes
// from the classifier; a zero TTL makes Set a no-op. Overwriting an
// existing key refreshes its LRU position. Inserting into a full cache
// evicts the least-recently-used entry synchronously.
func (c *Cache) Set(query, response string) {
	if !c.cfg.Enabled {
		return
	}

	ttl := c.cfg.DefaultTTL
	if c.classifier != nil {
		ttl = c.classifier.TTL(query)
	}
	if ttl == 0 {
		slog.Debug("query not cacheable", "query_len", len(query))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := hashQuery(query)
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		ent.response = response
		ent.createdAt = c.now()
		ent.ttl = ttl
		ent.hits = 0
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.cfg.MaxSize {
		c.evictOldest()
	}

	el := c.ll.PushFront(&entry{
		key:       key,
		response:  response,
		createdAt: c.now(),
		ttl:       ttl,
	})
	c.items[key] = el
}

// Clear drops every entry and zeroes the hit/miss/eviction counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.hits = 0
	c.misses = 0
	c.evictions = 0
}

// Stats returns a snapshot of the current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var hitRate float64
	if total := c.hits + c.misses; total > 0 {
		hitRate = math.Round(float64(c.hits)/float64(total)*100) / 100
	}

	return Stats{
		Enabled:   c.cfg.Enabled,
		Size:      c.ll.Len(),
		MaxSize:   c.cfg.MaxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		HitRate:   hitRate,
		Evictions: c.evictions,
	}
}

// expired reports whether the entry's age exceeds its TTL. Caller must
// hold c.mu.
func (c *Cache) expired(ent *entry) bool {
	if ent.ttl == TTLForever {
		return false
	}
	return c.now().Sub(ent.createdAt) > ent.ttl
}

// evictOldest removes the least-recently-used entry. Caller must hold c.mu.
func (c *Cache) evictOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	ent := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, ent.key)
	c.evictions++
	slog.Debug("cache evicted LRU entry", "entry_hits", ent.hits)
}

// hashQuery folds case and surrounding whitespace before hashing so the
// cache treats trivially different phrasings as the same query.
func hashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
