// Package cache implements the semantic answer cache: a small vector-indexed
// store of (query, answer) pairs that serves a previously generated answer
// when a new query is a near-duplicate of a cached one. Similarity is cosine,
// computed as the inner product of unit-normalized embeddings; an entry
// matches only when its similarity reaches the configured threshold, so the
// cache never answers superficially similar but semantically distinct
// questions. Entries expire after a TTL and the least-recently-accessed
// entries are evicted under capacity pressure.
//
// The cache is the only mutable shared structure in the engine. All
// bookkeeping is serialized through a single mutex; embedding calls, which
// may be slow network calls, never run under it. The internal similarity
// index is rebuilt from scratch on every mutation, which at the configured
// capacities (≤ a few hundred entries) is simpler and safer than incremental
// maintenance.
package cache

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/knowligo/knowligo-go/internal/rag"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultThreshold = 0.92
	DefaultTTL       = time.Hour
	DefaultMaxSize   = 100
)

// Source identifies one knowledge fragment that supported a cached answer.
type Source struct {
	// File is the originating document of the fragment.
	File string `json:"file"`

	// Section is the section label within the document.
	Section string `json:"section"`

	// Score is the fragment's relevance score at generation time.
	Score float64 `json:"score"`
}

// Entry is the material written into the cache after a full pipeline run.
type Entry struct {
	// Query is the original user query text.
	Query string

	// Answer is the generated answer to cache.
	Answer string

	// Intent is the classified intent of the query.
	Intent string

	// Sources lists the fragments the answer was built from.
	Sources []Source
}

// Hit is a successful cache lookup.
type Hit struct {
	// Answer is the cached answer text.
	Answer string

	// Intent is the intent recorded with the cached answer.
	Intent string

	// Sources lists the fragments recorded with the cached answer.
	Sources []Source

	// Score is the cosine similarity between the lookup query and the
	// matched cached query.
	Score float64

	// CachedQuery is the query text the matched entry was stored under.
	CachedQuery string
}

// Stats is a point-in-time snapshot of cache effectiveness counters.
type Stats struct {
	// Entries is the current number of live entries.
	Entries int `json:"entries"`

	// Capacity is the configured maximum number of entries.
	Capacity int `json:"capacity"`

	// Hits counts lookups that returned a cached answer.
	Hits uint64 `json:"hits"`

	// Misses counts lookups that found no sufficiently similar entry.
	Misses uint64 `json:"misses"`

	// HitRate is Hits/(Hits+Misses) as a percentage, 0 with no lookups.
	HitRate float64 `json:"hit_rate"`

	// Threshold is the configured similarity threshold.
	Threshold float64 `json:"threshold"`

	// TTLSeconds is the configured entry lifetime in seconds.
	TTLSeconds int `json:"ttl_seconds"`
}

// Cache is the interface the pipeline depends on. SemanticCache is the real
// implementation; Nop is injected when caching is disabled.
type Cache interface {
	// Lookup returns the cached answer for a near-duplicate of query, or
	// (nil, nil) on a miss. An embedding failure is returned as an error,
	// never masked as a miss.
	Lookup(ctx context.Context, query string) (*Hit, error)

	// Store embeds the query and adds a new entry, evicting as needed.
	Store(ctx context.Context, e Entry) error

	// Clear drops all entries and resets the hit/miss counters.
	Clear()

	// Stats returns a snapshot of the cache counters and configuration.
	Stats() Stats
}

// Config holds the cache tuning knobs.
type Config struct {
	// Threshold is the minimum cosine similarity for a hit (0–1).
	// Defaults to DefaultThreshold if zero.
	Threshold float64

	// TTL is the maximum entry age. An entry older than TTL at lookup time
	// is purged, never served. Defaults to DefaultTTL if zero.
	TTL time.Duration

	// MaxSize is the maximum number of entries held. Defaults to
	// DefaultMaxSize if zero.
	MaxSize int
}

// entry is one live cache record. lastAccess is the only field mutated after
// creation, always under the cache mutex.
type entry struct {
	query      string
	vec        []float32
	answer     string
	intent     string
	sources    []Source
	createdAt  time.Time
	lastAccess time.Time
}

// SemanticCache is the mutex-guarded cache implementation.
type SemanticCache struct {
	// embedder converts query text into vectors. Calls run outside the lock.
	embedder rag.Embedder

	// cfg holds the resolved cache configuration.
	cfg Config

	// now is the clock, injectable in tests.
	now func() time.Time

	// mu guards everything below.
	mu      sync.Mutex
	entries []*entry

	// index is the inner-product index over the entries' normalized
	// vectors, rebuilt on every mutation. nil while the cache is empty.
	index *rag.FlatIndex

	hits   uint64
	misses uint64
}

// New constructs a SemanticCache over the given embedder.
func New(embedder rag.Embedder, cfg Config) (*SemanticCache, error) {
	if embedder == nil {
		return nil, fmt.Errorf("cache: embedder must not be nil")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	return &SemanticCache{
		embedder: embedder,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// Lookup searches for a cached entry whose query is semantically close
// enough to query. Expired entries are purged first; an empty cache misses
// without calling the embedder. On a hit the entry's last-access time is
// refreshed.
func (c *SemanticCache) Lookup(ctx context.Context, query string) (*Hit, error) {
	c.mu.Lock()
	c.purgeExpiredLocked()
	if len(c.entries) == 0 {
		c.misses++
		c.mu.Unlock()
		return nil, nil
	}
	c.mu.Unlock()

	// Embed outside the lock: the call may take hundreds of milliseconds.
	vec, err := c.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("cache: embedding lookup query: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Entries may have expired or been evicted while embedding ran.
	c.purgeExpiredLocked()
	if len(c.entries) == 0 || c.index == nil {
		c.misses++
		return nil, nil
	}

	hits, err := c.index.Search(ctx, vec, 1)
	if err != nil || len(hits) == 0 {
		c.misses++
		return nil, nil //nolint:nilerr // an empty index is a miss, not a failure
	}

	best := hits[0]
	if best.Score < c.cfg.Threshold {
		c.misses++
		return nil, nil
	}

	e := c.entries[best.ChunkID]
	e.lastAccess = c.now()
	c.hits++

	return &Hit{
		Answer:      e.answer,
		Intent:      e.intent,
		Sources:     append([]Source(nil), e.sources...),
		Score:       best.Score,
		CachedQuery: e.query,
	}, nil
}

// Store embeds the query and appends a new entry, evicting the
// least-recently-accessed entries when over capacity and rebuilding the
// similarity index. The append, eviction and rebuild happen atomically
// under the cache mutex.
func (c *SemanticCache) Store(ctx context.Context, e Entry) error {
	vec, err := c.embed(ctx, e.Query)
	if err != nil {
		return fmt.Errorf("cache: embedding stored query: %w", err)
	}

	now := c.now()
	rec := &entry{
		query:      e.Query,
		vec:        vec,
		answer:     e.Answer,
		intent:     e.Intent,
		sources:    append([]Source(nil), e.Sources...),
		createdAt:  now,
		lastAccess: now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = append(c.entries, rec)
	c.evictLRULocked()
	c.rebuildLocked()
	return nil
}

// Clear drops all entries and resets the counters.
func (c *SemanticCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	c.index = nil
	c.hits = 0
	c.misses = 0
}

// Stats returns a snapshot of the cache counters and configuration.
func (c *SemanticCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries:    len(c.entries),
		Capacity:   c.cfg.MaxSize,
		Hits:       c.hits,
		Misses:     c.misses,
		Threshold:  c.cfg.Threshold,
		TTLSeconds: int(c.cfg.TTL / time.Second),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total) * 100
	}
	return s
}

// embed fetches and unit-normalizes the embedding for one text.
func (c *SemanticCache) embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one text", len(vecs))
	}
	return normalize(vecs[0]), nil
}

// purgeExpiredLocked removes entries older than the TTL and rebuilds the
// index if anything was dropped. Caller must hold mu.
func (c *SemanticCache) purgeExpiredLocked() {
	now := c.now()
	kept := c.entries[:0]
	for _, e := range c.entries {
		if now.Sub(e.createdAt) < c.cfg.TTL {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(c.entries) {
		return
	}
	c.entries = kept
	c.rebuildLocked()
}

// evictLRULocked trims the entry set to MaxSize, dropping the
// least-recently-accessed entries first. Caller must hold mu.
func (c *SemanticCache) evictLRULocked() {
	if len(c.entries) <= c.cfg.MaxSize {
		return
	}
	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].lastAccess.After(c.entries[j].lastAccess)
	})
	c.entries = c.entries[:c.cfg.MaxSize]
}

// rebuildLocked reconstructs the inner-product index from the current entry
// set. Entry positions double as index IDs. Caller must hold mu.
func (c *SemanticCache) rebuildLocked() {
	if len(c.entries) == 0 {
		c.index = nil
		return
	}
	idx, err := rag.NewFlatIndex(len(c.entries[0].vec), rag.MetricInnerProduct)
	if err != nil {
		// Unreachable with a sane embedder; an empty index degrades to misses.
		c.index = nil
		return
	}
	for i, e := range c.entries {
		if err := idx.Add(i, e.vec); err != nil {
			c.index = nil
			return
		}
	}
	c.index = idx
}

// normalize scales v to unit length so inner products equal cosine
// similarity. A zero vector is returned unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
