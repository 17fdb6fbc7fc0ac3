package search

import (
	"context"
	"slices"

	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
	"github.com/couchcryptid/dark-sky-site-finder/internal/lru"
	"github.com/couchcryptid/dark-sky-site-finder/internal/observability"
)

// queryKey is the exact query. Results carry distances from the query point,
// so only an identical point may reuse them.
type queryKey struct {
	lat, lon float64
	radius   float64
	topN     int
}

func keyFor(q domain.SiteQuery) queryKey {
	return queryKey{lat: q.Lat, lon: q.Lon, radius: q.RadiusKm, topN: q.TopN}
}

// CachedEngine wraps a Searcher with an in-memory LRU of computed outcomes.
type CachedEngine struct {
	inner   Searcher
	cache   *lru.Cache[queryKey, domain.SearchOutcome]
	metrics *observability.Metrics
}

// NewCachedEngine creates a cache decorator around a searcher.
func NewCachedEngine(inner Searcher, maxEntries int, metrics *observability.Metrics) *CachedEngine {
	return &CachedEngine{
		inner:   inner,
		cache:   lru.New[queryKey, domain.SearchOutcome](maxEntries),
		metrics: metrics,
	}
}

// Search returns the cached outcome for an identical query, or runs the inner
// searcher and caches its outcome when computed.
func (c *CachedEngine) Search(ctx context.Context, q domain.SiteQuery) (domain.SearchOutcome, error) {
	key := keyFor(q)
	if outcome, ok := c.cache.Get(key); ok {
		c.metrics.ResultCache.WithLabelValues("hit").Inc()
		return cloneOutcome(outcome), nil
	}
	c.metrics.ResultCache.WithLabelValues("miss").Inc()

	outcome, err := c.inner.Search(ctx, q)
	if err != nil {
		return outcome, err
	}
	// Only computed outcomes are worth keeping; uncovered points resolve without I/O.
	if outcome.Status == domain.StatusComputed {
		c.cache.Put(key, cloneOutcome(outcome))
	}
	return outcome, nil
}

// LevelAt is not cached; it reads a single pixel.
func (c *CachedEngine) LevelAt(ctx context.Context, lat, lon float64) (Level, error) {
	return c.inner.LevelAt(ctx, lat, lon)
}

// cloneOutcome copies the result slice so callers may enrich results in place.
func cloneOutcome(o domain.SearchOutcome) domain.SearchOutcome {
	o.Results = slices.Clone(o.Results)
	if o.Results == nil {
		o.Results = []domain.SearchResult{}
	}
	return o
}
