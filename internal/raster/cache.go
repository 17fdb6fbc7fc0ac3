package raster

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
	"github.com/couchcryptid/dark-sky-site-finder/internal/observability"
)

// RegionLoader produces the raster for a region.
type RegionLoader interface {
	Load(ctx context.Context, region domain.Region) (*Raster, error)
}

// Cache holds one raster per region for the life of the process. Concurrent
// requests for a region that is not yet resident share a single load.
// Failed loads are not cached, so the next request tries again.
type Cache struct {
	loader  RegionLoader
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	rasters  map[string]*Raster
	inflight singleflight.Group
}

// NewCache creates an empty cache in front of loader.
func NewCache(loader RegionLoader, logger *slog.Logger, metrics *observability.Metrics) *Cache {
	return &Cache{
		loader:  loader,
		logger:  logger,
		metrics: metrics,
		rasters: make(map[string]*Raster),
	}
}

// Get returns the region's raster, loading it on first use. Waiting callers
// give up when ctx ends; the shared load keeps running for the others.
func (c *Cache) Get(ctx context.Context, region domain.Region) (*Raster, error) {
	if r, ok := c.lookup(region.Name); ok {
		c.metrics.RasterCache.WithLabelValues("hit").Inc()
		return r, nil
	}
	c.metrics.RasterCache.WithLabelValues("miss").Inc()

	loadCtx := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(region.Name, func() (any, error) {
		if r, ok := c.lookup(region.Name); ok {
			return r, nil
		}

		start := time.Now()
		r, err := c.loader.Load(loadCtx, region)
		if err != nil {
			return nil, err
		}
		c.metrics.RasterLoadDuration.WithLabelValues(region.Name).Observe(time.Since(start).Seconds())

		c.mu.Lock()
		c.rasters[region.Name] = r
		resident := len(c.rasters)
		c.mu.Unlock()
		c.metrics.RastersResident.Set(float64(resident))
		return r, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.logger.Error("raster load failed", "region", region.Name, "error", res.Err)
			return nil, res.Err
		}
		return res.Val.(*Raster), nil
	}
}

// Resident reports whether the region's raster is already loaded.
func (c *Cache) Resident(name string) bool {
	_, ok := c.lookup(name)
	return ok
}

func (c *Cache) lookup(name string) (*Raster, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rasters[name]
	return r, ok
}
