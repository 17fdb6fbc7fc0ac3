// Package search ranks the darkest raster pixels around a point.
package search

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
	"github.com/couchcryptid/dark-sky-site-finder/internal/observability"
	"github.com/couchcryptid/dark-sky-site-finder/internal/raster"
)

// RasterSource returns the pixel grid for a region.
type RasterSource interface {
	Get(ctx context.Context, region domain.Region) (*raster.Raster, error)
}

// Searcher answers site queries. Implemented by Engine and CachedEngine.
type Searcher interface {
	Search(ctx context.Context, q domain.SiteQuery) (domain.SearchOutcome, error)
	LevelAt(ctx context.Context, lat, lon float64) (Level, error)
}

// Level is the pollution reading at a single point.
type Level struct {
	Covered bool
	Region  string
	Value   float64
	Entry   domain.ScaleEntry
}

// Engine is safe for concurrent use: the catalog and scale are immutable and
// the raster source serializes its own loads.
type Engine struct {
	catalog *domain.Catalog
	rasters RasterSource
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewEngine creates a search engine over the catalog's regions.
func NewEngine(catalog *domain.Catalog, rasters RasterSource, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		catalog: catalog,
		rasters: rasters,
		logger:  logger,
		metrics: metrics,
	}
}

// FindOptimal returns up to topN pixels within radiusKm of the point whose
// level is strictly below the level at the point, darkest first, nearest
// first among equals. An uncovered point yields no results and no error.
func (e *Engine) FindOptimal(ctx context.Context, lat, lon, radiusKm float64, topN int) ([]domain.SearchResult, error) {
	outcome, err := e.Search(ctx, domain.SiteQuery{Lat: lat, Lon: lon, RadiusKm: radiusKm, TopN: topN})
	if err != nil {
		return nil, err
	}
	return outcome.Results, nil
}

// LevelAt classifies the pixel under the point.
func (e *Engine) LevelAt(ctx context.Context, lat, lon float64) (Level, error) {
	region, ok := e.catalog.Resolve(lat, lon)
	if !ok {
		return Level{}, nil
	}
	r, err := e.rasters.Get(ctx, region)
	if err != nil {
		return Level{}, err
	}
	_, entry := classifyAt(r, region, lat, lon)
	return Level{Covered: true, Region: region.Name, Value: entry.Level, Entry: entry}, nil
}

// Search runs a site query and reports whether the point was covered.
func (e *Engine) Search(ctx context.Context, q domain.SiteQuery) (domain.SearchOutcome, error) {
	start := time.Now()
	outcome, err := e.search(ctx, q)
	e.metrics.SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.Searches.WithLabelValues(domain.StatusFailed).Inc()
		return domain.SearchOutcome{}, err
	}
	e.metrics.Searches.WithLabelValues(outcome.Status).Inc()
	e.metrics.SearchResults.Observe(float64(len(outcome.Results)))
	return outcome, nil
}

func (e *Engine) search(ctx context.Context, q domain.SiteQuery) (domain.SearchOutcome, error) {
	region, ok := e.catalog.Resolve(q.Lat, q.Lon)
	if !ok {
		e.logger.Warn("coordinates fall outside supported maps", "lat", q.Lat, "lon", q.Lon)
		return domain.Uncovered(), nil
	}

	r, err := e.rasters.Get(ctx, region)
	if err != nil {
		return domain.SearchOutcome{}, err
	}

	grid, baseline := classifyAt(r, region, q.Lat, q.Lon)
	outcome := domain.SearchOutcome{
		Status:        domain.StatusComputed,
		Region:        region.Name,
		BaselineLevel: baseline.Level,
		Results:       []domain.SearchResult{},
	}
	if q.TopN <= 0 || q.RadiusKm <= 0 || baseline.Level <= 0 {
		return outcome, nil
	}

	w, ok := searchWindow(grid, q)
	if !ok {
		return outcome, nil
	}
	e.metrics.SearchWindowPixels.Observe(float64(w.pixels()))

	ranked, err := scan(ctx, r, grid, w, q, baseline.Level)
	if err != nil {
		return domain.SearchOutcome{}, err
	}
	for i, c := range ranked {
		outcome.Results = append(outcome.Results, domain.NewSearchResult(i+1, c.lat, c.lon, c.distance, c.level))
	}

	e.logger.Debug("site search complete",
		"region", region.Name,
		"baseline", baseline.Level,
		"window_pixels", w.pixels(),
		"results", len(outcome.Results),
	)
	return outcome, nil
}

// classifyAt returns the region's grid sized to the raster actually loaded,
// plus the scale entry under the point.
func classifyAt(r *raster.Raster, region domain.Region, lat, lon float64) (domain.Region, domain.ScaleEntry) {
	grid := region.WithDimensions(r.Width, r.Height)
	x, y := grid.ToPixel(lat, lon)
	entry, ok := domain.NearestScaleEntry(r.At(x, y))
	if !ok {
		entry = domain.ScaleEntry{Level: domain.DefaultLevel}
	}
	return grid, entry
}

type window struct {
	xMin, xMax int
	yMin, yMax int
}

func (w window) pixels() int {
	return (w.xMax - w.xMin + 1) * (w.yMax - w.yMin + 1)
}

// searchWindow converts the query's bounding box, clamped to the region, into
// an inclusive pixel window. A window collapsed to a single row or column is empty.
func searchWindow(grid domain.Region, q domain.SiteQuery) (window, bool) {
	b := domain.SearchBounds(q.Lat, q.Lon, q.RadiusKm).ClampTo(grid)

	x1, y1 := grid.ToPixel(b.LatMax, b.LonMin)
	x2, y2 := grid.ToPixel(b.LatMin, b.LonMax)

	w := window{
		xMin: min(x1, x2), xMax: max(x1, x2),
		yMin: min(y1, y2), yMax: max(y1, y2),
	}
	if w.xMin == w.xMax || w.yMin == w.yMax {
		return window{}, false
	}
	return w, true
}

type candidate struct {
	level    float64
	distance float64
	seq      int
	lat, lon float64
}

func compareCandidates(a, b candidate) int {
	if c := cmp.Compare(a.level, b.level); c != 0 {
		return c
	}
	if c := cmp.Compare(a.distance, b.distance); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

// scan walks the window row by row and keeps the topN best candidates in a
// sorted slice. Scan order breaks exact ties.
func scan(ctx context.Context, r *raster.Raster, grid domain.Region, w window, q domain.SiteQuery, baseline float64) ([]candidate, error) {
	best := make([]candidate, 0, min(q.TopN, w.pixels())+1)
	seq := 0
	for y := w.yMin; y <= w.yMax; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := w.xMin; x <= w.xMax; x++ {
			seq++
			level := domain.Classify(r.At(x, y))
			if level >= baseline {
				continue
			}
			if len(best) == q.TopN && level > best[len(best)-1].level {
				continue
			}
			lat, lon := grid.ToLatLon(x, y)
			d := domain.Haversine(q.Lat, q.Lon, lat, lon)
			if d > q.RadiusKm {
				continue
			}
			c := candidate{level: level, distance: d, seq: seq, lat: lat, lon: lon}
			if len(best) == q.TopN && compareCandidates(c, best[len(best)-1]) >= 0 {
				continue
			}
			i, _ := slices.BinarySearchFunc(best, c, compareCandidates)
			best = slices.Insert(best, i, c)
			if len(best) > q.TopN {
				best = best[:q.TopN]
			}
		}
	}
	return best, nil
}
