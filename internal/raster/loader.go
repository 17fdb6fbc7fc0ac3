package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	// Raster decoders. PNG is the primary format; the others cover maps
	// re-exported by GIS tooling.
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
	"github.com/couchcryptid/dark-sky-site-finder/internal/observability"
)

// DefaultMaxPixels rejects images larger than this before decoding.
const DefaultMaxPixels = 150_000_000

// Loader reads and decodes region images from a Store.
type Loader struct {
	store     Store
	maxPixels int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewLoader creates a Loader. A maxPixels of zero or less uses DefaultMaxPixels.
func NewLoader(store Store, maxPixels int, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Loader{
		store:     store,
		maxPixels: maxPixels,
		logger:    logger,
		metrics:   metrics,
	}
}

// Load reads the region's resource and converts it to a Raster. A size that
// differs from the declared region size is logged and tolerated.
func (l *Loader) Load(ctx context.Context, region domain.Region) (*Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rc, err := l.store.Open(region.Resource)
	if err != nil {
		if errors.Is(err, domain.ErrResourceNotFound) {
			l.metrics.RasterLoads.WithLabelValues(region.Name, "not_found").Inc()
		}
		return nil, fmt.Errorf("load %s raster: %w", region.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("load %s raster: read %s: %w", region.Name, region.Resource, err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, l.decodeErr(region, err)
	}
	if pixels := cfg.Width * cfg.Height; pixels > l.maxPixels {
		return nil, l.decodeErr(region, fmt.Errorf("image %dx%d exceeds %d pixel limit", cfg.Width, cfg.Height, l.maxPixels))
	}
	if cfg.Width != region.Width || cfg.Height != region.Height {
		l.logger.Warn("raster dimensions differ from region definition",
			"region", region.Name,
			"expected_width", region.Width,
			"expected_height", region.Height,
			"actual_width", cfg.Width,
			"actual_height", cfg.Height,
		)
		l.metrics.RasterDimensionMismatch.WithLabelValues(region.Name).Inc()
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, l.decodeErr(region, err)
	}

	r := FromImage(img)
	l.metrics.RasterLoads.WithLabelValues(region.Name, "success").Inc()
	l.logger.Info("raster loaded",
		"region", region.Name,
		"resource", region.Resource,
		"format", format,
		"width", r.Width,
		"height", r.Height,
	)
	return r, nil
}

func (l *Loader) decodeErr(region domain.Region, err error) error {
	l.metrics.RasterLoads.WithLabelValues(region.Name, "decode_error").Inc()
	return fmt.Errorf("load %s raster: %w: %w", region.Name, domain.ErrDecode, err)
}
