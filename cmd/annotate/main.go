// Command annotate appends the light pollution reading under each point of
// an observation CSV, using the same region rasters as the service.
//
// Usage:
//
//	go run ./cmd/annotate -in observations.csv -out observations_annotated.csv
//
// MAPS_DIR, MAX_IMAGE_PIXELS, LOG_LEVEL, and LOG_FORMAT are read from the
// environment (or .env) as for the service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/dark-sky-site-finder/internal/config"
	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
	"github.com/couchcryptid/dark-sky-site-finder/internal/observability"
	"github.com/couchcryptid/dark-sky-site-finder/internal/observation"
	"github.com/couchcryptid/dark-sky-site-finder/internal/raster"
	"github.com/couchcryptid/dark-sky-site-finder/internal/search"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	in := flag.String("in", "", "input observation CSV")
	out := flag.String("out", "", "output path for the annotated CSV")
	flag.Parse()

	if *in == "" || *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -in, -out")
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetricsForTesting()

	catalog := domain.DefaultCatalog()
	loader := raster.NewLoader(raster.NewDirStore(cfg.MapsDir), cfg.MaxImagePixels, logger, metrics)
	engine := search.NewEngine(catalog, raster.NewCache(loader, logger, metrics), logger, metrics)

	src, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer dst.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := observation.Annotate(ctx, src, dst, engine, logger)
	if err != nil {
		return fmt.Errorf("annotate %s: %w", *in, err)
	}
	if err := dst.Close(); err != nil {
		return err
	}

	logger.Info("annotation complete",
		"in", *in,
		"out", *out,
		"read", stats.Read,
		"skipped", stats.Skipped,
		"covered", stats.Covered,
		"uncovered", stats.Uncovered,
	)
	return nil
}
