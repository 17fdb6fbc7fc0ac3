package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/dark-sky-site-finder/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/dark-sky-site-finder/internal/adapter/kafka"
	"github.com/couchcryptid/dark-sky-site-finder/internal/adapter/mapbox"
	"github.com/couchcryptid/dark-sky-site-finder/internal/config"
	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
	"github.com/couchcryptid/dark-sky-site-finder/internal/observability"
	"github.com/couchcryptid/dark-sky-site-finder/internal/observation"
	"github.com/couchcryptid/dark-sky-site-finder/internal/pipeline"
	"github.com/couchcryptid/dark-sky-site-finder/internal/raster"
	"github.com/couchcryptid/dark-sky-site-finder/internal/search"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	catalog := domain.DefaultCatalog()
	for _, o := range catalog.Overlaps() {
		logger.Warn("region boxes overlap, first region wins", "first", o.First, "second", o.Second)
	}

	store := raster.NewDirStore(cfg.MapsDir)
	for _, r := range store.MissingResources(catalog) {
		logger.Warn("region raster missing", "region", r.Name, "resource", r.Resource, "maps_dir", cfg.MapsDir)
	}

	loader := raster.NewLoader(store, cfg.MaxImagePixels, logger, metrics)
	engine := search.NewEngine(catalog, raster.NewCache(loader, logger, metrics), logger, metrics)
	searcher := search.NewCachedEngine(engine, cfg.ResultCacheSize, metrics)

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var observations *observation.Dataset
	if cfg.ObservationsCSV != "" {
		observations, err = observation.LoadFile(cfg.ObservationsCSV)
		if err != nil {
			logger.Error("failed to load observations", "path", cfg.ObservationsCSV, "error", err)
			os.Exit(1)
		}
		metrics.ObservationsLoaded.Set(float64(observations.Len()))
		logger.Info("observations loaded", "path", cfg.ObservationsCSV, "count", observations.Len())
	}

	limits := domain.QueryLimits{
		DefaultTopN: cfg.DefaultTopN,
		MaxTopN:     cfg.MaxTopN,
		MaxRadiusKm: cfg.MaxRadiusKm,
	}

	rastersReady := httpadapter.ReadinessFunc(func(context.Context) error {
		return store.CheckReadiness(catalog)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the batch query pipeline when Kafka is enabled.
	var (
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
		ready  httpadapter.ReadinessChecker = rastersReady
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		transformer := pipeline.NewTransformer(searcher, limits, cfg.SearchTimeout, geocoder, logger)
		p := pipeline.New(reader, transformer, writer, logger, metrics, pipeline.Options{
			BatchSize: cfg.BatchSize,
			Workers:   cfg.PipelineWorkers,
		})
		ready = httpadapter.AllReady(rastersReady, p)

		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		logger.Info("kafka pipeline disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Catalog:       catalog,
		Searcher:      searcher,
		Observations:  observations,
		Geocoder:      geocoder,
		Limits:        limits,
		SearchTimeout: cfg.SearchTimeout,
		Ready:         ready,
		Logger:        logger,
		Metrics:       metrics,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
