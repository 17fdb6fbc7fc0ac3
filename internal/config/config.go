package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Raster engine configuration.
	MapsDir         string
	MaxImagePixels  int
	SearchTimeout   time.Duration
	DefaultTopN     int
	MaxTopN         int
	MaxRadiusKm     float64
	ResultCacheSize int

	// Observation dataset; empty disables the nearby-observation endpoint.
	ObservationsCSV string

	// Batch query pipeline configuration.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration
	PipelineWorkers    int

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	searchTimeout, err := parsePositiveDuration("SEARCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	workers, err := parseIntInRange("PIPELINE_WORKERS", 4, 1, 64)
	if err != nil {
		return nil, err
	}

	maxImagePixels, err := parseIntInRange("MAX_IMAGE_PIXELS", 150_000_000, 1, math.MaxInt)
	if err != nil {
		return nil, err
	}

	defaultTopN, err := parseIntInRange("DEFAULT_TOP_N", 10, 1, 10_000)
	if err != nil {
		return nil, err
	}

	maxTopN, err := parseIntInRange("MAX_TOP_N", 100, 1, 10_000)
	if err != nil {
		return nil, err
	}

	resultCacheSize, err := parseIntInRange("RESULT_CACHE_SIZE", 1000, 0, 1_000_000)
	if err != nil {
		return nil, err
	}

	maxRadius, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("MAX_RADIUS_KM", "500"), 64)
	if err != nil || maxRadius <= 0 {
		return nil, errors.New("invalid MAX_RADIUS_KM")
	}

	mapboxCacheSize := parseMapboxCacheSize()

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		MapsDir:         sharedcfg.EnvOrDefault("MAPS_DIR", "assets/light_pollution_maps"),
		MaxImagePixels:  maxImagePixels,
		SearchTimeout:   searchTimeout,
		DefaultTopN:     defaultTopN,
		MaxTopN:         maxTopN,
		MaxRadiusKm:     maxRadius,
		ResultCacheSize: resultCacheSize,
		ObservationsCSV: os.Getenv("OBSERVATIONS_CSV"),

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "site-search-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "site-search-results"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "dark-sky-site-finder"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		PipelineWorkers:    workers,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,
	}

	if cfg.MapsDir == "" {
		return nil, errors.New("MAPS_DIR is required")
	}
	if cfg.DefaultTopN > cfg.MaxTopN {
		return nil, errors.New("DEFAULT_TOP_N must not exceed MAX_TOP_N")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseIntInRange(key string, fallback, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", key, lo, hi)
	}
	return n, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
