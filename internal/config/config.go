package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultHarpOperations bins the aerosol index onto 240x280 cells of 0.025
// degrees (241 by 281 edges) anchored at 1N 57W, covering French Guiana.
const DefaultHarpOperations = "keep(latitude_bounds,longitude_bounds,absorbing_aerosol_index);" +
	"bin_spatial(241,1,0.025,281,-57,0.025);" +
	"squash(time, (latitude_bounds,longitude_bounds));" +
	"derive(latitude {latitude});derive(longitude {longitude});" +
	"exclude(latitude_bounds,longitude_bounds,count,weight)"

// Config holds all service settings, populated from environment variables.
type Config struct {
	StoragePath    string
	ClassesSource  string
	ClassesTimeout time.Duration
	ClassesRetries int

	GenerateStyledGeoTIFF bool
	GenerateStyledPNG     bool

	TileWorkers      int
	BatchConcurrency int

	ProjLib          string
	HarpConvertBin   string
	GDALMergeBin     string
	GDALTranslateBin string
	HarpOperations   string

	LegendWidth     int
	LegendRowHeight int

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	MetricsTextfile string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	classesTimeout, err := parsePositiveDuration("ATMO_CLASSES_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	classesRetries, err := parseInt("ATMO_CLASSES_RETRIES", 2, 0)
	if err != nil {
		return nil, err
	}
	tileWorkers, err := parseInt("ATMO_TILE_WORKERS", runtime.NumCPU(), 1)
	if err != nil {
		return nil, err
	}
	batchConcurrency, err := parseInt("ATMO_BATCH_CONCURRENCY", 2, 1)
	if err != nil {
		return nil, err
	}
	legendWidth, err := parseInt("ATMO_LEGEND_WIDTH", 320, 1)
	if err != nil {
		return nil, err
	}
	legendRowHeight, err := parseInt("ATMO_LEGEND_ROW_HEIGHT", 32, 1)
	if err != nil {
		return nil, err
	}
	styledGeoTIFF, err := parseBool("ATMO_GENERATE_STYLED_GEOTIFF", true)
	if err != nil {
		return nil, err
	}
	styledPNG, err := parseBool("ATMO_GENERATE_STYLED_PNG", true)
	if err != nil {
		return nil, err
	}

	_, brokersSet := os.LookupEnv("ATMO_KAFKA_BROKERS")
	kafkaEnabled, err := parseBool("ATMO_KAFKA_ENABLED", brokersSet)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		StoragePath:    sharedcfg.EnvOrDefault("ATMO_STORAGE_PATH", "../data"),
		ClassesSource:  sharedcfg.EnvOrDefault("ATMO_CLASSES_SOURCE", "./atmo_classes.json"),
		ClassesTimeout: classesTimeout,
		ClassesRetries: classesRetries,

		GenerateStyledGeoTIFF: styledGeoTIFF,
		GenerateStyledPNG:     styledPNG,

		TileWorkers:      tileWorkers,
		BatchConcurrency: batchConcurrency,

		ProjLib:          os.Getenv("ATMO_PROJ_LIB"),
		HarpConvertBin:   sharedcfg.EnvOrDefault("ATMO_HARPCONVERT_BIN", "harpconvert"),
		GDALMergeBin:     sharedcfg.EnvOrDefault("ATMO_GDAL_MERGE_BIN", "gdal_merge.py"),
		GDALTranslateBin: sharedcfg.EnvOrDefault("ATMO_GDAL_TRANSLATE_BIN", "gdal_translate"),
		HarpOperations:   sharedcfg.EnvOrDefault("ATMO_HARP_OPERATIONS", DefaultHarpOperations),

		LegendWidth:     legendWidth,
		LegendRowHeight: legendRowHeight,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("ATMO_KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("ATMO_KAFKA_TOPIC", "atmo-alert-maps"),

		HTTPAddr:        sharedcfg.EnvOrDefault("ATMO_HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		MetricsTextfile: os.Getenv("ATMO_METRICS_TEXTFILE"),
	}

	if cfg.StoragePath == "" {
		return nil, errors.New("ATMO_STORAGE_PATH is required")
	}
	if cfg.ClassesSource == "" {
		return nil, errors.New("ATMO_CLASSES_SOURCE is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("ATMO_KAFKA_ENABLED is true but ATMO_KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("ATMO_KAFKA_TOPIC is required when Kafka is enabled")
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

func parseInt(key string, fallback, minimum int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s: must be an integer >= %d", key, minimum)
	}
	return n, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q is not a boolean", key, s)
	}
	return b, nil
}
