// Package config loads pipeline settings from environment variables and
// validates every scientific threshold once at startup. The original
// workflow scattered these magic numbers across scripts; here they live in
// one place with their defaults documented.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/estuarymap/salinity-etl/internal/domain"
)

// Config holds all pipeline settings.
type Config struct {
	DataDir   string // input datasets (segments, catchments, stations, physics grid)
	OutputDir string // sqlite database and run report

	HoldoutRegion domain.Region
	Seed          int64

	StationBufferKm float64
	MinClassSamples int

	ForestTrees    int
	ForestMaxDepth int
	ForestMinLeaf  int

	Venice domain.VeniceThresholds
	Bands  domain.ConfidenceBands
	Rules  domain.OverrideRules

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka sink is optional: when disabled, the sqlite tables remain the
	// only output boundary.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// Load reads configuration from environment variables, applying defaults
// where unset, and validates the result.
func Load() (*Config, error) {
	shutdownTimeout, err := time.ParseDuration(envOrDefault("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil || shutdownTimeout <= 0 {
		return nil, errors.New("invalid SHUTDOWN_TIMEOUT")
	}

	holdout, err := domain.ParseRegion(envOrDefault("HOLDOUT_REGION", string(domain.RegionOceania)))
	if err != nil {
		return nil, fmt.Errorf("HOLDOUT_REGION: %w", err)
	}

	seed, err := envInt64("RANDOM_SEED", 1958)
	if err != nil {
		return nil, err
	}

	bufferKm, err := envFloat("STATION_BUFFER_KM", 10)
	if err != nil {
		return nil, err
	}
	minClass, err := envInt("MIN_CLASS_SAMPLES", 10)
	if err != nil {
		return nil, err
	}
	trees, err := envInt("FOREST_TREES", 200)
	if err != nil {
		return nil, err
	}
	maxDepth, err := envInt("FOREST_MAX_DEPTH", 12)
	if err != nil {
		return nil, err
	}
	minLeaf, err := envInt("FOREST_MIN_LEAF", 5)
	if err != nil {
		return nil, err
	}

	hardCutoff, err := envFloat("DISTANCE_HARD_CUTOFF_KM", 200)
	if err != nil {
		return nil, err
	}
	softBandMin, err := envFloat("DISTANCE_SOFT_BAND_MIN_KM", 100)
	if err != nil {
		return nil, err
	}

	oligoMin, err := envFloat("VENICE_OLIGOHALINE_MIN_PSU", 0.5)
	if err != nil {
		return nil, err
	}
	mesoMin, err := envFloat("VENICE_MESOHALINE_MIN_PSU", 5.0)
	if err != nil {
		return nil, err
	}
	polyMin, err := envFloat("VENICE_POLYHALINE_MIN_PSU", 18.0)
	if err != nil {
		return nil, err
	}

	bandHigh, err := envFloat("CONFIDENCE_HIGH_FLOOR", 0.75)
	if err != nil {
		return nil, err
	}
	bandMediumHigh, err := envFloat("CONFIDENCE_MEDIUM_HIGH_FLOOR", 0.65)
	if err != nil {
		return nil, err
	}
	bandMedium, err := envFloat("CONFIDENCE_MEDIUM_FLOOR", 0.55)
	if err != nil {
		return nil, err
	}
	bandLow, err := envFloat("CONFIDENCE_LOW_FLOOR", 0.45)
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		DataDir:   envOrDefault("DATA_DIR", "data"),
		OutputDir: envOrDefault("OUTPUT_DIR", "out"),

		HoldoutRegion: holdout,
		Seed:          seed,

		StationBufferKm: bufferKm,
		MinClassSamples: minClass,

		ForestTrees:    trees,
		ForestMaxDepth: maxDepth,
		ForestMinLeaf:  minLeaf,

		Venice: domain.VeniceThresholds{
			OligohalineMinPSU: oligoMin,
			MesohalineMinPSU:  mesoMin,
			PolyhalineMinPSU:  polyMin,
		},
		Bands: domain.ConfidenceBands{
			High:       bandHigh,
			MediumHigh: bandMediumHigh,
			Medium:     bandMedium,
			Low:        bandLow,
		},
		Rules: domain.OverrideRules{HardCutoffKm: hardCutoff, SoftBandMinKm: softBandMin},

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:   kafkaEnabled,
		KafkaBrokers:   brokers,
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "classified-segments"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return errors.New("DATA_DIR is required")
	}
	if c.OutputDir == "" {
		return errors.New("OUTPUT_DIR is required")
	}
	if c.StationBufferKm <= 0 {
		return errors.New("STATION_BUFFER_KM must be positive")
	}
	if c.MinClassSamples <= 0 {
		return errors.New("MIN_CLASS_SAMPLES must be positive")
	}
	if c.ForestTrees <= 0 || c.ForestMaxDepth <= 0 || c.ForestMinLeaf <= 0 {
		return errors.New("forest hyperparameters must be positive")
	}
	if err := c.Venice.Validate(); err != nil {
		return err
	}
	if err := c.Bands.Validate(); err != nil {
		return err
	}
	if err := c.Rules.Validate(); err != nil {
		return err
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func envInt64(key string, def int64) (int64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return f, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
