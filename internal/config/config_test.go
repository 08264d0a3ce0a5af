package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estuarymap/salinity-etl/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, domain.RegionOceania, cfg.HoldoutRegion)
	assert.Equal(t, int64(1958), cfg.Seed)
	assert.Equal(t, 10.0, cfg.StationBufferKm)
	assert.Equal(t, 10, cfg.MinClassSamples)
	assert.Equal(t, 200, cfg.ForestTrees)
	assert.Equal(t, 12, cfg.ForestMaxDepth)
	assert.Equal(t, 5, cfg.ForestMinLeaf)
	assert.Equal(t, domain.DefaultVeniceThresholds(), cfg.Venice)
	assert.Equal(t, domain.DefaultConfidenceBands(), cfg.Bands)
	assert.Equal(t, 200.0, cfg.Rules.HardCutoffKm)
	assert.Equal(t, 100.0, cfg.Rules.SoftBandMinKm)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, "classified-segments", cfg.KafkaSinkTopic)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/hydro")
	t.Setenv("OUTPUT_DIR", "/srv/out")
	t.Setenv("HOLDOUT_REGION", "europe")
	t.Setenv("RANDOM_SEED", "7")
	t.Setenv("STATION_BUFFER_KM", "15")
	t.Setenv("FOREST_TREES", "50")
	t.Setenv("DISTANCE_HARD_CUTOFF_KM", "250")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_SINK_TOPIC", "zones")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("VENICE_POLYHALINE_MIN_PSU", "20")
	t.Setenv("CONFIDENCE_HIGH_FLOOR", "0.8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/hydro", cfg.DataDir)
	assert.Equal(t, domain.RegionEurope, cfg.HoldoutRegion)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 15.0, cfg.StationBufferKm)
	assert.Equal(t, 50, cfg.ForestTrees)
	assert.Equal(t, 250.0, cfg.Rules.HardCutoffKm)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "zones", cfg.KafkaSinkTopic)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 20.0, cfg.Venice.PolyhalineMinPSU)
	assert.Equal(t, 0.8, cfg.Bands.High)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown holdout region", "HOLDOUT_REGION", "atlantis"},
		{"non-numeric seed", "RANDOM_SEED", "abc"},
		{"zero station buffer", "STATION_BUFFER_KM", "0"},
		{"zero trees", "FOREST_TREES", "0"},
		{"cutoff below soft band", "DISTANCE_HARD_CUTOFF_KM", "50"},
		{"venice bounds not increasing", "VENICE_OLIGOHALINE_MIN_PSU", "30"},
		{"confidence floors not decreasing", "CONFIDENCE_LOW_FLOOR", "0.9"},
		{"bad shutdown timeout", "SHUTDOWN_TIMEOUT", "eleven"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_KafkaEnabledWithoutBrokers(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	_, err := Load()
	assert.Error(t, err)
}
