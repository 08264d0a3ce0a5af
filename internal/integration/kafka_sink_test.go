//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/estuarymap/salinity-etl/internal/adapter/kafka"
	"github.com/estuarymap/salinity-etl/internal/config"
	"github.com/estuarymap/salinity-etl/internal/domain"
)

const testSinkTopic = "classified-segments-test"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka launches a single-broker Kafka container and returns its
// bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestClassifiedSegmentSink verifies the writer publishes classified
// segments through a real broker with segment-keyed messages and the
// class/method headers consumers route on.
func TestClassifiedSegmentSink(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{
		KafkaBrokers:   []string{broker},
		KafkaSinkTopic: testSinkTopic,
	}

	prob := 0.71
	processed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	records := []domain.ClassifiedSegment{
		{
			SegmentID:          "eu-0001",
			Region:             domain.RegionEurope,
			Class:              domain.Mesohaline,
			Method:             domain.MethodModel,
			Confidence:         domain.ConfidenceMediumHigh,
			Probability:        &prob,
			DistanceToCoastKm:  9.5,
			InEstuaryCatchment: true,
			ProcessedAt:        processed,
		},
		{
			SegmentID:         "as-0042",
			Region:            domain.RegionAsia,
			Class:             domain.Freshwater,
			Method:            domain.MethodDistanceRule,
			Confidence:        domain.ConfidenceHigh,
			DistanceToCoastKm: 340,
			ProcessedAt:       processed,
		},
	}

	writer := kafkaadapter.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.Publish(ctx, records))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	byID := make(map[string]domain.ClassifiedSegment, len(records))
	headersByID := make(map[string]map[string]string, len(records))
	for range records {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from sink topic")

		var rec domain.ClassifiedSegment
		require.NoError(t, json.Unmarshal(msg.Value, &rec))
		require.Equal(t, string(msg.Key), rec.SegmentID, "message keyed by segment id")

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		byID[rec.SegmentID] = rec
		headersByID[rec.SegmentID] = headers
	}

	predicted := byID["eu-0001"]
	assert.Equal(t, domain.Mesohaline, predicted.Class)
	assert.Equal(t, domain.MethodModel, predicted.Method)
	require.NotNil(t, predicted.Probability)
	assert.Equal(t, 0.71, *predicted.Probability)
	assert.Equal(t, "mesohaline", headersByID["eu-0001"]["salinity_class"])
	assert.Equal(t, "model_predicted", headersByID["eu-0001"]["classification_method"])

	overridden := byID["as-0042"]
	assert.Equal(t, domain.Freshwater, overridden.Class)
	assert.Nil(t, overridden.Probability)
	assert.Equal(t, "distance_rule", headersByID["as-0042"]["classification_method"])

	for id, headers := range headersByID {
		ts, ok := headers["processed_at"]
		require.True(t, ok, "missing processed_at header on %s", id)
		_, err := time.Parse(time.RFC3339, ts)
		assert.NoError(t, err, "processed_at should be valid RFC3339")
	}
}
