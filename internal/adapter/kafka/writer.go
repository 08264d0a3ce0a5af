// Package kafka publishes classified segments to a Kafka topic for
// downstream map and aggregation consumers. The sink is optional; the
// sqlite database remains the source of truth.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/estuarymap/salinity-etl/internal/config"
	"github.com/estuarymap/salinity-etl/internal/domain"
)

// Writer produces classified-segment messages to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and writes the records in a single WriteMessages call.
func (w *Writer) Publish(ctx context.Context, records []domain.ClassifiedSegment) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	w.logger.Info("published classified segments", "count", len(records), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ClassifiedSegment into a Kafka message keyed
// by segment ID, so compacted topics retain the latest classification per
// segment.
func serializeToMessage(record domain.ClassifiedSegment) (kafkago.Message, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize classified segment: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(record.SegmentID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "salinity_class", Value: []byte(record.Class)},
			{Key: "classification_method", Value: []byte(record.Method)},
			{Key: "processed_at", Value: []byte(record.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
