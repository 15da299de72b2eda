package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/raincast/internal/config"
	"github.com/couchcryptid/raincast/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes trigger statuses to a Kafka topic.
// It implements pipeline.TriggerPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured trigger topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTriggerTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishTriggers serializes and publishes every status in a single
// WriteMessages call. Statuses of the same level and window hash to the same
// partition, so consumers see them in run order.
func (w *Writer) PublishTriggers(ctx context.Context, statuses []domain.TriggerStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(statuses))
	for i := range statuses {
		msg, err := serializeToMessage(statuses[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish trigger statuses: %w", err)
	}
	w.logger.Info("trigger statuses published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// MessageKey is the partition key of a status: "<level>|<window>".
func MessageKey(s domain.TriggerStatus) string {
	return s.Level + "|" + s.Window
}

// serializeToMessage marshals a TriggerStatus into a Kafka message.
func serializeToMessage(status domain.TriggerStatus) (kafkago.Message, error) {
	data, err := json.Marshal(status)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize trigger status: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(MessageKey(status)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(status.RunID)},
			{Key: "produced_at", Value: []byte(domain.Now().UTC().Format(time.RFC3339))},
		},
	}, nil
}
