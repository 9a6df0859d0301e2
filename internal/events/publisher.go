package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/segmentio/kafka-go"
)

// Publisher emits events to the bus. Pipelines depend on this interface so
// tests can capture emissions without a broker.
type Publisher interface {
	// Publish marshals payload as JSON and writes it to topic, keyed so that
	// all events for one video land on one partition.
	Publish(ctx context.Context, topic, key string, payload any) error
}

// KafkaPublisher writes events through a shared kafka-go Writer.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher for the given brokers. Topics are set
// per message; the writer is shared across all outbound topics.
func NewKafkaPublisher(brokers []string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: logger,
	}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", topic, err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(ulid.Make().String())},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing event to %s: %w", topic, err)
	}

	p.logger.Debug("event published",
		slog.String("topic", topic),
		slog.String("key", key),
		slog.Int("bytes", len(value)),
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
