// Package bus wraps the Kafka consumer group with explicit offset control.
//
// Fetching and committing are deliberately decoupled: a pipeline attempt runs
// to completion (success or terminal failure) before its offset is committed,
// and the supervisor heartbeat keeps group membership alive in between. A
// failed commit is logged and counted but never fails the job.
package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/openstream/transcoder/internal/config"
)

// Message is one consumed event plus the handle needed to commit it.
type Message struct {
	Topic string
	Key   []byte
	Value []byte

	raw kafka.Message
}

// Consumer fetches job events from the lane topics this worker subscribes to.
type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewConsumer builds a consumer-group reader over the given topics.
func NewConsumer(cfg config.KafkaConfig, topics []string, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:          cfg.Brokers,
			GroupID:          cfg.GroupID,
			GroupTopics:      topics,
			MinBytes:         1,
			MaxBytes:         10e6,
			MaxWait:          cfg.MaxWait,
			SessionTimeout:   cfg.SessionTimeout,
			RebalanceTimeout: cfg.RebalanceTimeout,
			StartOffset:      kafka.FirstOffset,
		}),
		logger: logger,
	}
}

// Fetch blocks until the next event is available. It does not advance the
// consumer offset.
func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("fetching message: %w", err)
	}
	c.logger.Debug("message fetched",
		slog.String("topic", m.Topic),
		slog.Int("partition", m.Partition),
		slog.Int64("offset", m.Offset),
	)
	return Message{Topic: m.Topic, Key: m.Key, Value: m.Value, raw: m}, nil
}

// Commit advances the consumer offset past msg. Best-effort by contract;
// the caller logs and discards the error.
func (c *Consumer) Commit(ctx context.Context, msg Message) error {
	if err := c.reader.CommitMessages(ctx, msg.raw); err != nil {
		return fmt.Errorf("committing offset %d on %s: %w", msg.raw.Offset, msg.Topic, err)
	}
	return nil
}

// Close shuts the reader down and leaves the consumer group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
