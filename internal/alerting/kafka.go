package alerting

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"opswatch/internal/decisionlog"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes entries as JSON keyed by entry id.
type KafkaNotifier struct {
	writer messageWriter
}

// NewKafkaNotifier builds a producer for topic.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Name implements Notifier.
func (k *KafkaNotifier) Name() string { return "kafka" }

// Notify implements Notifier.
func (k *KafkaNotifier) Notify(ctx context.Context, entry decisionlog.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.ID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("publish decision: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

var _ Notifier = (*KafkaNotifier)(nil)
