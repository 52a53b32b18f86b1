package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes security events to a Kafka topic, keyed by event
// name so consumers can partition per event type.
type KafkaSink struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
		logger: logger,
	}
}

func (s *KafkaSink) Emit(ctx context.Context, event string, payload map[string]any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		s.logger.Error("failed to publish event",
			slog.String("event", event),
			slog.Any("error", err))
		return fmt.Errorf("publish event %s: %w", event, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
