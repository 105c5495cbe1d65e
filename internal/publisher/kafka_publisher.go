package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher emits payment lifecycle events, one writer per topic.
type KafkaPublisher struct {
	writers     map[string]*kafka.Writer
	maxAttempts int
	baseDelay   time.Duration
	logger      *zap.Logger
}

func NewKafkaPublisher(brokers string, topics []string, logger *zap.Logger) *KafkaPublisher {
	writers := make(map[string]*kafka.Writer)
	for _, topic := range topics {
		writers[topic] = &kafka.Writer{
			Addr:     kafka.TCP(brokers),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		}
	}

	return &KafkaPublisher{
		writers:     writers,
		maxAttempts: 3,
		baseDelay:   100 * time.Millisecond,
		logger:      logger,
	}
}

// Publish marshals the message and writes it with bounded retry.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	writer, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("no writer configured for topic %s", topic)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("error marshaling message: %w", err)
	}

	msg := kafka.Message{Value: data}

	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.baseDelay * time.Duration(1<<(attempt-1))):
			}
		}

		if err := writer.WriteMessages(ctx, msg); err != nil {
			lastErr = err
			p.logger.Warn("kafka publish attempt failed",
				zap.String("topic", topic),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}
		return nil
	}

	return fmt.Errorf("failed to publish to %s after %d attempts: %w", topic, p.maxAttempts, lastErr)
}

// Close shuts down all topic writers.
func (p *KafkaPublisher) Close() error {
	var firstErr error
	for _, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
