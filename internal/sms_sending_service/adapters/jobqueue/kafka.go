package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

const kafkaTopicPrefix = "sms-jobs-"

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConnection publishes jobs to the sms-jobs-<queue> topic. Offsets are
// committed after the handler returns, whatever the outcome.
type KafkaConnection struct {
	writer    kafkaWriter
	newReader func(topic string) kafkaReader
	logger    *slog.Logger
}

func NewKafkaConnection(brokers []string, groupID string, logger *slog.Logger) *KafkaConnection {
	return &KafkaConnection{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
		newReader: func(topic string) kafkaReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:        brokers,
				Topic:          topic,
				GroupID:        groupID,
				MinBytes:       1,
				MaxBytes:       1 << 20,
				CommitInterval: 0,
				StartOffset:    kafka.LastOffset,
			})
		},
		logger: logger.With("component", "kafka_queue"),
	}
}

func KafkaTopic(queue string) string { return kafkaTopicPrefix + queue }

func (c *KafkaConnection) Publish(ctx context.Context, queue string, payload []byte) error {
	err := c.writer.WriteMessages(ctx, kafka.Message{Topic: KafkaTopic(queue), Value: payload})
	if err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (c *KafkaConnection) Consume(ctx context.Context, queue string, handle Handler) error {
	topic := KafkaTopic(queue)
	reader := c.newReader(topic)
	defer reader.Close()

	c.logger.InfoContext(ctx, "Consuming jobs", "topic", topic)
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("kafka fetch from %s: %w", topic, err)
		}
		if err := handle(ctx, msg.Value); err != nil {
			c.logger.WarnContext(ctx, "Job handler failed", "topic", topic, "offset", msg.Offset, "error", err)
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka commit on %s: %w", topic, err)
		}
	}
}

func (c *KafkaConnection) Close() error {
	return c.writer.Close()
}
