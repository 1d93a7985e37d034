package jobqueue

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
)

const (
	natsSubjectPrefix = "sms.jobs."
	natsQueueGroup    = "sms_sending_workers"
)

// NATSClient is the part of messagebroker.NatsClient the connection uses.
type NATSClient interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject, queueGroup string, handler func(msg *nats.Msg)) (*nats.Subscription, error)
}

// NATSConnection publishes jobs on sms.jobs.<queue>. Workers share the
// sms_sending_workers queue group so each job is handled once.
type NATSConnection struct {
	client NATSClient
	logger *slog.Logger
}

func NewNATSConnection(client NATSClient, logger *slog.Logger) *NATSConnection {
	return &NATSConnection{client: client, logger: logger.With("component", "nats_queue")}
}

func NATSSubject(queue string) string { return natsSubjectPrefix + queue }

func (c *NATSConnection) Publish(ctx context.Context, queue string, payload []byte) error {
	return c.client.Publish(ctx, NATSSubject(queue), payload)
}

func (c *NATSConnection) Consume(ctx context.Context, queue string, handle Handler) error {
	subject := NATSSubject(queue)
	_, err := c.client.Subscribe(ctx, subject, natsQueueGroup, func(msg *nats.Msg) {
		if err := handle(ctx, msg.Data); err != nil {
			c.logger.WarnContext(ctx, "Job handler failed", "subject", subject, "error", err)
		}
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// Close is a no-op; the shared NATS client is closed by its owner.
func (c *NATSConnection) Close() error { return nil }
