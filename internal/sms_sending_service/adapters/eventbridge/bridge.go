// Package eventbridge republishes provider send outcomes on NATS so other
// services can follow delivery without sharing a process.
package eventbridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aradsms/textsms/internal/platform/events"
	"github.com/aradsms/textsms/internal/sms_sending_service/app"
	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
)

const DefaultSubjectPrefix = "sms.events"

type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// MessageEvent is the JSON published for every sent or failed message.
type MessageEvent struct {
	Provider         string           `json:"provider"`
	From             []domain.Address `json:"from,omitempty"`
	To               []domain.Address `json:"to"`
	Body             string           `json:"body"`
	Accepted         int              `json:"accepted"`
	FailedRecipients []string         `json:"failed_recipients,omitempty"`
	Error            string           `json:"error,omitempty"`
	OccurredAt       time.Time        `json:"occurred_at"`
}

type Bridge struct {
	publisher Publisher
	prefix    string
	logger    *slog.Logger
}

func New(publisher Publisher, prefix string, logger *slog.Logger) *Bridge {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Bridge{publisher: publisher, prefix: prefix, logger: logger.With("component", "event_bridge")}
}

// Register subscribes the bridge to sent and failed events on bus.
func (b *Bridge) Register(bus *events.Bus) {
	bus.Listen(app.EventMessageSent, b.onSent)
	bus.Listen(app.EventMessageFailed, b.onFailed)
}

func (b *Bridge) onSent(ctx context.Context, e events.Event) bool {
	sent, ok := e.(app.MessageSent)
	if !ok {
		return true
	}
	ev := newEvent(sent.Provider, sent.Message)
	if sent.Result != nil {
		ev.Accepted = sent.Result.Accepted
		ev.FailedRecipients = sent.Result.FailedRecipients
	}
	b.publish(ctx, b.prefix+".sent", ev)
	return true
}

func (b *Bridge) onFailed(ctx context.Context, e events.Event) bool {
	failed, ok := e.(app.MessageFailed)
	if !ok {
		return true
	}
	ev := newEvent(failed.Provider, failed.Message)
	ev.FailedRecipients = failed.Message.Numbers()
	if failed.Err != nil {
		ev.Error = failed.Err.Error()
	}
	b.publish(ctx, b.prefix+".failed", ev)
	return true
}

func newEvent(provider string, m *domain.Message) MessageEvent {
	return MessageEvent{
		Provider:   provider,
		From:       m.From(),
		To:         m.To(),
		Body:       m.Body(),
		OccurredAt: time.Now().UTC(),
	}
}

// publish never fails the send; a lost event is only logged.
func (b *Bridge) publish(ctx context.Context, subject string, ev MessageEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.ErrorContext(ctx, "Failed to encode message event", "subject", subject, "error", err)
		return
	}
	if err := b.publisher.Publish(ctx, subject, data); err != nil {
		b.logger.WarnContext(ctx, "Failed to publish message event", "subject", subject, "error", err)
	}
}
