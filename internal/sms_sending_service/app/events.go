package app

import (
	"context"

	"github.com/aradsms/textsms/internal/platform/events"
	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
	"github.com/aradsms/textsms/internal/sms_sending_service/transport"
)

// Dispatcher is the event sink a provider reports to. Until returning
// false vetoes a send.
type Dispatcher interface {
	Until(ctx context.Context, event events.Event) bool
	Dispatch(ctx context.Context, event events.Event)
}

const (
	EventMessageSending = "sms.message_sending"
	EventMessageSent    = "sms.message_sent"
	EventMessageFailed  = "sms.message_failed"
	EventRegistryBooted = "sms.registry_booted"
)

// MessageSending fires before the transport is called with the message
// and the template data it was rendered from. Listeners may still modify
// the message.
type MessageSending struct {
	Provider string
	Message  *domain.Message
	Data     map[string]any
}

func (MessageSending) EventName() string { return EventMessageSending }

// MessageSent fires after the transport accepted the message.
type MessageSent struct {
	Provider string
	Message  *domain.Message
	Data     map[string]any
	Result   *transport.SendResult
}

func (MessageSent) EventName() string { return EventMessageSent }

// MessageFailed fires when the transport returned an error.
type MessageFailed struct {
	Provider string
	Message  *domain.Message
	Data     map[string]any
	Err      error
}

func (MessageFailed) EventName() string { return EventMessageFailed }

// RegistryBooted fires once when a Registry is constructed, so listeners
// can Extend it.
type RegistryBooted struct {
	Registry *Registry
}

func (RegistryBooted) EventName() string { return EventRegistryBooted }
