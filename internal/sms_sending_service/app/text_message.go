package app

import "context"

const TextMessageKind = "text_message"

// TextMessage is a queueable textable whose content is set entirely through
// the builder methods, for callers that have no dedicated textable type.
type TextMessage struct {
	Textable
}

func NewTextMessage() *TextMessage {
	return &TextMessage{}
}

func (m *TextMessage) Build(context.Context) error { return nil }

func (m *TextMessage) Kind() string { return TextMessageKind }
