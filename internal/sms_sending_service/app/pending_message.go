package app

import (
	"context"
	"time"
)

// PendingMessage binds recipients, and optionally a locale, to whatever
// textable is sent next.
type PendingMessage struct {
	provider *Provider
	to       any
	locale   string
}

func (m *PendingMessage) Locale(locale string) *PendingMessage {
	m.locale = locale
	return m
}

// Send fills s and hands it to the provider; queueable textables are queued.
func (m *PendingMessage) Send(ctx context.Context, s Sendable) error {
	return m.provider.Send(ctx, m.fill(s), nil, nil)
}

func (m *PendingMessage) Queue(ctx context.Context, s Queueable) (string, error) {
	return m.provider.Queue(ctx, m.fill(s), "")
}

func (m *PendingMessage) Later(ctx context.Context, delay time.Duration, s Queueable) (string, error) {
	return m.provider.Later(ctx, delay, m.fill(s), "")
}

func (m *PendingMessage) fill(s Sendable) Sendable {
	base := s.Base()
	base.To(m.to)
	if m.locale != "" {
		base.Locale(m.locale)
	}
	return s
}
