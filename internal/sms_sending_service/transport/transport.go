// Package transport holds the delivery backends a provider can hand a
// finished message to.
package transport

import (
	"context"

	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
)

// SendResult reports what a transport did with a message.
type SendResult struct {
	// Accepted is the number of recipients handed off. The built-in
	// transports always report len(message.To()).
	Accepted int
	// FailedRecipients lists numbers the backend rejected individually.
	FailedRecipients []string
}

// Transport delivers a message. Implementations must be safe to call
// from multiple goroutines.
type Transport interface {
	Send(ctx context.Context, message *domain.Message) (*SendResult, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, message *domain.Message) (*SendResult, error)

func (f TransportFunc) Send(ctx context.Context, message *domain.Message) (*SendResult, error) {
	return f(ctx, message)
}
