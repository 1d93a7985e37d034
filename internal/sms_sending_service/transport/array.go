package transport

import (
	"context"
	"sync"

	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
)

// ArrayTransport keeps every message it is given in memory. Useful for tests
// and local development.
type ArrayTransport struct {
	mu       sync.Mutex
	messages []*domain.Message
}

func NewArrayTransport() *ArrayTransport {
	return &ArrayTransport{}
}

func (t *ArrayTransport) Send(_ context.Context, message *domain.Message) (*SendResult, error) {
	t.mu.Lock()
	t.messages = append(t.messages, message)
	t.mu.Unlock()
	return &SendResult{Accepted: len(message.To())}, nil
}

// Messages returns the captured messages in send order.
func (t *ArrayTransport) Messages() []*domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*domain.Message(nil), t.messages...)
}

// Flush discards every captured message.
func (t *ArrayTransport) Flush() {
	t.mu.Lock()
	t.messages = nil
	t.mu.Unlock()
}
