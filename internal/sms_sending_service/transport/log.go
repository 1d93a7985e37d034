package transport

import (
	"context"
	"log/slog"

	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
)

// LogTransport writes each message to a logger at debug level instead of sending it.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, message *domain.Message) (*SendResult, error) {
	t.logger.DebugContext(ctx, message.Summary())
	return &SendResult{Accepted: len(message.To())}, nil
}

// Logger exposes the logger the transport writes to.
func (t *LogTransport) Logger() *slog.Logger {
	return t.logger
}
