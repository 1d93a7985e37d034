// Package mailer delivers the raw text mails produced by the email gateway
// transport.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"

	"github.com/aradsms/textsms/internal/sms_sending_service/transport"
)

var ErrNoRecipients = errors.New("mail has no recipients")

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From is the envelope sender used when the message sender is not a
	// mail address, which is the usual case for a phone number.
	From string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends plain text mail through an SMTP relay.
type SMTPMailer struct {
	cfg    SMTPConfig
	auth   smtp.Auth
	send   sendFunc
	logger *slog.Logger
}

func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) *SMTPMailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPMailer{
		cfg:    cfg,
		auth:   auth,
		send:   smtp.SendMail,
		logger: logger.With("component", "smtp_mailer"),
	}
}

func (m *SMTPMailer) SendRaw(ctx context.Context, body string, build func(*transport.Email)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mail := transport.Email{Body: body}
	build(&mail)
	if len(mail.To) == 0 {
		return ErrNoRecipients
	}

	from := mail.From
	if !strings.Contains(from, "@") {
		from = m.cfg.From
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.send(addr, m.auth, from, mail.To, compose(from, mail.To, body)); err != nil {
		m.logger.ErrorContext(ctx, "SMTP send failed", "error", err, "recipients", len(mail.To))
		return fmt.Errorf("smtp send via %s: %w", addr, err)
	}
	m.logger.DebugContext(ctx, "Mail sent", "recipients", len(mail.To))
	return nil
}

func compose(from string, to []string, body string) []byte {
	var b bytes.Buffer
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

// MemoryMailer records mails instead of sending them.
type MemoryMailer struct {
	mu    sync.Mutex
	mails []transport.Email
}

func NewMemoryMailer() *MemoryMailer {
	return &MemoryMailer{}
}

func (m *MemoryMailer) SendRaw(ctx context.Context, body string, build func(*transport.Email)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mail := transport.Email{Body: body}
	build(&mail)
	m.mu.Lock()
	m.mails = append(m.mails, mail)
	m.mu.Unlock()
	return nil
}

// Sent returns the recorded mails in send order.
func (m *MemoryMailer) Sent() []transport.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transport.Email(nil), m.mails...)
}
