package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/aradsms/textsms/internal/platform/config"
	"github.com/aradsms/textsms/internal/platform/events"
	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
	"github.com/aradsms/textsms/internal/sms_sending_service/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubRenderer renders "<template>:<name>" and remembers what it saw.
type stubRenderer struct {
	calls      []string
	lastData   map[string]any
	lastLocale string
	err        error
}

func (r *stubRenderer) Render(ctx context.Context, template string, data map[string]any) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.calls = append(r.calls, template)
	r.lastData = data
	r.lastLocale = domain.LocaleFromContext(ctx)
	return fmt.Sprintf("%s:%v", template, data["name"]), nil
}

type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Push(ctx context.Context, job *SendQueuedTextable, connection, queue string) (string, error) {
	args := m.Called(ctx, job, connection, queue)
	return args.String(0), args.Error(1)
}

func (m *MockQueue) Later(ctx context.Context, delay time.Duration, job *SendQueuedTextable, connection, queue string) (string, error) {
	args := m.Called(ctx, delay, job, connection, queue)
	return args.String(0), args.Error(1)
}

// welcomeText is a synchronous textable rendered from a template.
type welcomeText struct {
	Textable
	Name string `json:"name"`

	builds     int
	buildLocal string
}

func (w *welcomeText) Build(ctx context.Context) error {
	w.builds++
	w.buildLocal = domain.LocaleFromContext(ctx)
	w.View("welcome")
	return nil
}

func (w *welcomeText) TemplateVariables() map[string]any {
	return map[string]any{"name": w.Name}
}

// reminderText is a queueable textable with retry policies.
type reminderText struct {
	Textable
	Appointment string `json:"appointment"`

	failedWith error
	buildErr   error
}

const reminderKind = "reminder_text"

func (r *reminderText) Build(context.Context) error {
	if r.buildErr != nil {
		return r.buildErr
	}
	r.Text("Reminder: " + r.Appointment)
	return nil
}

func (r *reminderText) Kind() string                        { return reminderKind }
func (r *reminderText) MaxTries() int                       { return 3 }
func (r *reminderText) Timeout() time.Duration              { return 5 * time.Second }
func (r *reminderText) Backoff() []time.Duration            { return []time.Duration{time.Second, time.Minute} }
func (r *reminderText) Failed(_ context.Context, err error) { r.failedWith = err }

type user struct {
	number, carrier, locale string
}

func (u user) PhoneNumber() string     { return u.number }
func (u user) PhoneCarrier() string    { return u.carrier }
func (u user) PreferredLocale() string { return u.locale }

// scriptedTransport fails every send with err, or reports failed numbers.
type scriptedTransport struct {
	err    error
	failed []string
	sent   []*domain.Message
}

func (t *scriptedTransport) Send(_ context.Context, m *domain.Message) (*transport.SendResult, error) {
	t.sent = append(t.sent, m)
	if t.err != nil {
		return nil, t.err
	}
	return &transport.SendResult{Accepted: len(m.To()) - len(t.failed), FailedRecipients: t.failed}, nil
}

func testRegistry(views Renderer, bus *events.Bus, q Queue) *Registry {
	opts := RegistryOptions{
		Config: config.SMSConfig{
			Default: "array",
			Providers: map[string]config.ProviderConfig{
				"array": {"transport": "array"},
				"log":   {"transport": "log"},
			},
		},
		Views:  views,
		Logger: discardLogger(),
	}
	if bus != nil {
		opts.Events = bus
	}
	if q != nil {
		opts.Queue = q
	}
	return NewRegistry(opts)
}
