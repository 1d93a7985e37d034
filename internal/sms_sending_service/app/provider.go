package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
	"github.com/aradsms/textsms/internal/sms_sending_service/transport"
)

// Renderer turns a named template and its data into a message body.
type Renderer interface {
	Render(ctx context.Context, template string, data map[string]any) (string, error)
}

// ViewDataFunc contributes process-wide template data for every textable.
type ViewDataFunc func(s Sendable) map[string]any

// Factory resolves providers by name; "" means the default provider.
type Factory interface {
	Resolve(name string) (*Provider, error)
}

// View selects a message body. Template wins over Raw when both are set.
type View struct {
	Template string
	Raw      string
}

// Provider is a named, configured sender bound to one transport.
type Provider struct {
	name          string
	transportType string
	transport     transport.Transport
	views         Renderer
	events        Dispatcher
	queue         Queue
	viewData      ViewDataFunc
	logger        *slog.Logger

	from *domain.Address
	to   *domain.Address

	mu     sync.Mutex
	failed []string
}

type ProviderOption func(*Provider)

// WithEvents sets the sink for the sending, sent and failed events.
func WithEvents(d Dispatcher) ProviderOption { return func(p *Provider) { p.events = d } }

// WithQueue sets the job queue used by Queue and Later.
func WithQueue(q Queue) ProviderOption { return func(p *Provider) { p.queue = q } }

// WithViewData sets the function that adds shared data to every render.
func WithViewData(f ViewDataFunc) ProviderOption { return func(p *Provider) { p.viewData = f } }

// WithLogger sets the provider's logger. The default is slog.Default().
func WithLogger(l *slog.Logger) ProviderOption { return func(p *Provider) { p.logger = l } }

// WithTransportType records the configured transport type, used as a
// metrics label. The default is "custom".
func WithTransportType(t string) ProviderOption { return func(p *Provider) { p.transportType = t } }

// WithGlobalFrom sets the sender applied to every message before callbacks run.
func WithGlobalFrom(a *domain.Address) ProviderOption { return func(p *Provider) { p.from = a } }

// WithGlobalTo replaces the recipients of every message with a.
func WithGlobalTo(a *domain.Address) ProviderOption { return func(p *Provider) { p.to = a } }

func NewProvider(name string, views Renderer, tr transport.Transport, opts ...ProviderOption) *Provider {
	p := &Provider{
		name:          name,
		transportType: "custom",
		transport:     tr,
		views:         views,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("provider", name)
	return p
}

func (p *Provider) Name() string                        { return p.name }
func (p *Provider) Transport() transport.Transport      { return p.transport }
func (p *Provider) TransportType() string               { return p.transportType }
func (p *Provider) SetTransport(tr transport.Transport) { p.transport = tr }
func (p *Provider) SetQueue(q Queue)                    { p.queue = q }

// Resolve lets a Provider stand in wherever a Factory is expected; it
// always resolves to itself.
func (p *Provider) Resolve(string) (*Provider, error) { return p, nil }

// AlwaysFrom sets a sender applied to every message before callbacks run.
func (p *Provider) AlwaysFrom(number, carrier string) {
	p.from = &domain.Address{Number: number, Carrier: carrier}
}

// AlwaysTo replaces the recipients of every message after callbacks run.
func (p *Provider) AlwaysTo(number, carrier string) {
	p.to = &domain.Address{Number: number, Carrier: carrier}
}

// To starts a pending message for users, picking up their preferred locale
// when they declare one.
func (p *Provider) To(users any) *PendingMessage {
	pm := &PendingMessage{provider: p, to: users}
	if pref, ok := users.(domain.HasLocalePreference); ok {
		pm.Locale(pref.PreferredLocale())
	}
	return pm
}

// Failures returns the numbers that failed during the most recent send.
// Concurrent sends on one provider overwrite each other's result.
func (p *Provider) Failures() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.failed...)
}

func (p *Provider) setFailures(numbers []string) {
	p.mu.Lock()
	p.failed = append([]string(nil), numbers...)
	p.mu.Unlock()
}

// Send delivers one message. view is a Sendable, a template name, a View,
// a []string{template, raw} pair, or a map with "html" and "raw" keys.
// callback may adjust the message before the body is set.
func (p *Provider) Send(ctx context.Context, view any, data map[string]any, callback func(*domain.Message)) error {
	if s, ok := view.(Sendable); ok {
		return p.sendTextable(ctx, s)
	}
	v, err := parseView(view)
	if err != nil {
		return err
	}
	return p.deliver(ctx, v, data, callback)
}

// Raw sends text as the body without rendering.
func (p *Provider) Raw(ctx context.Context, text string, callback func(*domain.Message)) error {
	return p.deliver(ctx, View{Raw: text}, nil, callback)
}

// Render produces the body a view would send, without sending anything.
func (p *Provider) Render(ctx context.Context, view any, data map[string]any) (string, error) {
	v, err := parseView(view)
	if err != nil {
		return "", err
	}
	return p.body(ctx, v, withMessage(data, domain.NewMessage()))
}

// Queue pushes a queueable textable onto the provider's job queue.
func (p *Provider) Queue(ctx context.Context, view any, queueName string) (string, error) {
	q, err := p.prepareQueued(view, queueName)
	if err != nil {
		return "", err
	}
	return QueueTextable(ctx, q, p.queue)
}

// Later is Queue with a delay.
func (p *Provider) Later(ctx context.Context, delay time.Duration, view any, queueName string) (string, error) {
	q, err := p.prepareQueued(view, queueName)
	if err != nil {
		return "", err
	}
	return LaterTextable(ctx, delay, q, p.queue)
}

func (p *Provider) OnQueue(ctx context.Context, queueName string, view any) (string, error) {
	return p.Queue(ctx, view, queueName)
}

func (p *Provider) LaterOn(ctx context.Context, queueName string, delay time.Duration, view any) (string, error) {
	return p.Later(ctx, delay, view, queueName)
}

func (p *Provider) prepareQueued(view any, queueName string) (Queueable, error) {
	q, ok := view.(Queueable)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", domain.ErrInvalidArgument, view)
	}
	if p.queue == nil {
		return nil, domain.ErrQueueUnavailable
	}
	base := q.Base()
	if queueName != "" {
		base.OnQueue(queueName)
	}
	base.Provider(p.name)
	return q, nil
}

func (p *Provider) sendTextable(ctx context.Context, s Sendable) error {
	if q, ok := s.(Queueable); ok {
		_, err := p.Queue(ctx, q, "")
		return err
	}
	s.Base().Provider(p.name)
	return Send(ctx, s, p)
}

func (p *Provider) deliver(ctx context.Context, v View, data map[string]any, callback func(*domain.Message)) error {
	message := domain.NewMessage()
	if p.from != nil {
		message.SetFrom(p.from.Number, p.from.Carrier)
	}
	data = withMessage(data, message)

	if callback != nil {
		callback(message)
	}

	body, err := p.body(ctx, v, data)
	if err != nil {
		return err
	}
	message.SetBody(body)

	if p.to != nil {
		message.OverrideTo(*p.to)
	}

	if p.events != nil && !p.events.Until(ctx, MessageSending{Provider: p.name, Message: message, Data: data}) {
		messagesSentCounter.WithLabelValues(p.name, p.transportType, "vetoed").Inc()
		p.logger.DebugContext(ctx, "SMS send vetoed by listener")
		return nil
	}

	p.setFailures(nil)

	timer := prometheus.NewTimer(sendDurationHist.WithLabelValues(p.name, p.transportType))
	result, err := p.transport.Send(ctx, message)
	timer.ObserveDuration()
	if err != nil {
		numbers := message.Numbers()
		p.setFailures(numbers)
		messagesSentCounter.WithLabelValues(p.name, p.transportType, "failed").Inc()
		failedRecipientsCounter.WithLabelValues(p.name).Add(float64(len(numbers)))
		if p.events != nil {
			p.events.Dispatch(ctx, MessageFailed{Provider: p.name, Message: message, Data: data, Err: err})
		}
		p.logger.WarnContext(ctx, "SMS transport failed", "error", err, "recipients", len(numbers))
		return fmt.Errorf("sms provider [%s]: %w", p.name, err)
	}
	if result == nil {
		result = &transport.SendResult{Accepted: len(message.To())}
	}

	p.setFailures(result.FailedRecipients)
	messagesSentCounter.WithLabelValues(p.name, p.transportType, "sent").Inc()
	if n := len(result.FailedRecipients); n > 0 {
		failedRecipientsCounter.WithLabelValues(p.name).Add(float64(n))
	}
	if p.events != nil {
		p.events.Dispatch(ctx, MessageSent{Provider: p.name, Message: message, Data: data, Result: result})
	}
	p.logger.DebugContext(ctx, "SMS sent", "accepted", result.Accepted, "failed", len(result.FailedRecipients))
	return nil
}

func (p *Provider) body(ctx context.Context, v View, data map[string]any) (string, error) {
	if v.Template == "" {
		return v.Raw, nil
	}
	if p.views == nil {
		return "", fmt.Errorf("render %q: no renderer configured", v.Template)
	}
	body, err := p.views.Render(ctx, v.Template, data)
	if err != nil {
		return "", fmt.Errorf("render %q: %w", v.Template, err)
	}
	return body, nil
}

func parseView(view any) (View, error) {
	switch v := view.(type) {
	case string:
		return View{Template: v}, nil
	case View:
		return v, nil
	case *View:
		if v != nil {
			return *v, nil
		}
	case []string:
		if len(v) == 2 {
			return View{Template: v[0], Raw: v[1]}, nil
		}
	case map[string]string:
		return View{Template: v["html"], Raw: v["raw"]}, nil
	case map[string]any:
		tmpl, _ := v["html"].(string)
		raw, _ := v["raw"].(string)
		return View{Template: tmpl, Raw: raw}, nil
	}
	return View{}, fmt.Errorf("%w: %T", domain.ErrInvalidView, view)
}

// withMessage copies data and adds the message under "message".
func withMessage(data map[string]any, message *domain.Message) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["message"] = message
	return out
}
