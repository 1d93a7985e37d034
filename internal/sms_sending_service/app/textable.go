package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
)

// Sendable is a declarative message. Concrete textables embed Textable
// and fill it in from Build.
type Sendable interface {
	Base() *Textable
	Build(ctx context.Context) error
}

// Queueable textables are sent through the job queue instead of inline.
// Kind names the type so a worker can rebuild it from its JSON payload.
type Queueable interface {
	Sendable
	Kind() string
}

// TemplateVariabler contributes extra template data, taking precedence
// over everything else.
type TemplateVariabler interface {
	TemplateVariables() map[string]any
}

// FailureHandler is called once a queued textable exhausted its tries.
type FailureHandler interface {
	Failed(ctx context.Context, err error)
}

type RetryPolicy interface {
	MaxTries() int
}

type TimeoutPolicy interface {
	Timeout() time.Duration
}

// BackoffPolicy returns the delay before each retry; the last entry repeats.
type BackoffPolicy interface {
	Backoff() []time.Duration
}

// Envelope is the serializable state of a textable.
type Envelope struct {
	Locale     string           `json:"locale,omitempty"`
	From       []domain.Address `json:"from,omitempty"`
	To         []domain.Address `json:"to,omitempty"`
	Text       string           `json:"text,omitempty"`
	View       string           `json:"view,omitempty"`
	ViewData   map[string]any   `json:"view_data,omitempty"`
	Provider   string           `json:"provider,omitempty"`
	Queue      string           `json:"queue,omitempty"`
	Connection string           `json:"connection,omitempty"`
	Delay      time.Duration    `json:"delay,omitempty"`
}

// Textable is the embeddable base of every textable. Transport message
// callbacks are not serialized and do not survive queueing.
type Textable struct {
	Envelope Envelope `json:"envelope"`

	callbacks []func(*domain.Message)
	err       error
}

// Base returns the textable itself, satisfying Sendable for embedders.
func (t *Textable) Base() *Textable { return t }

// Err returns the first error recorded by a builder method.
func (t *Textable) Err() error { return t.err }

func (t *Textable) fail(err error) {
	if t.err == nil {
		t.err = err
	}
}

// Locale sets the locale used while building and rendering.
func (t *Textable) Locale(locale string) *Textable {
	normalized, err := domain.NormalizeLocale(locale)
	if err != nil {
		t.fail(err)
		return t
	}
	t.Envelope.Locale = normalized
	return t
}

// From adds senders. address may be anything To accepts.
func (t *Textable) From(address any, carrier ...string) *Textable {
	addrs, err := normalizeAddresses(address, firstOr(carrier))
	if err != nil {
		t.fail(err)
		return t
	}
	t.Envelope.From = append(t.Envelope.From, addrs...)
	return t
}

// To adds recipients. address is a number, an Address, a map with
// "number" and "carrier" keys, a domain.Recipient, or a slice of these.
// carrier applies to bare number strings.
func (t *Textable) To(address any, carrier ...string) *Textable {
	addrs, err := normalizeAddresses(address, firstOr(carrier))
	if err != nil {
		t.fail(err)
		return t
	}
	t.Envelope.To = append(t.Envelope.To, addrs...)
	return t
}

// HasTo reports whether every given address is already a recipient. A
// carrier is only compared when the query names one.
func (t *Textable) HasTo(address any, carrier ...string) bool {
	return containsAll(t.Envelope.To, address, firstOr(carrier))
}

// HasFrom is HasTo for senders.
func (t *Textable) HasFrom(address any, carrier ...string) bool {
	return containsAll(t.Envelope.From, address, firstOr(carrier))
}

// View sets the template and merges data into the view data.
func (t *Textable) View(name string, data ...map[string]any) *Textable {
	t.Envelope.View = name
	for _, d := range data {
		t.WithData(d)
	}
	return t
}

// Text sets a raw body. It takes precedence over View.
func (t *Textable) Text(body string) *Textable {
	t.Envelope.Text = body
	return t
}

func (t *Textable) With(key string, value any) *Textable {
	if t.Envelope.ViewData == nil {
		t.Envelope.ViewData = make(map[string]any)
	}
	t.Envelope.ViewData[key] = value
	return t
}

func (t *Textable) WithData(data map[string]any) *Textable {
	for k, v := range data {
		t.With(k, v)
	}
	return t
}

// Provider names the provider to send through; "" means the default.
func (t *Textable) Provider(name string) *Textable {
	t.Envelope.Provider = name
	return t
}

func (t *Textable) OnQueue(queue string) *Textable {
	t.Envelope.Queue = queue
	return t
}

func (t *Textable) OnConnection(connection string) *Textable {
	t.Envelope.Connection = connection
	return t
}

// Delay makes queueing push the job with this delay.
func (t *Textable) Delay(d time.Duration) *Textable {
	t.Envelope.Delay = d
	return t
}

// WithTransportMessage registers fn to run against the transport message
// after senders and recipients are applied.
func (t *Textable) WithTransportMessage(fn func(*domain.Message)) *Textable {
	t.callbacks = append(t.callbacks, fn)
	return t
}

// When runs fn if cond holds, otherwise the optional fallback.
func (t *Textable) When(cond bool, fn func(*Textable), otherwise ...func(*Textable)) *Textable {
	if cond {
		fn(t)
	} else if len(otherwise) > 0 && otherwise[0] != nil {
		otherwise[0](t)
	}
	return t
}

func (t *Textable) buildView() (View, error) {
	switch {
	case t.Envelope.Text != "":
		return View{Raw: t.Envelope.Text}, nil
	case t.Envelope.View != "":
		return View{Template: t.Envelope.View}, nil
	}
	return View{}, domain.ErrMissingContent
}

func (t *Textable) applyTo(message *domain.Message) {
	for _, a := range t.Envelope.From {
		message.SetFrom(a.Number, a.Carrier)
	}
	for _, a := range t.Envelope.To {
		message.SetTo(a.Number, a.Carrier)
	}
	for _, fn := range t.callbacks {
		fn(message)
	}
}

// BuildViewData merges the textable's view data, the process-wide hook and
// TemplateVariables, later sources winning.
func BuildViewData(s Sendable, global ViewDataFunc) map[string]any {
	data := make(map[string]any)
	for k, v := range s.Base().Envelope.ViewData {
		data[k] = v
	}
	if global != nil {
		for k, v := range global(s) {
			data[k] = v
		}
	}
	if tv, ok := s.(TemplateVariabler); ok {
		for k, v := range tv.TemplateVariables() {
			data[k] = v
		}
	}
	return data
}

// Send builds s under its locale and sends it through the provider it names.
func Send(ctx context.Context, s Sendable, f Factory) error {
	p, view, data, err := prepare(ctx, s, f)
	if err != nil {
		return err
	}
	base := s.Base()
	return p.Send(domain.WithLocale(ctx, base.Envelope.Locale), view, data, base.applyTo)
}

// Render builds s and returns the body it would send.
func Render(ctx context.Context, s Sendable, f Factory) (string, error) {
	p, view, data, err := prepare(ctx, s, f)
	if err != nil {
		return "", err
	}
	return p.Render(domain.WithLocale(ctx, s.Base().Envelope.Locale), view, data)
}

func prepare(ctx context.Context, s Sendable, f Factory) (*Provider, View, map[string]any, error) {
	base := s.Base()
	if err := s.Build(domain.WithLocale(ctx, base.Envelope.Locale)); err != nil {
		return nil, View{}, nil, fmt.Errorf("build textable: %w", err)
	}
	if base.err != nil {
		return nil, View{}, nil, base.err
	}
	view, err := base.buildView()
	if err != nil {
		return nil, View{}, nil, err
	}
	p, err := f.Resolve(base.Envelope.Provider)
	if err != nil {
		return nil, View{}, nil, err
	}
	return p, view, BuildViewData(s, p.viewData), nil
}

// QueueTextable wraps s in a queued-send job and pushes it onto q, honoring
// a Delay set on the textable.
func QueueTextable(ctx context.Context, s Queueable, q Queue) (string, error) {
	if d := s.Base().Envelope.Delay; d > 0 {
		return LaterTextable(ctx, d, s, q)
	}
	job, err := newQueuedJob(s, q)
	if err != nil {
		return "", err
	}
	base := s.Base()
	id, err := q.Push(ctx, job, base.Envelope.Connection, base.Envelope.Queue)
	if err != nil {
		return "", fmt.Errorf("push %s job: %w", job.Kind, err)
	}
	jobsQueuedCounter.WithLabelValues(job.Kind, "false").Inc()
	return id, nil
}

// LaterTextable pushes s onto q to run after delay.
func LaterTextable(ctx context.Context, delay time.Duration, s Queueable, q Queue) (string, error) {
	job, err := newQueuedJob(s, q)
	if err != nil {
		return "", err
	}
	base := s.Base()
	id, err := q.Later(ctx, delay, job, base.Envelope.Connection, base.Envelope.Queue)
	if err != nil {
		return "", fmt.Errorf("schedule %s job: %w", job.Kind, err)
	}
	jobsQueuedCounter.WithLabelValues(job.Kind, "true").Inc()
	return id, nil
}

func newQueuedJob(s Queueable, q Queue) (*SendQueuedTextable, error) {
	if q == nil {
		return nil, domain.ErrQueueUnavailable
	}
	if err := s.Base().err; err != nil {
		return nil, err
	}
	return NewSendQueuedTextable(s), nil
}

func normalizeAddresses(value any, carrier string) ([]domain.Address, error) {
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("%w: empty number", domain.ErrInvalidAddress)
		}
		return []domain.Address{{Number: v, Carrier: carrier}}, nil
	case domain.Address:
		return checkAddress(v)
	case *domain.Address:
		if v == nil {
			break
		}
		return checkAddress(*v)
	case map[string]string:
		return checkAddress(domain.Address{Number: v["number"], Carrier: v["carrier"]})
	case map[string]any:
		number, _ := v["number"].(string)
		c, _ := v["carrier"].(string)
		return checkAddress(domain.Address{Number: number, Carrier: c})
	case domain.Recipient:
		return checkAddress(domain.Address{Number: v.PhoneNumber(), Carrier: v.PhoneCarrier()})
	case []string:
		return collect(len(v), func(i int) any { return v[i] }, carrier)
	case []domain.Address:
		return collect(len(v), func(i int) any { return v[i] }, carrier)
	case []domain.Recipient:
		return collect(len(v), func(i int) any { return v[i] }, carrier)
	case []map[string]any:
		return collect(len(v), func(i int) any { return v[i] }, carrier)
	case []map[string]string:
		return collect(len(v), func(i int) any { return v[i] }, carrier)
	case []any:
		return collect(len(v), func(i int) any { return v[i] }, carrier)
	}
	return nil, fmt.Errorf("%w: unsupported type %T", domain.ErrInvalidAddress, value)
}

func collect(n int, at func(int) any, carrier string) ([]domain.Address, error) {
	out := make([]domain.Address, 0, n)
	for i := 0; i < n; i++ {
		addrs, err := normalizeAddresses(at(i), carrier)
		if err != nil {
			return nil, err
		}
		out = append(out, addrs...)
	}
	return out, nil
}

func checkAddress(a domain.Address) ([]domain.Address, error) {
	if strings.TrimSpace(a.Number) == "" {
		return nil, fmt.Errorf("%w: empty number", domain.ErrInvalidAddress)
	}
	return []domain.Address{a}, nil
}

func containsAll(have []domain.Address, address any, carrier string) bool {
	want, err := normalizeAddresses(address, carrier)
	if err != nil || len(want) == 0 {
		return false
	}
	for _, w := range want {
		found := false
		for _, h := range have {
			if h.Number == w.Number && (w.Carrier == "" || h.Carrier == w.Carrier) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func firstOr(values []string) string {
	if len(values) > 0 {
		return values[0]
	}
	return ""
}
