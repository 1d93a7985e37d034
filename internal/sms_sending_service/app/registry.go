package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aradsms/textsms/internal/platform/config"
	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
	"github.com/aradsms/textsms/internal/sms_sending_service/transport"
)

// TransportFactory builds a custom transport for the provider called name.
// It must not resolve providers from r.
type TransportFactory func(r *Registry, name string, cfg config.ProviderConfig) (transport.Transport, error)

type RegistryOptions struct {
	Config   config.SMSConfig
	Views    Renderer
	Events   Dispatcher
	Queue    Queue
	Mailer   transport.Mailer
	Logger   *slog.Logger
	ViewData ViewDataFunc
}

// Registry resolves provider names into configured, memoized Providers.
type Registry struct {
	cfg      config.SMSConfig
	views    Renderer
	events   Dispatcher
	queue    Queue
	mailer   transport.Mailer
	logger   *slog.Logger
	viewData ViewDataFunc

	mu        sync.Mutex
	providers map[string]*Provider
	creators  map[string]TransportFactory
}

func NewRegistry(opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		cfg:       opts.Config,
		views:     opts.Views,
		events:    opts.Events,
		queue:     opts.Queue,
		mailer:    opts.Mailer,
		logger:    logger.With("component", "sms_registry"),
		viewData:  opts.ViewData,
		providers: make(map[string]*Provider),
		creators:  make(map[string]TransportFactory),
	}
	if r.cfg.Providers == nil {
		r.cfg.Providers = make(map[string]config.ProviderConfig)
	}
	if r.events != nil {
		r.events.Dispatch(context.Background(), RegistryBooted{Registry: r})
	}
	return r
}

// Logger is the registry's logger, for custom transport factories.
func (r *Registry) Logger() *slog.Logger { return r.logger }

// Provider returns the named provider, building and caching it on first
// use. "" resolves the default provider.
func (r *Registry) Provider(name string) (*Provider, error) {
	r.mu.Lock()
	if name == "" {
		name = r.cfg.Default
	}
	if p, ok := r.providers[name]; ok {
		r.mu.Unlock()
		return p, nil
	}
	cfg, ok := r.cfg.Providers[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w [%s]", domain.ErrUndefinedProvider, name)
	}

	p, err := r.resolve(name, cfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.providers[name]; ok {
		return existing, nil
	}
	r.providers[name] = p
	r.logger.Debug("SMS provider resolved", "provider", name, "transport", p.TransportType())
	return p, nil
}

// Resolve implements Factory.
func (r *Registry) Resolve(name string) (*Provider, error) {
	return r.Provider(name)
}

// Purge drops the cached provider so the next lookup rebuilds it.
func (r *Registry) Purge(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		name = r.cfg.Default
	}
	delete(r.providers, name)
}

// Extend registers a factory for a transport type. Custom factories win
// over the built-in types of the same name.
func (r *Registry) Extend(transportType string, factory TransportFactory) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creators[transportType] = factory
	return r
}

func (r *Registry) DefaultProvider() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Default
}

func (r *Registry) SetDefaultProvider(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.Default = name
}

// Send forwards to the default provider.
func (r *Registry) Send(ctx context.Context, view any, data map[string]any, callback func(*domain.Message)) error {
	p, err := r.Provider("")
	if err != nil {
		return err
	}
	return p.Send(ctx, view, data, callback)
}

// To starts a pending message on the default provider.
func (r *Registry) To(users any) (*PendingMessage, error) {
	p, err := r.Provider("")
	if err != nil {
		return nil, err
	}
	return p.To(users), nil
}

func (r *Registry) resolve(name string, cfg config.ProviderConfig) (*Provider, error) {
	tr, err := r.createTransport(name, cfg)
	if err != nil {
		return nil, err
	}

	opts := []ProviderOption{
		WithTransportType(cfg.Transport()),
		WithLogger(r.logger),
		WithViewData(r.viewData),
		WithGlobalFrom(r.globalAddress(cfg, "from")),
		WithGlobalTo(r.globalAddress(cfg, "to")),
	}
	if r.events != nil {
		opts = append(opts, WithEvents(r.events))
	}
	if r.queue != nil {
		opts = append(opts, WithQueue(r.queue))
	}
	return NewProvider(name, r.views, tr, opts...), nil
}

func (r *Registry) createTransport(name string, cfg config.ProviderConfig) (transport.Transport, error) {
	kind := cfg.Transport()

	r.mu.Lock()
	factory, custom := r.creators[kind]
	r.mu.Unlock()
	if custom && kind != "" {
		return factory(r, name, cfg)
	}

	switch kind {
	case "array":
		return transport.NewArrayTransport(), nil
	case "email":
		if r.mailer == nil {
			return nil, domain.ErrMailerUnavailable
		}
		return transport.NewEmailTransport(r.mailer, cfg.StringMap("gateways")), nil
	case "log":
		channel := cfg.String("channel")
		if channel == "" {
			channel = name
		}
		return transport.NewLogTransport(r.logger.With("channel", channel)), nil
	}
	return nil, fmt.Errorf("%w [%s]", domain.ErrUnsupportedTransport, kind)
}

// globalAddress reads key from the provider record, falling back to the
// top-level sms setting.
func (r *Registry) globalAddress(cfg config.ProviderConfig, key string) *domain.Address {
	if cfg.Has(key) {
		return parseAddress(cfg[key])
	}
	if key == "from" {
		return parseAddress(r.cfg.From)
	}
	return parseAddress(r.cfg.To)
}

func parseAddress(v any) *domain.Address {
	var a domain.Address
	switch t := v.(type) {
	case string:
		a.Number = t
	case domain.Address:
		a = t
	case map[string]string:
		a = domain.Address{Number: t["number"], Carrier: t["carrier"]}
	case map[string]any:
		a.Number, _ = t["number"].(string)
		a.Carrier, _ = t["carrier"].(string)
	default:
		return nil
	}
	if strings.TrimSpace(a.Number) == "" {
		return nil
	}
	return &a
}
