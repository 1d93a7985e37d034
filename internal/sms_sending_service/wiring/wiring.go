// Package wiring assembles the job queue and provider registry from
// configuration for the service binaries.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aradsms/textsms/internal/platform/config"
	"github.com/aradsms/textsms/internal/platform/events"
	"github.com/aradsms/textsms/internal/sms_sending_service/adapters/jobqueue"
	"github.com/aradsms/textsms/internal/sms_sending_service/adapters/mailer"
	"github.com/aradsms/textsms/internal/sms_sending_service/adapters/view"
	"github.com/aradsms/textsms/internal/sms_sending_service/app"
	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
	"github.com/aradsms/textsms/internal/sms_sending_service/transport"
)

const (
	MagfaTransport = "magfa"
	consumerGroup  = "sms_sending_workers"
)

var ErrMissingOption = errors.New("missing provider option")

// NewQueueManager registers the memory connection, NATS when a client is
// given and Kafka when brokers are configured. store may be nil, in which
// case delayed jobs are rejected.
func NewQueueManager(cfg *config.Config, nc jobqueue.NATSClient, store domain.ScheduledJobRepository, logger *slog.Logger) *jobqueue.Manager {
	var opts []jobqueue.ManagerOption
	if store != nil {
		opts = append(opts, jobqueue.WithScheduleStore(store))
	}
	m := jobqueue.NewManager(cfg.QueueConnection, cfg.QueueName, logger, opts...).
		AddConnection("memory", jobqueue.NewMemoryConnection(logger))
	if nc != nil {
		m.AddConnection("nats", jobqueue.NewNATSConnection(nc, logger))
	}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		m.AddConnection("kafka", jobqueue.NewKafkaConnection(brokers, consumerGroup, logger))
	}
	return m
}

// NewRegistry builds the provider registry with file templates from
// TemplatesDir, the SMTP mailer for email gateways and the magfa transport.
func NewRegistry(cfg *config.Config, bus *events.Bus, queue app.Queue, logger *slog.Logger) *app.Registry {
	bus.Listen(app.EventRegistryBooted, func(_ context.Context, e events.Event) bool {
		if booted, ok := e.(app.RegistryBooted); ok {
			booted.Registry.Extend(MagfaTransport, NewMagfaFactory(&http.Client{Timeout: 15 * time.Second}))
		}
		return true
	})

	return app.NewRegistry(app.RegistryOptions{
		Config: cfg.SMS,
		Views:  view.NewRenderer(os.DirFS(cfg.TemplatesDir), logger),
		Events: bus,
		Queue:  queue,
		Mailer: mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger),
		Logger: logger,
	})
}

// NewMagfaFactory returns a transport factory reading the url, api_key and
// sender options of a magfa provider record.
func NewMagfaFactory(client *http.Client) app.TransportFactory {
	return func(r *app.Registry, name string, pc config.ProviderConfig) (transport.Transport, error) {
		for _, key := range []string{"url", "api_key"} {
			if pc.String(key) == "" {
				return nil, fmt.Errorf("%w: sms provider [%s] needs %q", ErrMissingOption, name, key)
			}
		}
		return transport.NewMagfaTransport(r.Logger(), pc.String("url"), pc.String("api_key"), pc.String("sender"), client), nil
	}
}
