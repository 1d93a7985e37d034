package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aradsms/textsms/internal/sms_sending_service/app"
	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
)

var (
	ErrUnknownConnection = errors.New("unknown job queue connection")
	ErrNoScheduleStore   = errors.New("delayed jobs need a schedule store")
)

// Manager routes jobs to named connections. Delayed jobs are stored and
// published by the Poller once due.
type Manager struct {
	mu           sync.RWMutex
	connections  map[string]Connection
	defaultConn  string
	defaultQueue string

	store  domain.ScheduledJobRepository
	logger *slog.Logger
}

type ManagerOption func(*Manager)

// WithScheduleStore enables Later.
func WithScheduleStore(store domain.ScheduledJobRepository) ManagerOption {
	return func(m *Manager) { m.store = store }
}

func NewManager(defaultConnection, defaultQueue string, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		connections:  make(map[string]Connection),
		defaultConn:  defaultConnection,
		defaultQueue: defaultQueue,
		logger:       logger.With("component", "job_queue"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddConnection registers conn under name, replacing any previous one.
func (m *Manager) AddConnection(name string, conn Connection) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[name] = conn
	return m
}

// Connection returns the named connection; "" means the default.
func (m *Manager) Connection(name string) (Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name == "" {
		name = m.defaultConn
	}
	conn, ok := m.connections[name]
	if !ok {
		return nil, fmt.Errorf("%w [%s]", ErrUnknownConnection, name)
	}
	return conn, nil
}

func (m *Manager) DefaultQueue() string { return m.defaultQueue }

// Push implements app.Queue.
func (m *Manager) Push(ctx context.Context, job *app.SendQueuedTextable, connection, queue string) (string, error) {
	payload, err := job.Encode()
	if err != nil {
		return "", err
	}
	if err := m.Publish(ctx, connection, queue, payload); err != nil {
		return "", err
	}
	m.logger.DebugContext(ctx, "Job pushed", "job_id", job.ID, "kind", job.Kind, "connection", connection, "queue", queue)
	return job.ID, nil
}

// Later implements app.Queue by storing the job until delay has passed.
func (m *Manager) Later(ctx context.Context, delay time.Duration, job *app.SendQueuedTextable, connection, queue string) (string, error) {
	if m.store == nil {
		return "", ErrNoScheduleStore
	}
	payload, err := job.Encode()
	if err != nil {
		return "", err
	}
	// Every retry of a job is its own row; the job ID travels in the payload.
	scheduled := domain.NewScheduledJob(uuid.New(), connection, queue, payload, time.Now().Add(delay))
	if err := m.store.Create(ctx, scheduled); err != nil {
		jobsScheduledCounter.WithLabelValues("error").Inc()
		return "", fmt.Errorf("store delayed job: %w", err)
	}
	jobsScheduledCounter.WithLabelValues("stored").Inc()
	m.logger.InfoContext(ctx, "Job scheduled", "job_id", job.ID, "scheduled_id", scheduled.ID, "kind", job.Kind, "run_at", scheduled.ScheduledAt)
	return job.ID, nil
}

// Publish sends an already encoded job. Empty connection and queue use the
// defaults.
func (m *Manager) Publish(ctx context.Context, connection, queue string, payload []byte) error {
	conn, err := m.Connection(connection)
	if err != nil {
		return err
	}
	if connection == "" {
		connection = m.defaultConn
	}
	if queue == "" {
		queue = m.defaultQueue
	}
	if err := conn.Publish(ctx, queue, payload); err != nil {
		jobsPublishedCounter.WithLabelValues(connection, "error").Inc()
		return fmt.Errorf("publish to %s/%s: %w", connection, queue, err)
	}
	jobsPublishedCounter.WithLabelValues(connection, "ok").Inc()
	return nil
}

// Consume blocks delivering jobs from connection/queue to handle.
func (m *Manager) Consume(ctx context.Context, connection, queue string, handle Handler) error {
	conn, err := m.Connection(connection)
	if err != nil {
		return err
	}
	if queue == "" {
		queue = m.defaultQueue
	}
	return conn.Consume(ctx, queue, handle)
}

// Close closes every connection, returning the first error.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for name, conn := range m.connections {
		if err := conn.Close(); err != nil {
			m.logger.Warn("Failed to close job queue connection", "connection", name, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
