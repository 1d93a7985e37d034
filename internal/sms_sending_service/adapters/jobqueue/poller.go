package jobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
)

type PollerConfig struct {
	PollingInterval time.Duration
	JobBatchSize    int
	MaxRetry        int
}

// Publisher sends an encoded job on a connection; *Manager implements it.
type Publisher interface {
	Publish(ctx context.Context, connection, queue string, payload []byte) error
}

// Poller moves due delayed jobs from the store onto their connections.
type Poller struct {
	repo      domain.ScheduledJobRepository
	publisher Publisher
	logger    *slog.Logger
	config    PollerConfig
}

func NewPoller(repo domain.ScheduledJobRepository, publisher Publisher, logger *slog.Logger, cfg PollerConfig) *Poller {
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 30 * time.Second
	}
	if cfg.JobBatchSize <= 0 {
		cfg.JobBatchSize = 50
	}
	return &Poller{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With("component", "job_poller"),
		config:    cfg,
	}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.config.PollingInterval)
	defer ticker.Stop()
	for {
		if _, err := p.PollAndPublish(ctx); err != nil {
			p.logger.ErrorContext(ctx, "Poll cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PollAndPublish acquires due jobs and publishes each one. It returns how
// many jobs were handled; only a failure to acquire is returned as an error.
func (p *Poller) PollAndPublish(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(pollerDurationHist)
	defer timer.ObserveDuration()

	jobs, err := p.repo.AcquireDueJobs(ctx, time.Now().UTC(), p.config.JobBatchSize)
	if err != nil {
		if errors.Is(err, domain.ErrNoDueJobs) {
			return 0, nil
		}
		return 0, fmt.Errorf("acquire due jobs: %w", err)
	}

	for _, job := range jobs {
		status := p.publish(ctx, job)
		pollerJobsCounter.WithLabelValues(status).Inc()
	}
	p.logger.InfoContext(ctx, "Published due jobs", "count", len(jobs))
	return len(jobs), nil
}

func (p *Poller) publish(ctx context.Context, job *domain.ScheduledJob) string {
	logger := p.logger.With("job_id", job.ID, "connection", job.Connection, "queue", job.Queue)

	pubErr := p.publisher.Publish(ctx, job.Connection, job.Queue, job.Payload)
	if pubErr == nil {
		if err := p.repo.UpdateStatus(ctx, job.ID, domain.StatusCompleted, time.Now().UTC(), sql.NullString{}); err != nil {
			logger.ErrorContext(ctx, "Failed to mark job completed", "error", err)
			return "error_update_status"
		}
		return "completed"
	}

	errMsg := sql.NullString{String: pubErr.Error(), Valid: true}
	if job.RetryCount < p.config.MaxRetry {
		next := time.Now().UTC().Add(calculateBackoff(job.RetryCount + 1))
		logger.WarnContext(ctx, "Publishing delayed job failed, retrying", "error", pubErr, "next_retry_at", next)
		if err := p.repo.MarkForRetry(ctx, job.ID, next, job.RetryCount, errMsg); err != nil {
			logger.ErrorContext(ctx, "Failed to mark job for retry", "error", err)
			return "error_update_status"
		}
		return "retry"
	}

	logger.ErrorContext(ctx, "Delayed job failed after max retries", "error", pubErr, "max_retries", p.config.MaxRetry)
	if err := p.repo.UpdateStatus(ctx, job.ID, domain.StatusFailed, time.Now().UTC(), errMsg); err != nil {
		logger.ErrorContext(ctx, "Failed to mark job failed", "error", err)
		return "error_update_status"
	}
	return "failed"
}

// calculateBackoff gives 2m, 4m, 6m... for retry 1, 2, 3...
func calculateBackoff(retryNum int) time.Duration {
	return time.Minute * time.Duration(retryNum*2)
}
