package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
)

// DBTX is the subset of *pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Schema creates the delayed job table.
const Schema = `
CREATE TABLE IF NOT EXISTS scheduled_jobs (
	id            UUID PRIMARY KEY,
	connection    TEXT NOT NULL DEFAULT '',
	queue         TEXT NOT NULL DEFAULT '',
	payload       JSONB NOT NULL,
	scheduled_at  TIMESTAMPTZ NOT NULL,
	status        TEXT NOT NULL,
	run_at        TIMESTAMPTZ,
	processed_at  TIMESTAMPTZ,
	error_message TEXT,
	retry_count   INT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS scheduled_jobs_due_idx ON scheduled_jobs (status, scheduled_at);
`

type PgScheduledJobRepository struct {
	db     DBTX
	logger *slog.Logger
}

func NewPgScheduledJobRepository(db DBTX, logger *slog.Logger) *PgScheduledJobRepository {
	return &PgScheduledJobRepository{db: db, logger: logger.With("component", "scheduled_job_repository_pg")}
}

// EnsureSchema applies Schema.
func (r *PgScheduledJobRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create scheduled_jobs schema: %w", err)
	}
	return nil
}

func (r *PgScheduledJobRepository) Create(ctx context.Context, job *domain.ScheduledJob) error {
	query := `
		INSERT INTO scheduled_jobs (id, connection, queue, payload, scheduled_at, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		job.ID, job.Connection, job.Queue, []byte(job.Payload), job.ScheduledAt, job.Status,
		job.RetryCount, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating scheduled job", "error", err, "job_id", job.ID)
		return err
	}
	r.logger.DebugContext(ctx, "Scheduled job created", "job_id", job.ID, "scheduled_at", job.ScheduledAt)
	return nil
}

// UpdateStatus sets a job's status. Processing stamps run_at; completed and
// failed stamp processed_at and record errorMessage.
func (r *PgScheduledJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, eventTime time.Time, errorMessage sql.NullString) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	updatedAt := time.Now().UTC()

	switch status {
	case domain.StatusProcessing:
		tag, err = r.db.Exec(ctx,
			`UPDATE scheduled_jobs SET status = $1, run_at = $2, updated_at = $3 WHERE id = $4`,
			status, eventTime, updatedAt, id)
	case domain.StatusCompleted, domain.StatusFailed:
		tag, err = r.db.Exec(ctx,
			`UPDATE scheduled_jobs SET status = $1, processed_at = $2, error_message = $3, updated_at = $4 WHERE id = $5`,
			status, eventTime, errorMessage, updatedAt, id)
	default:
		tag, err = r.db.Exec(ctx,
			`UPDATE scheduled_jobs SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4`,
			status, errorMessage, updatedAt, id)
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating scheduled job status", "error", err, "job_id", id, "new_status", status)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AcquireDueJobs claims up to limit due jobs for this poller. Rows locked by
// another poller are skipped.
func (r *PgScheduledJobRepository) AcquireDueJobs(ctx context.Context, dueTime time.Time, limit int) ([]*domain.ScheduledJob, error) {
	query := `
		WITH due_job_ids AS (
			SELECT id
			FROM scheduled_jobs
			WHERE (status = $1 OR status = $2) AND scheduled_at <= $3
			ORDER BY scheduled_at ASC, retry_count ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		UPDATE scheduled_jobs sj
		SET status = $5, run_at = $6, updated_at = $6
		FROM due_job_ids dj
		WHERE sj.id = dj.id
		RETURNING sj.id, sj.connection, sj.queue, sj.payload, sj.scheduled_at, sj.status, sj.run_at, sj.processed_at, sj.error_message, sj.retry_count, sj.created_at, sj.updated_at
	`
	now := time.Now().UTC()
	rows, err := r.db.Query(ctx, query, domain.StatusPending, domain.StatusRetry, dueTime, limit, domain.StatusProcessing, now)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error acquiring due jobs", "error", err)
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Error scanning acquired job row", "error", err)
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating acquired job rows", "error", err)
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, domain.ErrNoDueJobs
	}
	return jobs, nil
}

// MarkForRetry puts a job back to retry at nextRetryTime with its retry
// count incremented.
func (r *PgScheduledJobRepository) MarkForRetry(ctx context.Context, id uuid.UUID, nextRetryTime time.Time, currentRetryCount int, errorMessage sql.NullString) error {
	query := `
		UPDATE scheduled_jobs
		SET status = $1, scheduled_at = $2, retry_count = $3, error_message = $4, updated_at = $5, run_at = NULL, processed_at = NULL
		WHERE id = $6
	`
	tag, err := r.db.Exec(ctx, query,
		domain.StatusRetry, nextRetryTime, currentRetryCount+1, errorMessage, time.Now().UTC(), id,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error marking job for retry", "error", err, "job_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	r.logger.InfoContext(ctx, "Scheduled job marked for retry", "job_id", id, "next_retry_at", nextRetryTime)
	return nil
}

func scanJob(row pgx.Row) (*domain.ScheduledJob, error) {
	job := &domain.ScheduledJob{}
	var payload []byte
	err := row.Scan(
		&job.ID, &job.Connection, &job.Queue, &payload, &job.ScheduledAt, &job.Status,
		&job.RunAt, &job.ProcessedAt, &job.Error, &job.RetryCount, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Payload = json.RawMessage(payload)
	return job, nil
}
