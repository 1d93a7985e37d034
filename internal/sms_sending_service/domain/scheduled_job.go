package domain

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the status of a delayed job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusRetry      JobStatus = "retry"
)

// ScheduledJob is an encoded queued-send job held back until ScheduledAt,
// then published to Queue on Connection.
type ScheduledJob struct {
	ID          uuid.UUID       `json:"id"`
	Connection  string          `json:"connection"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	Status      JobStatus       `json:"status"`
	RunAt       sql.NullTime    `json:"run_at,omitempty"`
	ProcessedAt sql.NullTime    `json:"processed_at,omitempty"`
	Error       sql.NullString  `json:"error,omitempty"`
	RetryCount  int             `json:"retry_count"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func NewScheduledJob(id uuid.UUID, connection, queue string, payload json.RawMessage, scheduledAt time.Time) *ScheduledJob {
	now := time.Now().UTC()
	return &ScheduledJob{
		ID:          id,
		Connection:  connection,
		Queue:       queue,
		Payload:     payload,
		ScheduledAt: scheduledAt.UTC(),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ScheduledJobRepository stores delayed jobs.
type ScheduledJobRepository interface {
	Create(ctx context.Context, job *ScheduledJob) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status JobStatus, eventTime time.Time, errorMessage sql.NullString) error
	// AcquireDueJobs moves due pending or retry jobs to processing and returns
	// them. It returns ErrNoDueJobs when nothing is due.
	AcquireDueJobs(ctx context.Context, dueTime time.Time, limit int) ([]*ScheduledJob, error)
	MarkForRetry(ctx context.Context, id uuid.UUID, nextRetryTime time.Time, currentRetryCount int, errorMessage sql.NullString) error
}
