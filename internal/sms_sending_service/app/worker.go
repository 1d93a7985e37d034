package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

type WorkerConfig struct {
	// DefaultTries applies to jobs whose textable has no RetryPolicy.
	DefaultTries int
}

// Worker executes encoded queued-send jobs handed over by a queue consumer.
type Worker struct {
	factory Factory
	kinds   *Kinds
	queue   Queue
	logger  *slog.Logger
	cfg     WorkerConfig
}

func NewWorker(factory Factory, kinds *Kinds, queue Queue, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.DefaultTries < 1 {
		cfg.DefaultTries = 1
	}
	return &Worker{
		factory: factory,
		kinds:   kinds,
		queue:   queue,
		logger:  logger.With("component", "sms_worker"),
		cfg:     cfg,
	}
}

// Process decodes and runs one job. A failed attempt is re-queued with the
// job's backoff until its tries are used up, then the textable's failure
// hook runs. The returned error is the attempt's error.
func (w *Worker) Process(ctx context.Context, payload []byte) error {
	job, err := DecodeJob(payload, w.kinds)
	if err != nil {
		jobsProcessedCounter.WithLabelValues("unknown", "undecodable").Inc()
		w.logger.ErrorContext(ctx, "Dropping undecodable queued job", "error", err)
		return err
	}

	logger := w.logger.With("job_id", job.ID, "kind", job.DisplayName(), "attempt", job.Attempts+1)
	timer := prometheus.NewTimer(jobProcessingDurationHist.WithLabelValues(job.Kind))
	defer timer.ObserveDuration()

	runCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	handleErr := job.Handle(runCtx, w.factory)
	if handleErr == nil {
		jobsProcessedCounter.WithLabelValues(job.Kind, "success").Inc()
		logger.InfoContext(ctx, "Queued textable sent")
		return nil
	}

	job.Attempts++
	tries := job.Tries
	if tries < 1 {
		tries = w.cfg.DefaultTries
	}
	if job.Attempts < tries && w.queue != nil {
		retryErr := w.retry(ctx, payload, job.Attempts)
		if retryErr == nil {
			jobsProcessedCounter.WithLabelValues(job.Kind, "retry").Inc()
			logger.WarnContext(ctx, "Queued textable failed, retry scheduled", "error", handleErr, "tries", tries)
			return handleErr
		}
		logger.ErrorContext(ctx, "Could not re-queue failed textable", "error", retryErr)
	}

	jobsProcessedCounter.WithLabelValues(job.Kind, "failed").Inc()
	logger.ErrorContext(ctx, "Queued textable failed permanently", "error", handleErr, "tries", tries)
	job.Failed(ctx, handleErr)
	return handleErr
}

// retry re-queues the job as it was received, so state added by Build
// during the failed attempt is not carried over.
func (w *Worker) retry(ctx context.Context, payload []byte, attempts int) error {
	job, err := DecodeJob(payload, w.kinds)
	if err != nil {
		return err
	}
	job.Attempts = attempts
	base := job.Textable.Base()
	connection, queue := base.Envelope.Connection, base.Envelope.Queue
	if delay := job.BackoffFor(attempts); delay > 0 {
		_, err = w.queue.Later(ctx, delay, job, connection, queue)
	} else {
		_, err = w.queue.Push(ctx, job, connection, queue)
	}
	if err != nil {
		return fmt.Errorf("re-queue job %s: %w", job.ID, err)
	}
	return nil
}
