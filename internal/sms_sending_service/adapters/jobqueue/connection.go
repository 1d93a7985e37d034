// Package jobqueue carries encoded queued-send jobs between the services
// that queue textables and the workers that send them.
package jobqueue

import "context"

// Handler processes one encoded job. Errors are logged by the connection;
// retries are the worker's business.
type Handler func(ctx context.Context, payload []byte) error

// Connection is one named transport for jobs, e.g. "nats" or "kafka".
type Connection interface {
	Publish(ctx context.Context, queue string, payload []byte) error
	// Consume delivers jobs from queue to handle until ctx is done.
	Consume(ctx context.Context, queue string, handle Handler) error
	Close() error
}
