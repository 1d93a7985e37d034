package jobqueue

import (
	"context"
	"log/slog"
	"sync"
)

// MemoryConnection keeps published jobs in memory and hands them straight
// to a consumer registered for the same queue. For tests and single-process
// setups.
type MemoryConnection struct {
	mu        sync.Mutex
	published map[string][][]byte
	consumers map[string]Handler
	logger    *slog.Logger
}

func NewMemoryConnection(logger *slog.Logger) *MemoryConnection {
	return &MemoryConnection{
		published: make(map[string][][]byte),
		consumers: make(map[string]Handler),
		logger:    logger.With("component", "memory_queue"),
	}
}

func (c *MemoryConnection) Publish(ctx context.Context, queue string, payload []byte) error {
	data := append([]byte(nil), payload...)
	c.mu.Lock()
	c.published[queue] = append(c.published[queue], data)
	handle := c.consumers[queue]
	c.mu.Unlock()

	if handle != nil {
		if err := handle(ctx, data); err != nil {
			c.logger.WarnContext(ctx, "Job handler failed", "queue", queue, "error", err)
		}
	}
	return nil
}

func (c *MemoryConnection) Consume(ctx context.Context, queue string, handle Handler) error {
	c.mu.Lock()
	c.consumers[queue] = handle
	c.mu.Unlock()

	<-ctx.Done()

	c.mu.Lock()
	delete(c.consumers, queue)
	c.mu.Unlock()
	return nil
}

// Published returns every payload published to queue so far.
func (c *MemoryConnection) Published(queue string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.published[queue]...)
}

func (c *MemoryConnection) Close() error { return nil }
