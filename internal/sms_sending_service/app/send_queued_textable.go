package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
)

// Queue accepts queued-send jobs. connection and queue may be empty to use
// the queue's defaults. Both return the job ID.
type Queue interface {
	Push(ctx context.Context, job *SendQueuedTextable, connection, queue string) (string, error)
	Later(ctx context.Context, delay time.Duration, job *SendQueuedTextable, connection, queue string) (string, error)
}

// Kinds maps textable kind names to constructors so queued payloads can be
// decoded back into their concrete types.
type Kinds struct {
	mu    sync.RWMutex
	ctors map[string]func() Queueable
}

// NewKinds returns a registry that already knows TextMessage.
func NewKinds() *Kinds {
	k := &Kinds{ctors: make(map[string]func() Queueable)}
	k.Register(TextMessageKind, func() Queueable { return NewTextMessage() })
	return k
}

// Register adds or replaces the constructor for kind. ctor must return a
// fresh pointer each call.
func (k *Kinds) Register(kind string, ctor func() Queueable) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ctors[kind] = ctor
}

func (k *Kinds) New(kind string) (Queueable, error) {
	k.mu.RLock()
	ctor, ok := k.ctors[kind]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w [%s]", domain.ErrUnknownKind, kind)
	}
	return ctor(), nil
}

// SendQueuedTextable is the job that sends a queueable textable on a worker.
type SendQueuedTextable struct {
	ID       string
	Kind     string
	Textable Queueable
	// Tries and Timeout come from the textable's RetryPolicy and
	// TimeoutPolicy; zero defers to the worker's defaults.
	Tries    int
	Timeout  time.Duration
	Attempts int
}

type queuedPayload struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Tries    int             `json:"tries,omitempty"`
	Timeout  time.Duration   `json:"timeout,omitempty"`
	Attempts int             `json:"attempts"`
	Textable json.RawMessage `json:"textable"`
}

func NewSendQueuedTextable(t Queueable) *SendQueuedTextable {
	job := &SendQueuedTextable{
		ID:       uuid.NewString(),
		Kind:     t.Kind(),
		Textable: t,
	}
	if rp, ok := t.(RetryPolicy); ok {
		job.Tries = rp.MaxTries()
	}
	if tp, ok := t.(TimeoutPolicy); ok {
		job.Timeout = tp.Timeout()
	}
	return job
}

// Handle sends the textable through f.
func (j *SendQueuedTextable) Handle(ctx context.Context, f Factory) error {
	return Send(ctx, j.Textable, f)
}

// Failed forwards to the textable's FailureHandler, if any.
func (j *SendQueuedTextable) Failed(ctx context.Context, err error) {
	if h, ok := j.Textable.(FailureHandler); ok {
		h.Failed(ctx, err)
	}
}

// Backoff returns the textable's BackoffPolicy, or nil.
func (j *SendQueuedTextable) Backoff() []time.Duration {
	if bp, ok := j.Textable.(BackoffPolicy); ok {
		return bp.Backoff()
	}
	return nil
}

// BackoffFor returns the delay before retry number attempt (1-based),
// repeating the last configured step.
func (j *SendQueuedTextable) BackoffFor(attempt int) time.Duration {
	steps := j.Backoff()
	if len(steps) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(steps) {
		attempt = len(steps)
	}
	return steps[attempt-1]
}

func (j *SendQueuedTextable) DisplayName() string {
	return j.Kind
}

func (j *SendQueuedTextable) Encode() ([]byte, error) {
	textable, err := json.Marshal(j.Textable)
	if err != nil {
		return nil, fmt.Errorf("encode %s textable: %w", j.Kind, err)
	}
	return json.Marshal(queuedPayload{
		ID:       j.ID,
		Kind:     j.Kind,
		Tries:    j.Tries,
		Timeout:  j.Timeout,
		Attempts: j.Attempts,
		Textable: textable,
	})
}

// Clone deep-copies the job by round-tripping it through its encoding.
func (j *SendQueuedTextable) Clone(kinds *Kinds) (*SendQueuedTextable, error) {
	data, err := j.Encode()
	if err != nil {
		return nil, err
	}
	return DecodeJob(data, kinds)
}

// DecodeJob rebuilds a job from Encode output.
func DecodeJob(data []byte, kinds *Kinds) (*SendQueuedTextable, error) {
	var payload queuedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode queued job: %w", err)
	}
	textable, err := kinds.New(payload.Kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload.Textable, textable); err != nil {
		return nil, fmt.Errorf("decode %s textable: %w", payload.Kind, err)
	}
	return &SendQueuedTextable{
		ID:       payload.ID,
		Kind:     payload.Kind,
		Textable: textable,
		Tries:    payload.Tries,
		Timeout:  payload.Timeout,
		Attempts: payload.Attempts,
	}, nil
}
