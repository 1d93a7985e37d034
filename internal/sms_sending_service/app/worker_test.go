package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/textsms/internal/platform/config"
	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
	"github.com/aradsms/textsms/internal/sms_sending_service/transport"
)

// failingRegistry resolves every textable to a transport that returns err.
func failingRegistry(err error) (*Registry, *scriptedTransport) {
	tr := &scriptedTransport{err: err}
	r := NewRegistry(RegistryOptions{
		Config: config.SMSConfig{
			Default:   "flaky",
			Providers: map[string]config.ProviderConfig{"flaky": {"transport": "flaky"}},
		},
		Logger: discardLogger(),
	})
	r.Extend("flaky", func(*Registry, string, config.ProviderConfig) (transport.Transport, error) { return tr, nil })
	return r, tr
}

func encodeJob(t *testing.T, q Queueable, attempts int) []byte {
	t.Helper()
	job := NewSendQueuedTextable(q)
	job.Attempts = attempts
	data, err := job.Encode()
	require.NoError(t, err)
	return data
}

func TestWorker_ProcessSuccess(t *testing.T) {
	r := testRegistry(nil, nil, nil)
	w := NewWorker(r, testKinds(), new(MockQueue), discardLogger(), WorkerConfig{})

	tm := NewTextMessage()
	tm.Text("queued hello").To("5550101")

	require.NoError(t, w.Process(context.Background(), encodeJob(t, tm, 0)))

	p, _ := r.Provider("")
	msgs := p.Transport().(*transport.ArrayTransport).Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "queued hello", msgs[0].Body())
}

func TestWorker_RetriesWithBackoff(t *testing.T) {
	boom := errors.New("carrier timeout")
	r, tr := failingRegistry(boom)
	q := new(MockQueue)
	w := NewWorker(r, testKinds(), q, discardLogger(), WorkerConfig{DefaultTries: 1})

	rt := &reminderText{Appointment: "noon"}
	rt.To("1").OnConnection("kafka").OnQueue("reminders")

	q.On("Later", mock.Anything, time.Second, mock.MatchedBy(func(job *SendQueuedTextable) bool {
		retried := job.Textable.(*reminderText)
		return job.Attempts == 1 && retried.Envelope.Text == "" && retried.Appointment == "noon"
	}), "kafka", "reminders").Return("retry-1", nil).Once()

	err := w.Process(context.Background(), encodeJob(t, rt, 0))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, tr.sent, 1)
	q.AssertExpectations(t)

	q.On("Later", mock.Anything, time.Minute, mock.MatchedBy(func(job *SendQueuedTextable) bool {
		return job.Attempts == 2
	}), "kafka", "reminders").Return("retry-2", nil).Once()
	assert.ErrorIs(t, w.Process(context.Background(), encodeJob(t, rt, 1)), boom)
	q.AssertExpectations(t)
}

func TestWorker_DefaultTriesWithoutBackoffPushes(t *testing.T) {
	boom := errors.New("carrier timeout")
	r, _ := failingRegistry(boom)
	q := new(MockQueue)
	w := NewWorker(r, testKinds(), q, discardLogger(), WorkerConfig{DefaultTries: 2})

	tm := NewTextMessage()
	tm.Text("x").To("1")

	q.On("Push", mock.Anything, mock.MatchedBy(func(job *SendQueuedTextable) bool {
		return job.Attempts == 1
	}), "", "").Return("retry-1", nil).Once()
	assert.ErrorIs(t, w.Process(context.Background(), encodeJob(t, tm, 0)), boom)

	// Second failure exhausts the default tries.
	assert.ErrorIs(t, w.Process(context.Background(), encodeJob(t, tm, 1)), boom)
	q.AssertExpectations(t)
}

func TestWorker_FinalFailureRunsHook(t *testing.T) {
	boom := errors.New("carrier timeout")
	r, _ := failingRegistry(boom)
	q := new(MockQueue)

	var last *reminderText
	kinds := NewKinds()
	kinds.Register(reminderKind, func() Queueable {
		last = &reminderText{}
		return last
	})
	w := NewWorker(r, kinds, q, discardLogger(), WorkerConfig{})

	rt := &reminderText{Appointment: "noon"}
	rt.To("1")

	err := w.Process(context.Background(), encodeJob(t, rt, 2))
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, last)
	assert.ErrorIs(t, last.failedWith, boom)
	q.AssertNotCalled(t, "Later", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWorker_RequeueFailureIsFinal(t *testing.T) {
	boom := errors.New("carrier timeout")
	r, _ := failingRegistry(boom)
	q := new(MockQueue)

	var decoded []*reminderText
	kinds := NewKinds()
	kinds.Register(reminderKind, func() Queueable {
		rt := &reminderText{}
		decoded = append(decoded, rt)
		return rt
	})
	w := NewWorker(r, kinds, q, discardLogger(), WorkerConfig{})
	q.On("Later", mock.Anything, time.Second, mock.Anything, "", "").Return("", errors.New("broker down")).Once()

	rt := &reminderText{Appointment: "noon"}
	rt.To("1")

	assert.ErrorIs(t, w.Process(context.Background(), encodeJob(t, rt, 0)), boom)
	require.NotEmpty(t, decoded)
	assert.ErrorIs(t, decoded[0].failedWith, boom)
	q.AssertExpectations(t)
}

func TestWorker_WithoutQueueFailsImmediately(t *testing.T) {
	boom := errors.New("carrier timeout")
	r, tr := failingRegistry(boom)
	w := NewWorker(r, testKinds(), nil, discardLogger(), WorkerConfig{DefaultTries: 5})

	tm := NewTextMessage()
	tm.Text("x").To("1")
	assert.ErrorIs(t, w.Process(context.Background(), encodeJob(t, tm, 0)), boom)
	assert.Len(t, tr.sent, 1)
}

func TestWorker_Undecodable(t *testing.T) {
	w := NewWorker(testRegistry(nil, nil, nil), testKinds(), nil, discardLogger(), WorkerConfig{})

	assert.Error(t, w.Process(context.Background(), []byte("garbage")))
	err := w.Process(context.Background(), []byte(`{"id":"x","kind":"unknown","textable":{}}`))
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
}
