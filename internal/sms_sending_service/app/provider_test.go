package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/textsms/internal/platform/events"
	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
	"github.com/aradsms/textsms/internal/sms_sending_service/transport"
)

func newTestProvider(views Renderer, tr transport.Transport, opts ...ProviderOption) *Provider {
	return NewProvider("test", views, tr, append([]ProviderOption{WithLogger(discardLogger())}, opts...)...)
}

func TestProvider_Send_Views(t *testing.T) {
	ctx := context.Background()
	to := func(m *domain.Message) { m.SetTo("555-0101", "") }

	cases := []struct {
		name     string
		view     any
		wantBody string
	}{
		{"TemplateName", "welcome", "welcome:Ada"},
		{"ViewStruct", View{Raw: "plain"}, "plain"},
		{"PairPrefersTemplate", []string{"welcome", "ignored"}, "welcome:Ada"},
		{"PairRawOnly", []string{"", "raw body"}, "raw body"},
		{"KeyedMap", map[string]string{"raw": "from map"}, "from map"},
		{"KeyedMapTemplate", map[string]any{"html": "welcome", "raw": "x"}, "welcome:Ada"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			views := &stubRenderer{}
			tr := transport.NewArrayTransport()
			p := newTestProvider(views, tr)

			require.NoError(t, p.Send(ctx, tc.view, map[string]any{"name": "Ada"}, to))
			require.Len(t, tr.Messages(), 1)
			assert.Equal(t, tc.wantBody, tr.Messages()[0].Body())
		})
	}
}

func TestProvider_Send_InvalidViewTouchesNothing(t *testing.T) {
	for _, view := range []any{42, []string{"only-one"}, nil, struct{}{}} {
		tr := &scriptedTransport{}
		p := newTestProvider(&stubRenderer{}, tr)
		err := p.Send(context.Background(), view, nil, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidView)
		assert.Empty(t, tr.sent)
	}
}

func TestProvider_Send_InjectsMessageIntoData(t *testing.T) {
	views := &stubRenderer{}
	tr := transport.NewArrayTransport()
	p := newTestProvider(views, tr)
	data := map[string]any{"name": "Ada"}

	require.NoError(t, p.Send(context.Background(), "welcome", data, func(m *domain.Message) { m.SetTo("1", "") }))

	msg, ok := views.lastData["message"].(*domain.Message)
	require.True(t, ok)
	assert.Same(t, tr.Messages()[0], msg)
	assert.NotContains(t, data, "message", "caller's map must not be mutated")
}

func TestProvider_GlobalAddresses(t *testing.T) {
	tr := transport.NewArrayTransport()
	p := newTestProvider(nil, tr)
	p.AlwaysFrom("555-0100", "")
	p.AlwaysTo("555-0199", "att")

	var fromSeenInCallback []domain.Address
	err := p.Raw(context.Background(), "hello", func(m *domain.Message) {
		fromSeenInCallback = m.From()
		m.SetTo("1", "").SetTo("2", "")
	})
	require.NoError(t, err)

	assert.Equal(t, []domain.Address{{Number: "555-0100"}}, fromSeenInCallback)
	msg := tr.Messages()[0]
	assert.Equal(t, []domain.Address{{Number: "555-0199", Carrier: "att"}}, msg.To())
	assert.Equal(t, "hello", msg.Body())
}

func TestProvider_Send_VetoedBySendingListener(t *testing.T) {
	bus := events.NewBus()
	var sent int
	bus.Listen(EventMessageSending, func(context.Context, events.Event) bool { return false })
	bus.Listen(EventMessageSent, func(context.Context, events.Event) bool { sent++; return true })

	tr := &scriptedTransport{failed: []string{"1"}}
	p := newTestProvider(nil, tr, WithEvents(bus))
	p.setFailures([]string{"previous"})

	require.NoError(t, p.Raw(context.Background(), "x", func(m *domain.Message) { m.SetTo("1", "") }))
	assert.Empty(t, tr.sent)
	assert.Zero(t, sent)
	assert.Equal(t, []string{"previous"}, p.Failures())
}

func TestProvider_Send_ListenersSeeMessage(t *testing.T) {
	bus := events.NewBus()
	var sending, sent *domain.Message
	var sendingData, sentData map[string]any
	bus.Listen(EventMessageSending, func(_ context.Context, e events.Event) bool {
		ev := e.(MessageSending)
		sending, sendingData = ev.Message, ev.Data
		ev.Message.SetBody("rewritten")
		return true
	})
	bus.Listen(EventMessageSent, func(_ context.Context, e events.Event) bool {
		ev := e.(MessageSent)
		sent, sentData = ev.Message, ev.Data
		return true
	})
	tr := transport.NewArrayTransport()
	p := newTestProvider(nil, tr, WithEvents(bus))

	data := map[string]any{"name": "Ada"}
	require.NoError(t, p.Send(context.Background(), View{Raw: "original"}, data, func(m *domain.Message) { m.SetTo("1", "") }))
	assert.Same(t, sending, sent)
	assert.Equal(t, "rewritten", tr.Messages()[0].Body())

	assert.Equal(t, "Ada", sendingData["name"])
	assert.Same(t, sending, sendingData["message"])
	assert.Equal(t, sendingData, sentData)
}

func TestProvider_Send_VetoOnTemplateData(t *testing.T) {
	bus := events.NewBus()
	bus.Listen(EventMessageSending, func(_ context.Context, e events.Event) bool {
		optedOut, _ := e.(MessageSending).Data["opted_out"].(bool)
		return !optedOut
	})
	tr := transport.NewArrayTransport()
	p := newTestProvider(nil, tr, WithEvents(bus))
	to := func(m *domain.Message) { m.SetTo("1", "") }

	require.NoError(t, p.Send(context.Background(), View{Raw: "promo"}, map[string]any{"opted_out": true}, to))
	assert.Empty(t, tr.Messages())

	require.NoError(t, p.Send(context.Background(), View{Raw: "promo"}, map[string]any{"opted_out": false}, to))
	assert.Len(t, tr.Messages(), 1)
}

func TestProvider_Failures(t *testing.T) {
	ctx := context.Background()
	toBoth := func(m *domain.Message) { m.SetTo("1", "").SetTo("2", "") }

	t.Run("ReportedByTransport", func(t *testing.T) {
		tr := &scriptedTransport{failed: []string{"2"}}
		p := newTestProvider(nil, tr)
		require.NoError(t, p.Raw(ctx, "x", toBoth))
		assert.Equal(t, []string{"2"}, p.Failures())

		tr.failed = nil
		require.NoError(t, p.Raw(ctx, "x", toBoth))
		assert.Empty(t, p.Failures())
	})

	t.Run("TransportErrorFailsEveryRecipient", func(t *testing.T) {
		boom := errors.New("carrier down")
		bus := events.NewBus()
		var failed MessageFailed
		bus.Listen(EventMessageFailed, func(_ context.Context, e events.Event) bool {
			failed = e.(MessageFailed)
			return true
		})
		p := newTestProvider(nil, &scriptedTransport{err: boom}, WithEvents(bus))

		err := p.Raw(ctx, "x", toBoth)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"1", "2"}, p.Failures())
		assert.ErrorIs(t, failed.Err, boom)
		assert.Equal(t, "test", failed.Provider)
	})

	t.Run("BuiltInsNeverReportFailures", func(t *testing.T) {
		p := newTestProvider(nil, transport.NewArrayTransport())
		require.NoError(t, p.Raw(ctx, "x", toBoth))
		assert.Empty(t, p.Failures())
	})
}

func TestProvider_Send_RenderErrorPropagates(t *testing.T) {
	boom := errors.New("template missing")
	tr := &scriptedTransport{}
	p := newTestProvider(&stubRenderer{err: boom}, tr)
	err := p.Send(context.Background(), "welcome", nil, nil)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, tr.sent)
}

func TestProvider_Render(t *testing.T) {
	p := newTestProvider(&stubRenderer{}, transport.NewArrayTransport())
	body, err := p.Render(context.Background(), "welcome", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "welcome:Ada", body)

	_, err = p.Render(context.Background(), 3.14, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidView)
}

func TestProvider_Queue(t *testing.T) {
	ctx := context.Background()

	t.Run("RejectsNonQueueable", func(t *testing.T) {
		p := newTestProvider(nil, transport.NewArrayTransport(), WithQueue(new(MockQueue)))
		_, err := p.Queue(ctx, &welcomeText{}, "")
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		_, err = p.Later(ctx, time.Minute, "welcome", "")
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("RequiresQueue", func(t *testing.T) {
		p := newTestProvider(nil, transport.NewArrayTransport())
		_, err := p.Queue(ctx, &reminderText{}, "")
		assert.ErrorIs(t, err, domain.ErrQueueUnavailable)
	})

	t.Run("OnQueueSetsQueueAndProvider", func(t *testing.T) {
		q := new(MockQueue)
		p := newTestProvider(nil, transport.NewArrayTransport(), WithQueue(q))
		r := &reminderText{}
		r.To("555-0101").OnConnection("kafka")

		q.On("Push", ctx, mock.MatchedBy(func(job *SendQueuedTextable) bool {
			return job.Kind == reminderKind && job.Textable == r
		}), "kafka", "priority").Return("job-1", nil).Once()

		id, err := p.OnQueue(ctx, "priority", r)
		require.NoError(t, err)
		assert.Equal(t, "job-1", id)
		assert.Equal(t, "test", r.Envelope.Provider)
		q.AssertExpectations(t)
	})

	t.Run("LaterOnUsesDelay", func(t *testing.T) {
		q := new(MockQueue)
		p := newTestProvider(nil, transport.NewArrayTransport(), WithQueue(q))
		q.On("Later", ctx, 10*time.Minute, mock.Anything, "", "slow").Return("job-2", nil).Once()

		id, err := p.LaterOn(ctx, "slow", 10*time.Minute, &reminderText{})
		require.NoError(t, err)
		assert.Equal(t, "job-2", id)
		q.AssertExpectations(t)
	})

	t.Run("SendRoutesQueueableToQueue", func(t *testing.T) {
		q := new(MockQueue)
		tr := &scriptedTransport{}
		p := newTestProvider(nil, tr, WithQueue(q))
		q.On("Push", ctx, mock.Anything, "", "").Return("job-3", nil).Once()

		require.NoError(t, p.Send(ctx, &reminderText{Appointment: "noon"}, nil, nil))
		assert.Empty(t, tr.sent)
		q.AssertExpectations(t)
	})
}

func TestProvider_ResolveReturnsItself(t *testing.T) {
	p := newTestProvider(nil, transport.NewArrayTransport())
	got, err := p.Resolve("anything")
	require.NoError(t, err)
	assert.Same(t, p, got)
}
