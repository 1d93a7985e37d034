package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
	"github.com/aradsms/textsms/internal/sms_sending_service/transport"
)

func TestTextable_ToNormalizesAddresses(t *testing.T) {
	cases := []struct {
		name    string
		address any
		carrier []string
		want    []domain.Address
	}{
		{"Number", "5550101", nil, []domain.Address{{Number: "5550101"}}},
		{"NumberWithCarrier", "5550101", []string{"att"}, []domain.Address{{Number: "5550101", Carrier: "att"}}},
		{"Address", domain.Address{Number: "1", Carrier: "tmobile"}, nil, []domain.Address{{Number: "1", Carrier: "tmobile"}}},
		{"Map", map[string]any{"number": "1", "carrier": "sprint"}, nil, []domain.Address{{Number: "1", Carrier: "sprint"}}},
		{"Recipient", user{number: "2", carrier: "att"}, nil, []domain.Address{{Number: "2", Carrier: "att"}}},
		{"Strings", []string{"1", "2"}, []string{"att"}, []domain.Address{{Number: "1", Carrier: "att"}, {Number: "2", Carrier: "att"}}},
		{"Mixed", []any{"1", map[string]string{"number": "2", "carrier": "verizon"}}, nil, []domain.Address{{Number: "1"}, {Number: "2", Carrier: "verizon"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var tx Textable
			tx.To(tc.address, tc.carrier...)
			require.NoError(t, tx.Err())
			assert.Equal(t, tc.want, tx.Envelope.To)
		})
	}
}

func TestTextable_InvalidAddressIsSticky(t *testing.T) {
	var tx Textable
	tx.To(42).To("5550101").From("")

	assert.ErrorIs(t, tx.Err(), domain.ErrInvalidAddress)
	assert.ErrorContains(t, tx.Err(), "int")
	assert.Equal(t, []domain.Address{{Number: "5550101"}}, tx.Envelope.To)
	assert.Empty(t, tx.Envelope.From)
}

func TestTextable_HasTo(t *testing.T) {
	var tx Textable
	tx.To("1", "att").To("2")

	assert.True(t, tx.HasTo("1"))
	assert.True(t, tx.HasTo("1", "att"))
	assert.False(t, tx.HasTo("1", "verizon"))
	assert.True(t, tx.HasTo([]string{"1", "2"}))
	assert.False(t, tx.HasTo([]string{"1", "3"}))
	assert.False(t, tx.HasTo(""))
	assert.False(t, tx.HasFrom("1"))
}

func TestTextable_Locale(t *testing.T) {
	var tx Textable
	tx.Locale("en_us")
	require.NoError(t, tx.Err())
	assert.Equal(t, "en-US", tx.Envelope.Locale)

	tx.Locale("not a locale!")
	assert.Error(t, tx.Err())
	assert.Equal(t, "en-US", tx.Envelope.Locale)
}

func TestTextable_When(t *testing.T) {
	var tx Textable
	tx.When(true, func(t *Textable) { t.Text("yes") }, func(t *Textable) { t.Text("no") })
	assert.Equal(t, "yes", tx.Envelope.Text)

	tx.When(false, func(t *Textable) { t.Text("yes") }, func(t *Textable) { t.Text("no") })
	assert.Equal(t, "no", tx.Envelope.Text)

	tx.When(false, func(t *Textable) { t.Text("ignored") })
	assert.Equal(t, "no", tx.Envelope.Text)
}

func TestBuildViewData_Precedence(t *testing.T) {
	w := &welcomeText{Name: "from-variables"}
	w.With("name", "from-view-data").With("greeting", "hi").With("team", "own")

	global := func(Sendable) map[string]any {
		return map[string]any{"name": "from-global", "team": "global"}
	}
	data := BuildViewData(w, global)

	assert.Equal(t, "from-variables", data["name"])
	assert.Equal(t, "global", data["team"])
	assert.Equal(t, "hi", data["greeting"])
}

func TestSend_RendersViewWithLocale(t *testing.T) {
	views := &stubRenderer{}
	r := testRegistry(views, nil, nil)

	w := &welcomeText{Name: "Ada"}
	w.To("5550101").Locale("fr")

	require.NoError(t, Send(context.Background(), w, r))

	assert.Equal(t, 1, w.builds)
	assert.Equal(t, "fr", w.buildLocal)
	assert.Equal(t, "fr", views.lastLocale)
	assert.Equal(t, []string{"welcome"}, views.calls)

	p, _ := r.Provider("")
	msgs := p.Transport().(*transport.ArrayTransport).Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "welcome:Ada", msgs[0].Body())
}

func TestSend_TextWinsOverView(t *testing.T) {
	views := &stubRenderer{}
	r := testRegistry(views, nil, nil)

	tm := NewTextMessage()
	tm.View("welcome").Text("plain text").To("1")

	require.NoError(t, Send(context.Background(), tm, r))
	assert.Empty(t, views.calls)
	p, _ := r.Provider("")
	assert.Equal(t, "plain text", p.Transport().(*transport.ArrayTransport).Messages()[0].Body())
}

func TestSend_NamedProvider(t *testing.T) {
	r := testRegistry(nil, nil, nil)
	tm := NewTextMessage()
	tm.Text("x").To("1").Provider("log")
	require.NoError(t, Send(context.Background(), tm, r))

	arr, _ := r.Provider("array")
	assert.Empty(t, arr.Transport().(*transport.ArrayTransport).Messages())
}

func TestSend_Errors(t *testing.T) {
	ctx := context.Background()
	r := testRegistry(nil, nil, nil)

	t.Run("MissingContent", func(t *testing.T) {
		tm := NewTextMessage()
		tm.To("1")
		assert.ErrorIs(t, Send(ctx, tm, r), domain.ErrMissingContent)
	})

	t.Run("StickyAddressError", func(t *testing.T) {
		tm := NewTextMessage()
		tm.Text("x").To(3.5)
		assert.ErrorIs(t, Send(ctx, tm, r), domain.ErrInvalidAddress)
	})

	t.Run("BuildError", func(t *testing.T) {
		boom := errors.New("appointment gone")
		rt := &reminderText{buildErr: boom}
		assert.ErrorIs(t, Send(ctx, rt, r), boom)
	})

	t.Run("UndefinedProvider", func(t *testing.T) {
		tm := NewTextMessage()
		tm.Text("x").To("1").Provider("nope")
		assert.ErrorIs(t, Send(ctx, tm, r), domain.ErrUndefinedProvider)
	})
}

func TestSend_TransportMessageCallbacksRunLast(t *testing.T) {
	r := testRegistry(nil, nil, nil)
	tm := NewTextMessage()
	var seen []domain.Address
	tm.Text("x").From("5550100").To("1").WithTransportMessage(func(m *domain.Message) {
		seen = m.To()
		m.SetTo("2", "")
	})

	require.NoError(t, Send(context.Background(), tm, r))
	assert.Equal(t, []domain.Address{{Number: "1"}}, seen)

	p, _ := r.Provider("")
	msg := p.Transport().(*transport.ArrayTransport).Messages()[0]
	assert.Equal(t, []domain.Address{{Number: "1"}, {Number: "2"}}, msg.To())
	assert.Equal(t, []domain.Address{{Number: "5550100"}}, msg.From())
}

func TestRender_DoesNotSend(t *testing.T) {
	r := testRegistry(&stubRenderer{}, nil, nil)
	w := &welcomeText{Name: "Grace"}

	body, err := Render(context.Background(), w, r)
	require.NoError(t, err)
	assert.Equal(t, "welcome:Grace", body)

	p, _ := r.Provider("")
	assert.Empty(t, p.Transport().(*transport.ArrayTransport).Messages())
}
