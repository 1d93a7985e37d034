package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pinged struct{}

func (pinged) EventName() string { return "pinged" }

func TestBus_DispatchCallsAllListenersInOrder(t *testing.T) {
	bus := NewBus()
	var calls []string
	bus.Listen("pinged", func(context.Context, Event) bool { calls = append(calls, "first"); return false })
	bus.Listen("pinged", func(context.Context, Event) bool { calls = append(calls, "second"); return true })

	bus.Dispatch(context.Background(), pinged{})

	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestBus_UntilHaltsOnVeto(t *testing.T) {
	bus := NewBus()
	var calls int
	bus.Listen("pinged", func(context.Context, Event) bool { calls++; return false })
	bus.Listen("pinged", func(context.Context, Event) bool { calls++; return true })

	assert.False(t, bus.Until(context.Background(), pinged{}))
	assert.Equal(t, 1, calls)
}

func TestBus_UntilWithoutListeners(t *testing.T) {
	bus := NewBus()
	assert.True(t, bus.Until(context.Background(), pinged{}))
	assert.False(t, bus.HasListeners("pinged"))

	bus.Listen("pinged", func(context.Context, Event) bool { return true })
	assert.True(t, bus.HasListeners("pinged"))
	bus.Forget("pinged")
	assert.False(t, bus.HasListeners("pinged"))
}
