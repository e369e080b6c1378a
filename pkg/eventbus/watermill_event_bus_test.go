package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflowhq/leadflow/pkg/channels/gochannel"
	"github.com/leadflowhq/leadflow/pkg/eventbus"
	"github.com/leadflowhq/leadflow/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestWatermillEventBusPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan *events.RunStarted, 1)

	err := bus.Handle(events.RunStartedEvent, func(_ context.Context, event any) error {
		started, ok := event.(*events.RunStarted)
		require.True(t, ok)
		received <- started

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	event := events.RunStarted{
		BaseEvent:   events.NewBaseEvent(events.RunStartedEvent, "wf-1"),
		ExecutionID: "exec-1",
		LeadID:      "lead-1",
	}
	require.NoError(t, bus.Publish(ctx, "wf-1", event))

	select {
	case got := <-received:
		assert.Equal(t, "wf-1", got.WorkflowID)
		assert.Equal(t, "exec-1", got.ExecutionID)
		assert.Equal(t, "lead-1", got.LeadID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestWatermillEventBusRoutesLeadEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan *events.LeadTagApplied, 1)

	err := bus.Handle(events.LeadTagAppliedEvent, func(_ context.Context, event any) error {
		applied, ok := event.(*events.LeadTagApplied)
		require.True(t, ok)
		received <- applied

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	event := events.LeadTagApplied{
		BaseEvent: events.NewBaseEvent(events.LeadTagAppliedEvent, "wf-1"),
		LeadID:    "lead-2",
		Tag:       "hot",
	}
	require.NoError(t, bus.Publish(ctx, "lead-2", event))

	select {
	case got := <-received:
		assert.Equal(t, "lead-2", got.LeadID)
		assert.Equal(t, "hot", got.Tag)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestWatermillEventBusIgnoresUnhandledTypes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	require.NoError(t, bus.Subscribe(ctx))

	event := events.RunCompleted{
		BaseEvent: events.NewBaseEvent(events.RunCompletedEvent, "wf-1"),
	}
	assert.NoError(t, bus.Publish(ctx, "wf-1", event))
}
