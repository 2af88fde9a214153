package eventbus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routepack/routepack/pkg/channels/gochannel"
	"github.com/routepack/routepack/pkg/eventbus"
	"github.com/routepack/routepack/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	t.Cleanup(func() {
		require.NoError(t, bus.Close())
	})

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newTestBus(t)

	var (
		mu       sync.Mutex
		received []*events.PackageSubmitted
	)

	err := bus.Handle(events.PackageSubmittedEvent, func(_ context.Context, event any) error {
		submitted, ok := event.(*events.PackageSubmitted)
		require.True(t, ok)

		mu.Lock()
		defer mu.Unlock()

		received = append(received, submitted)

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(t.Context()))

	err = bus.Publish(t.Context(), "pkg-1", events.PackageSubmitted{
		BaseEvent: events.BaseEvent{
			ID:        bus.GenerateID(),
			Type:      events.PackageSubmittedEvent,
			Timestamp: time.Now().UTC(),
			PackageID: "pkg-1",
		},
		ReferenceNumber: "HQ-2026-00001",
		OrganizationID:  "org-1",
		StartNode:       "stage-1",
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "pkg-1", received[0].PackageID)
	assert.Equal(t, "HQ-2026-00001", received[0].ReferenceNumber)
}

func TestWatermillEventBus_UnhandledEventTypesAreSkipped(t *testing.T) {
	bus := newTestBus(t)

	handled := make(chan *events.PackageTransition, 1)

	err := bus.Handle(events.PackageTransitionEvent, func(_ context.Context, event any) error {
		transition, ok := event.(*events.PackageTransition)
		require.True(t, ok)

		handled <- transition

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(t.Context()))

	// No handler is registered for submissions; they are acked and dropped.
	require.NoError(t, bus.Publish(t.Context(), "pkg-1", events.PackageSubmitted{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.PackageSubmittedEvent, PackageID: "pkg-1"},
	}))

	require.NoError(t, bus.Publish(t.Context(), "pkg-1", events.PackageTransition{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.PackageTransitionEvent, PackageID: "pkg-1"},
		FromNode:  "stage-1",
		ToNode:    "stage-2",
	}))

	select {
	case transition := <-handled:
		assert.Equal(t, "stage-2", transition.ToNode)
	case <-time.After(2 * time.Second):
		t.Fatal("transition event was not handled")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
