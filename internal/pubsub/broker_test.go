package pubsub_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/poll"
	"github.com/watchdesk/watchdesk/internal/pubsub"
	"github.com/watchdesk/watchdesk/internal/push"
)

func TestBroker_DeliversPushNotice(t *testing.T) {
	broker := pubsub.NewBroker[push.Notice]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx)

	broker.Publish(pubsub.CreatedEvent, push.Notice{
		Assignment: dispatch.Assignment{ID: "d1", IncidentID: "c1", UnitIDs: []string{"u1"}, Message: "Respond code 3"},
		ForMe:      true,
	})

	select {
	case event := <-ch:
		require.Equal(t, "d1", event.Payload.Assignment.ID)
		require.True(t, event.Payload.ForMe)
		require.Equal(t, pubsub.CreatedEvent, event.Type)
		require.False(t, event.Timestamp.IsZero())
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "timeout waiting for event")
	}
}

func TestBroker_EveryConsoleViewGetsTheCallBatch(t *testing.T) {
	broker := pubsub.NewBroker[[]dispatch.Call]()
	defer broker.Close()

	ctx := context.Background()

	board := broker.Subscribe(ctx)
	statusBar := broker.Subscribe(ctx)

	require.Equal(t, 2, broker.SubscriberCount())

	batch := []dispatch.Call{
		{ID: "c1", Priority: 1, Status: dispatch.CallActive, IncidentType: "Fire"},
		{ID: "c2", Priority: 3, Status: dispatch.CallDispatched, AssignedUnit: "B-2"},
	}
	broker.Publish(pubsub.UpdatedEvent, batch)

	for name, ch := range map[string]<-chan pubsub.Event[[]dispatch.Call]{"board": board, "status bar": statusBar} {
		select {
		case event := <-ch:
			require.Equal(t, batch, event.Payload, name)
			require.Equal(t, pubsub.UpdatedEvent, event.Type, name)
		case <-time.After(100 * time.Millisecond):
			require.Fail(t, "timeout waiting for event", name)
		}
	}
}

func TestBroker_ContextCancellation(t *testing.T) {
	broker := pubsub.NewBroker[poll.Status]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())

	ch := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()

	require.Eventually(t, func() bool {
		return broker.SubscriberCount() == 0
	}, time.Second, 5*time.Millisecond)

	_, ok := <-ch
	require.False(t, ok, "channel should be closed")
}

func TestBroker_SlowViewDropsPollStatuses(t *testing.T) {
	broker := pubsub.NewBrokerWithBuffer[poll.Status](1)
	defer broker.Close()

	ch := broker.Subscribe(context.Background())

	broker.Publish(pubsub.StatusEvent, poll.Status{Name: "calls", Health: poll.HealthLive})

	done := make(chan struct{})
	go func() {
		broker.Publish(pubsub.StatusEvent, poll.Status{Name: "calls", Failures: 1})
		broker.Publish(pubsub.StatusEvent, poll.Status{Name: "calls", Failures: 2})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "Publish blocked")
	}

	event := <-ch
	require.Equal(t, poll.HealthLive, event.Payload.Health)
	require.Equal(t, int64(2), broker.Dropped())
}

func TestBroker_Close(t *testing.T) {
	broker := pubsub.NewBroker[dispatch.Unit]()
	ctx := context.Background()

	ch1 := broker.Subscribe(ctx)
	ch2 := broker.Subscribe(ctx)

	broker.Close()
	broker.Close()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	require.False(t, ok1)
	require.False(t, ok2)
	require.Equal(t, 0, broker.SubscriberCount())

	ch3 := broker.Subscribe(ctx)
	_, ok3 := <-ch3
	require.False(t, ok3, "subscribe after close returns a closed channel")

	broker.Publish(pubsub.UpdatedEvent, dispatch.Unit{ID: "u1", Status: dispatch.UnitEnRoute})
}

func TestBroker_CancelAfterClose(t *testing.T) {
	broker := pubsub.NewBroker[dispatch.Unit]()

	ctx, cancel := context.WithCancel(context.Background())
	ch := broker.Subscribe(ctx)

	broker.Close()
	cancel()

	_, ok := <-ch
	require.False(t, ok)
}
