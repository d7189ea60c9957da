package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadrouter/pkg/logging"
)

func newTestBus(opts Options) *Bus {
	return New(opts, nil)
}

func TestPublish_DeliversToAllHandlers(t *testing.T) {
	bus := newTestBus(DefaultOptions())

	var a, b int32
	bus.Subscribe(EventLeadScored, func(ctx context.Context, e Event) error {
		atomic.AddInt32(&a, 1)
		return nil
	})
	bus.Subscribe(EventLeadScored, func(ctx context.Context, e Event) error {
		atomic.AddInt32(&b, 1)
		return nil
	})
	bus.Subscribe(EventBrokerReleased, func(ctx context.Context, e Event) error {
		t.Error("handler for another type must not run")
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), NewEvent(context.Background(), EventLeadScored, "42", nil)))

	assert.Equal(t, int32(1), atomic.LoadInt32(&a))
	assert.Equal(t, int32(1), atomic.LoadInt32(&b))
}

func TestPublish_HandlersRunConcurrently(t *testing.T) {
	bus := newTestBus(Options{HandlerTimeout: time.Second})

	var wg sync.WaitGroup
	wg.Add(2)
	barrier := func(ctx context.Context, e Event) error {
		wg.Done()
		wg.Wait()
		return nil
	}
	bus.Subscribe("t", barrier)
	bus.Subscribe("t", barrier)

	finished := make(chan struct{})
	go func() {
		_ = bus.Publish(context.Background(), Event{EventType: "t"})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("handlers did not run concurrently")
	}
}

func TestPublish_IsolatesFailures(t *testing.T) {
	bus := newTestBus(Options{HandlerTimeout: 20 * time.Millisecond, FailureThreshold: 10})

	var ok int32
	bus.Subscribe("t", func(ctx context.Context, e Event) error { panic("boom") })
	bus.Subscribe("t", func(ctx context.Context, e Event) error { return errors.New("failed") })
	bus.Subscribe("t", func(ctx context.Context, e Event) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	bus.Subscribe("t", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&ok, 1)
		return nil
	})

	start := time.Now()
	require.NoError(t, bus.Publish(context.Background(), Event{EventType: "t"}))

	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&ok))

	snap, found := bus.Breaker("t")
	require.True(t, found)
	assert.Equal(t, "closed", snap.State)
	assert.NotNil(t, snap.LastFailure)
}

func TestPublish_FIFOWithinType(t *testing.T) {
	bus := newTestBus(DefaultOptions())

	var mu sync.Mutex
	var order []string
	record := func(e Event) {
		mu.Lock()
		order = append(order, e.AggregateID)
		mu.Unlock()
	}

	bus.Subscribe("t", func(ctx context.Context, e Event) error {
		record(e)
		if e.AggregateID == "1" {
			// Published from inside a handler: queued, not delivered re-entrantly.
			assert.NoError(t, bus.Publish(ctx, Event{EventType: "t", AggregateID: "3"}))
			assert.NoError(t, bus.Publish(ctx, Event{EventType: "t", AggregateID: "4"}))
		}
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), Event{EventType: "t", AggregateID: "1"}))
	require.NoError(t, bus.Publish(context.Background(), Event{EventType: "t", AggregateID: "2"}))

	assert.Equal(t, []string{"1", "3", "4", "2"}, order)
}

func TestCircuitBreaker_TripsAndRecovers(t *testing.T) {
	bus := newTestBus(Options{
		HandlerTimeout:   time.Second,
		FailureThreshold: 3,
		Cooldown:         50 * time.Millisecond,
	})

	var calls int32
	var healthy atomic.Bool
	bus.Subscribe(EventBrokerReleased, func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		if healthy.Load() {
			return nil
		}
		return errors.New("downstream unavailable")
	})

	publish := func() {
		require.NoError(t, bus.Publish(context.Background(), Event{EventType: EventBrokerReleased}))
	}

	for i := 0; i < 3; i++ {
		publish()
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	snap, _ := bus.Breaker(EventBrokerReleased)
	assert.Equal(t, "open", snap.State)
	require.NotNil(t, snap.NextRetryAt)
	require.NotNil(t, snap.LastFailure)

	publish()
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "open breaker must skip the handler")

	time.Sleep(70 * time.Millisecond)
	healthy.Store(true)
	publish()
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))

	snap, _ = bus.Breaker(EventBrokerReleased)
	assert.Equal(t, "closed", snap.State)
	assert.Equal(t, 0, snap.Failures)
	assert.Nil(t, snap.NextRetryAt)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	bus := newTestBus(Options{FailureThreshold: 1, Cooldown: 30 * time.Millisecond})

	var calls int32
	bus.Subscribe("t", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("still failing")
	})

	require.NoError(t, bus.Publish(context.Background(), Event{EventType: "t"}))
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, bus.Publish(context.Background(), Event{EventType: "t"}))

	snap, _ := bus.Breaker("t")
	assert.Equal(t, "open", snap.State)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCircuitBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	bus := newTestBus(Options{FailureThreshold: 1, Cooldown: 30 * time.Millisecond})

	var calls int32
	fail := true
	handler := func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		if fail {
			return errors.New("down")
		}
		return nil
	}
	bus.Subscribe("t", handler)

	require.NoError(t, bus.Publish(context.Background(), Event{EventType: "t"}))
	bus.Subscribe("t", handler)

	time.Sleep(40 * time.Millisecond)
	fail = false
	require.NoError(t, bus.Publish(context.Background(), Event{EventType: "t"}))

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "one call before trip, one trial after cooldown")
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	bus := newTestBus(DefaultOptions())

	var calls int32
	unsubscribe := bus.Subscribe("t", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	assert.Equal(t, 1, bus.Metrics().HandlerCounts["t"])

	unsubscribe()
	unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), Event{EventType: "t"}))
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.NotContains(t, bus.Metrics().HandlerCounts, "t")
}

func TestHistory_Bounded(t *testing.T) {
	bus := newTestBus(Options{HistorySize: 3})

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, bus.Publish(context.Background(), Event{EventType: "t", AggregateID: id}))
	}

	history := bus.History()
	require.Len(t, history, 3)
	assert.Equal(t, "c", history[0].AggregateID)
	assert.Equal(t, "e", history[2].AggregateID)

	history[0].AggregateID = "mutated"
	assert.Equal(t, "c", bus.History()[0].AggregateID)

	m := bus.Metrics()
	assert.Equal(t, 3, m.HistorySize)
	assert.Zero(t, m.QueueDepth)
}

func TestPublish_Validation(t *testing.T) {
	bus := newTestBus(DefaultOptions())
	assert.Error(t, bus.Publish(context.Background(), Event{}))

	bus.Close()
	assert.ErrorIs(t, bus.Publish(context.Background(), Event{EventType: "t"}), ErrBusClosed)
}

func TestNewEvent_UsesContextCorrelationID(t *testing.T) {
	ctx := logging.WithCorrelationID(context.Background(), "corr-9")
	e := NewEvent(ctx, EventLeadScored, "42", map[string]interface{}{"backend": "queue"})

	assert.Equal(t, "corr-9", e.Metadata.CorrelationID)
	assert.Equal(t, "42", e.AggregateID)
	assert.False(t, e.Metadata.Timestamp.IsZero())

	e = NewEvent(context.Background(), EventLeadScored, "42", nil)
	assert.NotEmpty(t, e.Metadata.CorrelationID)
	assert.NotNil(t, e.Payload)
}
