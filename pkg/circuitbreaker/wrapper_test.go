package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadrouter/internal/config"
)

func TestWrapper_TripsOnFailureRatio(t *testing.T) {
	w := NewWrapper(Config{
		Name:        "test-wrapper",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: FailureRatioTrip(2, 0.5),
	})

	fail := func() (interface{}, error) { return nil, errors.New("upstream 500") }
	for i := 0; i < 2; i++ {
		_, err := w.ExecuteWithContext(context.Background(), fail)
		require.Error(t, err)
	}

	assert.True(t, w.IsOpen())
	_, err := w.Execute(func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestWrapper_CancelledContextSkipsCall(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-ctx"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := w.ExecuteWithContext(ctx, func() (interface{}, error) {
		called = true
		return nil, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestTwoStep_ConsecutiveFailures(t *testing.T) {
	var transitions []gobreaker.State
	ts := NewTwoStep(Config{
		Name:        "test-two-step",
		MaxRequests: 1,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: ConsecutiveFailuresTrip(2),
		OnStateChange: func(_ string, _, to gobreaker.State) {
			transitions = append(transitions, to)
		},
	})

	for i := 0; i < 2; i++ {
		done, err := ts.Allow()
		require.NoError(t, err)
		done(false)
	}
	assert.Equal(t, gobreaker.StateOpen, ts.State())

	_, err := ts.Allow()
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	time.Sleep(30 * time.Millisecond)
	done, err := ts.Allow()
	require.NoError(t, err)

	_, err = ts.Allow()
	assert.ErrorIs(t, err, gobreaker.ErrTooManyRequests)

	done(true)
	assert.Equal(t, gobreaker.StateClosed, ts.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen, gobreaker.StateHalfOpen, gobreaker.StateClosed}, transitions)
}

func TestFromConfig(t *testing.T) {
	c := FromConfig("platform", config.CircuitBreakerConfig{Timeout: 5 * time.Second, MinRequests: 10})
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, uint32(3), c.MaxRequests)
	assert.False(t, c.ReadyToTrip(gobreaker.Counts{Requests: 9, TotalFailures: 9}))
	assert.True(t, c.ReadyToTrip(gobreaker.Counts{Requests: 10, TotalFailures: 5}))
}
