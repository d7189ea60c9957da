package circuitbreaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"leadrouter/internal/config"
	"leadrouter/pkg/metrics"
)

// Config defines circuit breaker configuration
type Config struct {
	Name          string
	MaxRequests   uint32
	Interval      time.Duration
	Timeout       time.Duration
	ReadyToTrip   func(counts gobreaker.Counts) bool
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultConfig returns a ratio-based configuration suited to upstream HTTP clients.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: FailureRatioTrip(3, 0.5),
	}
}

// FromConfig builds a Config for name, overriding DefaultConfig with any non-zero values in cfg.
func FromConfig(name string, cfg config.CircuitBreakerConfig) Config {
	c := DefaultConfig(name)
	if cfg.MaxRequests > 0 {
		c.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		c.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		c.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 || cfg.MinRequests > 0 {
		minRequests := cfg.MinRequests
		if minRequests == 0 {
			minRequests = 3
		}
		ratio := cfg.FailureRatio
		if ratio == 0 {
			ratio = 0.5
		}
		c.ReadyToTrip = FailureRatioTrip(minRequests, ratio)
	}
	return c
}

func FailureRatioTrip(minRequests uint32, ratio float64) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		if counts.Requests < minRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
	}
}

func ConsecutiveFailuresTrip(threshold uint32) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= threshold
	}
}

func (cfg Config) settings() gobreaker.Settings {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
	}

	// Metrics are updated even when the caller supplies its own handler.
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		updateCircuitBreakerMetrics(name, to)
		if cfg.OnStateChange != nil {
			cfg.OnStateChange(name, from, to)
		}
	}
	return settings
}

// Wrapper wraps a function with circuit breaker logic
type Wrapper struct {
	cb *gobreaker.CircuitBreaker
}

func NewWrapper(cfg Config) *Wrapper {
	cb := gobreaker.NewCircuitBreaker(cfg.settings())
	updateCircuitBreakerMetrics(cfg.Name, cb.State())
	return &Wrapper{cb: cb}
}

func (w *Wrapper) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return w.cb.Execute(fn)
}

// ExecuteWithContext skips fn when ctx is already done.
func (w *Wrapper) ExecuteWithContext(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := w.cb.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})
	w.RecordRequest(err == nil)
	return result, err
}

func (w *Wrapper) State() gobreaker.State {
	return w.cb.State()
}

func (w *Wrapper) Counts() gobreaker.Counts {
	return w.cb.Counts()
}

func (w *Wrapper) Name() string {
	return w.cb.Name()
}

func (w *Wrapper) IsOpen() bool {
	return w.cb.State() == gobreaker.StateOpen
}

func (w *Wrapper) RecordRequest(success bool) {
	recordRequest(w.cb.Name(), w.cb.State(), success)
}

// TwoStep exposes gobreaker's two-step breaker, for callers that report the outcome
// themselves after the guarded work completes.
type TwoStep struct {
	cb *gobreaker.TwoStepCircuitBreaker
}

func NewTwoStep(cfg Config) *TwoStep {
	cb := gobreaker.NewTwoStepCircuitBreaker(cfg.settings())
	updateCircuitBreakerMetrics(cfg.Name, cb.State())
	return &TwoStep{cb: cb}
}

// Allow returns gobreaker.ErrOpenState or gobreaker.ErrTooManyRequests when the call must be skipped.
// Otherwise the caller must invoke done exactly once.
func (t *TwoStep) Allow() (done func(success bool), err error) {
	report, err := t.cb.Allow()
	if err != nil {
		return nil, err
	}
	name := t.cb.Name()
	return func(success bool) {
		recordRequest(name, t.cb.State(), success)
		report(success)
	}, nil
}

func (t *TwoStep) State() gobreaker.State {
	return t.cb.State()
}

func (t *TwoStep) Counts() gobreaker.Counts {
	return t.cb.Counts()
}

func (t *TwoStep) Name() string {
	return t.cb.Name()
}

func updateCircuitBreakerMetrics(name string, state gobreaker.State) {
	var stateValue float64
	switch state {
	case gobreaker.StateClosed:
		stateValue = 0
	case gobreaker.StateHalfOpen:
		stateValue = 1
	case gobreaker.StateOpen:
		stateValue = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue)
}

func recordRequest(name string, state gobreaker.State, success bool) {
	metrics.CircuitBreakerRequests.WithLabelValues(name, state.String()).Inc()
	if !success {
		metrics.CircuitBreakerFailures.WithLabelValues(name).Inc()
	}
}
