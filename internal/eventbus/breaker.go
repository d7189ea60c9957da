package eventbus

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"leadrouter/pkg/circuitbreaker"
)

type BreakerSnapshot struct {
	State       string     `json:"state"`
	Failures    int        `json:"failures"`
	Successes   int        `json:"successes"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}

// typeBreaker guards the handlers of one event type.
// mu is never held while calling into cb: gobreaker runs OnStateChange under its own lock.
type typeBreaker struct {
	cb       *circuitbreaker.TwoStep
	cooldown time.Duration

	mu          sync.Mutex
	failures    int
	successes   int
	lastFailure time.Time
	nextRetryAt time.Time
}

func newTypeBreaker(eventType string, threshold uint32, cooldown time.Duration, onChange func(eventType string, from, to gobreaker.State)) *typeBreaker {
	b := &typeBreaker{cooldown: cooldown}
	b.cb = circuitbreaker.NewTwoStep(circuitbreaker.Config{
		Name:        "eventbus:" + eventType,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: circuitbreaker.ConsecutiveFailuresTrip(threshold),
		OnStateChange: func(_ string, from, to gobreaker.State) {
			b.mu.Lock()
			if to == gobreaker.StateOpen {
				b.nextRetryAt = time.Now().Add(b.cooldown)
			} else {
				b.nextRetryAt = time.Time{}
			}
			b.mu.Unlock()

			if onChange != nil {
				onChange(eventType, from, to)
			}
		},
	})
	return b
}

func (b *typeBreaker) isOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// allow admits one handler call; ok is false when the breaker rejects it.
func (b *typeBreaker) allow() (done func(success bool), ok bool) {
	report, err := b.cb.Allow()
	if err != nil {
		return nil, false
	}

	return func(success bool) {
		report(success)

		b.mu.Lock()
		defer b.mu.Unlock()
		if success {
			b.failures = 0
			b.successes++
			return
		}
		b.failures++
		b.lastFailure = time.Now()
	}, true
}

func (b *typeBreaker) snapshot() BreakerSnapshot {
	state := b.cb.State()

	b.mu.Lock()
	defer b.mu.Unlock()

	s := BreakerSnapshot{
		State:     state.String(),
		Failures:  b.failures,
		Successes: b.successes,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		s.LastFailure = &t
	}
	if state == gobreaker.StateOpen && !b.nextRetryAt.IsZero() {
		t := b.nextRetryAt
		s.NextRetryAt = &t
	}
	return s
}
