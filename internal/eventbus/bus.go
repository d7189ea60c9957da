package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"leadrouter/internal/config"
	"leadrouter/internal/constants"
	"leadrouter/internal/logger"
	apperrors "leadrouter/pkg/errors"
	"leadrouter/pkg/metrics"
)

var ErrBusClosed = errors.New("event bus is closed")

var errHandlerTimeout = apperrors.ErrTimeout.WithMessage("event handler timed out")

type Options struct {
	HandlerTimeout   time.Duration
	HistorySize      int
	FailureThreshold uint32
	Cooldown         time.Duration
}

func DefaultOptions() Options {
	return Options{
		HandlerTimeout:   constants.DefaultHandlerTimeout,
		HistorySize:      constants.DefaultHistorySize,
		FailureThreshold: constants.DefaultBreakerThreshold,
		Cooldown:         constants.DefaultBreakerCooldown,
	}
}

func OptionsFromConfig(cfg config.EventBusConfig) Options {
	opts := DefaultOptions()
	if cfg.HandlerTimeout > 0 {
		opts.HandlerTimeout = cfg.HandlerTimeout
	}
	if cfg.HistorySize > 0 {
		opts.HistorySize = cfg.HistorySize
	}
	if cfg.FailureThreshold > 0 {
		opts.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.Cooldown > 0 {
		opts.Cooldown = cfg.Cooldown
	}
	return opts
}

type subscription struct {
	id      uint64
	handler Handler
}

type queuedEvent struct {
	ctx   context.Context
	event Event
}

// Metrics is a point-in-time view of the bus for diagnostics.
type Metrics struct {
	HandlerCounts   map[string]int             `json:"handler_counts"`
	QueueDepth      int                        `json:"queue_depth"`
	HistorySize     int                        `json:"history_size"`
	CircuitBreakers map[string]BreakerSnapshot `json:"circuit_breakers"`
}

// Bus is an in-process publish/subscribe queue. Events are drained in publish order by
// whichever publisher finds the bus idle; the handlers of one event run concurrently.
type Bus struct {
	opts   Options
	logger logger.Logger

	mu       sync.Mutex
	handlers map[string][]subscription
	nextID   uint64
	queue    []queuedEvent
	draining bool
	closed   bool
	history  []Event
	breakers map[string]*typeBreaker
}

func New(opts Options, log logger.Logger) *Bus {
	def := DefaultOptions()
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = def.HandlerTimeout
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = def.HistorySize
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = def.FailureThreshold
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = def.Cooldown
	}
	if log == nil {
		log = logger.NopLogger()
	}

	return &Bus{
		opts:     opts,
		logger:   log,
		handlers: make(map[string][]subscription),
		breakers: make(map[string]*typeBreaker),
	}
}

// Subscribe registers handler for eventType. The returned func removes it and is safe to call more than once.
func (b *Bus) Subscribe(eventType string, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(eventType, id) })
	}
}

func (b *Bus) unsubscribe(eventType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[eventType]) == 0 {
		delete(b.handlers, eventType)
	}
}

// Publish records event and queues it for delivery. When no drain is in
// progress the caller drains the queue before Publish returns.
// Handler failures never surface here.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if event.EventType == "" {
		return apperrors.ErrValidation.WithMessage("event type is required")
	}
	if event.Metadata.Timestamp.IsZero() {
		event.Metadata.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}

	b.history = append(b.history, event)
	if over := len(b.history) - b.opts.HistorySize; over > 0 {
		b.history = append(b.history[:0:0], b.history[over:]...)
	}

	b.queue = append(b.queue, queuedEvent{ctx: context.WithoutCancel(ctx), event: event})
	metrics.IncEventPublished(event.EventType)
	metrics.SetEventBusQueueDepth(len(b.queue))

	if b.draining {
		b.mu.Unlock()
		return nil
	}
	b.draining = true
	b.mu.Unlock()

	b.drain()
	return nil
}

func (b *Bus) drain() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.draining = false
			metrics.SetEventBusQueueDepth(0)
			b.mu.Unlock()
			return
		}
		next := b.queue[0]
		b.queue[0] = queuedEvent{}
		b.queue = b.queue[1:]
		metrics.SetEventBusQueueDepth(len(b.queue))

		subs := append([]subscription(nil), b.handlers[next.event.EventType]...)
		var br *typeBreaker
		if len(subs) > 0 {
			br = b.breakerLocked(next.event.EventType)
		}
		b.mu.Unlock()

		if br != nil {
			b.dispatch(next.ctx, next.event, subs, br)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, event Event, subs []subscription, br *typeBreaker) {
	if br.isOpen() {
		b.logger.WarnwCtx(ctx, "Circuit breaker open, skipping event handlers",
			"event_type", event.EventType,
			"handlers", len(subs),
		)
		metrics.IncHandlerResult(event.EventType, "skipped")
		return
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		done, ok := br.allow()
		if !ok {
			metrics.IncHandlerResult(event.EventType, "skipped")
			continue
		}

		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()

			start := time.Now()
			err := b.invoke(ctx, h, event)
			metrics.ObserveHandlerDuration(event.EventType, time.Since(start))
			done(err == nil)

			if err != nil {
				result := "error"
				if errors.Is(err, errHandlerTimeout) {
					result = "timeout"
				}
				metrics.IncHandlerResult(event.EventType, result)
				b.logger.ErrorwCtx(ctx, "Event handler failed",
					"event_type", event.EventType,
					"aggregate_id", event.AggregateID,
					"error", err,
				)
				return
			}
			metrics.IncHandlerResult(event.EventType, "success")
		}(sub.handler)
	}
	wg.Wait()
}

// invoke races h against the handler timeout. A handler that ignores its context
// keeps running in the background but its result is discarded.
func (b *Bus) invoke(ctx context.Context, h Handler, event Event) error {
	ctx, cancel := context.WithTimeout(ctx, b.opts.HandlerTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- apperrors.RecoverPanic(r)
			}
		}()
		result <- h(ctx, event)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w after %s", errHandlerTimeout, b.opts.HandlerTimeout)
	}
}

func (b *Bus) breakerLocked(eventType string) *typeBreaker {
	br, ok := b.breakers[eventType]
	if !ok {
		br = newTypeBreaker(eventType, b.opts.FailureThreshold, b.opts.Cooldown, b.onBreakerChange)
		b.breakers[eventType] = br
	}
	return br
}

func (b *Bus) onBreakerChange(eventType string, from, to gobreaker.State) {
	b.logger.Warnw("Event bus circuit breaker state changed",
		"event_type", eventType,
		"from", from.String(),
		"to", to.String(),
	)
}

// Breaker returns the breaker snapshot for eventType. ok is false until the type has been dispatched once.
func (b *Bus) Breaker(eventType string) (BreakerSnapshot, bool) {
	b.mu.Lock()
	br, ok := b.breakers[eventType]
	b.mu.Unlock()
	if !ok {
		return BreakerSnapshot{}, false
	}
	return br.snapshot(), true
}

func (b *Bus) Metrics() Metrics {
	b.mu.Lock()
	m := Metrics{
		HandlerCounts:   make(map[string]int, len(b.handlers)),
		QueueDepth:      len(b.queue),
		HistorySize:     len(b.history),
		CircuitBreakers: make(map[string]BreakerSnapshot, len(b.breakers)),
	}
	for eventType, subs := range b.handlers {
		m.HandlerCounts[eventType] = len(subs)
	}
	breakers := make(map[string]*typeBreaker, len(b.breakers))
	for eventType, br := range b.breakers {
		breakers[eventType] = br
	}
	b.mu.Unlock()

	for eventType, br := range breakers {
		m.CircuitBreakers[eventType] = br.snapshot()
	}
	return m
}

// History returns the retained events, oldest first.
func (b *Bus) History() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.history...)
}

// Close rejects further publishes. Events already queued are still delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}
