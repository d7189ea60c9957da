package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"leadrouter/internal/eventbus"
	"leadrouter/internal/logger"
)

// EventForwarder mirrors bus events onto the domain events topic.
type EventForwarder struct {
	producer *Producer
	logger   logger.Logger
}

func NewEventForwarder(producer *Producer, log logger.Logger) *EventForwarder {
	return &EventForwarder{producer: producer, logger: log}
}

// Attach subscribes the forwarder to every given event type and returns a func that detaches it.
func (f *EventForwarder) Attach(bus *eventbus.Bus, eventTypes ...string) func() {
	unsubs := make([]func(), 0, len(eventTypes))
	for _, t := range eventTypes {
		unsubs = append(unsubs, bus.Subscribe(t, f.Handle))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (f *EventForwarder) Handle(ctx context.Context, event eventbus.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := f.producer.publishRaw(ctx, event.AggregateID, body); err != nil {
		f.logger.WarnwCtx(ctx, "Failed to forward event",
			"event_type", event.EventType,
			"error", err,
		)
		return err
	}
	return nil
}
