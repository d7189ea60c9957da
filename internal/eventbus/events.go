package eventbus

import (
	"context"
	"time"

	"github.com/google/uuid"

	"leadrouter/pkg/logging"
)

// Well-known event types published by the router.
const (
	EventMessageRouted         = "message.routed"
	EventMessageSuppressed     = "message.suppressed"
	EventConversationEscalated = "conversation.escalated"
	EventBrokerReleased        = "broker.released"
	EventLeadScored            = "lead.scored"
)

type Metadata struct {
	Timestamp     time.Time `json:"timestamp"`
	SessionID     string    `json:"session_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Event is a fact published on the bus. Handlers receive a copy and must not mutate Payload.
type Event struct {
	EventType   string                 `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	Payload     map[string]interface{} `json:"payload"`
	Metadata    Metadata               `json:"metadata"`
}

// NewEvent stamps the event with the current time and the correlation id carried by ctx,
// minting one when ctx has none.
func NewEvent(ctx context.Context, eventType, aggregateID string, payload map[string]interface{}) Event {
	correlationID := logging.GetCorrelationID(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}

	return Event{
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     payload,
		Metadata: Metadata{
			Timestamp:     time.Now().UTC(),
			SessionID:     aggregateID,
			CorrelationID: correlationID,
		},
	}
}

type Handler func(ctx context.Context, event Event) error
