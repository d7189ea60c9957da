package assignment

import (
	"context"
	"errors"

	apperrors "leadrouter/pkg/errors"
)

// ErrNoBroker is returned by Lookup when the conversation has no assigned broker.
var ErrNoBroker = apperrors.ErrNotFound.WithMessage("no broker assigned to conversation")

// BrokerAssignment is the broker persona the queue worker speaks as.
type BrokerAssignment struct {
	ConversationID    string                 `json:"conversation_id"`
	BrokerID          string                 `json:"broker_id"`
	BrokerName        string                 `json:"broker_name"`
	PersonaAttributes map[string]interface{} `json:"persona_attributes"`
}

type Lookup interface {
	Lookup(ctx context.Context, conversationID string) (*BrokerAssignment, error)
}

// LockReleaser frees the broker engagement lock held for a conversation.
// Releasing a conversation with no active lock is not an error.
type LockReleaser interface {
	ReleaseEngagement(ctx context.Context, conversationID, reason string) error
}

type Store interface {
	Lookup
	LockReleaser
}

func IsNoBroker(err error) bool {
	return errors.Is(err, ErrNoBroker)
}
