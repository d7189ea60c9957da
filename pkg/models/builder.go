package models

import (
	"time"

	"github.com/google/uuid"
)

type RouteJobBuilder struct {
	job *RouteJob
}

func NewRouteJobBuilder() *RouteJobBuilder {
	return &RouteJobBuilder{
		job: &RouteJob{
			BrokerPersona: make(map[string]interface{}),
			LeadSnapshot:  make(map[string]interface{}),
		},
	}
}

func (b *RouteJobBuilder) WithConversation(conversationID, contactID string) *RouteJobBuilder {
	b.job.ConversationID = conversationID
	b.job.ContactID = contactID
	return b
}

func (b *RouteJobBuilder) WithBroker(brokerID string, persona map[string]interface{}) *RouteJobBuilder {
	b.job.BrokerID = brokerID
	if persona != nil {
		b.job.BrokerPersona = persona
	}
	return b
}

func (b *RouteJobBuilder) WithLeadSnapshot(snapshot map[string]interface{}) *RouteJobBuilder {
	if snapshot != nil {
		b.job.LeadSnapshot = snapshot
	}
	return b
}

func (b *RouteJobBuilder) WithMessage(messageID, content string) *RouteJobBuilder {
	b.job.MessageID = messageID
	b.job.UserMessage = content
	return b
}

func (b *RouteJobBuilder) Build() *RouteJob {
	if b.job.JobID == "" {
		b.job.JobID = uuid.New().String()
	}
	if b.job.EnqueuedAt.IsZero() {
		b.job.EnqueuedAt = time.Now().UTC()
	}
	return b.job
}
