package models

import "time"

// RouteJob is the message placed on the job queue for a queue-routed lead.
type RouteJob struct {
	JobID          string                 `json:"job_id"`
	ConversationID string                 `json:"conversation_id"`
	ContactID      string                 `json:"contact_id"`
	BrokerID       string                 `json:"broker_id"`
	BrokerPersona  map[string]interface{} `json:"broker_persona"`
	LeadSnapshot   map[string]interface{} `json:"lead_snapshot"` // custom attributes at routing time
	UserMessage    string                 `json:"user_message"`
	MessageID      string                 `json:"message_id"`
	EnqueuedAt     time.Time              `json:"enqueued_at"`
}
