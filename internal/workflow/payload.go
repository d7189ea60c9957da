package workflow

import (
	"leadrouter/internal/classifier"
	"leadrouter/internal/constants"
)

const attrConversationStatus = "conversation_status"

type Sender struct {
	Type string `json:"type"`
}

type Message struct {
	ID          string `json:"id,omitempty"`
	MessageType string `json:"message_type"`
	Sender      Sender `json:"sender"`
	Content     string `json:"content"`
}

type Conversation struct {
	ID               string                 `json:"id"`
	Status           string                 `json:"status"`
	CustomAttributes map[string]interface{} `json:"custom_attributes"`
}

// Payload is the minimal schema the workflow engine filters on.
type Payload struct {
	Event        string       `json:"event"`
	Content      string       `json:"content"`
	Message      Message      `json:"message"`
	Conversation Conversation `json:"conversation"`
}

// BuildPayload converts an inbound event. The conversation_status custom attribute is
// always present in the result; ev is never modified.
func BuildPayload(ev classifier.InboundEvent) Payload {
	attrs := make(map[string]interface{}, len(ev.CustomAttributes)+1)
	for k, v := range ev.CustomAttributes {
		attrs[k] = v
	}
	if s, ok := attrs[attrConversationStatus].(string); !ok || s == "" {
		attrs[attrConversationStatus] = constants.DefaultConversationStatus
	}

	event := ev.EventName
	if event == "" {
		event = "message_created"
	}

	return Payload{
		Event:   event,
		Content: ev.Content,
		Message: Message{
			ID:          ev.MessageID,
			MessageType: classifier.NormalizeMessageType(ev.MessageType).String(),
			Sender:      Sender{Type: ev.SenderType},
			Content:     ev.Content,
		},
		Conversation: Conversation{
			ID:               ev.ConversationID,
			Status:           ev.ConversationStatus,
			CustomAttributes: attrs,
		},
	}
}
