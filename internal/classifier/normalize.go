package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	apperrors "leadrouter/pkg/errors"
)

// Shape identifies which webhook layout a payload arrived in.
type Shape int

const (
	// ShapeRoot carries message fields at the top level next to "event".
	ShapeRoot Shape = iota
	// ShapeNested carries message fields under a "message" object.
	ShapeNested
)

func (s Shape) String() string {
	if s == ShapeNested {
		return "nested"
	}
	return "root"
}

type Contact struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone_number,omitempty"`
}

// InboundEvent is the shape-independent view of a conversation webhook.
type InboundEvent struct {
	Shape              Shape
	EventName          string
	MessageType        interface{} // number or string as delivered
	SenderType         string
	SenderID           string
	ConversationID     string
	MessageID          string
	Content            string
	ConversationStatus string
	Private            bool
	CustomAttributes   map[string]interface{}
	Contact            Contact
}

// Every leaf is kept raw and coerced afterwards, so a field of an unexpected JSON
// type degrades to its zero value instead of failing the whole body.
type rawSender struct {
	ID          json.RawMessage `json:"id"`
	Type        json.RawMessage `json:"type"`
	Name        json.RawMessage `json:"name"`
	Email       json.RawMessage `json:"email"`
	PhoneNumber json.RawMessage `json:"phone_number"`
}

type rawMessage struct {
	ID             json.RawMessage `json:"id"`
	MessageType    interface{}     `json:"message_type"`
	Content        json.RawMessage `json:"content"`
	Private        json.RawMessage `json:"private"`
	Sender         json.RawMessage `json:"sender"`
	SenderType     json.RawMessage `json:"sender_type"`
	ConversationID json.RawMessage `json:"conversation_id"`
}

type rawConversation struct {
	ID               json.RawMessage `json:"id"`
	Status           json.RawMessage `json:"status"`
	CustomAttributes json.RawMessage `json:"custom_attributes"`
	Meta             json.RawMessage `json:"meta"`
	ContactInbox     json.RawMessage `json:"contact_inbox"`
}

type rawEnvelope struct {
	rawMessage
	Event        json.RawMessage `json:"event"`
	Message      json.RawMessage `json:"message"`
	Conversation json.RawMessage `json:"conversation"`
}

// Normalize decodes a webhook body in either supported shape. Only malformed JSON is an
// error; absent or oddly typed fields are left at their zero values.
func Normalize(raw []byte) (InboundEvent, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return InboundEvent{}, apperrors.ErrValidation.WithMessage("invalid webhook JSON").WithCause(err)
	}

	var env rawEnvelope
	if isObject(raw) {
		// every field is raw or interface{}, so a valid object always decodes
		_ = json.Unmarshal(raw, &env)
	}

	msg := env.rawMessage
	shape := ShapeRoot
	if isObject(env.Message) {
		var nested rawMessage
		_ = json.Unmarshal(env.Message, &nested)
		msg = mergeMessage(nested, env.rawMessage)
		shape = ShapeNested
	}

	ev := InboundEvent{
		Shape:       shape,
		EventName:   textValue(env.Event),
		MessageType: msg.MessageType,
		MessageID:   idString(msg.ID),
		Content:     textValue(msg.Content),
		Private:     boolValue(msg.Private),
	}

	ev.SenderType = strings.ToLower(strings.TrimSpace(textValue(msg.SenderType)))
	if sender, ok := decodeSender(msg.Sender); ok {
		if t := strings.ToLower(strings.TrimSpace(textValue(sender.Type))); t != "" {
			ev.SenderType = t
		}
		ev.SenderID = idString(sender.ID)
		if ev.SenderType == SenderContact {
			ev.Contact = contactFrom(sender)
		}
	}

	ev.ConversationID = idString(msg.ConversationID)
	var conv rawConversation
	if isObject(env.Conversation) {
		_ = json.Unmarshal(env.Conversation, &conv)
		if id := idString(conv.ID); id != "" {
			ev.ConversationID = id
		}
		ev.ConversationStatus = strings.ToLower(textValue(conv.Status))
		ev.CustomAttributes = objectValue(conv.CustomAttributes)

		if ev.Contact.ID == "" && isObject(conv.Meta) {
			var meta struct {
				Sender json.RawMessage `json:"sender"`
			}
			_ = json.Unmarshal(conv.Meta, &meta)
			if sender, ok := decodeSender(meta.Sender); ok {
				ev.Contact = contactFrom(sender)
			}
		}
		if ev.Contact.ID == "" && isObject(conv.ContactInbox) {
			var inbox struct {
				ContactID json.RawMessage `json:"contact_id"`
			}
			_ = json.Unmarshal(conv.ContactInbox, &inbox)
			ev.Contact.ID = idString(inbox.ContactID)
		}
	}
	if ev.CustomAttributes == nil {
		ev.CustomAttributes = map[string]interface{}{}
	}

	return ev, nil
}

// mergeMessage prefers fields from the nested object and falls back to root-level ones.
func mergeMessage(nested, root rawMessage) rawMessage {
	if isNull(nested.ID) {
		nested.ID = root.ID
	}
	if nested.MessageType == nil {
		nested.MessageType = root.MessageType
	}
	if isNull(nested.Content) {
		nested.Content = root.Content
	}
	if isNull(nested.Sender) {
		nested.Sender = root.Sender
	}
	if isNull(nested.SenderType) {
		nested.SenderType = root.SenderType
	}
	if isNull(nested.ConversationID) {
		nested.ConversationID = root.ConversationID
	}
	if boolValue(root.Private) {
		nested.Private = root.Private
	}
	return nested
}

func decodeSender(raw json.RawMessage) (rawSender, bool) {
	var s rawSender
	if !isObject(raw) {
		return s, false
	}
	_ = json.Unmarshal(raw, &s)
	return s, true
}

func contactFrom(s rawSender) Contact {
	return Contact{
		ID:    idString(s.ID),
		Name:  textValue(s.Name),
		Email: textValue(s.Email),
		Phone: textValue(s.PhoneNumber),
	}
}

func isObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// idString renders a JSON number or string id as a string.
func idString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return ""
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	return n.String()
}

// textValue returns a JSON string as is and any other non-null value as its JSON text.
func textValue(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

// boolValue accepts true/false, "true"/"false"/"1"/"0" and numbers (non-zero is true).
func boolValue(raw json.RawMessage) bool {
	if isNull(raw) {
		return false
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	default:
		return false
	}
}

// objectValue decodes a JSON object; anything else yields an empty map.
func objectValue(raw json.RawMessage) map[string]interface{} {
	out := map[string]interface{}{}
	if isObject(raw) {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

// AttributeString reads a custom attribute as a string regardless of its JSON type.
func (e InboundEvent) AttributeString(key string) string {
	v, ok := e.CustomAttributes[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
