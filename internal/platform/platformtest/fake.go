// Package platformtest provides an in-memory platform.API for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"leadrouter/internal/platform"
)

type Message struct {
	ConversationID string
	Content        string
	Private        bool
}

type Fake struct {
	mu sync.Mutex

	Operators []platform.Operator

	Messages    []Message
	Attributes  map[string]map[string]interface{}
	Assignments map[string]int64
	Statuses    map[string]string

	// Fail makes the named operation return an error.
	Fail map[string]error

	nextID int
}

func New() *Fake {
	return &Fake{
		Attributes:  make(map[string]map[string]interface{}),
		Assignments: make(map[string]int64),
		Statuses:    make(map[string]string),
		Fail:        make(map[string]error),
	}
}

func (f *Fake) failure(op string) error {
	return f.Fail[op]
}

func (f *Fake) SendMessage(_ context.Context, conversationID, content string, private bool) (platform.SentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	op := "send_message"
	if private {
		op = "send_private"
	}
	if err := f.failure(op); err != nil {
		return platform.SentMessage{}, err
	}

	f.nextID++
	f.Messages = append(f.Messages, Message{ConversationID: conversationID, Content: content, Private: private})
	return platform.SentMessage{ID: fmt.Sprintf("sent-%d", f.nextID), Content: content}, nil
}

func (f *Fake) UpdateCustomAttributes(_ context.Context, conversationID string, attrs map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("update_custom_attributes"); err != nil {
		return err
	}
	copied := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	f.Attributes[conversationID] = copied
	return nil
}

func (f *Fake) AssignOperator(_ context.Context, conversationID string, operatorID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("assign_operator"); err != nil {
		return err
	}
	f.Assignments[conversationID] = operatorID
	return nil
}

func (f *Fake) ToggleStatus(_ context.Context, conversationID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("toggle_status"); err != nil {
		return err
	}
	f.Statuses[conversationID] = status
	return nil
}

func (f *Fake) ListOperators(context.Context) ([]platform.Operator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("list_operators"); err != nil {
		return nil, err
	}
	return append([]platform.Operator(nil), f.Operators...), nil
}

// MessagesTo returns the messages sent to a conversation, public and private.
func (f *Fake) MessagesTo(conversationID string) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.Messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out
}

var _ platform.API = (*Fake)(nil)
