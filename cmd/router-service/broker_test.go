package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadrouter/internal/assignment"
	"leadrouter/internal/config"
)

type fakeRegistry struct {
	assignments map[string]assignment.BrokerAssignment
	engaged     map[string]bool
	err         error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		assignments: map[string]assignment.BrokerAssignment{},
		engaged:     map[string]bool{},
	}
}

func (r *fakeRegistry) Lookup(_ context.Context, conversationID string) (*assignment.BrokerAssignment, error) {
	if r.err != nil {
		return nil, r.err
	}
	a, ok := r.assignments[conversationID]
	if !ok {
		return nil, assignment.ErrNoBroker
	}
	return &a, nil
}

func (r *fakeRegistry) Assign(_ context.Context, a assignment.BrokerAssignment) error {
	if r.err != nil {
		return r.err
	}
	r.assignments[a.ConversationID] = a
	r.engaged[a.ConversationID] = true
	return nil
}

func (r *fakeRegistry) Engaged(_ context.Context, conversationID string) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	return r.engaged[conversationID], nil
}

func TestParseAssignment(t *testing.T) {
	tests := []struct {
		name         string
		conversation string
		broker       string
		persona      string
		field        string
		wantPersona  map[string]interface{}
	}{
		{name: "valid", conversation: "42", broker: "b-1", persona: `{"tone":"warm"}`, wantPersona: map[string]interface{}{"tone": "warm"}},
		{name: "no persona", conversation: "42", broker: "b-1", wantPersona: map[string]interface{}{}},
		{name: "missing conversation", broker: "b-1", field: "conversation"},
		{name: "missing broker", conversation: "42", field: "broker"},
		{name: "persona not an object", conversation: "42", broker: "b-1", persona: `[1,2]`, field: "persona"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := parseAssignment(tt.conversation, tt.broker, "Dana", tt.persona)
			if tt.field != "" {
				var verr *config.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, tt.field, verr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPersona, a.PersonaAttributes)
			assert.Equal(t, "Dana", a.BrokerName)
		})
	}
}

func TestBrokerAssignThenStatus(t *testing.T) {
	repo := newFakeRegistry()
	ctx := context.Background()

	var out bytes.Buffer
	a := assignment.BrokerAssignment{ConversationID: "42", BrokerID: "b-1", BrokerName: "Dana"}
	require.NoError(t, runBrokerAssign(ctx, repo, &out, a))
	assert.Contains(t, out.String(), "broker b-1 assigned to conversation 42")

	out.Reset()
	require.NoError(t, runBrokerStatus(ctx, repo, &out, "42"))

	var status brokerStatus
	require.NoError(t, json.Unmarshal(out.Bytes(), &status))
	require.NotNil(t, status.Assignment)
	assert.Equal(t, "b-1", status.Assignment.BrokerID)
	assert.True(t, status.Engaged)
}

func TestBrokerStatus_Unassigned(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runBrokerStatus(context.Background(), newFakeRegistry(), &out, "7"))

	var status brokerStatus
	require.NoError(t, json.Unmarshal(out.Bytes(), &status))
	assert.Nil(t, status.Assignment)
	assert.False(t, status.Engaged)
}

func TestBrokerStatus_StoreError(t *testing.T) {
	repo := newFakeRegistry()
	repo.err = errors.New("connection reset")

	err := runBrokerStatus(context.Background(), repo, &bytes.Buffer{}, "7")
	assert.EqualError(t, err, "connection reset")
}
