package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithCorrelationID(ctx, "corr-1")
	ctx = WithConversationID(ctx, "42")

	assert.Equal(t, "corr-1", GetCorrelationID(ctx))
	assert.Equal(t, "42", GetConversationID(ctx))
	assert.Equal(t, []interface{}{"correlation_id", "corr-1", "conversation_id", "42"}, GetLogFields(ctx))
}

func TestStringKeyDoesNotCollide(t *testing.T) {
	ctx := context.WithValue(context.Background(), "trace_id", "raw") //nolint:staticcheck
	assert.Empty(t, GetTraceID(ctx))
}
