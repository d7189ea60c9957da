package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadrouter/internal/config"
	"leadrouter/internal/logger"
	apperrors "leadrouter/pkg/errors"
)

type recorded struct {
	Method string
	Path   string
	Token  string
	Body   map[string]interface{}
}

type fakePlatform struct {
	mu       sync.Mutex
	requests []recorded
	status   int
}

func (f *fakePlatform) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{Method: r.Method, Path: r.URL.Path, Token: r.Header.Get("api_access_token")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, rec)
		status := f.status
		f.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			return
		}

		switch {
		case r.URL.Path == "/api/v1/accounts/3/agents":
			_, _ = w.Write([]byte(`[{"id":11,"name":"Sam","email":"sam@example.com","availability_status":"offline"},{"id":12,"name":"Ana","email":"ana@example.com","availability_status":"online"}]`))
		case r.URL.Path == "/api/v1/accounts/3/conversations/42/messages":
			_, _ = w.Write([]byte(`{"id":991,"content":"hi"}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	})
}

func (f *fakePlatform) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, f *fakePlatform) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewClient(config.PlatformConfig{
		BaseURL:   srv.URL + "/",
		AccountID: 3,
		APIToken:  "tok",
	}, config.CircuitBreakerConfig{}, logger.NopLogger())
}

func TestSendMessage(t *testing.T) {
	tests := []struct {
		name    string
		private bool
	}{
		{name: "public", private: false},
		{name: "private note", private: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakePlatform{}
			c := newTestClient(t, f)

			sent, err := c.SendMessage(context.Background(), "42", "hello", tt.private)
			require.NoError(t, err)
			assert.Equal(t, "991", sent.ID)

			req := f.last()
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, "/api/v1/accounts/3/conversations/42/messages", req.Path)
			assert.Equal(t, "tok", req.Token)
			assert.Equal(t, "hello", req.Body["content"])
			assert.Equal(t, "outgoing", req.Body["message_type"])
			assert.Equal(t, tt.private, req.Body["private"])
		})
	}
}

func TestConversationUpdates(t *testing.T) {
	f := &fakePlatform{}
	c := newTestClient(t, f)
	ctx := context.Background()

	require.NoError(t, c.UpdateCustomAttributes(ctx, "42", map[string]interface{}{"escalation_reason": "n8n_unavailable"}))
	req := f.last()
	assert.Equal(t, "/api/v1/accounts/3/conversations/42/custom_attributes", req.Path)
	attrs, ok := req.Body["custom_attributes"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "n8n_unavailable", attrs["escalation_reason"])

	require.NoError(t, c.AssignOperator(ctx, "42", 12))
	req = f.last()
	assert.Equal(t, "/api/v1/accounts/3/conversations/42/assignments", req.Path)
	assert.Equal(t, float64(12), req.Body["assignee_id"])

	require.NoError(t, c.ToggleStatus(ctx, "42", "open"))
	req = f.last()
	assert.Equal(t, "/api/v1/accounts/3/conversations/42/toggle_status", req.Path)
	assert.Equal(t, "open", req.Body["status"])
}

func TestListOperators(t *testing.T) {
	f := &fakePlatform{}
	c := newTestClient(t, f)

	ops, err := c.ListOperators(context.Background())
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, int64(11), ops[0].ID)
	assert.False(t, ops[0].Available())
	assert.True(t, ops[1].Available())
	assert.Equal(t, http.MethodGet, f.last().Method)
}

func TestNon2xx(t *testing.T) {
	f := &fakePlatform{status: http.StatusUnprocessableEntity}
	c := newTestClient(t, f)

	err := c.ToggleStatus(context.Background(), "42", "open")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}

func TestDecodeInto_PayloadWrapper(t *testing.T) {
	var ops []Operator
	require.NoError(t, decodeInto([]byte(`{"payload":[{"id":5,"email":"x@example.com"}]}`), &ops))
	require.Len(t, ops, 1)
	assert.Equal(t, int64(5), ops[0].ID)
}
