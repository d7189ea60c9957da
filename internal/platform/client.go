package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"leadrouter/internal/config"
	"leadrouter/internal/constants"
	"leadrouter/internal/logger"
	"leadrouter/pkg/circuitbreaker"
	apperrors "leadrouter/pkg/errors"
	"leadrouter/pkg/metrics"
	"leadrouter/pkg/tracing"
)

const (
	clientLabel = "platform"
	tokenHeader = "api_access_token"
	maxBodySize = 1 << 20
)

// Operator is a human agent on the conversation platform.
type Operator struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	Role               string `json:"role"`
	AvailabilityStatus string `json:"availability_status"`
}

func (o Operator) Available() bool {
	return o.AvailabilityStatus == "" || strings.EqualFold(o.AvailabilityStatus, "online")
}

type SentMessage struct {
	ID      string
	Content string
}

// API is the platform surface the router and escalation handler depend on.
type API interface {
	SendMessage(ctx context.Context, conversationID, content string, private bool) (SentMessage, error)
	UpdateCustomAttributes(ctx context.Context, conversationID string, attrs map[string]interface{}) error
	AssignOperator(ctx context.Context, conversationID string, operatorID int64) error
	ToggleStatus(ctx context.Context, conversationID, status string) error
	ListOperators(ctx context.Context) ([]Operator, error)
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	accountID  int
	token      string
	breaker    *circuitbreaker.Wrapper
	logger     logger.Logger
}

func NewClient(cfg config.PlatformConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultPlatformTimeout
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		accountID:  cfg.AccountID,
		token:      cfg.APIToken,
		logger:     log,
	}
	if cbCfg.Enabled {
		c.breaker = circuitbreaker.NewWrapper(circuitbreaker.FromConfig("conversation-platform", cbCfg))
	}
	return c
}

func (c *Client) conversationPath(conversationID, suffix string) string {
	return fmt.Sprintf("/api/v1/accounts/%d/conversations/%s%s", c.accountID, conversationID, suffix)
}

func (c *Client) SendMessage(ctx context.Context, conversationID, content string, private bool) (SentMessage, error) {
	body := map[string]interface{}{
		"content":      content,
		"message_type": "outgoing",
		"private":      private,
	}

	var resp struct {
		ID      json.Number `json:"id"`
		Content string      `json:"content"`
	}
	if err := c.do(ctx, "send_message", http.MethodPost, c.conversationPath(conversationID, "/messages"), body, &resp); err != nil {
		return SentMessage{}, err
	}
	return SentMessage{ID: resp.ID.String(), Content: resp.Content}, nil
}

func (c *Client) UpdateCustomAttributes(ctx context.Context, conversationID string, attrs map[string]interface{}) error {
	body := map[string]interface{}{"custom_attributes": attrs}
	return c.do(ctx, "update_custom_attributes", http.MethodPost, c.conversationPath(conversationID, "/custom_attributes"), body, nil)
}

func (c *Client) AssignOperator(ctx context.Context, conversationID string, operatorID int64) error {
	body := map[string]interface{}{"assignee_id": operatorID}
	return c.do(ctx, "assign_operator", http.MethodPost, c.conversationPath(conversationID, "/assignments"), body, nil)
}

func (c *Client) ToggleStatus(ctx context.Context, conversationID, status string) error {
	body := map[string]interface{}{"status": status}
	return c.do(ctx, "toggle_status", http.MethodPost, c.conversationPath(conversationID, "/toggle_status"), body, nil)
}

func (c *Client) ListOperators(ctx context.Context) ([]Operator, error) {
	var operators []Operator
	path := "/api/v1/accounts/" + strconv.Itoa(c.accountID) + "/agents"
	if err := c.do(ctx, "list_operators", http.MethodGet, path, nil, &operators); err != nil {
		return nil, err
	}
	return operators, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, in, out interface{}) error {
	ctx, span := tracing.StartSpan(ctx, "platform."+operation)
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	call := func() (interface{}, error) {
		return nil, c.roundTrip(ctx, operation, method, path, in, out)
	}

	if c.breaker == nil {
		_, err = call()
		return err
	}

	_, err = c.breaker.ExecuteWithContext(ctx, call)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.IncUpstreamRequest(clientLabel, operation, "circuit_open")
		err = apperrors.ErrCircuitOpen.WithCause(err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, operation, method, path string, in, out interface{}) error {
	var reader io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", operation, err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(tokenHeader, c.token)
	tracing.InjectHTTPHeaders(ctx, req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveUpstreamDuration(clientLabel, operation, time.Since(start))
	if err != nil {
		metrics.IncUpstreamRequest(clientLabel, operation, "network_error")
		return apperrors.ErrUpstream.WithMessage("platform %s request failed", operation).WithCause(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		metrics.IncUpstreamRequest(clientLabel, operation, strconv.Itoa(resp.StatusCode))
		return apperrors.ErrUpstream.
			WithMessage("platform %s returned status %d", operation, resp.StatusCode).
			WithDetail("status_code", resp.StatusCode)
	}
	metrics.IncUpstreamRequest(clientLabel, operation, "success")

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := decodeInto(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

// decodeInto accepts either the bare value or one wrapped in {"payload": ...}.
func decodeInto(raw []byte, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err == nil {
		return nil
	}

	var wrapped struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil || len(wrapped.Payload) == 0 {
		return fmt.Errorf("unexpected response body")
	}
	return json.Unmarshal(wrapped.Payload, out)
}
