package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"leadrouter/internal/config"
	"leadrouter/internal/constants"
	"leadrouter/internal/logger"
	"leadrouter/pkg/circuitbreaker"
	apperrors "leadrouter/pkg/errors"
	"leadrouter/pkg/metrics"
	"leadrouter/pkg/tracing"
)

const (
	clientLabel = "workflow"
	maxBodySize = 1 << 20
)

// Result is what the engine answered to a successful invocation.
type Result struct {
	StatusCode int
	Handoff    bool
	Body       map[string]interface{}
}

type Client struct {
	httpClient *http.Client
	url        string
	headers    map[string]string
	breaker    *circuitbreaker.Wrapper
	logger     logger.Logger
}

func NewClient(cfg config.WorkflowConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultWorkflowTimeout
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        cfg.URL,
		headers:    cfg.Headers,
		logger:     log,
	}
	if cbCfg.Enabled {
		c.breaker = circuitbreaker.NewWrapper(circuitbreaker.FromConfig("workflow-engine", cbCfg))
	}
	return c
}

// Invoke posts payload to the engine. Any transport error or non-2xx status is an error.
func (c *Client) Invoke(ctx context.Context, payload Payload) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "workflow.invoke",
		attribute.String("conversation_id", payload.Conversation.ID),
	)

	var (
		res Result
		err error
	)
	defer func() { tracing.EndSpan(span, err) }()

	if c.url == "" {
		err = apperrors.ErrServiceUnavailable.WithMessage("workflow engine URL is not configured")
		return res, err
	}

	if c.breaker == nil {
		res, err = c.post(ctx, payload)
		return res, err
	}

	out, cbErr := c.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		return c.post(ctx, payload)
	})
	if cbErr != nil {
		if errors.Is(cbErr, gobreaker.ErrOpenState) || errors.Is(cbErr, gobreaker.ErrTooManyRequests) {
			metrics.IncUpstreamRequest(clientLabel, "invoke", "circuit_open")
			err = apperrors.ErrCircuitOpen.WithCause(cbErr)
			return res, err
		}
		err = cbErr
		return res, err
	}
	res, _ = out.(Result)
	return res, nil
}

func (c *Client) post(ctx context.Context, payload Payload) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal workflow payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	tracing.InjectHTTPHeaders(ctx, req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveUpstreamDuration(clientLabel, "invoke", time.Since(start))
	if err != nil {
		metrics.IncUpstreamRequest(clientLabel, "invoke", "network_error")
		return Result{}, apperrors.ErrUpstream.WithMessage("workflow engine request failed").WithCause(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		metrics.IncUpstreamRequest(clientLabel, "invoke", fmt.Sprintf("%d", resp.StatusCode))
		c.logger.WarnwCtx(ctx, "Workflow engine returned non-2xx",
			"status", resp.StatusCode,
		)
		return Result{}, apperrors.ErrUpstream.
			WithMessage("workflow engine returned status %d", resp.StatusCode).
			WithDetail("status_code", resp.StatusCode)
	}
	metrics.IncUpstreamRequest(clientLabel, "invoke", "success")

	res := Result{StatusCode: resp.StatusCode}
	if len(bytes.TrimSpace(raw)) > 0 {
		var decoded map[string]interface{}
		if json.Unmarshal(raw, &decoded) == nil {
			res.Body = decoded
			res.Handoff = detectHandoff(decoded)
		}
	}
	return res, nil
}

// detectHandoff recognises the engine telling us a human should take over.
func detectHandoff(body map[string]interface{}) bool {
	if v, ok := body["handoff"].(bool); ok && v {
		return true
	}
	for _, key := range []string{"action", "status"} {
		if s, ok := body[key].(string); ok {
			switch strings.ToLower(s) {
			case "handoff", "human_handoff", "escalate":
				return true
			}
		}
	}
	return false
}
