package escalation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadrouter/internal/assignment"
	"leadrouter/internal/classifier"
	"leadrouter/internal/config"
	"leadrouter/internal/constants"
	"leadrouter/internal/eventbus"
	"leadrouter/internal/logger"
	"leadrouter/internal/platform"
	"leadrouter/pkg/metrics"
)

type Reason string

const (
	ReasonWorkflowUnavailable Reason = "n8n_unavailable"
	ReasonQueueUnavailable    Reason = "queue_unavailable"
	ReasonNoBackend           Reason = "no_backend"
)

type Step string

const (
	StepHandoffMessage Step = "handoff_message"
	StepAssignOperator Step = "assign_operator"
	StepAuditNote      Step = "audit_note"
	StepAttributes     Step = "custom_attributes"
	StepReleaseLock    Step = "release_lock"
)

var ErrNoOperator = errors.New("no human operator available")

// Conversation is what the handler needs to know about the conversation being escalated.
type Conversation struct {
	ID               string
	Contact          classifier.Contact
	CustomAttributes map[string]interface{}
}

func ConversationFrom(ev classifier.InboundEvent) Conversation {
	return Conversation{
		ID:               ev.ConversationID,
		Contact:          ev.Contact,
		CustomAttributes: ev.CustomAttributes,
	}
}

// EchoRecorder remembers messages we sent so their webhook echoes are dropped.
type EchoRecorder interface {
	RememberSent(ctx context.Context, conversationID, content, messageID string) error
}

type StepError struct {
	Step Step
	Err  error
}

func (e StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

type Result struct {
	Reason   Reason
	Operator *platform.Operator
	Failures []StepError
}

func (r Result) Failed(step Step) bool {
	for _, f := range r.Failures {
		if f.Step == step {
			return true
		}
	}
	return false
}

type Handler struct {
	platform platform.API
	echo     EchoRecorder
	locks    assignment.LockReleaser
	bus      *eventbus.Bus
	cfg      config.EscalationConfig
	logger   logger.Logger
	now      func() time.Time
}

func NewHandler(api platform.API, echo EchoRecorder, locks assignment.LockReleaser, bus *eventbus.Bus, cfg config.EscalationConfig, log logger.Logger) *Handler {
	if cfg.HandoffMessage == "" {
		cfg.HandoffMessage = constants.DefaultHandoffMessage
	}
	if cfg.HumanStatus == "" {
		cfg.HumanStatus = constants.DefaultHumanStatus
	}
	return &Handler{
		platform: api,
		echo:     echo,
		locks:    locks,
		bus:      bus,
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
	}
}

// Escalate hands the conversation to a human. Every step runs regardless of earlier
// failures; failures are logged and returned in the Result, never retried or escalated.
func (h *Handler) Escalate(ctx context.Context, conv Conversation, customerMessage string, reason Reason) Result {
	ctx = context.WithoutCancel(ctx)
	metrics.IncEscalation(string(reason))

	res := Result{Reason: reason}
	record := RecordFrom(conv)

	steps := []struct {
		step Step
		run  func() error
	}{
		{StepHandoffMessage, func() error { return h.sendHandoff(ctx, conv) }},
		{StepAssignOperator, func() error {
			op, err := h.assignHuman(ctx, conv)
			res.Operator = op
			return err
		}},
		{StepAuditNote, func() error { return h.writeAuditNote(ctx, conv, record, customerMessage, reason) }},
		{StepAttributes, func() error { return h.markEscalated(ctx, conv, reason) }},
		{StepReleaseLock, func() error { return h.releaseLock(ctx, conv, reason) }},
	}

	for _, s := range steps {
		if err := s.run(); err != nil {
			metrics.IncEscalationStepFailure(string(s.step))
			h.logger.ErrorwCtx(ctx, "Escalation step failed",
				"step", s.step,
				"reason", reason,
				"error", err,
			)
			res.Failures = append(res.Failures, StepError{Step: s.step, Err: err})
		}
	}

	h.publish(ctx, conv, res)

	h.logger.InfowCtx(ctx, "Conversation escalated to human",
		"reason", reason,
		"failed_steps", len(res.Failures),
	)
	return res
}

func (h *Handler) sendHandoff(ctx context.Context, conv Conversation) error {
	sent, err := h.platform.SendMessage(ctx, conv.ID, h.cfg.HandoffMessage, false)
	if err != nil {
		return err
	}
	if h.echo == nil {
		return nil
	}
	return h.echo.RememberSent(ctx, conv.ID, h.cfg.HandoffMessage, sent.ID)
}

func (h *Handler) assignHuman(ctx context.Context, conv Conversation) (*platform.Operator, error) {
	var assignErr error
	var chosen *platform.Operator

	operators, err := h.platform.ListOperators(ctx)
	if err != nil {
		assignErr = fmt.Errorf("failed to list operators: %w", err)
	} else if op, ok := PickOperator(operators, h.cfg.PreferredEmails); !ok {
		assignErr = ErrNoOperator
	} else if err := h.platform.AssignOperator(ctx, conv.ID, op.ID); err != nil {
		assignErr = fmt.Errorf("failed to assign operator %d: %w", op.ID, err)
	} else {
		chosen = &op
	}

	// the conversation leaves bot management even when nobody could be assigned
	if err := h.platform.ToggleStatus(ctx, conv.ID, h.cfg.HumanStatus); err != nil {
		return chosen, errors.Join(assignErr, fmt.Errorf("failed to set status %q: %w", h.cfg.HumanStatus, err))
	}
	return chosen, assignErr
}

// PickOperator returns the first operator matching a preferred email, in preference
// order, else the first available operator.
func PickOperator(operators []platform.Operator, preferredEmails []string) (platform.Operator, bool) {
	for _, email := range preferredEmails {
		for _, op := range operators {
			if strings.EqualFold(op.Email, strings.TrimSpace(email)) {
				return op, true
			}
		}
	}
	for _, op := range operators {
		if op.Available() {
			return op, true
		}
	}
	return platform.Operator{}, false
}

func (h *Handler) writeAuditNote(ctx context.Context, conv Conversation, record Record, customerMessage string, reason Reason) error {
	_, err := h.platform.SendMessage(ctx, conv.ID, record.AuditNote(customerMessage, reason), true)
	return err
}

func (h *Handler) markEscalated(ctx context.Context, conv Conversation, reason Reason) error {
	attrs := make(map[string]interface{}, len(conv.CustomAttributes)+2)
	for k, v := range conv.CustomAttributes {
		attrs[k] = v
	}
	attrs["escalation_reason"] = string(reason)
	attrs["escalated_at"] = h.now().UTC().Format(time.RFC3339)
	return h.platform.UpdateCustomAttributes(ctx, conv.ID, attrs)
}

func (h *Handler) releaseLock(ctx context.Context, conv Conversation, reason Reason) error {
	if h.locks == nil {
		return nil
	}
	return h.locks.ReleaseEngagement(ctx, conv.ID, "escalation:"+string(reason))
}

func (h *Handler) publish(ctx context.Context, conv Conversation, res Result) {
	if h.bus == nil {
		return
	}

	failed := make([]string, 0, len(res.Failures))
	for _, f := range res.Failures {
		failed = append(failed, string(f.Step))
	}
	payload := map[string]interface{}{
		"reason":       string(res.Reason),
		"failed_steps": failed,
	}
	if res.Operator != nil {
		payload["operator_id"] = res.Operator.ID
	}

	if err := h.bus.Publish(ctx, eventbus.NewEvent(ctx, eventbus.EventConversationEscalated, conv.ID, payload)); err != nil {
		h.logger.WarnwCtx(ctx, "Failed to publish escalation event", "error", err)
	}
}
