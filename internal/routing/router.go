package routing

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"leadrouter/internal/assignment"
	"leadrouter/internal/classifier"
	"leadrouter/internal/constants"
	"leadrouter/internal/escalation"
	"leadrouter/internal/eventbus"
	"leadrouter/internal/logger"
	"leadrouter/internal/migration"
	"leadrouter/internal/workflow"
	apperrors "leadrouter/pkg/errors"
	"leadrouter/pkg/metrics"
	"leadrouter/pkg/models"
	"leadrouter/pkg/tracing"
)

type Backend string

const (
	BackendQueue      Backend = "queue"
	BackendWorkflow   Backend = "workflow"
	BackendEscalation Backend = "escalation"
	BackendNone       Backend = "none"
)

const leadScoreAttribute = "lead_score"

type Enqueuer interface {
	Enqueue(ctx context.Context, job models.RouteJob) error
}

type WorkflowInvoker interface {
	Invoke(ctx context.Context, payload workflow.Payload) (workflow.Result, error)
}

type Escalator interface {
	Escalate(ctx context.Context, conv escalation.Conversation, customerMessage string, reason escalation.Reason) escalation.Result
}

// Outcome describes how a message was handled.
type Outcome struct {
	Backend          Backend
	Plan             []Strategy
	Attempted        []Strategy
	JobID            string
	Handoff          bool
	EscalationReason escalation.Reason
}

type Router struct {
	policy    migration.Source
	brokers   assignment.Store
	queue     Enqueuer
	workflow  WorkflowInvoker
	escalator Escalator
	bus       *eventbus.Bus
	logger    logger.Logger
}

type Option func(*Router)

func WithQueue(q Enqueuer) Option {
	return func(r *Router) { r.queue = q }
}

func WithWorkflow(w WorkflowInvoker) Option {
	return func(r *Router) { r.workflow = w }
}

func NewRouter(policy migration.Source, brokers assignment.Store, escalator Escalator, bus *eventbus.Bus, log logger.Logger, opts ...Option) *Router {
	r := &Router{
		policy:    policy,
		brokers:   brokers,
		escalator: escalator,
		bus:       bus,
		logger:    log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route dispatches an eligible incoming message. The only error it returns wraps
// apperrors.ErrNoRoute, when no strategy could take the message.
func (r *Router) Route(ctx context.Context, ev classifier.InboundEvent) (Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "router.route",
		attribute.String("conversation_id", ev.ConversationID),
	)
	var routeErr error
	defer func() { tracing.EndSpan(span, routeErr) }()

	policy, err := r.policy.Current(ctx)
	if err != nil {
		r.logger.WarnwCtx(ctx, "Migration policy unavailable, using last known policy", "error", err)
	}
	// An unwired backend counts as disabled when splitting traffic.
	policy.QueueBackendEnabled = policy.QueueBackendEnabled && r.queue != nil
	policy.WorkflowEngineEnabled = policy.WorkflowEngineEnabled && r.workflow != nil
	decision := policy.Decide(ev.ConversationID)

	out := Outcome{Plan: Plan(decision, decision.WorkflowEnabled)}
	span.SetAttributes(attribute.Bool("use_queue", decision.UseQueue))

	var lastErr error
	for _, strategy := range out.Plan {
		out.Attempted = append(out.Attempted, strategy)

		switch strategy {
		case StrategyQueue:
			jobID, err := r.routeQueue(ctx, ev)
			if err == nil {
				out.Backend = BackendQueue
				out.JobID = jobID
				return r.finish(ctx, ev, out, nil)
			}
			lastErr = err
			r.fallback(ctx, strategy, err)

		case StrategyWorkflow:
			handoff, err := r.routeWorkflow(ctx, ev)
			if err == nil {
				out.Backend = BackendWorkflow
				out.Handoff = handoff
				return r.finish(ctx, ev, out, nil)
			}
			lastErr = err
			r.fallback(ctx, strategy, err)

		case StrategyEscalate:
			out.EscalationReason = escalationReason(out.Attempted)
			r.escalator.Escalate(ctx, escalation.ConversationFrom(ev), ev.Content, out.EscalationReason)
			metrics.IncRouteStrategyAttempt(string(strategy), "success")
			out.Backend = BackendEscalation
			return r.finish(ctx, ev, out, nil)

		case StrategyFatal:
			metrics.IncRouteStrategyAttempt(string(strategy), "failure")
			if lastErr == nil {
				lastErr = errors.New("no routing backend enabled")
			}
			out.Backend = BackendNone
			routeErr = apperrors.ErrNoRoute.
				WithMessage("no route for conversation %s", ev.ConversationID).
				WithCause(lastErr)
			return r.finish(ctx, ev, out, routeErr)
		}
	}

	// unreachable: every plan ends in a terminal strategy
	routeErr = apperrors.ErrNoRoute.WithCause(lastErr)
	return r.finish(ctx, ev, out, routeErr)
}

func (r *Router) routeQueue(ctx context.Context, ev classifier.InboundEvent) (string, error) {
	broker, err := r.brokers.Lookup(ctx, ev.ConversationID)
	if err != nil {
		metrics.IncRouteStrategyAttempt(string(StrategyQueue), "no_broker")
		if assignment.IsNoBroker(err) {
			return "", err
		}
		return "", fmt.Errorf("broker lookup failed: %w", err)
	}

	job := models.NewRouteJobBuilder().
		WithConversation(ev.ConversationID, ev.Contact.ID).
		WithBroker(broker.BrokerID, broker.PersonaAttributes).
		WithLeadSnapshot(copyMap(ev.CustomAttributes)).
		WithMessage(ev.MessageID, ev.Content).
		Build()

	if err := r.queue.Enqueue(ctx, *job); err != nil {
		metrics.IncRouteStrategyAttempt(string(StrategyQueue), "failure")
		return "", err
	}

	metrics.IncRouteStrategyAttempt(string(StrategyQueue), "success")
	r.logger.InfowCtx(ctx, "Message routed to job queue",
		"job_id", job.JobID,
		"broker_id", broker.BrokerID,
	)
	return job.JobID, nil
}

func (r *Router) routeWorkflow(ctx context.Context, ev classifier.InboundEvent) (bool, error) {
	res, err := r.workflow.Invoke(ctx, workflow.BuildPayload(ev))
	if err != nil {
		metrics.IncRouteStrategyAttempt(string(StrategyWorkflow), "failure")
		return false, err
	}
	metrics.IncRouteStrategyAttempt(string(StrategyWorkflow), "success")

	if res.Handoff {
		r.releaseBroker(ctx, ev.ConversationID)
	}
	return res.Handoff, nil
}

func (r *Router) releaseBroker(ctx context.Context, conversationID string) {
	if err := r.brokers.ReleaseEngagement(ctx, conversationID, "handoff"); err != nil {
		r.logger.WarnwCtx(ctx, "Failed to release broker engagement after handoff", "error", err)
		return
	}
	r.publish(ctx, eventbus.NewEvent(ctx, eventbus.EventBrokerReleased, conversationID, map[string]interface{}{
		"reason": "handoff",
	}))
}

func (r *Router) fallback(ctx context.Context, strategy Strategy, err error) {
	metrics.IncFallbackUsage(constants.ServiceName, string(strategy), fallbackReason(err))
	r.logger.WarnwCtx(ctx, "Routing strategy failed, falling back",
		"strategy", strategy,
		"error", err,
	)
}

func (r *Router) finish(ctx context.Context, ev classifier.InboundEvent, out Outcome, err error) (Outcome, error) {
	metrics.IncRouteOutcome(string(out.Backend))

	attempted := make([]string, 0, len(out.Attempted))
	for _, s := range out.Attempted {
		attempted = append(attempted, string(s))
	}
	payload := map[string]interface{}{
		"backend":    string(out.Backend),
		"attempted":  attempted,
		"message_id": ev.MessageID,
	}
	if out.EscalationReason != "" {
		payload["escalation_reason"] = string(out.EscalationReason)
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	r.publish(ctx, eventbus.NewEvent(ctx, eventbus.EventMessageRouted, ev.ConversationID, payload))

	if score, ok := ev.CustomAttributes[leadScoreAttribute]; ok && err == nil {
		r.publish(ctx, eventbus.NewEvent(ctx, eventbus.EventLeadScored, ev.ConversationID, map[string]interface{}{
			"lead_score": score,
			"backend":    string(out.Backend),
			"message_id": ev.MessageID,
		}))
	}

	if err != nil {
		r.logger.ErrorwCtx(ctx, "Message could not be routed", "error", err)
	}
	return out, err
}

func (r *Router) publish(ctx context.Context, ev eventbus.Event) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(ctx, ev); err != nil {
		r.logger.WarnwCtx(ctx, "Failed to publish event",
			"event_type", ev.EventType,
			"error", err,
		)
	}
}

func escalationReason(attempted []Strategy) escalation.Reason {
	var triedQueue bool
	for _, s := range attempted {
		switch s {
		case StrategyWorkflow:
			return escalation.ReasonWorkflowUnavailable
		case StrategyQueue:
			triedQueue = true
		}
	}
	if triedQueue {
		return escalation.ReasonQueueUnavailable
	}
	return escalation.ReasonNoBackend
}

func fallbackReason(err error) string {
	switch {
	case assignment.IsNoBroker(err):
		return "no_broker"
	case errors.Is(err, apperrors.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, apperrors.ErrUpstream):
		return "upstream_error"
	case errors.Is(err, apperrors.ErrServiceUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
