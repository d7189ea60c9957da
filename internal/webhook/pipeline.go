package webhook

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"leadrouter/internal/classifier"
	"leadrouter/internal/constants"
	"leadrouter/internal/dedup"
	"leadrouter/internal/eventbus"
	"leadrouter/internal/logger"
	"leadrouter/internal/routing"
	"leadrouter/pkg/cel"
	apperrors "leadrouter/pkg/errors"
	"leadrouter/pkg/logging"
	"leadrouter/pkg/metrics"
	"leadrouter/pkg/tracing"
)

const eventMessageCreated = "message_created"

// Result is the webhook response body.
type Result struct {
	Received    bool   `json:"received"`
	Skipped     string `json:"skipped,omitempty"`
	ProcessedBy string `json:"processed_by,omitempty"`
}

type Router interface {
	Route(ctx context.Context, ev classifier.InboundEvent) (routing.Outcome, error)
}

// Pipeline takes one webhook body from decoding through routing.
type Pipeline struct {
	eligibility *cel.Predicate
	suppressor  *dedup.Suppressor
	router      Router
	bus         *eventbus.Bus
	logger      logger.Logger
}

func NewPipeline(eligibility *cel.Predicate, suppressor *dedup.Suppressor, router Router, bus *eventbus.Bus, log logger.Logger) *Pipeline {
	return &Pipeline{
		eligibility: eligibility,
		suppressor:  suppressor,
		router:      router,
		bus:         bus,
		logger:      log,
	}
}

// Process returns an error only for an undecodable body, a rejecting fingerprint
// store, or a message no backend could take.
func (p *Pipeline) Process(ctx context.Context, raw []byte) (Result, error) {
	ev, err := classifier.Normalize(raw)
	if err != nil {
		return Result{}, apperrors.ErrValidation.WithMessage("invalid webhook body").WithCause(err)
	}

	ctx = logging.WithConversationID(ctx, ev.ConversationID)
	ctx, span := tracing.StartSpan(ctx, "webhook.process",
		attribute.String("conversation_id", ev.ConversationID),
		attribute.String("message_id", ev.MessageID),
		attribute.String("shape", ev.Shape.String()),
	)
	var procErr error
	defer func() { tracing.EndSpan(span, procErr) }()

	if reason, skip := p.screen(ctx, ev); skip {
		return p.skip(ctx, ev, reason), nil
	}

	verdict, err := p.suppressor.Check(ctx, ev.ConversationID, ev.MessageID, ev.Content)
	if err != nil {
		procErr = apperrors.ErrServiceUnavailable.WithMessage("duplicate check unavailable").WithCause(err)
		return Result{}, procErr
	}
	if verdict.Suppressed {
		metrics.IncSuppressed(verdict.Reason)
		p.publish(ctx, eventbus.NewEvent(ctx, eventbus.EventMessageSuppressed, ev.ConversationID, map[string]interface{}{
			"reason":     verdict.Reason,
			"message_id": ev.MessageID,
		}))
		return p.skip(ctx, ev, verdict.Reason), nil
	}

	out, err := p.router.Route(ctx, ev)
	if err != nil {
		// the platform retries a 500, so the redelivery must not be taken for a duplicate
		if forgetErr := p.suppressor.Forget(ctx, ev.ConversationID, ev.MessageID, ev.Content); forgetErr != nil {
			p.logger.ErrorwCtx(ctx, "Failed to release fingerprints of unrouted message",
				"message_id", ev.MessageID,
				"error", forgetErr,
			)
		}
		procErr = err
		return Result{}, err
	}

	p.logger.InfowCtx(ctx, "Webhook processed",
		"message_id", ev.MessageID,
		"processed_by", out.Backend,
	)
	return Result{Received: true, ProcessedBy: string(out.Backend)}, nil
}

// screen applies the checks that need no store: event kind, classification,
// privacy and the bot-managed eligibility expression.
func (p *Pipeline) screen(ctx context.Context, ev classifier.InboundEvent) (string, bool) {
	if ev.EventName != "" && ev.EventName != eventMessageCreated {
		return constants.SkipNotMessageCreated, true
	}

	class := classifier.Classify(ev)
	metrics.IncClassification(string(class))
	switch class {
	case classifier.Outgoing:
		return constants.SkipOutgoing, true
	case classifier.Activity:
		return constants.SkipActivity, true
	}

	if ev.Private {
		return constants.SkipPrivate, true
	}

	ok, err := p.eligibility.Eval(ctx, cel.Vars{
		Status:           conversationStatus(ev),
		SenderType:       ev.SenderType,
		MessageType:      classifier.NormalizeMessageType(ev.MessageType).String(),
		Content:          ev.Content,
		Private:          ev.Private,
		CustomAttributes: ev.CustomAttributes,
	})
	if err != nil {
		p.logger.WarnwCtx(ctx, "Eligibility expression failed, skipping message",
			"expression", p.eligibility.Expression(),
			"error", err,
		)
		return constants.SkipNotBotManaged, true
	}
	if !ok {
		return constants.SkipNotBotManaged, true
	}
	return "", false
}

// conversationStatus prefers the platform status, then the custom attribute,
// then the bot default.
func conversationStatus(ev classifier.InboundEvent) string {
	if ev.ConversationStatus != "" {
		return ev.ConversationStatus
	}
	if s := ev.AttributeString("conversation_status"); s != "" {
		return s
	}
	return constants.DefaultConversationStatus
}

func (p *Pipeline) skip(ctx context.Context, ev classifier.InboundEvent, reason string) Result {
	p.logger.DebugwCtx(ctx, "Webhook skipped",
		"message_id", ev.MessageID,
		"reason", reason,
	)
	return Result{Received: true, Skipped: reason}
}

func (p *Pipeline) publish(ctx context.Context, ev eventbus.Event) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, ev); err != nil {
		p.logger.WarnwCtx(ctx, "Failed to publish event",
			"event_type", ev.EventType,
			"error", err,
		)
	}
}
