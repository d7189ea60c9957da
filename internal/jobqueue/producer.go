package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"

	"leadrouter/internal/config"
	"leadrouter/internal/constants"
	"leadrouter/internal/logger"
	apperrors "leadrouter/pkg/errors"
	"leadrouter/pkg/metrics"
	"leadrouter/pkg/models"
	"leadrouter/pkg/retry"
	"leadrouter/pkg/tracing"
)

const (
	headerJobID          = "job_id"
	headerConversationID = "conversation_id"
)

// Writer is the subset of *kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer     Writer
	jobTopic   string
	eventTopic string
	policy     retry.Policy
	logger     logger.Logger
}

func NewProducer(cfg config.KafkaConfig, log logger.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka producer requires at least one broker")
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return NewProducerWithWriter(w, cfg, log), nil
}

func NewProducerWithWriter(w Writer, cfg config.KafkaConfig, log logger.Logger) *Producer {
	jobTopic := cfg.JobTopic
	if jobTopic == "" {
		jobTopic = constants.DefaultJobTopic
	}
	eventTopic := cfg.EventTopic
	if eventTopic == "" {
		eventTopic = constants.DefaultEventTopic
	}

	return &Producer{
		writer:     w,
		jobTopic:   jobTopic,
		eventTopic: eventTopic,
		policy: retry.Policy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
			Multiplier:      cfg.Retry.Multiplier,
			MaxElapsedTime:  cfg.Retry.MaxElapsedTime,
		}.WithDefaults(),
		logger: log,
	}
}

// Enqueue writes the job keyed by conversation id, so jobs of one conversation stay ordered.
func (p *Producer) Enqueue(ctx context.Context, job models.RouteJob) error {
	ctx, span := tracing.StartSpan(ctx, "jobqueue.enqueue",
		attribute.String("conversation_id", job.ConversationID),
		attribute.String("job_id", job.JobID),
	)
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	if err = models.ValidateRouteJob(&job); err != nil {
		err = apperrors.ErrValidation.WithCause(err)
		return err
	}

	body, mErr := json.Marshal(job)
	if mErr != nil {
		err = fmt.Errorf("failed to marshal route job: %w", mErr)
		return err
	}

	headers := []kafka.Header{
		{Key: headerJobID, Value: []byte(job.JobID)},
		{Key: headerConversationID, Value: []byte(job.ConversationID)},
	}
	headers = tracing.InjectTraceContext(ctx, headers)

	err = p.write(ctx, p.jobTopic, kafka.Message{
		Topic:   p.jobTopic,
		Key:     []byte(job.ConversationID),
		Value:   body,
		Headers: headers,
		Time:    time.Now(),
	})
	if err != nil {
		return err
	}

	p.logger.InfowCtx(ctx, "Route job enqueued",
		"job_id", job.JobID,
		"broker_id", job.BrokerID,
		"topic", p.jobTopic,
	)
	return nil
}

func (p *Producer) publishRaw(ctx context.Context, key string, body []byte) error {
	headers := tracing.InjectTraceContext(ctx, []kafka.Header{})
	return p.write(ctx, p.eventTopic, kafka.Message{
		Topic:   p.eventTopic,
		Key:     []byte(key),
		Value:   body,
		Headers: headers,
		Time:    time.Now(),
	})
}

func (p *Producer) write(ctx context.Context, topic string, msg kafka.Message) error {
	start := time.Now()

	err := retry.Do(ctx, p.policy, func() error {
		return p.writer.WriteMessages(ctx, msg)
	}, func(attempt int, err error, next time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(constants.ServiceName, topic).Inc()
		p.logger.WarnwCtx(ctx, "Retrying kafka write",
			"attempt", attempt,
			"max_attempts", p.policy.MaxAttempts,
			"next_delay", next,
			"error", err,
			"topic", topic,
		)
	})

	metrics.ObserveKafkaWriteDuration(constants.ServiceName, topic, time.Since(start))
	if err != nil {
		return apperrors.ErrServiceUnavailable.
			WithMessage("failed to write kafka message to %s", topic).
			WithCause(err)
	}

	metrics.IncKafkaMessagesWritten(constants.ServiceName, topic)
	metrics.ObserveKafkaMessageSize(constants.ServiceName, topic, len(msg.Value))
	return nil
}

func (p *Producer) JobTopic() string {
	return p.jobTopic
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
