package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadrouter/internal/config"
	"leadrouter/internal/eventbus"
	"leadrouter/internal/logger"
	apperrors "leadrouter/pkg/errors"
	"leadrouter/pkg/models"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	failures int
	calls    int
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failures > 0 {
		w.failures--
		return errors.New("leader not available")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.messages...)
}

func testConfig() config.KafkaConfig {
	return config.KafkaConfig{
		JobTopic:   "route_jobs",
		EventTopic: "domain_events",
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2,
		},
	}
}

func testJob() models.RouteJob {
	return *models.NewRouteJobBuilder().
		WithConversation("42", "c-1").
		WithBroker("b-1", map[string]interface{}{"name": "Dana"}).
		WithMessage("m-1", "hello").
		Build()
}

func TestEnqueue_KeyedByConversation(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, testConfig(), logger.NopLogger())

	job := testJob()
	require.NoError(t, p.Enqueue(context.Background(), job))

	msgs := w.written()
	require.Len(t, msgs, 1)
	assert.Equal(t, "route_jobs", msgs[0].Topic)
	assert.Equal(t, "42", string(msgs[0].Key))

	var got models.RouteJob
	require.NoError(t, json.Unmarshal(msgs[0].Value, &got))
	assert.Equal(t, job.JobID, got.JobID)
	assert.Equal(t, "b-1", got.BrokerID)

	var sawJobHeader bool
	for _, h := range msgs[0].Headers {
		if h.Key == headerJobID {
			sawJobHeader = true
			assert.Equal(t, job.JobID, string(h.Value))
		}
	}
	assert.True(t, sawJobHeader)
}

func TestEnqueue_RetriesTransientFailures(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := NewProducerWithWriter(w, testConfig(), logger.NopLogger())

	require.NoError(t, p.Enqueue(context.Background(), testJob()))
	assert.Equal(t, 3, w.calls)
	assert.Len(t, w.written(), 1)
}

func TestEnqueue_GivesUpAfterPolicy(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := NewProducerWithWriter(w, testConfig(), logger.NopLogger())

	err := p.Enqueue(context.Background(), testJob())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
	assert.Equal(t, 3, w.calls)
}

func TestEnqueue_InvalidJobNotWritten(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, testConfig(), logger.NopLogger())

	err := p.Enqueue(context.Background(), models.RouteJob{ConversationID: "42"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, 0, w.calls)
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{}, logger.NopLogger())
	assert.Error(t, err)
}

func TestEventForwarder(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, testConfig(), logger.NopLogger())
	bus := eventbus.New(eventbus.DefaultOptions(), logger.NopLogger())
	defer bus.Close()

	detach := NewEventForwarder(p, logger.NopLogger()).Attach(bus, eventbus.EventMessageRouted)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, eventbus.NewEvent(ctx, eventbus.EventMessageRouted, "42", map[string]interface{}{"backend": "queue"})))

	msgs := w.written()
	require.Len(t, msgs, 1)
	assert.Equal(t, "domain_events", msgs[0].Topic)
	assert.Equal(t, "42", string(msgs[0].Key))

	var ev eventbus.Event
	require.NoError(t, json.Unmarshal(msgs[0].Value, &ev))
	assert.Equal(t, eventbus.EventMessageRouted, ev.EventType)

	detach()
	require.NoError(t, bus.Publish(ctx, eventbus.NewEvent(ctx, eventbus.EventMessageRouted, "43", nil)))
	assert.Len(t, w.written(), 1)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
