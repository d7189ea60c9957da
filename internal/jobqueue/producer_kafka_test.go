package jobqueue

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"leadrouter/internal/config"
	"leadrouter/internal/logger"
	"leadrouter/pkg/models"
)

func setupKafka(t *testing.T) []string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	if err != nil {
		t.Skipf("kafka container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func TestProducer_EnqueueAgainstBroker(t *testing.T) {
	brokers := setupKafka(t)
	createTopic(t, brokers[0], "route_jobs")

	cfg := config.KafkaConfig{
		Brokers:    brokers,
		JobTopic:   "route_jobs",
		EventTopic: "domain_events",
		Retry: config.RetryConfig{
			MaxAttempts:     5,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     time.Second,
			Multiplier:      2,
		},
	}
	p, err := NewProducer(cfg, logger.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	job := testJob()
	require.NoError(t, p.Enqueue(ctx, job))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     "route_jobs",
		Partition: 0,
		MaxWait:   500 * time.Millisecond,
	})
	t.Cleanup(func() { _ = reader.Close() })
	require.NoError(t, reader.SetOffset(kafka.FirstOffset))

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)

	assert.Equal(t, "42", string(msg.Key))
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, job.JobID, headers[headerJobID])
	assert.Equal(t, "42", headers[headerConversationID])

	var got models.RouteJob
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, job.JobID, got.JobID)
	assert.Equal(t, "b-1", got.BrokerID)
	assert.Equal(t, "hello", got.UserMessage)
}
