package migration

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"leadrouter/internal/config"
)

func TestBucket_Stable(t *testing.T) {
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("conv-%d", i)
		b := Bucket(id)
		assert.Equal(t, b, Bucket(id))
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 100)
	}
}

func TestSelectedForQueue_Bounds(t *testing.T) {
	tests := []struct {
		name string
		pct  int
		want bool
	}{
		{name: "zero never selects", pct: 0, want: false},
		{name: "negative clamps to zero", pct: -5, want: false},
		{name: "hundred always selects", pct: 100, want: true},
		{name: "above hundred clamps", pct: 150, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Policy{TrafficPercentage: tt.pct}
			for i := 0; i < 20; i++ {
				assert.Equal(t, tt.want, p.SelectedForQueue(fmt.Sprintf("c-%d", i)))
			}
		})
	}
}

func TestSelectedForQueue_Partial(t *testing.T) {
	p := Policy{TrafficPercentage: 30}
	selected := 0
	const n = 2000
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("conversation-%d", i)
		if p.SelectedForQueue(id) {
			selected++
			assert.Less(t, Bucket(id), 30)
		}
	}
	assert.InDelta(t, 0.30, float64(selected)/n, 0.08)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		wantQueue bool
	}{
		{
			name:      "full rollout",
			policy:    Policy{QueueBackendEnabled: true, WorkflowEngineEnabled: true, TrafficPercentage: 100},
			wantQueue: true,
		},
		{
			name:      "no rollout",
			policy:    Policy{QueueBackendEnabled: true, WorkflowEngineEnabled: true, TrafficPercentage: 0},
			wantQueue: false,
		},
		{
			name:      "engine disabled forces queue",
			policy:    Policy{QueueBackendEnabled: true, WorkflowEngineEnabled: false, TrafficPercentage: 0},
			wantQueue: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.policy.Decide("42")
			assert.Equal(t, tt.wantQueue, d.UseQueue)
			assert.Equal(t, tt.policy.QueueBackendEnabled, d.QueueEnabled)
			assert.Equal(t, tt.policy.WorkflowEngineEnabled, d.WorkflowEnabled)
		})
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.MigrationConfig{
		QueueBackendEnabled:   true,
		WorkflowEngineEnabled: true,
		TrafficPercentage:     120,
		Phase:                 "Canary",
	})
	assert.Equal(t, 100, p.TrafficPercentage)
	assert.Equal(t, PhaseCanary, p.Phase)
	assert.Equal(t, PhaseWorkflow, ParsePhase("something"))
}

func TestStaticSource(t *testing.T) {
	want := Policy{QueueBackendEnabled: true, TrafficPercentage: 10, Phase: PhaseCanary}
	got, err := NewStaticSource(want).Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParsePolicy_KeepsFallbackForMissingFields(t *testing.T) {
	fallback := Policy{WorkflowEngineEnabled: true, TrafficPercentage: 5, Phase: PhaseWorkflow}
	p := parsePolicy(map[string]string{
		fieldQueueEnabled: "true",
		fieldTraffic:      "not-a-number",
	}, fallback)

	assert.True(t, p.QueueBackendEnabled)
	assert.True(t, p.WorkflowEngineEnabled)
	assert.Equal(t, 5, p.TrafficPercentage)
	assert.Equal(t, PhaseWorkflow, p.Phase)
}

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisSource(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	fallback := Policy{WorkflowEngineEnabled: true, Phase: PhaseWorkflow}
	src := NewRedisSource(client, "migration:policy", time.Minute, fallback)

	p, err := src.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, fallback, p)

	want := Policy{QueueBackendEnabled: true, WorkflowEngineEnabled: true, TrafficPercentage: 40, Phase: PhaseRollout}
	require.NoError(t, src.Set(ctx, want))

	p, err = src.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, p)

	// a write from elsewhere stays invisible until the cache expires
	require.NoError(t, client.HSet(ctx, "migration:policy", fieldTraffic, "90").Err())
	p, err = src.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, p.TrafficPercentage)

	src.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	p, err = src.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 90, p.TrafficPercentage)
}

func TestRedisSource_ErrorReturnsLastKnown(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	src := NewRedisSource(client, "migration:policy", time.Millisecond, Policy{Phase: PhaseWorkflow})
	require.NoError(t, src.Set(ctx, Policy{QueueBackendEnabled: true, TrafficPercentage: 70, Phase: PhaseRollout}))

	_, err := src.Current(ctx)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	time.Sleep(5 * time.Millisecond)

	p, err := src.Current(ctx)
	assert.Error(t, err)
	assert.Equal(t, 70, p.TrafficPercentage)
}

type commandCounter struct{ n atomic.Int32 }

func (c *commandCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (c *commandCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		c.n.Add(1)
		return next(ctx, cmd)
	}
}

func (c *commandCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisSource_FailureIsCachedForTTL(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			return nil, fmt.Errorf("connection refused")
		},
	})
	t.Cleanup(func() { _ = client.Close() })
	counter := &commandCounter{}
	client.AddHook(counter)

	fallback := Policy{WorkflowEngineEnabled: true, Phase: PhaseWorkflow}
	src := NewRedisSource(client, "migration:policy", time.Minute, fallback)
	start := time.Now()
	src.now = func() time.Time { return start }

	p, err := src.Current(context.Background())
	assert.Error(t, err)
	assert.Equal(t, fallback, p)
	assert.Equal(t, int32(1), counter.n.Load())

	for i := 0; i < 5; i++ {
		p, err = src.Current(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fallback, p)
	}
	assert.Equal(t, int32(1), counter.n.Load())

	src.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = src.Current(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(2), counter.n.Load())
}
