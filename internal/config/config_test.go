package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{Port: 8080},
		Migration: MigrationConfig{
			Source:                "static",
			WorkflowEngineEnabled: true,
			TrafficPercentage:     25,
		},
		Workflow: WorkflowConfig{URL: "http://n8n.local/webhook/lead"},
		Platform: PlatformConfig{BaseURL: "http://chat.local", AccountID: 1},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidateStatic_Valid(t *testing.T) {
	require.NoError(t, ValidateStatic(validConfig()))
}

func TestValidateStatic_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "bad port",
			mutate: func(c *Config) { c.Server.Port = 0 },
		},
		{
			name:   "traffic percentage above 100",
			mutate: func(c *Config) { c.Migration.TrafficPercentage = 101 },
		},
		{
			name:   "redis dedup store without redis",
			mutate: func(c *Config) { c.Dedup.Store = "redis" },
		},
		{
			name:   "unknown dedup store",
			mutate: func(c *Config) { c.Dedup.Store = "memcached" },
		},
		{
			name:   "workflow enabled without url",
			mutate: func(c *Config) { c.Workflow.URL = "" },
		},
		{
			name:   "missing platform url",
			mutate: func(c *Config) { c.Platform.BaseURL = "" },
		},
		{
			name:   "kafka without brokers",
			mutate: func(c *Config) { c.Broker.Type = "kafka" },
		},
		{
			name:   "unknown on_store_error",
			mutate: func(c *Config) { c.Dedup.OnStoreError = "explode" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, ValidateStatic(cfg))
		})
	}
}

func TestValidateStatic_WorkflowDisabledNeedsNoURL(t *testing.T) {
	cfg := validConfig()
	cfg.Workflow.URL = ""
	cfg.Migration.WorkflowEngineEnabled = false
	assert.NoError(t, ValidateStatic(cfg))
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, 5*time.Second, cfg.EventBus.HandlerTimeout)
	assert.Equal(t, 100, cfg.EventBus.HistorySize)
	assert.Equal(t, uint32(3), cfg.EventBus.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.EventBus.Cooldown)
	assert.Equal(t, 5*time.Minute, cfg.Dedup.DuplicateWindow)
	assert.Equal(t, "memory", cfg.Dedup.Store)
	assert.Equal(t, "route_jobs", cfg.Broker.Kafka.JobTopic)
	assert.Equal(t, "/webhooks/conversations", cfg.Server.WebhookPath)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
platform:
  base_url: http://chat.local
  account_id: 3
  api_token: secret
workflow:
  url: http://n8n.local/webhook/lead
  timeout: 3s
migration:
  queue_backend_enabled: true
  traffic_percentage: 40
  phase: canary
eventbus:
  handler_timeout: 2s
dedup:
  duplicate_window: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Platform.AccountID)
	assert.Equal(t, 3*time.Second, cfg.Workflow.Timeout)
	assert.True(t, cfg.Migration.QueueBackendEnabled)
	assert.True(t, cfg.Migration.WorkflowEngineEnabled)
	assert.Equal(t, 40, cfg.Migration.TrafficPercentage)
	assert.Equal(t, "canary", cfg.Migration.Phase)
	assert.Equal(t, 2*time.Second, cfg.EventBus.HandlerTimeout)
	assert.Equal(t, time.Minute, cfg.Dedup.DuplicateWindow)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
