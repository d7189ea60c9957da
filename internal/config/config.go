package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	EventBus       EventBusConfig `mapstructure:"eventbus"`
	Dedup          DedupConfig
	Migration      MigrationConfig
	Workflow       WorkflowConfig
	Platform       PlatformConfig
	Escalation     EscalationConfig
	Routing        RoutingConfig
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
	WebhookPath         string        `mapstructure:"webhook_path"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig
	Redis         RedisConfig
	RunMigrations bool `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers    []string    `mapstructure:"brokers"`
	JobTopic   string      `mapstructure:"job_topic"`
	EventTopic string      `mapstructure:"event_topic"`
	Retry      RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type EventBusConfig struct {
	HandlerTimeout   time.Duration `mapstructure:"handler_timeout"`
	HistorySize      int           `mapstructure:"history_size"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
	ForwardEvents    bool          `mapstructure:"forward_events"`
}

type DedupConfig struct {
	Store           string        `mapstructure:"store"` // "memory" or "redis"
	DuplicateWindow time.Duration `mapstructure:"duplicate_window"`
	EchoWindow      time.Duration `mapstructure:"echo_window"`
	OnStoreError    string        `mapstructure:"on_store_error"` // "allow" or "reject"
}

type MigrationConfig struct {
	Source                string        `mapstructure:"source"` // "static" or "redis"
	QueueBackendEnabled   bool          `mapstructure:"queue_backend_enabled"`
	WorkflowEngineEnabled bool          `mapstructure:"workflow_engine_enabled"`
	TrafficPercentage     int           `mapstructure:"traffic_percentage"`
	Phase                 string        `mapstructure:"phase"`
	RedisKey              string        `mapstructure:"redis_key"`
	CacheTTL              time.Duration `mapstructure:"cache_ttl"`
}

type WorkflowConfig struct {
	URL     string            `mapstructure:"url"`
	Timeout time.Duration     `mapstructure:"timeout"`
	Headers map[string]string `mapstructure:"headers"`
}

type PlatformConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	AccountID int           `mapstructure:"account_id"`
	APIToken  string        `mapstructure:"api_token"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type EscalationConfig struct {
	HandoffMessage  string   `mapstructure:"handoff_message"`
	PreferredEmails []string `mapstructure:"preferred_emails"`
	HumanStatus     string   `mapstructure:"human_status"`
}

type RoutingConfig struct {
	EligibilityExpression string `mapstructure:"eligibility_expression"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
