package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"leadrouter/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", "15s")
	viper.SetDefault("server.write_timeout_seconds", "30s")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("dedup.store", constants.StoreTypeMemory)
	viper.SetDefault("dedup.on_store_error", constants.FallbackAllow)
	viper.SetDefault("migration.source", constants.PolicySourceStatic)
	viper.SetDefault("migration.workflow_engine_enabled", true)
}

func bindEnvVariables() {
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.job_topic", "BROKER_KAFKA_JOB_TOPIC")
	viper.BindEnv("broker.kafka.event_topic", "BROKER_KAFKA_EVENT_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("workflow.url", "WORKFLOW_URL")
	viper.BindEnv("platform.base_url", "PLATFORM_BASE_URL")
	viper.BindEnv("platform.account_id", "PLATFORM_ACCOUNT_ID")
	viper.BindEnv("platform.api_token", "PLATFORM_API_TOKEN")

	viper.BindEnv("migration.queue_backend_enabled", "MIGRATION_QUEUE_BACKEND_ENABLED")
	viper.BindEnv("migration.workflow_engine_enabled", "MIGRATION_WORKFLOW_ENGINE_ENABLED")
	viper.BindEnv("migration.traffic_percentage", "MIGRATION_TRAFFIC_PERCENTAGE")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	return nil
}

// ApplyDefaults fills policy constants that were left unset.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.WebhookPath == "" {
		cfg.Server.WebhookPath = "/webhooks/conversations"
	}

	if cfg.EventBus.HandlerTimeout <= 0 {
		cfg.EventBus.HandlerTimeout = constants.DefaultHandlerTimeout
	}
	if cfg.EventBus.HistorySize <= 0 {
		cfg.EventBus.HistorySize = constants.DefaultHistorySize
	}
	if cfg.EventBus.FailureThreshold == 0 {
		cfg.EventBus.FailureThreshold = constants.DefaultBreakerThreshold
	}
	if cfg.EventBus.Cooldown <= 0 {
		cfg.EventBus.Cooldown = constants.DefaultBreakerCooldown
	}

	if cfg.Dedup.Store == "" {
		cfg.Dedup.Store = constants.StoreTypeMemory
	}
	if cfg.Dedup.DuplicateWindow <= 0 {
		cfg.Dedup.DuplicateWindow = constants.DefaultDuplicateWindow
	}
	if cfg.Dedup.EchoWindow <= 0 {
		cfg.Dedup.EchoWindow = constants.DefaultEchoWindow
	}

	if cfg.Migration.Source == "" {
		cfg.Migration.Source = constants.PolicySourceStatic
	}
	if cfg.Migration.RedisKey == "" {
		cfg.Migration.RedisKey = constants.DefaultPolicyRedisKey
	}
	if cfg.Migration.CacheTTL <= 0 {
		cfg.Migration.CacheTTL = constants.DefaultPolicyCacheTTL
	}

	if cfg.Workflow.Timeout <= 0 {
		cfg.Workflow.Timeout = constants.DefaultWorkflowTimeout
	}
	if cfg.Platform.Timeout <= 0 {
		cfg.Platform.Timeout = constants.DefaultPlatformTimeout
	}

	if cfg.Escalation.HumanStatus == "" {
		cfg.Escalation.HumanStatus = constants.DefaultHumanStatus
	}
	if cfg.Escalation.HandoffMessage == "" {
		cfg.Escalation.HandoffMessage = constants.DefaultHandoffMessage
	}
	if cfg.Routing.EligibilityExpression == "" {
		cfg.Routing.EligibilityExpression = constants.DefaultEligibilityExpr
	}

	if cfg.Broker.Kafka.JobTopic == "" {
		cfg.Broker.Kafka.JobTopic = constants.DefaultJobTopic
	}
	if cfg.Broker.Kafka.EventTopic == "" {
		cfg.Broker.Kafka.EventTopic = constants.DefaultEventTopic
	}
}
