package config

import (
	"fmt"
	"net/url"
	"strings"

	"leadrouter/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	validators := []func(*Config) error{
		func(c *Config) error { return validateServer(c.Server) },
		func(c *Config) error { return validateBroker(c.Broker) },
		func(c *Config) error { return validateDatabase(c.Database) },
		func(c *Config) error { return validateDedup(c.Dedup, c.Database) },
		func(c *Config) error { return validateMigration(c.Migration, c.Database) },
		func(c *Config) error { return validateWorkflow(c.Workflow, c.Migration) },
		func(c *Config) error { return validatePlatform(c.Platform) },
		func(c *Config) error { return validateEventBus(c.EventBus) },
	}

	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if !strings.HasPrefix(cfg.WebhookPath, "/") {
		return &ValidationError{
			Field:   "server.webhook_path",
			Message: "webhook path must start with /",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.Type == "" {
		return nil // job queue backend is optional
	}

	if cfg.Type != "kafka" {
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Type),
		}
	}

	return validateKafka(cfg.Kafka)
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be non-negative",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateDedup(cfg DedupConfig, db DatabaseConfig) error {
	switch strings.ToLower(cfg.Store) {
	case constants.StoreTypeMemory:
	case constants.StoreTypeRedis:
		if db.Redis.Host == "" {
			return &ValidationError{
				Field:   "dedup.store",
				Message: "redis store requires database.redis to be configured",
			}
		}
	default:
		return &ValidationError{
			Field:   "dedup.store",
			Message: fmt.Sprintf("invalid store: %s (valid: memory, redis)", cfg.Store),
		}
	}

	validOnError := map[string]bool{
		constants.FallbackAllow: true, constants.FallbackReject: true,
	}
	if cfg.OnStoreError != "" && !validOnError[strings.ToLower(cfg.OnStoreError)] {
		return &ValidationError{
			Field:   "dedup.on_store_error",
			Message: fmt.Sprintf("invalid on_store_error value: %s (valid: allow, reject)", cfg.OnStoreError),
		}
	}

	return nil
}

func validateMigration(cfg MigrationConfig, db DatabaseConfig) error {
	if cfg.TrafficPercentage < 0 || cfg.TrafficPercentage > 100 {
		return &ValidationError{
			Field:   "migration.traffic_percentage",
			Message: fmt.Sprintf("traffic percentage must be between 0 and 100, got %d", cfg.TrafficPercentage),
		}
	}

	switch cfg.Source {
	case constants.PolicySourceStatic:
	case constants.PolicySourceRedis:
		if db.Redis.Host == "" {
			return &ValidationError{
				Field:   "migration.source",
				Message: "redis policy source requires database.redis to be configured",
			}
		}
	default:
		return &ValidationError{
			Field:   "migration.source",
			Message: fmt.Sprintf("invalid policy source: %s (valid: static, redis)", cfg.Source),
		}
	}

	return nil
}

func validateWorkflow(cfg WorkflowConfig, migration MigrationConfig) error {
	if cfg.URL == "" {
		if migration.Source == constants.PolicySourceStatic && migration.WorkflowEngineEnabled {
			return &ValidationError{
				Field:   "workflow.url",
				Message: "workflow URL is required when the workflow engine is enabled",
			}
		}
		return nil
	}

	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return &ValidationError{
			Field:   "workflow.url",
			Message: fmt.Sprintf("invalid URL: %v", err),
		}
	}

	return nil
}

func validatePlatform(cfg PlatformConfig) error {
	if cfg.BaseURL == "" {
		return &ValidationError{
			Field:   "platform.base_url",
			Message: "conversation platform base URL is required",
		}
	}

	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return &ValidationError{
			Field:   "platform.base_url",
			Message: fmt.Sprintf("invalid URL: %v", err),
		}
	}

	if cfg.AccountID <= 0 {
		return &ValidationError{
			Field:   "platform.account_id",
			Message: "account ID must be positive",
		}
	}

	return nil
}

func validateEventBus(cfg EventBusConfig) error {
	if cfg.HistorySize < 0 {
		return &ValidationError{
			Field:   "eventbus.history_size",
			Message: "history size must be non-negative",
		}
	}

	return nil
}
