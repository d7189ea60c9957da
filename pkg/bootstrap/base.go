package bootstrap

import (
	"context"
	"fmt"

	"leadrouter/internal/config"
	"leadrouter/internal/jobqueue"
	"leadrouter/internal/logger"
)

// Base holds what every long-running command needs before wiring its own components.
type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Producer *jobqueue.Producer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitProducer connects the job-queue producer. It is a no-op when no broker is configured.
func (b *Base) InitProducer() error {
	if b.Config.Broker.Type == "" {
		b.Logger.Info("No job queue broker configured, queue backend unavailable")
		return nil
	}

	producer, err := jobqueue.NewProducer(b.Config.Broker.Kafka, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}

	b.Producer = producer
	return nil
}

func (b *Base) ShutdownProducer() []error {
	var errs []error

	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	errs = append(errs, b.ShutdownProducer()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
