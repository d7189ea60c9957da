package dedup

import (
	"context"
	"fmt"
	"time"

	"leadrouter/internal/config"
	"leadrouter/pkg/circuitbreaker"
)

// CircuitBreakerStore fails fast while the wrapped store is unhealthy.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerStore(store Store, cfg config.CircuitBreakerConfig) Store {
	if !cfg.Enabled {
		return store
	}
	return &CircuitBreakerStore{
		store: store,
		cb:    circuitbreaker.NewWrapper(circuitbreaker.FromConfig(store.Name()+"-dedup", cfg)),
	}
}

func (s *CircuitBreakerStore) Name() string {
	return s.store.Name()
}

func (s *CircuitBreakerStore) Add(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.execute(ctx, func() (bool, error) { return s.store.Add(ctx, key, ttl) })
}

func (s *CircuitBreakerStore) Contains(ctx context.Context, key string) (bool, error) {
	return s.execute(ctx, func() (bool, error) { return s.store.Contains(ctx, key) })
}

func (s *CircuitBreakerStore) Remove(ctx context.Context, key string) error {
	_, err := s.execute(ctx, func() (bool, error) { return true, s.store.Remove(ctx, key) })
	return err
}

func (s *CircuitBreakerStore) execute(ctx context.Context, fn func() (bool, error)) (bool, error) {
	result, err := s.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if s.cb.IsOpen() {
			return false, fmt.Errorf("circuit breaker is open for %s: %w", s.cb.Name(), err)
		}
		return false, err
	}

	ok, _ := result.(bool)
	return ok, nil
}
