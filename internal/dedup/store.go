package dedup

import (
	"context"
	"time"
)

// Store is a set of fingerprints with per-key expiry.
type Store interface {
	// Add records key for ttl and reports whether it was absent before.
	Add(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Contains(ctx context.Context, key string) (bool, error)
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	Name() string
}
