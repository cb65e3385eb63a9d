// Package cache provides a small age-aware key/value cache with an in-process
// LRU implementation and a Redis implementation shared across replicas.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values together with the time they were written.
// Get reports a miss for entries older than maxAge; maxAge <= 0 disables the age check.
type Cache interface {
	Get(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

func fresh(storedAt, now time.Time, maxAge time.Duration) bool {
	return maxAge <= 0 || now.Sub(storedAt) <= maxAge
}
