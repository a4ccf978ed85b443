// Package cache provides optional key-value caching for chain reads.
//
// Caching is advisory: every cached value can be recomputed from chain
// state, so cache failures degrade to direct reads instead of errors.
package cache

import (
	"context"
	"time"
)

// Cache stores short-lived strings keyed by chain/protocol/asset tuples.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) (string, bool)

	// Set stores value under key for at most ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration)

	// Delete removes key if present.
	Delete(ctx context.Context, key string)

	// Close releases any underlying connections.
	Close() error
}

// NoOpCache satisfies Cache without storing anything. It is the default
// when no Redis address is configured.
type NoOpCache struct{}

func (NoOpCache) Get(ctx context.Context, key string) (string, bool)       { return "", false }
func (NoOpCache) Set(ctx context.Context, key, value string, ttl time.Duration) {}
func (NoOpCache) Delete(ctx context.Context, key string)                   {}
func (NoOpCache) Close() error                                             { return nil }
