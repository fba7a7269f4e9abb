package cache

import (
	"context"
	"time"
)

// Cache is the public contract of a tiered cache keyed by string.
// All methods are safe for concurrent use by multiple goroutines.
// Both *Manager and the distributed manager implement it.
type Cache[V any] interface {
	// Get returns the value for key and whether it was present.
	// A warm-tier hit promotes the entry into the hot tier.
	Get(key string) (V, bool)

	// Put inserts or replaces key→v using the configured DefaultTTL.
	// It fails with a *CapacityError when the value cannot be stored.
	Put(key string, v V) error

	// PutWithTTL is Put with a per-key TTL. A non-positive ttl disables
	// expiration for this entry.
	PutWithTTL(key string, v V, ttl time.Duration) error

	// Remove deletes key from whichever tier holds it.
	Remove(key string) bool

	// Clear drops both tiers and resets every counter.
	Clear()

	// BatchGet returns the present keys; missing keys are omitted.
	BatchGet(keys []string) map[string]V

	// BatchPut stores entries in sorted key order and stops at the first
	// error. Entries written before the failure stay applied.
	BatchPut(entries map[string]V) error

	// BatchPutWithTTL is BatchPut with a shared per-key TTL.
	BatchPutWithTTL(entries map[string]V, ttl time.Duration) error

	// WarmUp preloads entries with the BatchPut contract.
	WarmUp(ctx context.Context, entries map[string]V) error

	Contains(key string) bool
	Keys() []string
	Size() int64
	Len() int

	Stats() Stats
	ResetStats()

	// Close stops background work. Later writes fail with ErrClosed.
	Close() error
}
