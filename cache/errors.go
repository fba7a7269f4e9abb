package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacity matches every *CapacityError.
	ErrCapacity = errors.New("cache: capacity exceeded")
	// ErrEvictionExhausted matches capacity errors raised because eviction
	// could not free enough room in the hot tier.
	ErrEvictionExhausted = errors.New("cache: eviction exhausted")
	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("cache: closed")
	// ErrNoLoader is returned by GetOrLoad when no Loader was configured in Options.
	ErrNoLoader = errors.New("cache: no Loader provided")
)

// CapacityError reports a value that could not be stored.
// The value was never inserted; any previous value for Key is untouched
// unless Exhausted is set, in which case the previous value was already
// replaced and the key is now absent.
type CapacityError struct {
	Key   string
	Size  int64 // stored size of the rejected value
	Limit int64 // hot-tier byte limit

	// Exhausted is set when the value fit the limit on its own but eviction
	// could not make room for it.
	Exhausted bool
}

func (e *CapacityError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("cache: no room for %q (%d bytes, limit %d): eviction exhausted", e.Key, e.Size, e.Limit)
	}
	return fmt.Sprintf("cache: value for %q is %d bytes, exceeds limit %d", e.Key, e.Size, e.Limit)
}

// Is makes errors.Is(err, ErrCapacity) and, for exhausted evictions,
// errors.Is(err, ErrEvictionExhausted) hold.
func (e *CapacityError) Is(target error) bool {
	switch target {
	case ErrCapacity:
		return true
	case ErrEvictionExhausted:
		return e.Exhausted
	}
	return false
}

// BatchError is returned by BatchPut and WarmUp when an entry fails.
// Batches are not transactional: the Applied entries written before Key
// remain in the cache.
type BatchError struct {
	Key     string
	Applied int
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("cache: batch stopped at %q after %d entries: %v", e.Key, e.Applied, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
