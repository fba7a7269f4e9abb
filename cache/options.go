package cache

import (
	"context"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/tiercache/policy"
)

// EvictReason explains why an entry left the hot tier or the cache.
type EvictReason int

const (
	// EvictDemoted: moved from hot to warm by the active policy (LRU/LFU/FIFO).
	EvictDemoted EvictReason = iota
	// EvictTTL: deleted because its TTL elapsed (TTL policy, janitor or lazy check).
	EvictTTL
	// EvictCapacity: deleted from the warm tier to respect its bounds.
	EvictCapacity
)

func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	case EvictCapacity:
		return "capacity"
	default:
		return "demoted"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Promote()
	Size(entries int, bytes int64)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures a Manager. Zero values are safe;
// sane defaults are applied in New():
//   - nil Config   => DefaultConfig()
//   - nil Metrics  => NoopMetrics
//   - nil Logger   => zap.NewNop()
//   - nil Policy   => derived from Config.EvictionPolicy
type Options[V any] struct {
	Config *Config

	// Policy overrides Config.EvictionPolicy with a custom implementation.
	Policy policy.Policy

	// Sizer overrides the built-in size estimation for stored values.
	Sizer func(v V) int64

	// Loader fetches a value on cache miss. Used by GetOrLoad.
	Loader func(ctx context.Context, key string) (V, error)

	// OnEvict is called under the manager lock when an entry is deleted by
	// TTL expiry or capacity pressure. Demotions do not trigger it.
	// Keep callbacks lightweight.
	OnEvict func(key string, v V, reason EvictReason)

	Metrics Metrics
	Logger  *zap.Logger

	// Clock allows overriding time source (tests). Nil => time.Now().
	Clock Clock
}
