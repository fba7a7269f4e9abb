// Package cache provides a generic two-tier in-memory cache keyed by string,
// with pluggable eviction policies (LRU by default), per-entry TTL, optional
// payload compression, a background TTL janitor, singleflight loading and
// lightweight metrics hooks.
//
// Design
//
//   - Tiers: new and recently used entries live in the hot tier. When the hot
//     tier is full (Config.MaxEntries or Config.MaxSizeBytes), the active
//     policy picks victims that are demoted to the warm tier. A warm hit
//     promotes the entry back. A key is resident in at most one tier.
//
//   - Storage: each tier keeps a map[string]*entry for lookups and an
//     intrusive doubly linked list for ordering. Entries with a TTL are also
//     indexed in a min-heap by deadline.
//
//   - Concurrency: one mutex per Manager guards the tiers; every logical
//     operation (a Get including promotion, a Put including eviction) takes
//     it once. Counters are atomics. Values are decoded outside the lock.
//
//   - Policies: LRU, LFU, FIFO demote; TTL deletes expired hot entries only
//     and fails the Put with ErrEvictionExhausted when nothing has expired.
//     Custom strategies implement policy.Policy.
//
//   - TTL: expiry is lazy on read and enforced by the janitor, which removes
//     expired entries from both tiers every Config.CleanupInterval in batches
//     of Config.CleanupBatchSize.
//
//   - Size and compression: sizes are estimated (string and []byte length,
//     8 bytes for scalars, JSON length otherwise) unless Options.Sizer is set.
//     With Config.CompressionEnabled, string and []byte payloads larger than
//     Config.CompressionThreshold are stored S2-compressed when that helps.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Promote/Size signals.
//     NoopMetrics is the default; see metrics/prom for a Prometheus adapter.
//
// Basic usage
//
//	c, err := cache.New[string](cache.Options[string]{})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	_ = c.Put("a", "1")
//	if v, ok := c.Get("a"); ok {
//	    _ = v // use value
//	}
//	c.Remove("a")
//
// Configuration from YAML
//
//	cfg, err := cache.ParseConfigYAML([]byte("eviction_policy: lfu\nmax_entries: 5000\n"))
//	if err != nil {
//	    return err
//	}
//	c, err := cache.New[[]byte](cache.Options[[]byte]{Config: &cfg})
//
// With GetOrLoad (singleflight)
//
//	c, _ := cache.New[string](cache.Options[string]{
//	    Loader: func(ctx context.Context, k string) (string, error) {
//	        // e.g. fetch from DB
//	        return "v:" + k, nil
//	    },
//	})
//	v, err := c.GetOrLoad(ctx, "key")
package cache
