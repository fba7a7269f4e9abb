package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/IvanBrykalov/tiercache/policy"
)

// Manager is a two-tier (hot/warm) in-memory cache keyed by string.
// All methods are safe for concurrent use by multiple goroutines.
//
// One mutex guards both tiers, the recency list and the expiry heap; every
// logical operation takes it once. Counters live in atomics.
type Manager[V any] struct {
	mu     sync.Mutex
	store  *store[V]
	pol    policy.TierPolicy
	newPol policy.Policy
	seq    uint64

	cfg     Config
	opt     Options[V]
	codec   encoder[V]
	stats   *collector
	metrics Metrics
	log     *zap.Logger
	clock   Clock

	closed atomic.Bool

	// singleflight group for coalescing concurrent loads in GetOrLoad.
	sf singleflight.Group

	stopJanitor context.CancelFunc
	janitorDone chan struct{}
}

var _ Cache[int] = (*Manager[int])(nil)

// New constructs a Manager from opt.
// Defaults:
//   - nil Config   -> DefaultConfig(); zero limits are filled in
//   - nil Policy   -> Config.EvictionPolicy
//   - nil Metrics  -> NoopMetrics
//   - nil Logger   -> zap.NewNop()
//   - nil Clock    -> wall clock
//
// The TTL janitor starts unless Config.CleanupInterval is negative.
func New[V any](opt Options[V]) (*Manager[V], error) {
	cfg := DefaultConfig()
	if opt.Config != nil {
		cfg = *opt.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	if opt.Policy == nil {
		opt.Policy = cfg.EvictionPolicy.factory()
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.Clock == nil {
		opt.Clock = wallClock{}
	}

	m := &Manager[V]{
		newPol: opt.Policy,
		cfg:    cfg,
		opt:    opt,
		codec: encoder[V]{
			compress:  cfg.CompressionEnabled,
			threshold: cfg.CompressionThreshold,
			sizer:     opt.Sizer,
		},
		metrics: opt.Metrics,
		log:     opt.Logger.Named("cache"),
		clock:   opt.Clock,
	}
	m.resetStoreLocked()
	m.stats = newCollector(m.now())

	if cfg.CleanupInterval > 0 {
		m.startJanitor(cfg.CleanupInterval)
	}
	m.log.Debug("cache created",
		zap.Stringer("policy", cfg.EvictionPolicy),
		zap.Int("max_entries", cfg.MaxEntries),
		zap.Int64("max_size_bytes", cfg.MaxSizeBytes),
		zap.Bool("compression", cfg.CompressionEnabled),
	)
	return m, nil
}

// Config returns the effective configuration, defaults included.
func (m *Manager[V]) Config() Config { return m.cfg }

// ---- Cache[V] implementation ----

// Get returns the value for key and a presence flag.
// A hot hit refreshes the entry's position in the active policy; a warm hit
// promotes the entry into the hot tier. Expired entries are dropped and
// reported as misses.
func (m *Manager[V]) Get(key string) (V, bool) {
	var zero V
	if m.closed.Load() {
		return zero, false
	}

	// Counters move under the lock so Clear and ResetStats see the lookup
	// either entirely before or entirely after them.
	m.mu.Lock()
	e := m.getLocked(key, m.now())
	if e == nil {
		m.countMissLocked()
		m.mu.Unlock()
		m.metrics.Miss()
		return zero, false
	}
	m.countHitLocked()
	s := e.stored
	m.mu.Unlock()

	v, err := m.codec.decode(s)
	if err != nil {
		m.log.Error("stored value not decodable", zap.String("key", key), zap.Error(err))
		m.mu.Lock()
		m.uncountHitLocked()
		m.countMissLocked()
		m.mu.Unlock()
		m.metrics.Miss()
		return zero, false
	}
	m.metrics.Hit()
	return v, true
}

// Put inserts or replaces key→v using Config.DefaultTTL.
func (m *Manager[V]) Put(key string, v V) error {
	return m.put(key, v, m.cfg.DefaultTTL)
}

// PutWithTTL inserts or replaces key→v with a per-key TTL.
// A non-positive ttl disables expiration for this entry.
func (m *Manager[V]) PutWithTTL(key string, v V, ttl time.Duration) error {
	return m.put(key, v, max(ttl, 0))
}

// Remove deletes key from whichever tier holds it and reports whether it
// was present. Removal is not counted as an eviction.
func (m *Manager[V]) Remove(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.store.lookup(key)
	if e == nil {
		return false
	}
	m.store.drop(e, m.pol)
	m.reportSizeLocked()
	return true
}

// Clear drops both tiers and resets every counter, including hits and
// misses. Use ResetStats to zero counters without dropping data.
func (m *Manager[V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetStoreLocked()
	m.stats.reset(m.now())
	m.reportSizeLocked()
}

// BatchGet returns the present keys; missing or expired keys are omitted.
// Each key is looked up independently, with the same effects as Get.
func (m *Manager[V]) BatchGet(keys []string) map[string]V {
	out := make(map[string]V, len(keys))
	for _, k := range keys {
		if v, ok := m.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// BatchPut stores entries with Config.DefaultTTL in sorted key order.
// It is not transactional: on the first failure it returns a *BatchError
// and the entries already written stay in the cache.
func (m *Manager[V]) BatchPut(entries map[string]V) error {
	return m.batchPut(context.Background(), entries, m.cfg.DefaultTTL)
}

// BatchPutWithTTL is BatchPut with a shared per-key TTL.
func (m *Manager[V]) BatchPutWithTTL(entries map[string]V, ttl time.Duration) error {
	return m.batchPut(context.Background(), entries, max(ttl, 0))
}

// WarmUp preloads entries with the BatchPut contract. It also stops, with a
// *BatchError wrapping ctx.Err(), when ctx is cancelled between entries.
func (m *Manager[V]) WarmUp(ctx context.Context, entries map[string]V) error {
	if err := m.batchPut(ctx, entries, m.cfg.DefaultTTL); err != nil {
		return err
	}
	m.log.Debug("warm-up complete", zap.Int("entries", len(entries)))
	return nil
}

// Contains reports whether key is resident and not expired.
// It does not count as an access.
func (m *Manager[V]) Contains(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.store.lookup(key)
	return e != nil && !e.expired(m.now())
}

// Keys returns the sorted union of both tiers, skipping expired entries.
func (m *Manager[V]) Keys() []string {
	m.mu.Lock()
	now := m.now()
	keys := make([]string, 0, m.store.entries())
	for _, tier := range []map[string]*entry[V]{m.store.hot, m.store.warm} {
		for k, e := range tier {
			if !e.expired(now) {
				keys = append(keys, k)
			}
		}
	}
	m.mu.Unlock()
	slices.Sort(keys)
	return keys
}

// Size returns the summed stored size of both tiers in bytes.
func (m *Manager[V]) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.bytes()
}

// Len returns the number of resident entries across both tiers, including
// expired entries the janitor has not collected yet.
func (m *Manager[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.entries()
}

// Stats returns the counters together with the current totals.
func (m *Manager[V]) Stats() Stats {
	m.mu.Lock()
	s := m.stats.snapshot()
	s.HotEntries = m.store.hotList.len
	s.WarmEntries = m.store.warmList.len
	s.TotalEntries = s.HotEntries + s.WarmEntries
	s.TotalSizeBytes = m.store.bytes()
	m.mu.Unlock()
	return s
}

// ResetStats zeroes the hit, miss, eviction, expiry and tiering counters and
// moves LastReset. Entry and size totals reflect resident data and are kept.
func (m *Manager[V]) ResetStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.reset(m.now())
}

// Close stops the janitor and marks the cache as closed: Get misses and
// writes fail with ErrClosed. Close is idempotent.
func (m *Manager[V]) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.stopJanitor != nil {
		m.stopJanitor()
		<-m.janitorDone
	}
	m.log.Debug("cache closed")
	return nil
}

// GetOrLoad returns the value for key; on miss it loads via Options.Loader,
// coalescing concurrent loads for the same key (singleflight), and stores
// the result with Put. A loaded value that cannot be cached is still
// returned. If no Loader is configured, returns ErrNoLoader.
func (m *Manager[V]) GetOrLoad(ctx context.Context, key string) (V, error) {
	var zero V
	// fast path
	if v, ok := m.Get(key); ok {
		return v, nil
	}
	if m.opt.Loader == nil {
		return zero, ErrNoLoader
	}

	ch := m.sf.DoChan(key, func() (any, error) {
		// double-check after flight join, without counting a second miss
		if v, ok := m.peek(key); ok {
			return v, nil
		}
		v, err := m.opt.Loader(ctx, key)
		if err != nil {
			return v, err
		}
		if perr := m.Put(key, v); perr != nil {
			m.log.Debug("loaded value not cached", zap.String("key", key), zap.Error(perr))
		}
		return v, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		v, _ := r.Val.(V)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Inspect returns a snapshot of key's bookkeeping without recording an access.
func (m *Manager[V]) Inspect(key string) (EntryInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.store.lookup(key)
	if e == nil || e.expired(m.now()) {
		return EntryInfo{}, false
	}
	return e.info(), true
}

// ---- internals ----

func (m *Manager[V]) put(key string, v V, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrClosed
	}
	// Encoding may compress; keep it outside the lock.
	s := m.codec.encode(v)
	if s.size > m.cfg.MaxSizeBytes {
		return &CapacityError{Key: key, Size: s.size, Limit: m.cfg.MaxSizeBytes}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if old := m.store.lookup(key); old != nil {
		m.store.drop(old, m.pol)
	}
	if err := m.makeRoomLocked(key, s.size, now); err != nil {
		m.reportSizeLocked()
		return err
	}
	m.seq++
	e := &entry[V]{
		key:          key,
		stored:       s,
		createdAt:    now,
		lastAccessed: now,
		seq:          m.seq,
		ttl:          ttl,
		heapIdx:      -1,
	}
	if ttl > 0 {
		e.exp = now + int64(ttl)
	}
	m.store.addHot(e, m.pol)
	m.reportSizeLocked()
	return nil
}

func (m *Manager[V]) batchPut(ctx context.Context, entries map[string]V, ttl time.Duration) error {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return &BatchError{Key: k, Applied: i, Err: err}
		}
		if err := m.put(k, entries[k], ttl); err != nil {
			return &BatchError{Key: k, Applied: i, Err: err}
		}
	}
	return nil
}

// getLocked resolves key, applying lazy expiry, access accounting and
// warm→hot promotion. It returns nil on a miss.
func (m *Manager[V]) getLocked(key string, now int64) *entry[V] {
	e := m.store.lookup(key)
	if e == nil {
		return nil
	}
	if e.expired(now) {
		m.expireLocked(e)
		m.reportSizeLocked()
		return nil
	}
	e.touch(now)
	if e.tier == TierHot {
		m.pol.OnGet(e)
		return e
	}
	m.promoteLocked(e, now)
	return e
}

// promoteLocked moves a warm entry into the hot tier. When the hot tier
// cannot make room the entry goes back to the warm tier.
func (m *Manager[V]) promoteLocked(e *entry[V], now int64) {
	m.store.detach(e, m.pol)
	if err := m.makeRoomLocked(e.key, e.size, now); err != nil {
		m.store.addWarm(e)
		m.trimWarmLocked()
		m.reportSizeLocked()
		return
	}
	m.store.addHot(e, m.pol)
	m.stats.promotions.Add(1)
	m.metrics.Promote()
	m.reportSizeLocked()
}

// peek reads key without touching statistics or recency.
func (m *Manager[V]) peek(key string) (V, bool) {
	var zero V
	m.mu.Lock()
	e := m.store.lookup(key)
	if e == nil || e.expired(m.now()) {
		m.mu.Unlock()
		return zero, false
	}
	s := e.stored
	m.mu.Unlock()
	v, err := m.codec.decode(s)
	if err != nil {
		return zero, false
	}
	return v, true
}

// resetStoreLocked replaces both tiers and rebinds the policy to them.
func (m *Manager[V]) resetStoreLocked() {
	m.store = newStore[V]()
	m.pol = m.newPol.New(tierHooks[V]{s: m.store})
}

func (m *Manager[V]) countHitLocked() {
	if m.cfg.StatisticsEnabled {
		m.stats.hits.Add(1)
	}
}

// uncountHitLocked takes back a hit whose value turned out unreadable.
// A reset in between already zeroed it.
func (m *Manager[V]) uncountHitLocked() {
	if m.cfg.StatisticsEnabled {
		m.stats.unhit()
	}
}

func (m *Manager[V]) countMissLocked() {
	if m.cfg.StatisticsEnabled {
		m.stats.misses.Add(1)
	}
}

func (m *Manager[V]) reportSizeLocked() {
	m.metrics.Size(m.store.entries(), m.store.bytes())
}

func (m *Manager[V]) now() int64 { return m.clock.NowUnixNano() }

type wallClock struct{}

func (wallClock) NowUnixNano() int64 { return time.Now().UnixNano() }

// checkInvariants verifies tier exclusivity and that list counters match the
// maps and the expiry heap. Used by tests.
func (m *Manager[V]) checkInvariants() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.store
	for k := range s.hot {
		if _, dup := s.warm[k]; dup {
			return fmt.Errorf("key %q resident in both tiers", k)
		}
	}
	check := func(name string, l *tierList[V], idx map[string]*entry[V], tier Tier) error {
		n, bytes := 0, int64(0)
		for e := l.head; e != nil; e = e.next {
			if e.tier != tier || idx[e.key] != e {
				return fmt.Errorf("%s list holds foreign entry %q", name, e.key)
			}
			n++
			bytes += e.size
		}
		if n != l.len || n != len(idx) || bytes != l.bytes {
			return fmt.Errorf("%s tier counters: list=%d len=%d map=%d bytes=%d/%d",
				name, n, l.len, len(idx), bytes, l.bytes)
		}
		return nil
	}
	if err := check("hot", &s.hotList, s.hot, TierHot); err != nil {
		return err
	}
	if err := check("warm", &s.warmList, s.warm, TierWarm); err != nil {
		return err
	}
	if s.hotList.len > m.cfg.MaxEntries || s.hotList.bytes > m.cfg.MaxSizeBytes {
		return fmt.Errorf("hot tier over limit: %d entries, %d bytes", s.hotList.len, s.hotList.bytes)
	}
	for i, e := range s.expiry {
		if e.heapIdx != i || e.exp == 0 || s.lookup(e.key) != e {
			return fmt.Errorf("expiry heap slot %d inconsistent for %q", i, e.key)
		}
	}
	return nil
}
