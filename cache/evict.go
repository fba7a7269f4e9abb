package cache

import (
	"go.uber.org/zap"

	"github.com/IvanBrykalov/tiercache/policy"
)

// fitsHotLocked reports whether one more entry of size bytes fits the hot tier.
func (m *Manager[V]) fitsHotLocked(size int64) bool {
	l := &m.store.hotList
	return l.len+1 <= m.cfg.MaxEntries && l.bytes+size <= m.cfg.MaxSizeBytes
}

// makeRoomLocked consumes the policy's victims until an entry of size bytes
// fits the hot tier. Demoting policies stop as soon as it fits and always
// succeed for a value within MaxSizeBytes. A deleting policy (TTL) removes
// every victim it reports, and may still leave no room.
func (m *Manager[V]) makeRoomLocked(key string, size int64, now int64) error {
	if m.fitsHotLocked(size) {
		return nil
	}
	action := m.pol.Action()
	for _, n := range m.pol.Victims(now) {
		e := n.(*entry[V])
		if action == policy.Delete {
			m.stats.evictions.Add(1)
			m.deleteLocked(e, EvictTTL)
			continue
		}
		if m.fitsHotLocked(size) {
			break
		}
		m.demoteLocked(e)
	}
	if m.fitsHotLocked(size) {
		return nil
	}
	m.log.Debug("hot tier eviction exhausted",
		zap.String("key", key),
		zap.Int64("size", size),
		zap.Int("hot_entries", m.store.hotList.len),
		zap.Int64("hot_bytes", m.store.hotList.bytes),
		zap.Stringer("policy", m.cfg.EvictionPolicy),
	)
	return &CapacityError{Key: key, Size: size, Limit: m.cfg.MaxSizeBytes, Exhausted: true}
}

// demoteLocked moves a hot entry to the head of the warm tier and trims the
// warm tier back within its bounds. The expiry deadline is kept.
func (m *Manager[V]) demoteLocked(e *entry[V]) {
	m.store.detach(e, m.pol)
	m.store.addWarm(e)
	m.stats.evictions.Add(1)
	m.stats.demotions.Add(1)
	m.metrics.Evict(EvictDemoted)
	m.trimWarmLocked()
}

// trimWarmLocked deletes the longest-demoted warm entries while the warm
// tier exceeds its entry or byte limit.
func (m *Manager[V]) trimWarmLocked() {
	l := &m.store.warmList
	for l.tail != nil && (l.len > m.cfg.WarmMaxEntries || l.bytes > m.cfg.WarmMaxSizeBytes) {
		m.stats.evictions.Add(1)
		m.deleteLocked(l.tail, EvictCapacity)
	}
}

// expireLocked drops an entry whose TTL elapsed.
func (m *Manager[V]) expireLocked(e *entry[V]) {
	m.stats.expirations.Add(1)
	m.deleteLocked(e, EvictTTL)
}

// deleteLocked removes e from the cache and notifies hooks.
func (m *Manager[V]) deleteLocked(e *entry[V], reason EvictReason) {
	m.store.drop(e, m.pol)
	m.metrics.Evict(reason)
	if m.opt.OnEvict == nil {
		return
	}
	v, err := m.codec.decode(e.stored)
	if err != nil {
		m.log.Warn("evicted value not decodable", zap.String("key", e.key), zap.Error(err))
		return
	}
	m.opt.OnEvict(e.key, v, reason)
}
