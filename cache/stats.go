package cache

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time view of the cache counters.
type Stats struct {
	TotalEntries   int
	TotalSizeBytes int64
	HotEntries     int
	WarmEntries    int

	Hits    uint64
	Misses  uint64
	HitRate float64 // hits / (hits + misses); 0 before any lookup

	// Evictions counts entries the policy pushed out of the hot tier plus
	// warm-tier capacity deletions, once per entry.
	Evictions uint64
	// Expirations counts entries dropped by the janitor or on access after
	// their TTL elapsed.
	Expirations uint64
	Promotions  uint64
	Demotions   uint64

	StartTime time.Time
	LastReset time.Time
}

// collector keeps the monotonically increasing counters. Writers and resets
// hold the manager lock; the atomics keep lock-free readers race-free.
type collector struct {
	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64
	promotions  atomic.Uint64
	demotions   atomic.Uint64

	startTime time.Time
	lastReset atomic.Int64 // UnixNano
}

func newCollector(now int64) *collector {
	c := &collector{startTime: time.Unix(0, now)}
	c.lastReset.Store(now)
	return c
}

func (c *collector) reset(now int64) {
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
	c.expirations.Store(0)
	c.promotions.Store(0)
	c.demotions.Store(0)
	c.lastReset.Store(now)
}

// unhit decrements hits without wrapping below zero.
func (c *collector) unhit() {
	for {
		h := c.hits.Load()
		if h == 0 || c.hits.CompareAndSwap(h, h-1) {
			return
		}
	}
}

// snapshot fills the counter fields; totals are supplied by the caller.
func (c *collector) snapshot() Stats {
	s := Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		Promotions:  c.promotions.Load(),
		Demotions:   c.demotions.Load(),
		StartTime:   c.startTime,
		LastReset:   time.Unix(0, c.lastReset.Load()),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
