package cache

import (
	"maps"
	"time"
)

// Tier identifies where an entry currently lives.
type Tier uint8

const (
	TierNone Tier = iota
	TierHot
	TierWarm
)

func (t Tier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierWarm:
		return "warm"
	default:
		return "none"
	}
}

// entry is an intrusive doubly linked list element owned by one tier.
// It stores the key/value alongside list links and the metadata used by
// eviction policies and TTL/size accounting.
type entry[V any] struct {
	key string

	// stored carries the value (or its encoded form), size and metadata.
	stored[V]

	createdAt    int64 // UnixNano
	lastAccessed int64 // UnixNano
	accessCount  uint64
	seq          uint64

	// ttl as given by the caller and the derived absolute deadline.
	// Zero means "no TTL".
	ttl time.Duration
	exp int64

	tier Tier

	// Intrusive list links for the tier list the entry is linked into.
	prev *entry[V]
	next *entry[V]

	// Position in the expiry heap, -1 when not tracked.
	heapIdx int
}

// Key returns the entry key (part of policy.Node interface).
func (e *entry[V]) Key() string         { return e.key }
func (e *entry[V]) AccessCount() uint64 { return e.accessCount }
func (e *entry[V]) CreatedAt() int64    { return e.createdAt }
func (e *entry[V]) Seq() uint64         { return e.seq }
func (e *entry[V]) ExpiresAt() int64    { return e.exp }

// expired reports whether the TTL has elapsed at now.
// An entry is valid iff now < createdAt + ttl.
func (e *entry[V]) expired(now int64) bool {
	return e.exp != 0 && now >= e.exp
}

func (e *entry[V]) touch(now int64) {
	e.lastAccessed = now
	e.accessCount++
}

// EntryInfo is a read-only snapshot of an entry's bookkeeping.
type EntryInfo struct {
	Key          string
	Tier         Tier
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  uint64
	TTL          time.Duration
	// ExpiresAt is the zero time for entries without TTL.
	ExpiresAt  time.Time
	SizeBytes  int64
	Compressed bool
	Metadata   map[string]string
}

func (e *entry[V]) info() EntryInfo {
	in := EntryInfo{
		Key:          e.key,
		Tier:         e.tier,
		CreatedAt:    time.Unix(0, e.createdAt),
		LastAccessed: time.Unix(0, e.lastAccessed),
		AccessCount:  e.accessCount,
		TTL:          e.ttl,
		SizeBytes:    e.size,
		Compressed:   e.packed != nil,
		Metadata:     maps.Clone(e.meta),
	}
	if e.exp != 0 {
		in.ExpiresAt = time.Unix(0, e.exp)
	}
	return in
}
