// Package policy defines the contract between the hot tier and its
// eviction strategies (LRU, LFU, FIFO, TTL).
package policy

// Node is the minimal contract a cache entry must satisfy for a policy.
// All accessors are read-only; the tier owns the entry.
type Node interface {
	Key() string
	// AccessCount is the number of recorded reads since the entry was created.
	AccessCount() uint64
	// CreatedAt is the creation time in UnixNano.
	CreatedAt() int64
	// Seq is a monotonically increasing insertion sequence number.
	// It breaks ties between entries with equal counts or timestamps.
	Seq() uint64
	// ExpiresAt is the absolute deadline in UnixNano; zero means no TTL.
	ExpiresAt() int64
}

// Hooks expose O(1) operations on the hot tier's intrusive recency list
// (front = most recently used, back = least recently used).
//
// Concurrency: all hook calls happen under the manager lock.
// Important: hooks manage only the list; the tier owns the key->entry map.
type Hooks interface {
	// MoveToFront marks the node as most recently used.
	MoveToFront(Node)
	// PushFront inserts the node at the most-recent position (used on admission).
	PushFront(Node)
	// Back returns the least recently used node (or nil if empty).
	Back() Node
	// Len returns the number of resident hot nodes.
	Len() int
	// Walk visits nodes from least to most recently used until fn returns false.
	Walk(fn func(Node) bool)
}

// Action tells the eviction engine what to do with a victim.
type Action int

const (
	// Demote moves the victim from the hot tier into the warm tier.
	Demote Action = iota
	// Delete drops the victim from the cache entirely.
	Delete
)

// TierPolicy is a policy instance bound to the hot tier's hooks.
// All methods are invoked under the manager lock.
//
// Semantics:
//   - OnAdd must place the node into the recency list (PushFront).
//   - OnGet records a read; recency-based policies promote the node.
//   - OnRemove is a notification; the tier performs the actual unlink.
//   - Victims returns eviction candidates, best candidate first. The engine
//     consumes them in order until the incoming entry fits.
type TierPolicy interface {
	OnAdd(Node)
	OnGet(Node)
	OnRemove(Node)
	Victims(now int64) []Node
	Action() Action
}

// Policy is a factory that creates tier-local policy instances
// bound to a particular tier's hooks.
type Policy interface {
	Name() string
	New(Hooks) TierPolicy
}
