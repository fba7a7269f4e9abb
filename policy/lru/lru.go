// Package lru implements the LRU eviction policy.
package lru

import "github.com/IvanBrykalov/tiercache/policy"

// lru is a classic "move-to-front" Least-Recently-Used policy.
// It delegates list manipulation to policy.Hooks provided by the hot tier.
type lru struct {
	h policy.Hooks
}

type lruPolicy struct{}

// New returns a Policy factory that constructs LRU instances.
func New() policy.Policy { return lruPolicy{} }

func (lruPolicy) Name() string { return "lru" }

// New implements policy.Policy by binding tier hooks.
func (lruPolicy) New(h policy.Hooks) policy.TierPolicy {
	return &lru{h: h}
}

// OnAdd places the new entry at MRU.
func (p *lru) OnAdd(n policy.Node) { p.h.PushFront(n) }

// OnGet promotes the entry to MRU.
func (p *lru) OnGet(n policy.Node) { p.h.MoveToFront(n) }

// OnRemove is a no-op for pure LRU (nothing to clean up in policy state).
func (p *lru) OnRemove(policy.Node) {}

// Victims lists hot entries from least to most recently used.
func (p *lru) Victims(int64) []policy.Node {
	out := make([]policy.Node, 0, p.h.Len())
	p.h.Walk(func(n policy.Node) bool {
		out = append(out, n)
		return true
	})
	return out
}

// Action: LRU victims are demoted to the warm tier.
func (p *lru) Action() policy.Action { return policy.Demote }
