// Package lfu implements the Least-Frequently-Used eviction policy.
package lfu

import (
	"sort"

	"github.com/IvanBrykalov/tiercache/policy"
)

// lfu ranks hot entries by access count. Recency is still tracked in the
// tier list so that Walk has a stable population to sort.
type lfu struct {
	h policy.Hooks
}

type lfuPolicy struct{}

// New returns a Policy factory that constructs LFU instances.
func New() policy.Policy { return lfuPolicy{} }

func (lfuPolicy) Name() string { return "lfu" }

func (lfuPolicy) New(h policy.Hooks) policy.TierPolicy { return &lfu{h: h} }

func (p *lfu) OnAdd(n policy.Node)  { p.h.PushFront(n) }
func (p *lfu) OnGet(n policy.Node)  { p.h.MoveToFront(n) }
func (p *lfu) OnRemove(policy.Node) {}

// Victims orders hot entries by ascending access count.
// Equal counts are ordered by insertion sequence (earlier first).
func (p *lfu) Victims(int64) []policy.Node {
	out := make([]policy.Node, 0, p.h.Len())
	p.h.Walk(func(n policy.Node) bool {
		out = append(out, n)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i].AccessCount(), out[j].AccessCount()
		if ci != cj {
			return ci < cj
		}
		return out[i].Seq() < out[j].Seq()
	})
	return out
}

func (p *lfu) Action() policy.Action { return policy.Demote }
