// Package fifo implements First-In-First-Out eviction.
package fifo

import (
	"sort"

	"github.com/IvanBrykalov/tiercache/policy"
)

type fifo struct {
	h policy.Hooks
}

type fifoPolicy struct{}

// New returns a Policy factory that constructs FIFO instances.
func New() policy.Policy { return fifoPolicy{} }

func (fifoPolicy) Name() string { return "fifo" }

func (fifoPolicy) New(h policy.Hooks) policy.TierPolicy { return &fifo{h: h} }

func (p *fifo) OnAdd(n policy.Node) { p.h.PushFront(n) }

// OnGet ignores reads: FIFO order depends on creation time only.
func (p *fifo) OnGet(policy.Node) {}

func (p *fifo) OnRemove(policy.Node) {}

// Victims orders hot entries by creation time, oldest first.
// Promoted entries keep their original creation time, so list position
// alone is not enough and the slice is sorted.
func (p *fifo) Victims(int64) []policy.Node {
	out := make([]policy.Node, 0, p.h.Len())
	p.h.Walk(func(n policy.Node) bool {
		out = append(out, n)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].CreatedAt(), out[j].CreatedAt()
		if ti != tj {
			return ti < tj
		}
		return out[i].Seq() < out[j].Seq()
	})
	return out
}

func (p *fifo) Action() policy.Action { return policy.Demote }
