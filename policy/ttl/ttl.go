// Package ttl implements expiry-driven eviction: only entries whose TTL has
// elapsed are removed, and they are deleted rather than demoted.
package ttl

import "github.com/IvanBrykalov/tiercache/policy"

type ttl struct {
	h policy.Hooks
}

type ttlPolicy struct{}

// New returns a Policy factory that constructs TTL instances.
func New() policy.Policy { return ttlPolicy{} }

func (ttlPolicy) Name() string { return "ttl" }

func (ttlPolicy) New(h policy.Hooks) policy.TierPolicy { return &ttl{h: h} }

func (p *ttl) OnAdd(n policy.Node)  { p.h.PushFront(n) }
func (p *ttl) OnGet(n policy.Node)  { p.h.MoveToFront(n) }
func (p *ttl) OnRemove(policy.Node) {}

// Victims returns every hot entry that has expired at now, least recently
// used first. The result may be empty; the caller then reports a capacity
// error if space was not recovered.
func (p *ttl) Victims(now int64) []policy.Node {
	var out []policy.Node
	p.h.Walk(func(n policy.Node) bool {
		if exp := n.ExpiresAt(); exp != 0 && now >= exp {
			out = append(out, n)
		}
		return true
	})
	return out
}

func (p *ttl) Action() policy.Action { return policy.Delete }
