package cache

import (
	"container/heap"

	"github.com/IvanBrykalov/tiercache/policy"
)

// tierList is an intrusive doubly linked list (head=most recent, tail=oldest)
// with running entry and byte counts.
type tierList[V any] struct {
	head  *entry[V]
	tail  *entry[V]
	len   int
	bytes int64
}

// pushFront inserts e at the head in O(1).
func (l *tierList[V]) pushFront(e *entry[V]) {
	e.prev = nil
	e.next = l.head
	if l.head != nil {
		l.head.prev = e
	}
	l.head = e
	if l.tail == nil {
		l.tail = e
	}
	l.len++
	l.bytes += e.size
}

// moveToFront promotes e to the head in O(1).
func (l *tierList[V]) moveToFront(e *entry[V]) {
	if e == l.head {
		return
	}
	// detach
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if l.tail == e {
		l.tail = e.prev
	}
	// insert at head
	e.prev = nil
	e.next = l.head
	if l.head != nil {
		l.head.prev = e
	}
	l.head = e
	if l.tail == nil {
		l.tail = e
	}
}

// remove unlinks e and updates counters in O(1).
func (l *tierList[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if l.head == e {
		l.head = e.next
	}
	if l.tail == e {
		l.tail = e.prev
	}
	e.prev, e.next = nil, nil
	l.len--
	l.bytes -= e.size
	if l.bytes < 0 {
		l.bytes = 0
	}
}

// expiryHeap orders TTL-bearing entries of both tiers by deadline.
type expiryHeap[V any] []*entry[V]

func (h expiryHeap[V]) Len() int           { return len(h) }
func (h expiryHeap[V]) Less(i, j int) bool { return h[i].exp < h[j].exp }
func (h expiryHeap[V]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}
func (h *expiryHeap[V]) Push(x any) {
	e := x.(*entry[V])
	e.heapIdx = len(*h)
	*h = append(*h, e)
}
func (h *expiryHeap[V]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIdx = -1
	*h = old[:n-1]
	return e
}

// store holds the hot and warm tiers. A key lives in at most one of them.
// All methods require the manager lock.
type store[V any] struct {
	hot     map[string]*entry[V]
	warm    map[string]*entry[V]
	hotList tierList[V] // recency order, maintained through policy hooks
	// warmList is in demotion order: head = most recently demoted.
	warmList tierList[V]
	expiry   expiryHeap[V]
}

func newStore[V any]() *store[V] {
	return &store[V]{
		hot:  make(map[string]*entry[V]),
		warm: make(map[string]*entry[V]),
	}
}

// lookup returns the entry for key from either tier.
func (s *store[V]) lookup(key string) *entry[V] {
	if e, ok := s.hot[key]; ok {
		return e
	}
	return s.warm[key]
}

// entries is the total resident count across both tiers.
func (s *store[V]) entries() int { return s.hotList.len + s.warmList.len }

// bytes is the total resident size across both tiers.
func (s *store[V]) bytes() int64 { return s.hotList.bytes + s.warmList.bytes }

// addHot registers e in the hot map; the policy links it via hooks.
func (s *store[V]) addHot(e *entry[V], pol policy.TierPolicy) {
	e.tier = TierHot
	s.hot[e.key] = e
	pol.OnAdd(e)
	s.track(e)
}

// addWarm pushes e at the head of the warm list.
func (s *store[V]) addWarm(e *entry[V]) {
	e.tier = TierWarm
	s.warm[e.key] = e
	s.warmList.pushFront(e)
	s.track(e)
}

// detach removes e from its tier without touching the expiry heap.
func (s *store[V]) detach(e *entry[V], pol policy.TierPolicy) {
	switch e.tier {
	case TierHot:
		pol.OnRemove(e)
		s.hotList.remove(e)
		delete(s.hot, e.key)
	case TierWarm:
		s.warmList.remove(e)
		delete(s.warm, e.key)
	}
	e.tier = TierNone
}

// drop removes e from the cache entirely.
func (s *store[V]) drop(e *entry[V], pol policy.TierPolicy) {
	s.detach(e, pol)
	s.untrack(e)
}

func (s *store[V]) track(e *entry[V]) {
	if e.exp != 0 && e.heapIdx < 0 {
		heap.Push(&s.expiry, e)
	}
}

func (s *store[V]) untrack(e *entry[V]) {
	if e.heapIdx >= 0 {
		heap.Remove(&s.expiry, e.heapIdx)
	}
}

// nextExpired returns the earliest-deadline entry if it has expired at now.
func (s *store[V]) nextExpired(now int64) *entry[V] {
	if len(s.expiry) == 0 {
		return nil
	}
	if e := s.expiry[0]; e.expired(now) {
		return e
	}
	return nil
}

// -------------------- policy hooks --------------------

// tierHooks adapts the hot tier's list operations to policy.Hooks.
type tierHooks[V any] struct{ s *store[V] }

func (h tierHooks[V]) MoveToFront(x policy.Node) { h.s.hotList.moveToFront(x.(*entry[V])) }
func (h tierHooks[V]) PushFront(x policy.Node)   { h.s.hotList.pushFront(x.(*entry[V])) }
func (h tierHooks[V]) Len() int                  { return h.s.hotList.len }

func (h tierHooks[V]) Back() policy.Node {
	if t := h.s.hotList.tail; t != nil {
		return t
	}
	return nil
}

// Walk visits hot entries from least to most recently used.
func (h tierHooks[V]) Walk(fn func(policy.Node) bool) {
	for e := h.s.hotList.tail; e != nil; {
		prev := e.prev
		if !fn(e) {
			return
		}
		e = prev
	}
}
