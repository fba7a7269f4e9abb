package lru

import (
	"testing"

	"github.com/IvanBrykalov/tiercache/policy"
)

// --- test doubles ---

type testNode struct {
	k     string
	count uint64
	seq   uint64
}

func (n *testNode) Key() string         { return n.k }
func (n *testNode) AccessCount() uint64 { return n.count }
func (n *testNode) CreatedAt() int64    { return int64(n.seq) }
func (n *testNode) Seq() uint64         { return n.seq }
func (n *testNode) ExpiresAt() int64    { return 0 }

// mockHooks keeps the recency order in a slice, index 0 = LRU.
type mockHooks struct {
	pushFrontCnt   int
	moveToFrontCnt int

	lastPush policy.Node
	lastMove policy.Node

	order []policy.Node
}

func (h *mockHooks) MoveToFront(n policy.Node) {
	h.moveToFrontCnt++
	h.lastMove = n
	for i, x := range h.order {
		if x == n {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.order = append(h.order, n)
}

func (h *mockHooks) PushFront(n policy.Node) {
	h.pushFrontCnt++
	h.lastPush = n
	h.order = append(h.order, n)
}

func (h *mockHooks) Back() policy.Node {
	if len(h.order) == 0 {
		return nil
	}
	return h.order[0]
}

func (h *mockHooks) Len() int { return len(h.order) }

func (h *mockHooks) Walk(fn func(policy.Node) bool) {
	for _, n := range h.order {
		if !fn(n) {
			return
		}
	}
}

// --- tests ---

// OnAdd should push the node to MRU.
func TestLRU_OnAdd_PushFront(t *testing.T) {
	t.Parallel()

	h := &mockHooks{}
	p := New().New(h)

	n := &testNode{k: "k1"}
	p.OnAdd(n)

	if h.pushFrontCnt != 1 || h.lastPush != n {
		t.Fatalf("OnAdd must call PushFront exactly once with the node")
	}
	if h.moveToFrontCnt != 0 {
		t.Fatalf("OnAdd must not call MoveToFront")
	}
}

// OnGet should promote the node to MRU.
func TestLRU_OnGet_MoveToFront(t *testing.T) {
	t.Parallel()

	h := &mockHooks{}
	p := New().New(h)

	n := &testNode{k: "k2"}
	p.OnAdd(n)
	p.OnGet(n)

	if h.moveToFrontCnt != 1 || h.lastMove != n {
		t.Fatalf("OnGet must call MoveToFront exactly once with the node")
	}
}

// Victims come back least recently used first; a read moves a key to the end.
func TestLRU_Victims_Order(t *testing.T) {
	t.Parallel()

	h := &mockHooks{}
	p := New().New(h)

	a, b, c := &testNode{k: "a", seq: 1}, &testNode{k: "b", seq: 2}, &testNode{k: "c", seq: 3}
	p.OnAdd(a)
	p.OnAdd(b)
	p.OnAdd(c)
	p.OnGet(a)

	got := p.Victims(0)
	want := []string{"b", "c", "a"}
	if len(got) != len(want) {
		t.Fatalf("want %d victims, got %d", len(want), len(got))
	}
	for i, k := range want {
		if got[i].Key() != k {
			t.Fatalf("victim[%d]: want %q, got %q", i, k, got[i].Key())
		}
	}
	if p.Action() != policy.Demote {
		t.Fatal("LRU victims must be demoted")
	}
}

// OnRemove is a no-op for pure LRU.
func TestLRU_OnRemove_NoOp(t *testing.T) {
	t.Parallel()

	h := &mockHooks{}
	p := New().New(h)

	p.OnRemove(&testNode{k: "k4"})

	if h.pushFrontCnt != 0 || h.moveToFrontCnt != 0 {
		t.Fatalf("OnRemove for LRU must be no-op (no hooks should be called)")
	}
}
