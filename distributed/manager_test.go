package distributed

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/IvanBrykalov/tiercache/cache"
)

type putCall struct {
	peer string
	key  string
	ttl  time.Duration
}

// fakeTransport records calls and serves lookups from per-peer maps.
type fakeTransport struct {
	mu     sync.Mutex
	puts   []putCall
	stores map[string]map[string]string
	// fail makes every call to these peers return ErrPeerUnavailable.
	fail map[string]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{stores: map[string]map[string]string{}, fail: map[string]bool{}}
}

func (f *fakeTransport) Get(_ context.Context, p Peer, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[p.ID] {
		return "", false, ErrPeerUnavailable
	}
	v, ok := f.stores[p.ID][key]
	return v, ok, nil
}

func (f *fakeTransport) Put(_ context.Context, p Peer, key string, v string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, putCall{peer: p.ID, key: key, ttl: ttl})
	if f.fail[p.ID] {
		return ErrPeerUnavailable
	}
	if f.stores[p.ID] == nil {
		f.stores[p.ID] = map[string]string{}
	}
	f.stores[p.ID][key] = v
	return nil
}

func (f *fakeTransport) calls() []putCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]putCall(nil), f.puts...)
}

type countingMetrics struct {
	mu         sync.Mutex
	replicated map[bool]int
	lookups    map[LookupResult]int
	peers      int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{replicated: map[bool]int{}, lookups: map[LookupResult]int{}}
}

func (m *countingMetrics) Replicated(ok bool) {
	m.mu.Lock()
	m.replicated[ok]++
	m.mu.Unlock()
}

func (m *countingMetrics) RemoteLookup(r LookupResult) {
	m.mu.Lock()
	m.lookups[r]++
	m.mu.Unlock()
}

func (m *countingMetrics) Peers(n int) {
	m.mu.Lock()
	m.peers = n
	m.mu.Unlock()
}

func newNode(t *testing.T, opt Options[string]) *Manager[string] {
	t.Helper()
	cfg := cache.DefaultConfig()
	cfg.DefaultTTL = 0
	cfg.CleanupInterval = -1
	local, err := cache.New(cache.Options[string]{Config: &cfg})
	require.NoError(t, err)

	if opt.NodeID == "" {
		opt.NodeID = "n1"
	}
	if opt.RetryInterval == 0 {
		opt.RetryInterval = time.Millisecond
	}
	d, err := New(local, opt)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// A put must attempt replication to an unreachable peer and still succeed.
func TestManager_ReplicatesToUnreachablePeer(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	tr := newFakeTransport()
	tr.fail["n2"] = true
	met := newCountingMetrics()
	d := newNode(t, Options[string]{
		Transport:  tr,
		Metrics:    met,
		Logger:     zap.New(core),
		MaxRetries: 2,
	})

	require.NoError(t, d.AddPeer("n2", "10.0.0.2:7070"))
	require.NoError(t, d.Put("k", "v"))

	v, ok := d.Local().Get("k")
	require.True(t, ok, "the local write happens first")
	assert.Equal(t, "v", v)

	d.Wait()
	calls := tr.calls()
	require.Len(t, calls, 3, "one attempt plus MaxRetries retries")
	for _, c := range calls {
		assert.Equal(t, "n2", c.peer)
		assert.Equal(t, "k", c.key)
	}
	assert.Equal(t, 1, met.replicated[false])

	entries := logs.FilterMessage("replication failed").All()
	require.Len(t, entries, 1)
	err, _ := entries[0].ContextMap()["error"].(string)
	assert.Contains(t, err, "peer unavailable")
}

func TestManager_ReplicaSet(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	d := newNode(t, Options[string]{Transport: tr, ReplicationFactor: 2})
	for _, id := range []string{"n2", "n3", "n4"} {
		require.NoError(t, d.AddPeer(id, id+":7070"))
	}

	require.NoError(t, d.PutWithTTL("doc:1", "v", time.Minute))
	d.Wait()

	calls := tr.calls()
	require.Len(t, calls, 2)
	assert.NotEqual(t, calls[0].peer, calls[1].peer)
	want := d.ring.successors("doc:1", 2, "n1")
	assert.ElementsMatch(t, want, []string{calls[0].peer, calls[1].peer})
	for _, c := range calls {
		assert.NotEqual(t, "n1", c.peer)
		assert.Equal(t, time.Minute, c.ttl, "TTL travels with the replica")
	}
}

func TestManager_ReplicationDisabled(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	d := newNode(t, Options[string]{Transport: tr, ReplicationFactor: -1})
	require.NoError(t, d.AddPeer("n2", "a"))
	require.NoError(t, d.Put("k", "v"))
	d.Wait()
	assert.Empty(t, tr.calls())
}

func TestManager_NoPeersNoReplication(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	d := newNode(t, Options[string]{Transport: tr})
	require.NoError(t, d.Put("k", "v"))
	d.Wait()
	assert.Empty(t, tr.calls())
	assert.Equal(t, "n1", d.Owner("k"))
}

func TestManager_LocalCapacityErrorIsReturned(t *testing.T) {
	t.Parallel()

	cfg := cache.DefaultConfig()
	cfg.MaxSizeBytes = 4
	cfg.CleanupInterval = -1
	local, err := cache.New(cache.Options[string]{Config: &cfg})
	require.NoError(t, err)
	tr := newFakeTransport()
	d, err := New(local, Options[string]{NodeID: "n1", Transport: tr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, d.AddPeer("n2", "a"))

	assert.ErrorIs(t, d.Put("k", "too large"), cache.ErrCapacity)
	d.Wait()
	assert.Empty(t, tr.calls(), "nothing is replicated when the local write fails")
}

// findKey returns a key owned by want on d's ring.
func findKey(t *testing.T, d *Manager[string], want string) string {
	t.Helper()
	for i := 0; i < 10_000; i++ {
		if k := "key-" + strconv.Itoa(i); d.Owner(k) == want {
			return k
		}
	}
	t.Fatalf("no key owned by %s", want)
	return ""
}

func TestManager_GetForwardsToOwner(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	met := newCountingMetrics()
	d := newNode(t, Options[string]{Transport: tr, Metrics: met})
	require.NoError(t, d.AddPeer("n2", "a"))

	remote := findKey(t, d, "n2")
	local := findKey(t, d, "n1")
	tr.stores["n2"] = map[string]string{remote: "from-n2", local: "never-asked"}

	v, ok := d.Get(remote)
	require.True(t, ok)
	assert.Equal(t, "from-n2", v)
	assert.False(t, d.Local().Contains(remote), "remote hits are not cached locally")

	_, ok = d.Get(local)
	assert.False(t, ok, "keys owned locally are not forwarded")

	require.NoError(t, d.Local().Put(remote, "local-copy"))
	v, _ = d.Get(remote)
	assert.Equal(t, "local-copy", v, "the local cache is checked first")

	assert.Equal(t, 1, met.lookups[LookupHit])
}

func TestManager_GetFoldsTransportErrors(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	met := newCountingMetrics()
	d := newNode(t, Options[string]{Transport: tr, Metrics: met})
	require.NoError(t, d.AddPeer("n2", "a"))
	k := findKey(t, d, "n2")

	_, ok := d.Get(k)
	assert.False(t, ok)
	tr.fail["n2"] = true
	_, ok = d.Get(k)
	assert.False(t, ok)

	assert.Equal(t, 1, met.lookups[LookupMiss])
	assert.Equal(t, 1, met.lookups[LookupError])
}

func TestManager_Membership(t *testing.T) {
	t.Parallel()

	met := newCountingMetrics()
	d := newNode(t, Options[string]{Transport: newFakeTransport(), Metrics: met})

	assert.ErrorIs(t, d.AddPeer("", "a"), ErrInvalidPeer)
	assert.ErrorIs(t, d.AddPeer("n1", "a"), ErrInvalidPeer)

	require.NoError(t, d.AddPeer("n3", "c"))
	require.NoError(t, d.AddPeer("n2", "b"))
	require.NoError(t, d.AddPeer("n2", "b2"))
	assert.Equal(t, []Peer{{ID: "n2", Address: "b2"}, {ID: "n3", Address: "c"}}, d.Peers())
	assert.Equal(t, 2, met.peers)

	k := findKey(t, d, "n2")
	assert.True(t, d.RemovePeer("n2"))
	assert.False(t, d.RemovePeer("n2"))
	assert.NotEqual(t, "n2", d.Owner(k), "routing follows membership")
	assert.Equal(t, 1, met.peers)
}

func TestManager_DelegatesLocalOperations(t *testing.T) {
	t.Parallel()

	d := newNode(t, Options[string]{Transport: newFakeTransport()})

	require.NoError(t, d.BatchPut(map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, d.WarmUp(context.Background(), map[string]string{"c": "3"}))
	assert.Equal(t, []string{"a", "b", "c"}, d.Keys())
	assert.Equal(t, 3, d.Len())
	assert.EqualValues(t, 3, d.Size())
	assert.True(t, d.Contains("a"))
	assert.Equal(t, map[string]string{"a": "1", "c": "3"}, d.BatchGet([]string{"a", "c", "zz"}))

	assert.True(t, d.Remove("a"))
	assert.Equal(t, 2, d.Stats().TotalEntries)
	d.ResetStats()
	assert.Zero(t, d.Stats().Hits)
	d.Clear()
	assert.Zero(t, d.Len())
}

func TestManager_CloseCancelsReplication(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	tr := &blockingTransport{release: block}
	cfg := cache.DefaultConfig()
	cfg.CleanupInterval = -1
	local, err := cache.New(cache.Options[string]{Config: &cfg})
	require.NoError(t, err)
	d, err := New(local, Options[string]{NodeID: "n1", Transport: tr, ReplicationTimeout: time.Minute})
	require.NoError(t, err)
	require.NoError(t, d.AddPeer("n2", "a"))

	require.NoError(t, d.Put("k", "v"))
	done := make(chan struct{})
	go func() {
		_ = d.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		close(block)
		t.Fatal("Close must cancel in-flight replication")
	}
	assert.ErrorIs(t, d.Put("k2", "v"), cache.ErrClosed)
}

func TestNew_RequiresTransport(t *testing.T) {
	t.Parallel()

	local, err := cache.New(cache.Options[string]{})
	require.NoError(t, err)
	defer local.Close()

	_, err = New(local, Options[string]{})
	assert.ErrorIs(t, err, ErrNoTransport)

	d, err := New(local, Options[string]{Transport: newFakeTransport()})
	require.NoError(t, err)
	assert.Len(t, d.NodeID(), 36, "a UUID node ID is generated")
}

// Replicas carry the bytes given to Put even if the caller reuses the slice.
func TestManager_ReplicaPayloadIsCopied(t *testing.T) {
	t.Parallel()

	tr := &gatedBytesTransport{release: make(chan struct{}), got: make(chan []byte, 1)}
	cfg := cache.DefaultConfig()
	cfg.DefaultTTL = 0
	cfg.CleanupInterval = -1
	local, err := cache.New(cache.Options[[]byte]{Config: &cfg})
	require.NoError(t, err)
	d, err := New(local, Options[[]byte]{NodeID: "n1", Transport: tr, ReplicationFactor: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, d.AddPeer("n2", "a"))

	buf := []byte("original")
	require.NoError(t, d.Put("k", buf))
	copy(buf, "mutated!")
	close(tr.release)
	d.Wait()

	assert.Equal(t, []byte("original"), <-tr.got)
	v, ok := d.Local().Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("original"), v)
}

// gatedBytesTransport holds each Put until release, then records the payload.
type gatedBytesTransport struct {
	release chan struct{}
	got     chan []byte
}

func (g *gatedBytesTransport) Get(context.Context, Peer, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (g *gatedBytesTransport) Put(ctx context.Context, _ Peer, _ string, v []byte, _ time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.release:
	}
	g.got <- bytes.Clone(v)
	return nil
}

// blockingTransport waits for ctx or release on every call.
type blockingTransport struct{ release chan struct{} }

func (b *blockingTransport) Get(ctx context.Context, _ Peer, _ string) (string, bool, error) {
	return "", false, b.wait(ctx)
}

func (b *blockingTransport) Put(ctx context.Context, _ Peer, _ string, _ string, _ time.Duration) error {
	return b.wait(ctx)
}

func (b *blockingTransport) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.release:
		return errors.New("released")
	}
}
