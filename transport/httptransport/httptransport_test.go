package httptransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/IvanBrykalov/tiercache/cache"
	"github.com/IvanBrykalov/tiercache/distributed"
)

type doc struct {
	Path  string   `json:"path"`
	Lines []string `json:"lines"`
}

func newLocal[V any](t *testing.T, mut func(*cache.Config)) *cache.Manager[V] {
	t.Helper()
	cfg := cache.DefaultConfig()
	cfg.DefaultTTL = 0
	cfg.CleanupInterval = -1
	if mut != nil {
		mut(&cfg)
	}
	m, err := cache.New(cache.Options[V]{Config: &cfg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func serve[V any](t *testing.T, store cache.Cache[V]) (distributed.Peer, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(NewHandler(store, zaptest.NewLogger(t)))
	t.Cleanup(srv.Close)
	return distributed.Peer{ID: "remote", Address: srv.URL}, srv
}

func TestClient_RoundTrip(t *testing.T) {
	t.Parallel()

	local := newLocal[doc](t, nil)
	peer, _ := serve[doc](t, local)
	c := NewClient[doc](nil)
	ctx := context.Background()

	want := doc{Path: "src/main.go", Lines: []string{"package main"}}
	require.NoError(t, c.Put(ctx, peer, "parsed/src/main.go", want, 0))

	got, ok, err := c.Get(ctx, peer, "parsed/src/main.go")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.True(t, local.Contains("parsed/src/main.go"), "keys may contain slashes")

	_, ok, err = c.Get(ctx, peer, "missing")
	require.NoError(t, err)
	assert.False(t, ok, "404 is a miss")
}

func TestClient_TTL(t *testing.T) {
	t.Parallel()

	local := newLocal[string](t, nil)
	peer, _ := serve[string](t, local)
	c := NewClient[string](nil)

	require.NoError(t, c.Put(context.Background(), peer, "k", "v", 90*time.Second))
	in, ok := local.Inspect("k")
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, in.TTL)
}

func TestClient_PeerUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	c := NewClient[string](&http.Client{Timeout: time.Second})
	peer := distributed.Peer{ID: "gone", Address: addr}

	_, _, err := c.Get(context.Background(), peer, "k")
	assert.ErrorIs(t, err, distributed.ErrPeerUnavailable)
	err = c.Put(context.Background(), peer, "k", "v", 0)
	assert.ErrorIs(t, err, distributed.ErrPeerUnavailable)
}

func TestClient_CapacityIsNotRetryable(t *testing.T) {
	t.Parallel()

	local := newLocal[string](t, func(c *cache.Config) { c.MaxSizeBytes = 4 })
	peer, _ := serve[string](t, local)

	err := NewClient[string](nil).Put(context.Background(), peer, "k", "too large", 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, distributed.ErrPeerUnavailable)
	assert.Contains(t, err.Error(), "507")
}

func TestHandler_Routes(t *testing.T) {
	t.Parallel()

	local := newLocal[string](t, nil)
	_, srv := serve[string](t, local)
	require.NoError(t, local.Put("k", "v"))

	do := func(method, path, body string) int {
		req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, do(http.MethodGet, PathPrefix+"k", ""))
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPut, PathPrefix+"k?ttl=soon", `"v"`))
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPut, PathPrefix+"k?ttl=-1s", `"v"`))
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPut, PathPrefix+"k", `not json`))
	assert.Equal(t, http.StatusBadRequest, do(http.MethodGet, PathPrefix, ""))
	assert.Equal(t, http.StatusNoContent, do(http.MethodDelete, PathPrefix+"k", ""))
	assert.Equal(t, http.StatusNotFound, do(http.MethodDelete, PathPrefix+"k", ""))
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, PathPrefix+"k", ""))

	require.NoError(t, local.Close())
	assert.Equal(t, http.StatusServiceUnavailable, do(http.MethodPut, PathPrefix+"k", `"v"`))
}

// Two nodes wired through real HTTP: a write on n1 lands on n2, and n2
// serves keys it owns to n1.
func TestCluster_ReplicationOverHTTP(t *testing.T) {
	t.Parallel()

	newNode := func(id string) (*distributed.Manager[string], *httptest.Server) {
		local := newLocal[string](t, nil)
		d, err := distributed.New(local, distributed.Options[string]{
			NodeID:        id,
			Transport:     NewClient[string](nil),
			Logger:        zaptest.NewLogger(t),
			RetryInterval: time.Millisecond,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = d.Close() })
		srv := httptest.NewServer(NewHandler[string](d.Local(), nil))
		t.Cleanup(srv.Close)
		return d, srv
	}

	n1, s1 := newNode("n1")
	n2, s2 := newNode("n2")
	require.NoError(t, n1.AddPeer("n2", s2.URL))
	require.NoError(t, n2.AddPeer("n1", s1.URL))

	require.NoError(t, n1.PutWithTTL("doc", "v1", time.Minute))
	n1.Wait()
	v, ok := n2.Local().Get("doc")
	require.True(t, ok, "replica must reach n2")
	assert.Equal(t, "v1", v)

	// A key written only on n2 is found from n1 when n2 owns it.
	var k string
	for i := 0; k == ""; i++ {
		if c := "only-n2-" + string(rune('a'+i%26)) + string(rune('a'+i/26)); n1.Owner(c) == "n2" {
			k = c
		}
	}
	require.NoError(t, n2.Local().Put(k, "remote"))
	v, ok = n1.Get(k)
	require.True(t, ok)
	assert.Equal(t, "remote", v)
}
