package prom

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/tiercache/cache"
	"github.com/IvanBrykalov/tiercache/distributed"
)

func TestAdapter_CacheSignals(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a := New(reg, "tiercache", "test", nil)

	cfg := cache.DefaultConfig()
	cfg.MaxEntries = 1
	cfg.CleanupInterval = -1
	m, err := cache.New(cache.Options[string]{Config: &cfg, Metrics: a})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	require.NoError(t, m.Put("a", "1"))
	require.NoError(t, m.Put("b", "22")) // demotes a
	m.Get("a")                           // promotes a, demotes b
	m.Get("zz")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.promotions))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.evicts.WithLabelValues("demoted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.sizeEnt))
	assert.Equal(t, 3.0, testutil.ToFloat64(a.sizeBytes))

	a.Evict(cache.EvictTTL)
	a.Evict(cache.EvictCapacity)
	want := `
# HELP tiercache_test_evictions_total Entries leaving the hot tier or the cache, by reason
# TYPE tiercache_test_evictions_total counter
tiercache_test_evictions_total{reason="capacity"} 1
tiercache_test_evictions_total{reason="demoted"} 2
tiercache_test_evictions_total{reason="ttl"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(want), "tiercache_test_evictions_total"))
}

func TestAdapter_DistributedSignals(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a := New(reg, "tiercache", "", prometheus.Labels{"node": "n1"})

	a.Replicated(true)
	a.Replicated(true)
	a.Replicated(false)
	a.RemoteLookup(distributed.LookupHit)
	a.RemoteLookup(distributed.LookupError)
	a.Peers(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.replications.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.replications.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.remoteLookups.WithLabelValues("hit")))
	assert.Equal(t, 3.0, testutil.ToFloat64(a.peers))

	n, err := testutil.GatherAndCount(reg, "tiercache_remote_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
