// Package prom exports cache and distributed-layer metrics to Prometheus.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/tiercache/cache"
	"github.com/IvanBrykalov/tiercache/distributed"
)

// Adapter implements cache.Metrics and distributed.Metrics and exports
// Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	evicts     *prometheus.CounterVec
	promotions prometheus.Counter
	sizeEnt    prometheus.Gauge
	sizeBytes  prometheus.Gauge

	replications  *prometheus.CounterVec
	remoteLookups *prometheus.CounterVec
	peers         prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}
	counterVec := func(name, help, label string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		}, []string{label})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}

	a := &Adapter{
		hits:          counter("hits_total", "Cache hits"),
		misses:        counter("misses_total", "Cache misses"),
		evicts:        counterVec("evictions_total", "Entries leaving the hot tier or the cache, by reason", "reason"),
		promotions:    counter("promotions_total", "Warm-tier hits promoted into the hot tier"),
		sizeEnt:       gauge("size_entries", "Number of resident entries across both tiers"),
		sizeBytes:     gauge("size_bytes", "Estimated resident size in bytes across both tiers"),
		replications:  counterVec("replications_total", "Replica writes by result", "result"),
		remoteLookups: counterVec("remote_lookups_total", "Lookups forwarded to the owning peer by result", "result"),
		peers:         gauge("peers", "Registered peers"),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.promotions, a.sizeEnt, a.sizeBytes,
		a.replications, a.remoteLookups, a.peers)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label
// ("demoted", "ttl" or "capacity").
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Promote increments the promotion counter.
func (a *Adapter) Promote() { a.promotions.Inc() }

// Size updates gauges for the number of entries and total bytes.
func (a *Adapter) Size(entries int, bytes int64) {
	a.sizeEnt.Set(float64(entries))
	a.sizeBytes.Set(float64(bytes))
}

// Replicated counts a replica write as "ok" or "error".
func (a *Adapter) Replicated(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	a.replications.WithLabelValues(result).Inc()
}

// RemoteLookup counts a forwarded Get by result.
func (a *Adapter) RemoteLookup(r distributed.LookupResult) {
	a.remoteLookups.WithLabelValues(string(r)).Inc()
}

// Peers sets the registry size gauge.
func (a *Adapter) Peers(n int) { a.peers.Set(float64(n)) }

// Compile-time checks.
var (
	_ cache.Metrics       = (*Adapter)(nil)
	_ distributed.Metrics = (*Adapter)(nil)
)
