// Command bench runs a synthetic workload against the cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/tiercache/cache"
	"github.com/IvanBrykalov/tiercache/internal/logging"
	pmet "github.com/IvanBrykalov/tiercache/metrics/prom"
)

func main() {
	// ---- Flags ----
	var (
		configPath = flag.String("config", "", "YAML cache config file; flags below override it")
		capacity   = flag.Int("cap", 0, "hot-tier capacity in entries (0 = config/default)")
		policy     = flag.String("policy", "", "eviction policy: lru | lfu | fifo | ttl (empty = config/default)")
		ttl        = flag.Duration("ttl", 0, "per-write TTL (0 = config default_ttl)")
		compress   = flag.Bool("compress", false, "enable payload compression")
		valueSize  = flag.Int("value_size", 32, "value size in bytes")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 0, "preload entries (0 = cap/2)")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
		logLevel    = flag.String("log_level", "info", "log level: debug | info | warn | error")
	)
	flag.Parse()

	log, err := logging.New(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	// ---- Config: defaults, then file, then flags ----
	cfg := cache.DefaultConfig()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			log.Fatal("read config", zap.String("path", *configPath), zap.Error(err))
		}
		if cfg, err = cache.ParseConfigYAML(data); err != nil {
			log.Fatal("parse config", zap.String("path", *configPath), zap.Error(err))
		}
	}
	if *capacity > 0 {
		cfg.MaxEntries = *capacity
	}
	if *policy != "" {
		p, err := cache.ParseEvictionPolicy(*policy)
		if err != nil {
			log.Fatal("bad -policy", zap.Error(err))
		}
		cfg.EvictionPolicy = p
	}
	if *compress {
		cfg.CompressionEnabled = true
	}

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Info("pprof: serving", zap.String("addr", *pprofAddr))
			log.Warn("pprof server stopped", zap.Error(http.ListenAndServe(*pprofAddr, nil)))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "tiercache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Info("metrics: serving", zap.String("addr", *metricsAddr))
		log.Warn("metrics server stopped", zap.Error(http.ListenAndServe(*metricsAddr, nil)))
	}()

	// ---- Build cache ----
	c, err := cache.New[string](cache.Options[string]{
		Config:  &cfg,
		Metrics: metrics,
		Logger:  log,
	})
	if err != nil {
		log.Fatal("build cache", zap.Error(err))
	}
	defer func() { _ = c.Close() }()
	cfg = c.Config()

	put := func(k, v string) error {
		if *ttl > 0 {
			return c.PutWithTTL(k, v, *ttl)
		}
		return c.Put(k, v)
	}
	value := strings.Repeat("v", max(*valueSize, 1))

	// ---- Preload half capacity to get a realistic hit-rate ----
	pl := *preload
	if pl == 0 {
		pl = cfg.MaxEntries / 2
	}
	for i := 0; i < pl; i++ {
		if err := put("k:"+strconv.Itoa(i), value); err != nil {
			log.Fatal("preload", zap.Int("entry", i), zap.Error(err))
		}
	}

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, writes, hits, misses, rejected, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			keyByZipf := func() string {
				return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				if int(localR.Int31n(100)) < readPctVal {
					atomic.AddUint64(&reads, 1)
					if _, ok := c.Get(keyByZipf()); ok {
						atomic.AddUint64(&hits, 1)
					} else {
						atomic.AddUint64(&misses, 1)
					}
				} else {
					atomic.AddUint64(&writes, 1)
					if err := put(keyByZipf(), value); err != nil {
						atomic.AddUint64(&rejected, 1)
					}
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	hitsN := atomic.LoadUint64(&hits)
	missesN := atomic.LoadUint64(&misses)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}
	st := c.Stats()

	fmt.Printf("policy=%s cap=%d compress=%v workers=%d keys=%d dur=%v seed=%d\n",
		cfg.EvictionPolicy, cfg.MaxEntries, cfg.CompressionEnabled, workersN, *keys, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  rejected=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writesN, atomic.LoadUint64(&rejected))
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, missesN, hitRate)
	fmt.Printf("hot=%d warm=%d bytes=%d evictions=%d promotions=%d expirations=%d\n",
		st.HotEntries, st.WarmEntries, st.TotalSizeBytes, st.Evictions, st.Promotions, st.Expirations)
}
