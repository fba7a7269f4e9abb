// Package distributed routes cache lookups and writes across a set of peer
// nodes. Each node keeps a local cache.Manager; keys are owned by members of
// a consistent-hash ring and writes are replicated asynchronously.
//
// There is no cross-node consistency: concurrent writes to one key on
// different nodes race, and the last write to arrive wins.
package distributed

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/tiercache/cache"
)

// Manager wraps a local cache with a peer registry and ring routing.
// It implements cache.Cache and is safe for concurrent use.
type Manager[V any] struct {
	local *cache.Manager[V]
	opt   Options[V]
	log   *zap.Logger

	mu     sync.RWMutex
	peers  map[string]Peer
	ring   *ring
	closed bool

	// replication goroutines; ctx is cancelled by Close.
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

var _ cache.Cache[int] = (*Manager[int])(nil)

// New wraps local. The local manager is owned by the returned Manager and
// closed by its Close.
func New[V any](local *cache.Manager[V], opt Options[V]) (*Manager[V], error) {
	if opt.Transport == nil {
		return nil, ErrNoTransport
	}
	opt = opt.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	d := &Manager[V]{
		local:  local,
		opt:    opt,
		log:    opt.Logger.Named("distributed").With(zap.String("node", opt.NodeID)),
		peers:  make(map[string]Peer),
		ctx:    ctx,
		cancel: cancel,
	}
	d.rebuildLocked()
	return d, nil
}

// NodeID returns this node's ring identifier.
func (d *Manager[V]) NodeID() string { return d.opt.NodeID }

// Local returns the wrapped local cache. Peer handlers should serve from it
// so that replicated writes are not replicated again.
func (d *Manager[V]) Local() *cache.Manager[V] { return d.local }

// ---- membership ----

// AddPeer registers or re-addresses a peer and rebalances the ring.
func (d *Manager[V]) AddPeer(nodeID, address string) error {
	if nodeID == "" || nodeID == d.opt.NodeID {
		return ErrInvalidPeer
	}
	d.mu.Lock()
	d.peers[nodeID] = Peer{ID: nodeID, Address: address}
	d.rebuildLocked()
	n := len(d.peers)
	d.mu.Unlock()

	d.opt.Metrics.Peers(n)
	d.log.Info("peer added", zap.String("peer", nodeID), zap.String("address", address), zap.Int("peers", n))
	return nil
}

// RemovePeer unregisters a peer and rebalances the ring.
// It reports whether the peer was registered.
func (d *Manager[V]) RemovePeer(nodeID string) bool {
	d.mu.Lock()
	if _, ok := d.peers[nodeID]; !ok {
		d.mu.Unlock()
		return false
	}
	delete(d.peers, nodeID)
	d.rebuildLocked()
	n := len(d.peers)
	d.mu.Unlock()

	d.opt.Metrics.Peers(n)
	d.log.Info("peer removed", zap.String("peer", nodeID), zap.Int("peers", n))
	return true
}

// Peers returns the registered peers sorted by ID.
func (d *Manager[V]) Peers() []Peer {
	d.mu.RLock()
	out := make([]Peer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, p)
	}
	d.mu.RUnlock()
	slices.SortFunc(out, func(a, b Peer) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Owner returns the ID of the node owning key, possibly this node.
func (d *Manager[V]) Owner(key string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ring.owner(key)
}

func (d *Manager[V]) rebuildLocked() {
	nodes := make([]string, 0, len(d.peers)+1)
	nodes = append(nodes, d.opt.NodeID)
	for id := range d.peers {
		nodes = append(nodes, id)
	}
	d.ring = newRing(nodes, d.opt.VirtualNodes)
}

// ---- routed operations ----

// Get checks the local cache and, on a miss, asks the key's owner when
// that is another node. Transport failures are logged and read as a miss.
// Remote hits are not copied into the local cache.
func (d *Manager[V]) Get(key string) (V, bool) {
	return d.GetContext(context.Background(), key)
}

// GetContext is Get with a caller context bounding the forwarded lookup
// in addition to Options.LookupTimeout.
func (d *Manager[V]) GetContext(ctx context.Context, key string) (V, bool) {
	var zero V
	if v, ok := d.local.Get(key); ok {
		return v, true
	}

	d.mu.RLock()
	owner, remote := d.peers[d.ring.owner(key)]
	d.mu.RUnlock()
	if !remote {
		return zero, false
	}

	ctx, cancel := context.WithTimeout(ctx, d.opt.LookupTimeout)
	defer cancel()
	v, found, err := d.opt.Transport.Get(ctx, owner, key)
	switch {
	case err != nil:
		d.opt.Metrics.RemoteLookup(LookupError)
		d.log.Debug("remote lookup failed",
			zap.String("peer", owner.ID), zap.String("key", key), zap.Error(err))
		return zero, false
	case !found:
		d.opt.Metrics.RemoteLookup(LookupMiss)
		return zero, false
	}
	d.opt.Metrics.RemoteLookup(LookupHit)
	return v, true
}

// Put writes locally with the local DefaultTTL, then replicates in the
// background. Only the local write can fail.
func (d *Manager[V]) Put(key string, v V) error {
	return d.put(key, v, d.local.Config().DefaultTTL)
}

// PutWithTTL is Put with a per-key TTL, forwarded to replicas as well.
func (d *Manager[V]) PutWithTTL(key string, v V, ttl time.Duration) error {
	return d.put(key, v, max(ttl, 0))
}

// BatchGet resolves each key as Get does; missing keys are omitted.
func (d *Manager[V]) BatchGet(keys []string) map[string]V {
	out := make(map[string]V, len(keys))
	for _, k := range keys {
		if v, ok := d.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// BatchPut writes and replicates entries in sorted key order, stopping at
// the first local failure with a *cache.BatchError.
func (d *Manager[V]) BatchPut(entries map[string]V) error {
	return d.batchPut(entries, d.local.Config().DefaultTTL)
}

// BatchPutWithTTL is BatchPut with a shared per-key TTL.
func (d *Manager[V]) BatchPutWithTTL(entries map[string]V, ttl time.Duration) error {
	return d.batchPut(entries, max(ttl, 0))
}

// WarmUp preloads the local cache only; warm-up data is assumed to be
// loaded on every node independently.
func (d *Manager[V]) WarmUp(ctx context.Context, entries map[string]V) error {
	return d.local.WarmUp(ctx, entries)
}

// Remove deletes key from the local cache only.
func (d *Manager[V]) Remove(key string) bool { return d.local.Remove(key) }

// Clear clears the local cache only.
func (d *Manager[V]) Clear() { d.local.Clear() }

func (d *Manager[V]) Contains(key string) bool { return d.local.Contains(key) }
func (d *Manager[V]) Keys() []string           { return d.local.Keys() }
func (d *Manager[V]) Size() int64              { return d.local.Size() }
func (d *Manager[V]) Len() int                 { return d.local.Len() }
func (d *Manager[V]) Stats() cache.Stats       { return d.local.Stats() }
func (d *Manager[V]) ResetStats()              { d.local.ResetStats() }

// Close cancels in-flight replication, waits for it to finish and closes
// the local cache.
func (d *Manager[V]) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	return d.local.Close()
}

// Wait blocks until replication started so far has finished. It must not
// run concurrently with writes.
func (d *Manager[V]) Wait() { d.wg.Wait() }

// ---- replication ----

func (d *Manager[V]) put(key string, v V, ttl time.Duration) error {
	if err := d.local.PutWithTTL(key, v, ttl); err != nil {
		return err
	}
	d.replicate(key, v, ttl)
	return nil
}

func (d *Manager[V]) batchPut(entries map[string]V, ttl time.Duration) error {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for i, k := range keys {
		if err := d.put(k, entries[k], ttl); err != nil {
			return &cache.BatchError{Key: k, Applied: i, Err: err}
		}
	}
	return nil
}

// replicate starts one background round copying key to its replica set:
// up to ReplicationFactor distinct peers clockwise from hash(key).
func (d *Manager[V]) replicate(key string, v V, ttl time.Duration) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed || d.opt.ReplicationFactor < 0 {
		return
	}
	ids := d.ring.successors(key, d.opt.ReplicationFactor, d.opt.NodeID)
	if len(ids) == 0 {
		return
	}
	targets := make([]Peer, len(ids))
	for i, id := range ids {
		targets[i] = d.peers[id]
	}
	// The caller may reuse a byte slice once Put returns.
	if b, ok := any(v).([]byte); ok {
		v = any(bytes.Clone(b)).(V)
	}

	// Add under the read lock so Close cannot start waiting in between.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(d.ctx, d.opt.ReplicationTimeout)
		defer cancel()

		var g errgroup.Group
		for _, p := range targets {
			p := p
			g.Go(func() error {
				err := d.send(ctx, p, key, v, ttl)
				d.opt.Metrics.Replicated(err == nil)
				if err != nil {
					rerr := &ReplicationError{Peer: p.ID, Key: key, Err: err}
					d.log.Warn("replication failed",
						zap.String("peer", p.ID),
						zap.String("address", p.Address),
						zap.String("key", key),
						zap.Error(rerr))
					return rerr
				}
				return nil
			})
		}
		if err := g.Wait(); err == nil {
			d.log.Debug("replicated", zap.String("key", key), zap.Int("replicas", len(targets)))
		}
	}()
}

// send writes one replica with exponential backoff, bounded by ctx and
// Options.MaxRetries.
func (d *Manager[V]) send(ctx context.Context, p Peer, key string, v V, ttl time.Duration) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.opt.RetryInterval
	eb.MaxInterval = d.opt.ReplicationTimeout
	eb.MaxElapsedTime = 0 // ctx bounds the round
	eb.Reset()
	bo := backoff.WithContext(backoff.WithMaxRetries(eb, d.opt.MaxRetries), ctx)

	return backoff.Retry(func() error {
		err := d.opt.Transport.Put(ctx, p, key, v, ttl)
		if err != nil && !errors.Is(err, ErrPeerUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}
