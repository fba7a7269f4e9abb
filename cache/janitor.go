package cache

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// startJanitor launches the periodic TTL sweep. Close stops it.
func (m *Manager[V]) startJanitor(every time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	m.stopJanitor = cancel
	m.janitorDone = make(chan struct{})
	go m.runJanitor(ctx, every)
}

func (m *Manager[V]) runJanitor(ctx context.Context, every time.Duration) {
	defer close(m.janitorDone)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.sweep(ctx)
		}
	}
}

// DeleteExpired removes every entry whose TTL has elapsed and returns how
// many were dropped. The janitor calls the same routine on its schedule.
func (m *Manager[V]) DeleteExpired() int {
	return m.sweep(context.Background())
}

// sweep drains expired entries in batches of CleanupBatchSize, releasing the
// lock between batches so readers are not stalled behind a large backlog.
func (m *Manager[V]) sweep(ctx context.Context) (removed int) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("janitor sweep panicked", zap.Any("panic", r), zap.Int("expired", removed))
		}
	}()
	for {
		n, more := m.expireBatch(m.cfg.CleanupBatchSize)
		removed += n
		if !more || ctx.Err() != nil {
			break
		}
		runtime.Gosched()
	}
	if removed > 0 {
		m.log.Debug("janitor sweep", zap.Int("expired", removed))
	}
	return removed
}

// expireBatch drops up to limit expired entries under a single lock hold.
func (m *Manager[V]) expireBatch(limit int) (n int, more bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for ; n < limit; n++ {
		e := m.store.nextExpired(now)
		if e == nil {
			break
		}
		m.expireLocked(e)
	}
	if n > 0 {
		m.reportSizeLocked()
	}
	return n, m.store.nextExpired(now) != nil
}
