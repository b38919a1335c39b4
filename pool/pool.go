// Package pool implements the bounded handle pool manager described in
// spec §4.3: blocking acquisition, lifetime/idle/query-count based
// recycling, an epoch mechanism for in-flight invalidation ("bounce"),
// and coordinated shutdown.
//
// The acquire/wait/timeout shape is grounded on the token-bucket-style
// deadline wait in the pack's db-bouncer TenantPool.Acquire
// (other_examples/...db-bouncer__internal-pool-pool.go.go): a
// sync.Cond paired with a time.AfterFunc timer that broadcasts on
// expiry, then a post-wake check of whether the deadline has actually
// passed. The idle-handle bookkeeping (counts, LRU-style
// connected-first ordering) follows the map+doubly-linked-list shape
// of burrowctl's QueryCache (server/query_cache.go), adapted from an
// LRU eviction list to an idle-handle queue ordered "connected handles
// first" per spec §3.
package pool

import (
	"container/list"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lordbasex/dbicore/dbierrors"
	"github.com/lordbasex/dbicore/driver"
)

// Pool is a bounded collection of Handles sharing one driver
// configuration and recycling policy (spec §3 "Pool").
type Pool struct {
	name string
	drv  driver.Driver
	drvConfig driver.Config
	cfg  Config

	mu       sync.Mutex
	cond     *sync.Cond
	idle     *list.List // of *Handle, head = most recently returned connected handle
	nhandles int
	stopping bool
	epoch    uint64

	stats Stats
}

// New creates a pool for drv using drvConfig, applying cfg (normalized
// against DefaultConfig's floors).
func New(name string, drv driver.Driver, drvConfig driver.Config, cfg Config) *Pool {
	p := &Pool{
		name:      name,
		drv:       drv,
		drvConfig: drvConfig,
		cfg:       cfg.normalized(),
		idle:      list.New(),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Name returns the pool's name, unique within its server.
func (p *Pool) Name() string { return p.name }

// DriverName returns the name of the driver this pool was created
// with (spec §4.5 public API surface implies pools know their
// driver/database identity).
func (p *Pool) DriverName() string { return p.drv.Name() }

func (p *Pool) logf(format string, args ...interface{}) {
	log.Printf("[pool %s] "+format, append([]interface{}{p.name}, args...)...)
}

// Get acquires a handle, blocking until one is available, the
// supplied timeout elapses, or the pool starts shutting down (spec
// §4.3 "Acquisition"). A nil timeout uses the pool's configured
// default.
//
// If ctx carries a ThreadCache (see WithThreadCache) and that cache
// already holds a handle for this pool, that handle is detached and
// returned immediately without touching the pool's mutex (spec §4.3
// step 1, §3 "Per-thread handle cache").
func (p *Pool) Get(ctx context.Context, timeout *time.Duration) (*Handle, error) {
	if tc, ok := threadCacheFrom(ctx); ok {
		if h, ok := tc.detach(p); ok {
			return h, nil
		}
	}

	effTimeout := p.cfg.Timeout
	if timeout != nil {
		effTimeout = *timeout
	}
	deadline := time.Now().Add(effTimeout)

	p.mu.Lock()
	p.stats.HandleGets++

	var h *Handle
	for {
		if p.stopping {
			p.mu.Unlock()
			return nil, dbierrors.NewDomain(dbierrors.KindShutdown, "pool %q is shutting down", p.name)
		}

		if e := p.idle.Front(); e != nil {
			h = p.idle.Remove(e).(*Handle)
			h.elem = nil
			h.epoch = p.epoch
			break
		}

		if p.cfg.MaxHandles == 0 || p.nhandles < p.cfg.MaxHandles {
			h = newHandle(p)
			p.nhandles++
			break
		}

		if !p.waitLocked(deadline) {
			p.stats.HandleMisses++
			p.mu.Unlock()
			return nil, dbierrors.NewDomain(dbierrors.KindTimeout, "timed out waiting for a handle from pool %q", p.name)
		}
	}
	p.mu.Unlock()

	if !h.Connected() {
		if err := h.connect(ctx); err != nil {
			p.mu.Lock()
			p.stats.HandleFailures++
			p.returnLocked(h)
			p.cond.Broadcast()
			p.mu.Unlock()
			return nil, dbierrors.FromDriver(dbierrors.KindConnect, dbierrors.StateProgramming, err.Error())
		}
		p.mu.Lock()
		p.stats.HandleOpens++
		p.mu.Unlock()
	}

	if p.cfg.MaxHandles == 0 {
		h.n = -1
		if tc, ok := threadCacheFrom(ctx); ok {
			tc.attach(p, h)
		}
	}

	return h, nil
}

// waitLocked blocks on the pool's condition variable until signalled
// or deadline passes, reporting whether a retry is warranted (false
// means the deadline has passed). p.mu must be held; it is released
// and reacquired across the wait.
func (p *Pool) waitLocked(deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}
	timer := time.AfterFunc(remaining, p.cond.Broadcast)
	p.cond.Wait()
	timer.Stop()
	return time.Now().Before(deadline)
}

// Put releases a handle back to the pool (spec §4.3 "Release").
//
// It first resets the handle (flushing rows, clearing the exception,
// asking the driver to reset). Thread-cached handles (h.n == -1) are
// simply reattached to ctx's ThreadCache and never touch the pool's
// idle queue or mutex; when ctx carries no ThreadCache they are
// returned to the pool like any other handle.
func (p *Pool) Put(ctx context.Context, h *Handle) {
	p.resetHandle(ctx, h)

	if h.n == -1 {
		if tc, ok := threadCacheFrom(ctx); ok {
			tc.attach(p, h)
			return
		}
		// No thread cache in this context (e.g. the goroutine that
		// created it has none): fall through and return it to the
		// pool rather than leaking it.
		h.n = 0
	}

	now := time.Now()
	p.mu.Lock()
	h.atime = now
	p.closeIfStaleLocked(h, now)

	if p.stopping || (p.cfg.MaxHandles > 0 && p.nhandles > p.cfg.MaxHandles) {
		p.destroyLocked(h)
		p.mu.Unlock()
		return
	}

	p.returnLocked(h)
	p.cond.Broadcast()
	p.mu.Unlock()
}

// returnLocked places h onto the idle queue: at the head if it is
// still connected, at the tail otherwise (spec §3 "Pool" queue
// ordering, §4.3 step 9). p.mu must be held.
func (p *Pool) returnLocked(h *Handle) {
	if h.Connected() {
		h.elem = p.idle.PushFront(h)
	} else {
		h.elem = p.idle.PushBack(h)
	}
}

// destroyLocked removes h from the live-handle count entirely: its
// cache is flushed, the connection closed if still open. p.mu must be
// held.
func (p *Pool) destroyLocked(h *Handle) {
	h.disconnect()
	p.nhandles--
}

func (p *Pool) resetHandle(ctx context.Context, h *Handle) {
	if err := h.flushPendingRows(ctx); err != nil {
		h.pool.logf("warning: flush during reset failed: %v", err)
	}
	h.ResetException()
	if h.conn != nil {
		if err := h.conn.Reset(ctx); err != nil {
			h.pool.logf("warning: driver reset failed: %v", err)
		}
	}
	h.transDepth = -1
	h.curStmt = nil
}

// closeIfStaleLocked evaluates the staleness policy (spec §4.3)
// against h and, on a match, disconnects it and reports true. Besides
// Put, CheckPool (the background sweep) calls it. p.mu must be held by
// the caller.
func (p *Pool) closeIfStaleLocked(h *Handle, now time.Time) bool {
	reason, stale := p.staleReasonLocked(h, now)
	if !stale {
		return false
	}

	p.stats.Queries += h.queries
	switch reason {
	case "aged":
		p.stats.AgedCloses++
	case "idle":
		p.stats.IdleCloses++
	case "used":
		p.stats.QueryCloses++
	}
	h.disconnect()
	return true
}

// staleReasonLocked evaluates the five staleness rules in priority
// order (spec §4.3 "Staleness policy"); the first match wins.
func (p *Pool) staleReasonLocked(h *Handle, now time.Time) (reason string, stale bool) {
	switch {
	case p.stopping:
		return "stopped", true
	case p.epoch > h.epoch:
		return "bounced", true
	case p.cfg.MaxOpen > 0 && h.otime.Before(now.Add(-p.cfg.MaxOpen)):
		return "aged", true
	case p.cfg.MaxIdle > 0 && h.atime.Before(now.Add(-p.cfg.MaxIdle)):
		return "idle", true
	case p.cfg.MaxQueries > 0 && h.queries >= p.cfg.MaxQueries:
		return "used", true
	default:
		return "", false
	}
}

// CheckPool sweeps the idle queue, recycling any handle the staleness
// policy now flags (spec §4.3 "Periodic sweep and bouncing"). When
// bounce is true the pool's epoch is bumped first, which is what makes
// Dbi_BouncePool recycle every idle handle and, eventually, every
// leased one as it's returned.
func (p *Pool) CheckPool(bounce bool) {
	now := time.Now()

	p.mu.Lock()
	if bounce {
		p.epoch++
	}

	var reordered []*Handle
	for e := p.idle.Front(); e != nil; {
		next := e.Next()
		h := p.idle.Remove(e).(*Handle)
		h.elem = nil
		p.closeIfStaleLocked(h, now)
		reordered = append(reordered, h)
		e = next
	}
	for _, h := range reordered {
		p.returnLocked(h)
	}
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Bounce increments the pool's epoch and immediately recycles every
// idle handle (spec §4.3, "Epoch-based invalidation" in spec §9).
// Handles currently leased are recycled the next time they are put
// back, because their snapshotted epoch then trails the pool's.
func (p *Pool) Bounce() {
	p.CheckPool(true)
}

// Shutdown begins (or continues) draining the pool. A nil deadline
// runs phase 1 only: set stopping and broadcast so every waiter fails
// fast. A non-nil deadline additionally waits for in-flight handles to
// be returned and recycled, until either every handle is gone or the
// deadline elapses (spec §4.3 "Shutdown").
func (p *Pool) Shutdown(ctx context.Context, deadline *time.Time) error {
	p.mu.Lock()
	p.stopping = true
	p.cond.Broadcast()

	if deadline == nil {
		p.mu.Unlock()
		return nil
	}

	for p.nhandles > 0 && time.Now().Before(*deadline) {
		for e := p.idle.Front(); e != nil; {
			next := e.Next()
			h := p.idle.Remove(e).(*Handle)
			h.elem = nil
			p.destroyLocked(h)
			e = next
		}
		if p.nhandles == 0 {
			break
		}
		remaining := time.Until(*deadline)
		if remaining <= 0 {
			break
		}
		timer := time.AfterFunc(remaining, p.cond.Broadcast)
		p.cond.Wait()
		timer.Stop()
	}

	remaining := p.nhandles
	p.mu.Unlock()

	if remaining > 0 {
		return fmt.Errorf("pool %q: shutdown deadline reached with %d handle(s) still outstanding", p.name, remaining)
	}
	return nil
}

// RunSweeper runs the periodic staleness sweep (spec §4.3 "Periodic
// sweep") at the pool's configured CheckInterval until ctx is
// cancelled. Callers normally run this once per pool in its own
// goroutine, the way burrowctl/server/heartbeat.go runs its
// connection-health loop.
func (p *Pool) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CheckPool(false)
		}
	}
}

// NHandles returns the current live handle count.
func (p *Pool) NHandles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nhandles
}

// IdleHandles returns the current idle-queue length.
func (p *Pool) IdleHandles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle.Len()
}

// Epoch returns the pool's current bounce generation.
func (p *Pool) Epoch() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epoch
}

// IsDefault reports whether this pool was configured as its server's
// default pool (spec §6 "Configuration (per pool)").
func (p *Pool) IsDefault() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Default
}

// Stopping reports whether the pool has begun shutting down.
func (p *Pool) Stopping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}
