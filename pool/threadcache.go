package pool

import (
	"context"
	"sync"
)

// ThreadCache is the idiomatic Go substitute for the original's
// thread-local handle cache (spec §3 "Per-thread handle cache", §4.5,
// §5 "Thread-local cache"). The original relies on OS thread-local
// storage with a destructor that runs at thread exit; Go has neither
// true TLS nor a 1:1 mapping between goroutines and OS threads, so
// there is no way to hang state off "the current thread" implicitly.
//
// Instead, a caller that wants the unlimited-concurrency pools'
// handle-affinity behavior creates one ThreadCache per logical worker
// (e.g. one per long-lived goroutine in a worker pool, matching
// burrowctl's WorkerPool goroutines in server/worker_pool.go) and
// threads it through calls via context.Context using WithThreadCache.
// Pool.Get and Pool.Put both check for one and, when present, skip the
// pool's mutex and idle queue entirely for handles born on
// MaxHandles-unlimited pools.
type ThreadCache struct {
	mu      sync.Mutex
	handles map[*Pool]*Handle
}

// NewThreadCache creates an empty per-worker handle cache.
func NewThreadCache() *ThreadCache {
	return &ThreadCache{handles: make(map[*Pool]*Handle)}
}

type threadCacheKey struct{}

// WithThreadCache attaches tc to ctx so that Pool.Get/Put along the
// resulting context's call chain use it.
func WithThreadCache(ctx context.Context, tc *ThreadCache) context.Context {
	return context.WithValue(ctx, threadCacheKey{}, tc)
}

func threadCacheFrom(ctx context.Context) (*ThreadCache, bool) {
	tc, ok := ctx.Value(threadCacheKey{}).(*ThreadCache)
	return tc, ok
}

// detach removes and returns the handle cached for p, if any.
func (tc *ThreadCache) detach(p *Pool) (*Handle, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	h, ok := tc.handles[p]
	if ok {
		delete(tc.handles, p)
	}
	return h, ok
}

// attach stores h as the cached handle for p, replacing (and
// returning to its pool) any handle already cached for that pool —
// this should not normally happen, since a worker holds at most one
// handle per pool at a time, but it keeps the cache consistent if it
// does.
func (tc *ThreadCache) attach(p *Pool, h *Handle) {
	tc.mu.Lock()
	prev, had := tc.handles[p]
	tc.handles[p] = h
	tc.mu.Unlock()

	if had && prev != h {
		prev.n = 0
		p.mu.Lock()
		p.returnLocked(prev)
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

// Close returns every cached handle to its owning pool, the
// application-level analogue of the original TLS destructor running
// at thread exit. Callers must invoke this when a worker goroutine
// that used WithThreadCache is shutting down.
func (tc *ThreadCache) Close() {
	tc.mu.Lock()
	cached := tc.handles
	tc.handles = make(map[*Pool]*Handle)
	tc.mu.Unlock()

	for p, h := range cached {
		h.n = 0
		p.mu.Lock()
		p.resetHandle(context.Background(), h)
		if p.stopping || (p.cfg.MaxHandles > 0 && p.nhandles > p.cfg.MaxHandles) {
			p.destroyLocked(h)
		} else {
			p.returnLocked(h)
		}
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}
