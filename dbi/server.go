// Package dbi is the public API facade described in spec §4.5: a
// Server view mapping pool names to pool.Pool instances plus the
// procedural surface (Prepare/Exec/NextRow/Begin/Commit/...) that a
// calling application server drives. Most of that surface already
// lives as methods on *pool.Handle (package pool) because it needs
// the handle's private exec-state fields; this package adds the
// name-to-pool registry on top, the way burrowctl's Handler
// (server/types.go, server/server.go) wraps a set of named backends
// behind one constructor and a registration method.
package dbi

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lordbasex/dbicore/pool"
)

// Server owns every pool an application process created, keyed by the
// name it was registered under, plus an optional default (spec §6
// "Configuration (per pool)": a pool may be marked Default in its
// Config).
type Server struct {
	mu          sync.RWMutex
	pools       map[string]*pool.Pool
	defaultName string
}

// NewServer creates an empty pool registry.
func NewServer() *Server {
	return &Server{pools: make(map[string]*pool.Pool)}
}

// AddPool registers p under its own Name(). If p.IsDefault() is true
// it becomes the server's default pool, replacing any previous one
// (the last pool configured as default wins, mirroring
// LoadConfigFromFlags's last-value-wins env/flag precedence in
// burrowctl/server/config.go).
func (s *Server) AddPool(p *pool.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := p.Name()
	if name == "" {
		return fmt.Errorf("dbi: refusing to register a pool with an empty name")
	}
	if _, exists := s.pools[name]; exists {
		return fmt.Errorf("dbi: pool %q already registered", name)
	}
	s.pools[name] = p
	if p.IsDefault() {
		s.defaultName = name
	}
	log.Printf("[dbi] registered pool %q (driver=%s, default=%v)", name, p.DriverName(), p.IsDefault())
	return nil
}

// Pool looks up a registered pool by name.
func (s *Server) Pool(name string) (*pool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[name]
	if !ok {
		return nil, fmt.Errorf("dbi: pool %q not found", name)
	}
	return p, nil
}

// DefaultPool returns the server's default pool, if one was
// registered with Config.Default set.
func (s *Server) DefaultPool() (*pool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.defaultName == "" {
		return nil, fmt.Errorf("dbi: no default pool configured")
	}
	return s.pools[s.defaultName], nil
}

// PoolNames lists every registered pool, in no particular order.
func (s *Server) PoolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.pools))
	for name := range s.pools {
		names = append(names, name)
	}
	return names
}

// GetHandle acquires a handle from the named pool (spec §4.5
// "Dbi_GetHandle"), or from the default pool when name is empty.
func (s *Server) GetHandle(ctx context.Context, name string, timeout *time.Duration) (*pool.Handle, error) {
	p, err := s.resolvePool(name)
	if err != nil {
		return nil, err
	}
	return p.Get(ctx, timeout)
}

// PutHandle releases a handle back to its owning pool. Callers should
// prefer Handle.Pool().Put directly when they already have the
// handle's pool; PutHandle exists for symmetry with GetHandle when a
// caller only tracks handles by the name they were acquired under.
func (s *Server) PutHandle(ctx context.Context, h *pool.Handle) {
	h.Pool().Put(ctx, h)
}

// Shutdown stops every registered pool. A nil deadline only stops new
// acquisitions; a non-nil deadline additionally waits for in-flight
// handles to drain, pool by pool, returning the first error
// encountered (if any) after attempting every pool.
func (s *Server) Shutdown(ctx context.Context, deadline *time.Time) error {
	s.mu.RLock()
	pools := make([]*pool.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p)
	}
	s.mu.RUnlock()

	var firstErr error
	for _, p := range pools {
		if err := p.Shutdown(ctx, deadline); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Server) resolvePool(name string) (*pool.Pool, error) {
	if name == "" {
		return s.DefaultPool()
	}
	return s.Pool(name)
}
