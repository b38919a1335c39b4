package pool

import "time"

// Config holds the per-pool policy knobs named in spec §6 "External
// Interfaces / Configuration (per pool)". Field names and defaults
// match the teacher's own Config/DefaultConfig shape
// (pool.Config/DefaultConfig in druarnfield-mantis_core and
// server.ServerConfig/DefaultServerConfig in burrowctl) generalized to
// the spec's knobs instead of database/sql's.
type Config struct {
	// CacheSize is the per-handle statement cache budget in bytes.
	CacheSize int
	// MaxHandles is the maximum number of live handles; 0 means
	// unlimited concurrency via per-goroutine handle caching (§4.5,
	// §5 "Thread-local cache").
	MaxHandles int
	// MaxRows is the default row ceiling applied to a query when the
	// caller doesn't specify one.
	MaxRows int
	// MaxIdle recycles a handle that has sat idle longer than this;
	// zero disables idle-time recycling.
	MaxIdle time.Duration
	// MaxOpen recycles a handle once its connection is older than
	// this; zero disables age-based recycling.
	MaxOpen time.Duration
	// MaxQueries recycles a handle once it has run this many queries;
	// zero disables query-count recycling.
	MaxQueries uint64
	// Timeout is the default deadline for Get when the caller passes
	// no explicit timeout.
	Timeout time.Duration
	// CheckInterval is how often the background sweep runs; the
	// effective value is clamped to a 30s minimum.
	CheckInterval time.Duration
	// Default marks this pool as a server's default pool when it is
	// registered into a dbi.Server (spec §6).
	Default bool
}

// DefaultConfig returns the spec's documented defaults (§6): 1 MiB
// statement cache, unlimited handles, 1000-row default ceiling, no
// idle/age/query recycling, a 10s acquire timeout, and a 10-minute
// sweep interval.
func DefaultConfig() Config {
	return Config{
		CacheSize:     1 << 20,
		MaxHandles:    0,
		MaxRows:       1000,
		MaxIdle:       0,
		MaxOpen:       0,
		MaxQueries:    0,
		Timeout:       10 * time.Second,
		CheckInterval: 600 * time.Second,
	}
}

const minCheckInterval = 30 * time.Second

func (c Config) normalized() Config {
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultConfig().CacheSize
	}
	if c.MaxRows <= 0 {
		c.MaxRows = DefaultConfig().MaxRows
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultConfig().Timeout
	}
	if c.CheckInterval < minCheckInterval {
		c.CheckInterval = minCheckInterval
	}
	return c
}
