package pool

import "time"

// Option names one of the per-pool configuration knobs the original
// nsdbi exposed through its DBI_CONFIG_OPTION enum and its Tcl-facing
// `dbi_pool config` command (original_source/nsdbi.h). The idiomatic
// Config struct is the primary way to configure a pool; ConfigInt and
// SetConfigInt exist alongside it only for parity with that option-by-
// name surface (see SPEC_FULL.md §4 "Per-pool named configuration
// options").
type Option int

const (
	OptMaxHandles Option = iota
	OptMaxRows
	OptMaxIdle
	OptMaxOpen
	OptMaxQueries
	OptTimeout
	OptCacheSize
	OptCheckInterval
	OptDefault
)

// ConfigInt reads one named option as an integer — durations are
// reported in whole seconds, booleans as 0/1. The original represented
// "no such option" with a bare -1 return, which is ambiguous with a
// field whose value legitimately is -1 or which the caller never set;
// this module resolves that design ambiguity (spec.md §9 Open
// Questions) by using the ok return instead, the idiomatic Go way to
// say "this option doesn't exist" without stealing a sentinel integer.
func (p *Pool) ConfigInt(opt Option) (value int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch opt {
	case OptMaxHandles:
		return p.cfg.MaxHandles, true
	case OptMaxRows:
		return p.cfg.MaxRows, true
	case OptMaxIdle:
		return int(p.cfg.MaxIdle / time.Second), true
	case OptMaxOpen:
		return int(p.cfg.MaxOpen / time.Second), true
	case OptMaxQueries:
		return int(p.cfg.MaxQueries), true
	case OptTimeout:
		return int(p.cfg.Timeout / time.Second), true
	case OptCacheSize:
		return p.cfg.CacheSize, true
	case OptCheckInterval:
		return int(p.cfg.CheckInterval / time.Second), true
	case OptDefault:
		if p.cfg.Default {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// SetConfigInt updates one named option in place. MaxRows and
// CacheSize are read when a handle is created, so they apply only to
// handles created after the call; CheckInterval is read when
// RunSweeper starts, so a running sweeper keeps its old interval; the
// other options are read on each Get, Put or sweep. Durations are
// given in whole seconds. It reports false for an unrecognized option
// rather than returning an error, matching ConfigInt's convention.
func (p *Pool) SetConfigInt(opt Option, value int) (ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch opt {
	case OptMaxHandles:
		p.cfg.MaxHandles = value
	case OptMaxRows:
		p.cfg.MaxRows = value
	case OptMaxIdle:
		p.cfg.MaxIdle = time.Duration(value) * time.Second
	case OptMaxOpen:
		p.cfg.MaxOpen = time.Duration(value) * time.Second
	case OptMaxQueries:
		p.cfg.MaxQueries = uint64(value)
	case OptTimeout:
		p.cfg.Timeout = time.Duration(value) * time.Second
	case OptCacheSize:
		p.cfg.CacheSize = value
	case OptCheckInterval:
		p.cfg.CheckInterval = time.Duration(value) * time.Second
		if p.cfg.CheckInterval < minCheckInterval {
			p.cfg.CheckInterval = minCheckInterval
		}
	case OptDefault:
		p.cfg.Default = value != 0
	default:
		return false
	}
	return true
}
