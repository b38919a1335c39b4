package pool

import "fmt"

// Stats mirrors the counters spec §3 and §6 require, in the same
// plain-struct-returned-by-value style as burrowctl's CacheStats and
// WorkerPoolStats (server/query_cache.go, server/worker_pool.go) —
// a snapshot copy safe to hand to a caller without the pool's mutex.
type Stats struct {
	HandleGets     uint64
	HandleMisses   uint64
	HandleOpens    uint64
	HandleFailures uint64
	Queries        uint64
	AgedCloses     uint64
	IdleCloses     uint64
	QueryCloses    uint64
	Bounces        uint64 // current epoch
}

// Snapshot returns a copy of the pool's current statistics.
func (p *Pool) Snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Bounces = p.epoch
	return s
}

// StatsText renders the pool's current statistics the way the
// original's Tcl-facing `dbi_pool stats` command does (original_source/
// nsdbi.h's Dbi_Stats): a "key value" pair per line.
func (p *Pool) StatsText() string { return p.Snapshot().Text() }

// Text renders the stats the way spec §6 describes the control/stats
// surface: a sequence of "key value" pairs, one per line, matching
// the original nsdbi Dbi_Stats Tcl-facing format.
func (s Stats) Text() string {
	return fmt.Sprintf(
		"handlegets %d\nhandlemisses %d\nhandleopens %d\nhandlefailures %d\nqueries %d\nagedcloses %d\nidlecloses %d\noppscloses %d\nbounces %d\n",
		s.HandleGets, s.HandleMisses, s.HandleOpens, s.HandleFailures,
		s.Queries, s.AgedCloses, s.IdleCloses, s.QueryCloses, s.Bounces,
	)
}
