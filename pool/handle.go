package pool

import (
	"container/list"
	"context"
	"time"

	"github.com/lordbasex/dbicore/dbierrors"
	"github.com/lordbasex/dbicore/driver"
	"github.com/lordbasex/dbicore/stmtcache"
)

// Handle is one database connection plus its private statement cache
// and result cursor (spec §3 "Handle"). A Handle is exclusively owned
// by its borrower while leased; none of its fields need locking
// during a lease (spec §5 "Per-handle discipline").
type Handle struct {
	pool *Pool
	conn driver.Conn

	exception *dbierrors.Error

	transDepth int // -1 = none, 0..n = savepoint stack
	isolation  driver.Isolation

	otime time.Time // connected at
	atime time.Time // last used at

	curStmt      *driver.Statement
	resultSet    driver.ResultSet
	fetchingRows bool
	nextRow      uint64
	maxRows      int

	epoch uint64 // snapshotted from pool at acquire

	cache      *stmtcache.Cache
	nextStmtID uint64

	queries uint64 // since last staleness reset

	// n is the slot number within the pool's bookkeeping; -1 marks a
	// handle detached into a goroutine's ThreadCache (spec §3
	// "Per-thread handle cache").
	n int

	elem *list.Element // this handle's node in pool.idle, nil if not idle
}

func newHandle(p *Pool) *Handle {
	h := &Handle{
		pool:       p,
		transDepth: -1,
		maxRows:    p.cfg.MaxRows,
		epoch:      p.epoch,
	}
	h.cache = stmtcache.New(p.cfg.CacheSize, func(stmt *driver.Statement) {
		if h.conn != nil {
			h.conn.PrepareClose(stmt)
		}
	})
	return h
}

// Pool returns the handle's owning pool.
func (h *Handle) Pool() *Pool { return h.pool }

// Connected reports whether the handle currently has a live driver
// connection.
func (h *Handle) Connected() bool {
	return h.conn != nil && h.conn.Connected()
}

// Exception returns the handle's pending exception, or nil.
func (h *Handle) Exception() *dbierrors.Error { return h.exception }

// SetException records an exception on the handle, overwriting any
// previous one (spec §7 "Propagation").
func (h *Handle) SetException(err *dbierrors.Error) { h.exception = err }

// ResetException clears any pending exception without logging it.
func (h *Handle) ResetException() { h.exception = nil }

// LogException logs the pending exception through the pool's logger
// (log.Printf, which has no severity levels) and clears it, mirroring the original nsdbi Dbi_LogException (spec §4.5
// "exception getters/setters/log"; original_source/nsdbi.h).
func (h *Handle) LogException() {
	if h.exception != nil {
		h.pool.logf("handle exception [%s]: %s", h.exception.SQLState, h.exception.Message)
		h.exception = nil
	}
}

// TransactionDepth returns the current savepoint depth, -1 if no
// transaction is open.
func (h *Handle) TransactionDepth() int { return h.transDepth }

func (h *Handle) connect(ctx context.Context) error {
	conn, err := h.pool.drv.Open(ctx, h.pool.drvConfig)
	if err != nil {
		h.exception = dbierrors.FromDriver(dbierrors.KindConnect, dbierrors.StateProgramming, err.Error())
		return err
	}
	h.conn = conn
	h.otime = time.Now()
	h.atime = h.otime
	h.queries = 0
	return nil
}

// nextStatementID returns the next monotonically increasing statement
// id for this handle; ids are never reused, even across cache
// evictions (spec §6 "Statement identifiers").
func (h *Handle) nextStatementID() uint64 {
	id := h.nextStmtID
	h.nextStmtID++
	return id
}

// flushCache evicts every cached statement, invoking the driver's
// PrepareClose for each (spec §4.2 "flushed ... before the connection
// is dropped").
func (h *Handle) flushCache() {
	h.cache.Flush()
}

// flushPendingRows discards any unread rows left over from a prior
// query that the caller never fully fetched, returning the handle to
// the Idle exec state before it is reused or released (spec §4.4 exec
// state machine: Fetching -> Idle via flush). A handle with no
// in-flight result set is a no-op.
func (h *Handle) flushPendingRows(ctx context.Context) error {
	if !h.fetchingRows {
		return nil
	}
	h.fetchingRows = false
	h.nextRow = 0
	h.curStmt = nil

	var closeErr error
	if h.resultSet != nil {
		closeErr = h.resultSet.Close()
		h.resultSet = nil
	}
	if h.conn == nil {
		return closeErr
	}
	if err := h.conn.Flush(ctx); err != nil {
		return err
	}
	return closeErr
}

// disconnect closes the driver connection and resets the timestamps
// and per-connection query counter the way close_if_stale requires
// (spec §4.3 "Staleness policy").
func (h *Handle) disconnect() {
	h.flushCache()
	if h.conn != nil {
		h.conn.Close()
		h.conn = nil
	}
	h.otime = time.Time{}
	h.atime = time.Time{}
	h.queries = 0
	h.curStmt = nil
	h.resultSet = nil
	h.fetchingRows = false
}

// CurrentStatement returns the statement last prepared on this
// handle, or nil if none is pending.
func (h *Handle) CurrentStatement() *driver.Statement { return h.curStmt }

// MaxRows returns the handle's configured row ceiling for a query
// that doesn't specify its own.
func (h *Handle) MaxRows() int { return h.maxRows }

// SetMaxRows overrides the row ceiling for subsequent queries on this
// handle (spec §4.5's per-query row-limit override).
func (h *Handle) SetMaxRows(n int) { h.maxRows = n }

// Isolation returns the isolation level of the handle's currently
// open transaction, meaningless when TransactionDepth is -1.
func (h *Handle) Isolation() driver.Isolation { return h.isolation }
