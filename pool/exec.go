package pool

import (
	"context"
	"time"

	"github.com/lordbasex/dbicore/bindvar"
	"github.com/lordbasex/dbicore/dbierrors"
	"github.com/lordbasex/dbicore/driver"
)

// ExecState names the phases of the per-handle exec state machine
// (spec §4.4): Idle -> Prepared -> Executing -> Fetching, collapsing
// back to Idle on Flush/Reset or once the last row is consumed. Only
// Idle, Prepared and Fetching are ever observable between calls;
// Executing exists only for the duration of a single Exec call, so it
// has no corresponding field on Handle.
type ExecState int

const (
	StateIdle ExecState = iota
	StatePrepared
	StateFetching
)

// State reports the handle's current position in the exec state
// machine.
func (h *Handle) State() ExecState {
	switch {
	case h.fetchingRows:
		return StateFetching
	case h.curStmt != nil:
		return StatePrepared
	default:
		return StateIdle
	}
}

// Prepare parses sql's bind variables — asking the driver to emit its
// own native placeholder syntax in their place — and prepares the
// result against the handle's connection, reusing a cached statement
// when sql was already prepared on this handle (spec §4.1 "Bind
// variable scanning", §4.2 "Lookup"). On return the handle is in the
// Prepared state.
func (h *Handle) Prepare(ctx context.Context, sql string) (*driver.Statement, error) {
	if h.fetchingRows {
		if err := h.flushPendingRows(ctx); err != nil {
			return nil, err
		}
	}

	if stmt, ok := h.cache.Lookup(sql); ok {
		h.curStmt = stmt
		return stmt, nil
	}

	rewritten, varNames, err := bindvar.Parse(sql, h.pool.drv.BindVar)
	if err != nil {
		return nil, err
	}

	stmt := &driver.Statement{
		SQL:          sql,
		RewrittenSQL: rewritten,
		ID:           h.nextStatementID(),
		VarNames:     varNames,
	}

	numVars, err := h.conn.Prepare(ctx, stmt)
	if err != nil {
		return nil, dbierrors.FromDriver(dbierrors.KindPrepare, dbierrors.StateProgramming, err.Error())
	}
	if numVars != len(varNames) {
		h.conn.PrepareClose(stmt)
		return nil, dbierrors.New(dbierrors.KindBindMismatch,
			"driver reports %d bind variables for statement, parser found %d", numVars, len(varNames))
	}

	h.cache.Insert(stmt)
	h.curStmt = stmt
	return stmt, nil
}

// NumVariables reports how many bind variables the handle's currently
// prepared statement has.
func (h *Handle) NumVariables() int {
	if h.curStmt == nil {
		return 0
	}
	return len(h.curStmt.VarNames)
}

// VariableName returns the name of the bind variable at the given
// zero-based index in the handle's currently prepared statement.
func (h *Handle) VariableName(index int) (string, error) {
	if h.curStmt == nil {
		return "", dbierrors.New(dbierrors.KindProtocol, "variablename called with no statement prepared")
	}
	if index < 0 || index >= len(h.curStmt.VarNames) {
		return "", dbierrors.New(dbierrors.KindProtocol, "variable index %d out of range (0..%d)", index, len(h.curStmt.VarNames)-1)
	}
	return h.curStmt.VarNames[index], nil
}

// NumColumns reports how many result columns the handle's currently
// prepared statement produces, as determined by the driver's Prepare
// callback.
func (h *Handle) NumColumns() int {
	if h.curStmt == nil {
		return 0
	}
	return h.curStmt.NumCols
}

// Exec binds values — positionally matched to the prepared
// statement's VarNames — and executes it, moving the handle to
// Fetching if the statement produces rows; otherwise the handle stays
// Prepared (spec §4.4). Exec requires a prior successful Prepare.
func (h *Handle) Exec(ctx context.Context, values []driver.Value) error {
	if h.curStmt == nil {
		return dbierrors.New(dbierrors.KindProtocol, "exec called with no statement prepared on this handle")
	}
	if len(values) != len(h.curStmt.VarNames) {
		return dbierrors.New(dbierrors.KindBindMismatch,
			"exec given %d values for a statement with %d bind variables", len(values), len(h.curStmt.VarNames))
	}

	rs, err := h.conn.Exec(ctx, h.curStmt, values)
	if err != nil {
		return dbierrors.FromDriver(dbierrors.KindExecFailure, dbierrors.StateProgramming, err.Error())
	}

	h.curStmt.Queries++
	h.queries++
	h.atime = time.Now()

	h.resultSet = rs
	h.fetchingRows = rs != nil
	h.nextRow = 0
	return nil
}

// ExecDirect executes sql without going through the prepared-statement
// cache: it is prepared, executed, and immediately closed. This is the
// core's equivalent of the original's Dbi_ExecDirect, useful for
// one-shot DDL and administrative statements a caller doesn't want
// polluting the handle's statement cache (spec supplement, see
// SPEC_FULL.md "SUPPLEMENTED FEATURES").
func (h *Handle) ExecDirect(ctx context.Context, sql string, values []driver.Value) error {
	rewritten, varNames, err := bindvar.Parse(sql, h.pool.drv.BindVar)
	if err != nil {
		return err
	}
	if len(values) != len(varNames) {
		return dbierrors.New(dbierrors.KindBindMismatch,
			"execdirect given %d values for a statement with %d bind variables", len(values), len(varNames))
	}

	stmt := &driver.Statement{SQL: sql, RewrittenSQL: rewritten, VarNames: varNames}
	if _, err := h.conn.Prepare(ctx, stmt); err != nil {
		return dbierrors.FromDriver(dbierrors.KindPrepare, dbierrors.StateProgramming, err.Error())
	}
	defer h.conn.PrepareClose(stmt)

	rs, err := h.conn.Exec(ctx, stmt, values)
	if err != nil {
		return dbierrors.FromDriver(dbierrors.KindExecFailure, dbierrors.StateProgramming, err.Error())
	}
	h.queries++
	h.atime = time.Now()

	if rs == nil {
		return nil
	}
	for {
		end, err := rs.NextRow(ctx)
		if err != nil {
			return dbierrors.FromDriver(dbierrors.KindExecFailure, dbierrors.StateProgramming, err.Error())
		}
		if end {
			return nil
		}
	}
}

// NextRow advances the handle's open result set, returning end=true
// once the last row has been consumed (spec §4.4 "Fetching"). When the
// driver reports end or an error, the result set is closed and the
// handle returns to Idle.
func (h *Handle) NextRow(ctx context.Context) (end bool, err error) {
	if !h.fetchingRows || h.resultSet == nil {
		return false, dbierrors.New(dbierrors.KindProtocol, "nextrow called with no pending result set")
	}
	if h.maxRows > 0 && h.nextRow >= uint64(h.maxRows) {
		return false, dbierrors.NewDomain(dbierrors.KindRowLimit, "query exceeded the %d row limit", h.maxRows)
	}

	end, err = h.resultSet.NextRow(ctx)
	if err != nil || end {
		closeErr := h.resultSet.Close()
		h.fetchingRows = false
		h.resultSet = nil
		h.curStmt = nil
		if err != nil {
			return false, dbierrors.FromDriver(dbierrors.KindExecFailure, dbierrors.StateProgramming, err.Error())
		}
		if closeErr != nil {
			return true, dbierrors.FromDriver(dbierrors.KindExecFailure, dbierrors.StateProgramming, closeErr.Error())
		}
		return true, nil
	}
	h.nextRow++
	return false, nil
}

// ColumnLength reports the byte length and binary-ness of column
// index in the row NextRow most recently produced.
func (h *Handle) ColumnLength(index int) (length int, binary bool, err error) {
	if h.resultSet == nil {
		return 0, false, dbierrors.New(dbierrors.KindProtocol, "columnlength called with no open result set")
	}
	return h.resultSet.ColumnLength(index)
}

// ColumnValue copies column index's bytes from the current row into
// buf, returning the slice actually written.
func (h *Handle) ColumnValue(index int, buf []byte) ([]byte, error) {
	if h.resultSet == nil {
		return nil, dbierrors.New(dbierrors.KindProtocol, "columnvalue called with no open result set")
	}
	return h.resultSet.ColumnValue(index, buf)
}

// ColumnName returns the label of column index in the current
// statement's result set.
func (h *Handle) ColumnName(index int) (string, error) {
	if h.resultSet == nil {
		return "", dbierrors.New(dbierrors.KindProtocol, "columnname called with no open result set")
	}
	return h.resultSet.ColumnName(index)
}

// Flush discards any unread rows from the handle's current statement
// without closing the prepared statement, returning a fetching handle
// to Idle; a handle with no pending rows is left as it is (spec §4.4
// "Fetching -> Idle via flush").
func (h *Handle) Flush(ctx context.Context) error {
	return h.flushPendingRows(ctx)
}

// Begin opens a transaction, or — if one is already open — a nested
// savepoint (spec §4.4 "Transactions": depth -1 = none, 0 = outer
// transaction, >=1 = nested savepoints). Raising the isolation level
// once a transaction is already open is a TxnRule violation; the
// original nsdbi only honors isolation on the outermost Begin.
func (h *Handle) Begin(ctx context.Context, isolation driver.Isolation) error {
	if h.transDepth >= 0 && isolation > h.isolation {
		return dbierrors.New(dbierrors.KindTxnRule, "cannot raise isolation level inside an active transaction")
	}

	depth := h.transDepth + 1
	if err := h.conn.Transaction(ctx, depth, driver.TxnBegin, isolation); err != nil {
		return dbierrors.FromDriver(dbierrors.KindExecFailure, dbierrors.StateProgramming, err.Error())
	}
	h.transDepth = depth
	if depth == 0 {
		h.isolation = isolation
	}
	return nil
}

// Commit commits the innermost open savepoint, or the outer
// transaction once depth reaches 0. Calling Commit with no
// transaction open is a TxnRule violation.
func (h *Handle) Commit(ctx context.Context) error {
	if h.transDepth < 0 {
		return dbierrors.New(dbierrors.KindTxnRule, "commit called with no transaction open")
	}
	if err := h.conn.Transaction(ctx, h.transDepth, driver.TxnCommit, h.isolation); err != nil {
		return dbierrors.FromDriver(dbierrors.KindExecFailure, dbierrors.StateProgramming, err.Error())
	}
	h.transDepth--
	return nil
}

// Rollback rolls back the innermost open savepoint, or the outer
// transaction once depth reaches 0. Calling Rollback with no
// transaction open is a TxnRule violation.
func (h *Handle) Rollback(ctx context.Context) error {
	if h.transDepth < 0 {
		return dbierrors.New(dbierrors.KindTxnRule, "rollback called with no transaction open")
	}
	if err := h.conn.Transaction(ctx, h.transDepth, driver.TxnRollback, h.isolation); err != nil {
		return dbierrors.FromDriver(dbierrors.KindExecFailure, dbierrors.StateProgramming, err.Error())
	}
	h.transDepth--
	return nil
}
