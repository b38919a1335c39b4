package pool

import (
	"context"
	"fmt"
	"testing"

	"github.com/lordbasex/dbicore/dbierrors"
	"github.com/lordbasex/dbicore/driver"
)

// fakeRows is a trivial driver.ResultSet with a fixed number of empty
// rows, enough to drive the Prepare/Exec/NextRow round trip described
// in spec §8 ("leaves the handle in the Idle state and does not leak
// driver resources").
type fakeRows struct {
	remaining int
	closed    bool
	nextErr   error
}

func (r *fakeRows) NextRow(ctx context.Context) (bool, error) {
	if r.nextErr != nil {
		return false, r.nextErr
	}
	if r.remaining == 0 {
		return true, nil
	}
	r.remaining--
	return false, nil
}
func (r *fakeRows) ColumnLength(index int) (int, bool, error) { return 0, false, nil }
func (r *fakeRows) ColumnValue(index int, buf []byte) ([]byte, error) { return buf[:0], nil }
func (r *fakeRows) ColumnName(index int) (string, error)              { return "col", nil }
func (r *fakeRows) Close() error                                      { r.closed = true; return nil }

// execConn extends fakeConn with a configurable Exec so exec_test can
// drive the row-producing and transaction paths independently of the
// plain connect/recycle tests in pool_test.go.
type execConn struct {
	fakeConn
	execErr   error
	rows      *fakeRows
	txnCalls  []driver.TransactionCmd
	txnDepths []int
	txnErr    error
}

func (c *execConn) Exec(ctx context.Context, stmt *driver.Statement, values []driver.Value) (driver.ResultSet, error) {
	if c.execErr != nil {
		return nil, c.execErr
	}
	if c.rows == nil {
		return nil, nil
	}
	return c.rows, nil
}

func (c *execConn) Transaction(ctx context.Context, depth int, cmd driver.TransactionCmd, isolation driver.Isolation) error {
	c.txnCalls = append(c.txnCalls, cmd)
	c.txnDepths = append(c.txnDepths, depth)
	return c.txnErr
}

func testHandle(conn driver.Conn) *Handle {
	p, _ := testPool(DefaultConfig())
	h := newHandle(p)
	h.conn = conn
	return h
}

func TestHandle_PrepareExecNextRowRoundTrip(t *testing.T) {
	ctx := context.Background()
	ec := &execConn{fakeConn: fakeConn{open: true}, rows: &fakeRows{remaining: 2}}
	h := testHandle(ec)

	if _, err := h.Prepare(ctx, "select * from t where id = :id"); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if h.State() != StatePrepared {
		t.Fatalf("State() = %v, want StatePrepared", h.State())
	}

	if err := h.Exec(ctx, []driver.Value{{Name: "id", Data: 1}}); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if h.State() != StateFetching {
		t.Fatalf("State() = %v, want StateFetching", h.State())
	}

	for {
		end, err := h.NextRow(ctx)
		if err != nil {
			t.Fatalf("NextRow failed: %v", err)
		}
		if end {
			break
		}
	}

	if h.State() != StateIdle {
		t.Errorf("State() after exhausting rows = %v, want StateIdle", h.State())
	}
	if !ec.rows.closed {
		t.Error("fetching rows to completion should not require an explicit Close, but NextRow must leave no dangling cursor")
	}
}

func TestHandle_PrepareReusesCacheOnSecondCall(t *testing.T) {
	ctx := context.Background()
	ec := &execConn{fakeConn: fakeConn{open: true}}
	h := testHandle(ec)

	s1, err := h.Prepare(ctx, "select 1")
	if err != nil {
		t.Fatalf("first Prepare failed: %v", err)
	}
	s2, err := h.Prepare(ctx, "select 1")
	if err != nil {
		t.Fatalf("second Prepare failed: %v", err)
	}
	if s1 != s2 {
		t.Error("preparing the same SQL twice on one handle should hit the statement cache, not reprepare")
	}
}

func TestHandle_ExecRequiresPrepare(t *testing.T) {
	ctx := context.Background()
	h := testHandle(&execConn{fakeConn: fakeConn{open: true}})

	err := h.Exec(ctx, nil)
	if !dbierrors.Is(err, dbierrors.KindProtocol) {
		t.Errorf("Exec with no prepared statement: err = %v, want KindProtocol", err)
	}
}

func TestHandle_BeginCommitRoundTripReturnsToNoTransaction(t *testing.T) {
	ctx := context.Background()
	ec := &execConn{fakeConn: fakeConn{open: true}}
	h := testHandle(ec)

	if err := h.Begin(ctx, driver.ReadCommitted); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if h.TransactionDepth() != 0 {
		t.Fatalf("TransactionDepth() after Begin = %d, want 0", h.TransactionDepth())
	}

	if err := h.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if h.TransactionDepth() != -1 {
		t.Errorf("TransactionDepth() after Commit = %d, want -1", h.TransactionDepth())
	}
}

func TestHandle_RollbackAfterExecFailureClearsTransactionOnReset(t *testing.T) {
	ctx := context.Background()
	ec := &execConn{fakeConn: fakeConn{open: true}, execErr: fmt.Errorf("syntax error")}
	h := testHandle(ec)

	if err := h.Begin(ctx, driver.ReadCommitted); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := h.Prepare(ctx, "bad sql"); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := h.Exec(ctx, nil); err == nil {
		t.Fatal("expected Exec to fail")
	}

	if err := h.Rollback(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if h.TransactionDepth() != -1 {
		t.Errorf("TransactionDepth() after Rollback = %d, want -1", h.TransactionDepth())
	}

	h.pool.resetHandle(ctx, h)
	if h.Exception() != nil {
		t.Errorf("Exception() after reset = %v, want nil", h.Exception())
	}
}

func TestHandle_CommitWithNoTransactionIsTxnRule(t *testing.T) {
	ctx := context.Background()
	h := testHandle(&execConn{fakeConn: fakeConn{open: true}})

	if err := h.Commit(ctx); !dbierrors.Is(err, dbierrors.KindTxnRule) {
		t.Errorf("Commit with no transaction: err = %v, want KindTxnRule", err)
	}
	if err := h.Rollback(ctx); !dbierrors.Is(err, dbierrors.KindTxnRule) {
		t.Errorf("Rollback with no transaction: err = %v, want KindTxnRule", err)
	}
}

func TestHandle_RaisingIsolationInsideTransactionIsTxnRule(t *testing.T) {
	ctx := context.Background()
	h := testHandle(&execConn{fakeConn: fakeConn{open: true}})

	if err := h.Begin(ctx, driver.ReadCommitted); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := h.Begin(ctx, driver.Serializable); !dbierrors.Is(err, dbierrors.KindTxnRule) {
		t.Errorf("raising isolation inside a transaction: err = %v, want KindTxnRule", err)
	}
}

func TestHandle_LoweringIsolationInsideTransactionIsAllowed(t *testing.T) {
	ctx := context.Background()
	h := testHandle(&execConn{fakeConn: fakeConn{open: true}})

	if err := h.Begin(ctx, driver.Serializable); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := h.Begin(ctx, driver.ReadCommitted); err != nil {
		t.Errorf("lowering isolation inside a transaction should be allowed, got err = %v", err)
	}
}

func TestHandle_NestedBeginCreatesSavepointDepth(t *testing.T) {
	ctx := context.Background()
	ec := &execConn{fakeConn: fakeConn{open: true}}
	h := testHandle(ec)

	h.Begin(ctx, driver.ReadCommitted)
	h.Begin(ctx, driver.ReadCommitted)
	if h.TransactionDepth() != 1 {
		t.Fatalf("TransactionDepth() after nested Begin = %d, want 1", h.TransactionDepth())
	}
	if ec.txnDepths[1] != 1 {
		t.Errorf("driver received depth %d for the nested Begin, want 1", ec.txnDepths[1])
	}
}

func TestHandle_RowLimitExceeded(t *testing.T) {
	ctx := context.Background()
	ec := &execConn{fakeConn: fakeConn{open: true}, rows: &fakeRows{remaining: 5}}
	h := testHandle(ec)
	h.SetMaxRows(2)

	h.Prepare(ctx, "select * from t")
	h.Exec(ctx, nil)

	if _, err := h.NextRow(ctx); err != nil {
		t.Fatalf("first NextRow failed: %v", err)
	}
	if _, err := h.NextRow(ctx); err != nil {
		t.Fatalf("second NextRow failed: %v", err)
	}
	if _, err := h.NextRow(ctx); !dbierrors.Is(err, dbierrors.KindRowLimit) {
		t.Errorf("third NextRow past MaxRows=2: err = %v, want KindRowLimit", err)
	}
}

func TestHandle_NextRowErrorClearsFetchingState(t *testing.T) {
	ctx := context.Background()
	ec := &execConn{fakeConn: fakeConn{open: true}, rows: &fakeRows{nextErr: fmt.Errorf("connection reset")}}
	h := testHandle(ec)

	h.Prepare(ctx, "select * from t")
	if err := h.Exec(ctx, nil); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if h.State() != StateFetching {
		t.Fatalf("State() before NextRow = %v, want StateFetching", h.State())
	}

	if _, err := h.NextRow(ctx); !dbierrors.Is(err, dbierrors.KindExecFailure) {
		t.Fatalf("NextRow: err = %v, want KindExecFailure", err)
	}
	if h.State() != StateIdle {
		t.Errorf("State() after a NextRow error = %v, want StateIdle (a fetch error must clear fetchingRows same as end)", h.State())
	}
}
