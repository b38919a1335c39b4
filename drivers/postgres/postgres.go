// Package postgres adapts github.com/lib/pq's raw
// database/sql/driver.Conn onto this module's driver.Driver contract
// (spec §4.4), the same adapter shape drivers/mysql uses for
// go-sql-driver/mysql. lib/pq is the Postgres dependency the
// oarkflow-velocity example in the retrieval pack carries; this
// package demonstrates that the core's driver contract is genuinely
// pluggable across unrelated wire protocols, per spec §4.4's "narrow,
// callback-shaped interface every backend must implement."
package postgres

import (
	"context"
	"database/sql/driver"
	"fmt"
	"io"
	"strconv"

	"github.com/lib/pq"

	dbidriver "github.com/lordbasex/dbicore/driver"
)

// Config is this driver's opaque per-pool configuration: a standard
// lib/pq connection string or URL.
type Config struct {
	DSN string
}

// Driver adapts lib/pq onto dbidriver.Driver.
type Driver struct{}

var _ dbidriver.Driver = Driver{}

// Name identifies this driver in the registry and in pool
// configuration.
func (Driver) Name() string { return "postgres" }

// Open establishes one raw Postgres connection via lib/pq.
func (Driver) Open(ctx context.Context, config dbidriver.Config) (dbidriver.Conn, error) {
	cfg, ok := config.(Config)
	if !ok {
		return nil, fmt.Errorf("postgres: Open requires postgres.Config, got %T", config)
	}
	raw, err := (pq.Driver{}).Open(cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &conn{raw: raw}, nil
}

// BindVar emits Postgres's native "$N" positional placeholder
// (spec §4.1 "Placeholder emission").
func (Driver) BindVar(buf *[]byte, name string, index int) {
	*buf = append(*buf, '$')
	*buf = strconv.AppendInt(*buf, int64(index+1), 10)
}

func init() {
	if err := dbidriver.Register(Driver{}); err != nil {
		panic(err)
	}
}

type conn struct {
	raw driver.Conn
	tx  driver.Tx
}

func (c *conn) Close() error {
	return c.raw.Close()
}

func (c *conn) Connected() bool {
	if c.raw == nil {
		return false
	}
	if p, ok := c.raw.(driver.Pinger); ok {
		return p.Ping(context.Background()) == nil
	}
	return true
}

// Prepare prepares stmt and reports its bind-variable count. It does
// not fill in stmt.NumCols: the column count is set by Exec once the
// result columns are known, so it stays 0 until the first Exec.
func (c *conn) Prepare(ctx context.Context, stmt *dbidriver.Statement) (int, error) {
	prep, err := c.raw.Prepare(stmt.RewrittenSQL)
	if err != nil {
		return 0, err
	}
	stmt.DriverData = prep
	return prep.NumInput(), nil
}

func (c *conn) PrepareClose(stmt *dbidriver.Statement) {
	if prep, ok := stmt.DriverData.(driver.Stmt); ok {
		prep.Close()
	}
}

func (c *conn) Exec(ctx context.Context, stmt *dbidriver.Statement, values []dbidriver.Value) (dbidriver.ResultSet, error) {
	prep, ok := stmt.DriverData.(driver.Stmt)
	if !ok {
		return nil, fmt.Errorf("postgres: exec called on a statement never prepared on this connection")
	}

	var rows driver.Rows
	var err error
	if qc, ok := prep.(driver.StmtQueryContext); ok {
		rows, err = qc.QueryContext(ctx, toNamedValues(values))
	} else {
		rows, err = prep.Query(toValues(values))
	}
	if err != nil {
		return nil, err
	}
	if len(rows.Columns()) == 0 {
		rows.Close()
		return nil, nil
	}
	stmt.NumCols = len(rows.Columns())
	return newResultSet(rows), nil
}

func (c *conn) Transaction(ctx context.Context, depth int, cmd dbidriver.TransactionCmd, isolation dbidriver.Isolation) error {
	switch cmd {
	case dbidriver.TxnBegin:
		if depth > 0 {
			return c.execDirect(ctx, fmt.Sprintf("SAVEPOINT sp_%d", depth))
		}
		tx, err := c.beginTx(ctx, isolation)
		if err != nil {
			return err
		}
		c.tx = tx
		return nil

	case dbidriver.TxnCommit:
		if depth > 0 {
			return c.execDirect(ctx, fmt.Sprintf("RELEASE SAVEPOINT sp_%d", depth))
		}
		if c.tx == nil {
			return fmt.Errorf("postgres: commit with no active transaction")
		}
		err := c.tx.Commit()
		c.tx = nil
		return err

	case dbidriver.TxnRollback:
		if depth > 0 {
			return c.execDirect(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT sp_%d", depth))
		}
		if c.tx == nil {
			return fmt.Errorf("postgres: rollback with no active transaction")
		}
		err := c.tx.Rollback()
		c.tx = nil
		return err

	default:
		return fmt.Errorf("postgres: unknown transaction command %d", cmd)
	}
}

func (c *conn) beginTx(ctx context.Context, isolation dbidriver.Isolation) (driver.Tx, error) {
	if bc, ok := c.raw.(driver.ConnBeginTx); ok {
		return bc.BeginTx(ctx, driver.TxOptions{Isolation: mapIsolation(isolation)})
	}
	return c.raw.Begin()
}

func (c *conn) execDirect(ctx context.Context, sql string) error {
	prep, err := c.raw.Prepare(sql)
	if err != nil {
		return err
	}
	defer prep.Close()

	if ec, ok := prep.(driver.StmtExecContext); ok {
		_, err = ec.ExecContext(ctx, nil)
		return err
	}
	_, err = prep.Exec(nil)
	return err
}

// Flush has nothing connection-wide to do: abandoned rows are closed
// by the result set itself (see resultSet.Close).
func (c *conn) Flush(ctx context.Context) error { return nil }

// Reset aborts any open transaction left behind by a misbehaving
// caller, restoring the connection outside any transaction block.
func (c *conn) Reset(ctx context.Context) error {
	if c.tx != nil {
		err := c.tx.Rollback()
		c.tx = nil
		return err
	}
	return nil
}

// mapIsolation translates dbidriver.Isolation onto the numeric
// isolation levels database/sql documents for driver.TxOptions
// (LevelReadUncommitted=1, LevelReadCommitted=2, LevelRepeatableRead=4,
// LevelSerializable=6), the convention lib/pq expects since it is
// normally driven by database/sql rather than called directly. lib/pq
// maps ReadUncommitted onto Postgres's own READ COMMITTED, since
// Postgres has no true read-uncommitted level.
func mapIsolation(i dbidriver.Isolation) driver.IsolationLevel {
	switch i {
	case dbidriver.ReadUncommitted:
		return driver.IsolationLevel(1)
	case dbidriver.ReadCommitted:
		return driver.IsolationLevel(2)
	case dbidriver.RepeatableRead:
		return driver.IsolationLevel(4)
	case dbidriver.Serializable:
		return driver.IsolationLevel(6)
	default:
		return driver.IsolationLevel(0)
	}
}

func toValues(values []dbidriver.Value) []driver.Value {
	out := make([]driver.Value, len(values))
	for i, v := range values {
		out[i] = v.Data
	}
	return out
}

func toNamedValues(values []dbidriver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(values))
	for i, v := range values {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v.Data}
	}
	return out
}

// resultSet adapts a database/sql/driver.Rows onto dbidriver.ResultSet.
type resultSet struct {
	rows driver.Rows
	cols []string
	cur  []driver.Value
	done bool
}

func newResultSet(rows driver.Rows) *resultSet {
	cols := rows.Columns()
	return &resultSet{rows: rows, cols: cols, cur: make([]driver.Value, len(cols))}
}

func (r *resultSet) NextRow(ctx context.Context) (end bool, err error) {
	if r.done {
		return true, nil
	}
	err = r.rows.Next(r.cur)
	if err == io.EOF {
		r.done = true
		return true, r.rows.Close()
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

func (r *resultSet) ColumnLength(index int) (length int, binary bool, err error) {
	if index < 0 || index >= len(r.cur) {
		return 0, false, fmt.Errorf("postgres: column index %d out of range", index)
	}
	switch v := r.cur[index].(type) {
	case nil:
		return 0, false, nil
	case []byte:
		return len(v), true, nil
	case string:
		return len(v), false, nil
	default:
		return len(fmt.Sprint(v)), false, nil
	}
}

func (r *resultSet) ColumnValue(index int, buf []byte) ([]byte, error) {
	if index < 0 || index >= len(r.cur) {
		return nil, fmt.Errorf("postgres: column index %d out of range", index)
	}
	buf = buf[:0]
	switch v := r.cur[index].(type) {
	case nil:
		return nil, nil
	case []byte:
		return append(buf, v...), nil
	case string:
		return append(buf, v...), nil
	default:
		return append(buf, fmt.Sprint(v)...), nil
	}
}

func (r *resultSet) ColumnName(index int) (string, error) {
	if index < 0 || index >= len(r.cols) {
		return "", fmt.Errorf("postgres: column index %d out of range", index)
	}
	return r.cols[index], nil
}

func (r *resultSet) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	return r.rows.Close()
}
