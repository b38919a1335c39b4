// Package driver defines the narrow, callback-shaped contract every
// database backend must implement (spec §3 "Driver descriptor", §4.4
// "Driver contract") and the process-wide registry of drivers a pool
// is created against.
//
// In the original C implementation this was a table of function
// pointers keyed by a Dbi_ProcId enum, because C has no interface
// values. Design note §9 calls that "an artifact of a C world without
// trait objects [that] should disappear" — here the same 14 callbacks
// are methods of three Go interfaces (Driver, Conn and ResultSet, which
// add Name and ResultSet.Close), grouped the way
// druarnfield-mantis_core/worker/internal/driver/driver.go groups its
// own backend interface, and registered the way that package's
// registry.go registers backends by name.
package driver

import (
	"context"
	"fmt"
	"sync"
)

// Isolation mirrors the SQL transaction isolation levels a driver's
// Transaction callback must understand (spec §4.4).
type Isolation int

const (
	ReadUncommitted Isolation = iota
	ReadCommitted
	RepeatableRead
	Serializable
)

func (i Isolation) String() string {
	switch i {
	case ReadUncommitted:
		return "READ UNCOMMITTED"
	case ReadCommitted:
		return "READ COMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "UNKNOWN"
	}
}

// TransactionCmd identifies the phase of a transaction a driver's
// Transaction callback must execute (spec §4.4).
type TransactionCmd int

const (
	TxnBegin TransactionCmd = iota
	TxnCommit
	TxnRollback
)

// Value is a single bound parameter value passed to Exec. Data is nil
// for a SQL NULL.
type Value struct {
	Name   string
	Data   interface{}
	Binary bool
}

// Statement is the driver-private record attached to a prepared
// statement. It is created by the statement cache on a cache miss and
// lives for as long as the statement stays cached on its owning
// handle (spec §3 "Statement").
type Statement struct {
	// SQL is the original text, used as the cache key.
	SQL string
	// RewrittenSQL is the SQL after bind-variable substitution, in the
	// driver's own placeholder syntax.
	RewrittenSQL string
	// ID is unique per owning handle and never reused, even across
	// cache evictions (spec §6 "Statement identifiers").
	ID uint64
	// VarNames is the ordered, duplicate-preserving list the bind
	// parser produced.
	VarNames []string
	// NumCols is reported by the driver after the first successful
	// Prepare call.
	NumCols int
	// Queries counts how many times this statement has been executed
	// since it was prepared.
	Queries uint64
	// DriverData is the backend's private prepared-statement handle;
	// nil until Prepare succeeds.
	DriverData interface{}
}

// ResultSet is returned by Exec when the statement produces rows. The
// handle holds at most one open ResultSet at a time (spec §4.4 exec
// state machine).
type ResultSet interface {
	// NextRow advances the cursor. end is true once the last row has
	// been consumed; after that NextRow must not be called again
	// without an intervening Exec.
	NextRow(ctx context.Context) (end bool, err error)
	// ColumnLength reports the byte length of the current row's column
	// and whether its content is binary (vs UTF-8 text).
	ColumnLength(index int) (length int, binary bool, err error)
	// ColumnValue copies the current row's column bytes into buf,
	// growing buf if required, and returns the slice actually written.
	ColumnValue(index int, buf []byte) ([]byte, error)
	// ColumnName returns the column's label.
	ColumnName(index int) (string, error)
	// Close releases the result set's driver-side resources (e.g. an
	// open cursor) without affecting the prepared statement it came
	// from. Called whenever rows are abandoned before NextRow reports
	// end, including by Handle.Flush (spec §4.4 "Fetching -> Idle via
	// flush"), and by Handle.NextRow once NextRow reports end or an
	// error.
	Close() error
}

// Conn is one open connection to a backend, bound to exactly one
// Handle (spec §3 "Handle", §4.4 exec state machine).
type Conn interface {
	// Close closes the connection. Idempotent on an already-closed
	// connection.
	Close() error
	// Connected is a cheap health predicate.
	Connected() bool
	// Prepare parses and prepares the statement's RewrittenSQL,
	// filling in Statement.NumCols and Statement.DriverData, and
	// returns the variable count the driver itself counted (used to
	// detect BindMismatch against the bind parser's count).
	Prepare(ctx context.Context, stmt *Statement) (numVars int, err error)
	// PrepareClose releases driver resources for a cached statement.
	// Called by the statement cache on eviction and on flush.
	PrepareClose(stmt *Statement)
	// Exec binds values and executes stmt, returning a ResultSet when
	// rows are produced (nil for statements with no result set).
	Exec(ctx context.Context, stmt *Statement, values []Value) (ResultSet, error)
	// Transaction begins, commits, or rolls back at the given
	// savepoint depth (spec §4.4 "Transactions").
	Transaction(ctx context.Context, depth int, cmd TransactionCmd, isolation Isolation) error
	// Flush discards any pending rows for the connection's current
	// statement without closing it.
	Flush(ctx context.Context) error
	// Reset restores the connection to a sane idle state: aborts any
	// in-flight statement, resets autocommit, clears session state
	// that might leak between callers.
	Reset(ctx context.Context) error
}

// Config is the opaque, driver-private configuration a pool was
// created with (spec §3 "Driver descriptor": "opaque driver-private
// config pointer"). Each driver package defines and type-asserts its
// own concrete config type.
type Config interface{}

// Driver is the contract every backend implements (spec §4.4). A
// driver is registered once per pool and produces one Conn per Open
// call; the pool manager (package pool) owns everything above a
// single connection.
type Driver interface {
	// Name identifies the driver, e.g. "mysql", "postgres".
	Name() string
	// Open establishes a new connection using the driver's own config.
	Open(ctx context.Context, config Config) (Conn, error)
	// BindVar appends this driver's native placeholder notation for
	// the bind variable at the given zero-based index to buf
	// (spec §4.1 "Placeholder emission").
	BindVar(buf *[]byte, name string, index int)
}

// Registry is a process-wide mapping of name to registered driver
// (spec §9 "Global mutable state": "model as a single
// initialization-guarded structure owned by the library"). It mirrors
// druarnfield-mantis_core/worker/internal/driver/registry.go, adding
// the capability check that a driver implementing this larger
// interface cannot omit a method (the Go compiler already enforces
// that — see DESIGN.md for why the C "missing callback" validation
// collapses to nothing here).
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

// Register adds a driver to the registry under its own Name(). It is
// an error to register two different drivers under the same name.
func (r *Registry) Register(d Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := d.Name()
	if name == "" {
		return fmt.Errorf("driver: refusing to register driver with empty name")
	}
	if existing, ok := r.drivers[name]; ok && existing != d {
		return fmt.Errorf("driver: %q already registered", name)
	}
	r.drivers[name] = d
	return nil
}

// Get retrieves a driver by name.
func (r *Registry) Get(name string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("driver: %q not registered", name)
	}
	return d, nil
}

// Names lists all registered driver names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	return names
}

// DefaultRegistry is the global driver registry used when a pool is
// created without an explicit Registry (spec §9 "Global mutable
// state").
var DefaultRegistry = NewRegistry()

// Register adds a driver to DefaultRegistry.
func Register(d Driver) error { return DefaultRegistry.Register(d) }

// Get retrieves a driver from DefaultRegistry.
func Get(name string) (Driver, error) { return DefaultRegistry.Get(name) }
