package driver

import (
	"context"
	"testing"
)

// fakeConn and fakeDriver are the minimal "mock testing driver" the
// core itself excludes from production (see spec.md §1 Non-goals) but
// that is fair game as test tooling, the way burrowctl tests
// query_cache.go and stmt.go against fakes rather than a live database.
type fakeConn struct{ connected bool }

func (c *fakeConn) Close() error      { c.connected = false; return nil }
func (c *fakeConn) Connected() bool   { return c.connected }
func (c *fakeConn) Prepare(ctx context.Context, stmt *Statement) (int, error) {
	return len(stmt.VarNames), nil
}
func (c *fakeConn) PrepareClose(stmt *Statement) {}
func (c *fakeConn) Exec(ctx context.Context, stmt *Statement, values []Value) (ResultSet, error) {
	return nil, nil
}
func (c *fakeConn) Transaction(ctx context.Context, depth int, cmd TransactionCmd, isolation Isolation) error {
	return nil
}
func (c *fakeConn) Flush(ctx context.Context) error { return nil }
func (c *fakeConn) Reset(ctx context.Context) error { return nil }

type fakeDriver struct{ name string }

func (d fakeDriver) Name() string { return d.name }
func (d fakeDriver) Open(ctx context.Context, config Config) (Conn, error) {
	return &fakeConn{connected: true}, nil
}
func (d fakeDriver) BindVar(buf *[]byte, name string, index int) {
	*buf = append(*buf, '?')
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(fakeDriver{name: "fake"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	d, err := r.Get("fake")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if d.Name() != "fake" {
		t.Errorf("Name() = %q, want fake", d.Name())
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("missing"); err == nil {
		t.Fatal("expected an error looking up an unregistered driver")
	}
}

func TestRegistry_RejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(fakeDriver{name: ""}); err == nil {
		t.Fatal("expected an error registering a driver with an empty name")
	}
}

func TestRegistry_RejectsConflictingRegistration(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(fakeDriver{name: "fake"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&fakeDriver{name: "fake"}); err == nil {
		t.Fatal("expected an error re-registering a different driver under the same name")
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeDriver{name: "a"})
	r.Register(fakeDriver{name: "b"})

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("Names() = %v, want 2 entries", names)
	}
}

func TestIsolationString(t *testing.T) {
	cases := map[Isolation]string{
		ReadUncommitted: "READ UNCOMMITTED",
		ReadCommitted:   "READ COMMITTED",
		RepeatableRead:  "REPEATABLE READ",
		Serializable:    "SERIALIZABLE",
		Isolation(99):   "UNKNOWN",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("Isolation(%d).String() = %q, want %q", level, got, want)
		}
	}
}
