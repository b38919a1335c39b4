package bindvar

import (
	"strings"
	"testing"

	"github.com/lordbasex/dbicore/dbierrors"
)

// namedEmitter writes ":name" unchanged, so the rewritten SQL equals
// the input and tests can assert on it directly. It records nothing;
// TestParse_EmitterReceivesPositionalIndex uses its own recording
// emitter to check the call sequence.
func namedEmitter(buf *[]byte, name string, index int) {
	*buf = append(*buf, ':')
	*buf = append(*buf, name...)
}

func TestParse_SimpleVars(t *testing.T) {
	rewritten, names, err := Parse("select * from users where id = :id and name = :name", namedEmitter)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if rewritten != "select * from users where id = :id and name = :name" {
		t.Errorf("rewritten = %q", rewritten)
	}
	if want := []string{"id", "name"}; !equalSlices(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}
}

func TestParse_DuplicateVarsPreserved(t *testing.T) {
	_, names, err := Parse("update t set a = :x, b = :x where c = :y", namedEmitter)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if want := []string{"x", "x", "y"}; !equalSlices(names, want) {
		t.Errorf("names = %v, want %v (duplicates must be preserved, not deduplicated)", names, want)
	}
}

func TestParse_QuotedColonIgnored(t *testing.T) {
	rewritten, names, err := Parse("select ':id' as literal, x from t where y = :real", namedEmitter)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(names) != 1 || names[0] != "real" {
		t.Errorf("names = %v, want [real]", names)
	}
	if !strings.Contains(rewritten, "':id'") {
		t.Errorf("quoted literal was rewritten: %q", rewritten)
	}
}

func TestParse_EscapedQuoteDoesNotToggle(t *testing.T) {
	// the string contains an escaped quote, so the colon after it is
	// still inside the quoted section and must not start a bind var.
	_, names, err := Parse(`select 'it\'s :notavar' from t`, namedEmitter)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("names = %v, want none (colon is inside a quoted string)", names)
	}
}

func TestParse_DoubleColonCastIgnored(t *testing.T) {
	rewritten, names, err := Parse("select price::numeric from items where id = :id", namedEmitter)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(names) != 1 || names[0] != "id" {
		t.Errorf("names = %v, want [id]", names)
	}
	if !strings.Contains(rewritten, "price::numeric") {
		t.Errorf("type cast was rewritten: %q", rewritten)
	}
}

func TestParse_BackslashEscapedColonIgnored(t *testing.T) {
	// the first colon is escaped with a leading backslash outside any
	// quoted section and must not be treated as a bind variable.
	_, names, err := Parse(`select 1 from t where a \:notavar and b = :real`, namedEmitter)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if want := []string{"real"}; !equalSlices(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}
}

func TestParse_TrailingVarAtEndOfInput(t *testing.T) {
	_, names, err := Parse("select * from t where id = :id", namedEmitter)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if want := []string{"id"}; !equalSlices(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}
}

func TestParse_EmptyNameIsError(t *testing.T) {
	_, _, err := Parse("select * from t where id = : and x = 1", namedEmitter)
	if err == nil {
		t.Fatal("expected an error for a degenerate empty bind variable name")
	}
	if !dbierrors.Is(err, dbierrors.KindPrepare) {
		t.Errorf("error kind = %v, want KindPrepare", err)
	}
}

func TestParse_TooManyVarsIsError(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("select ")
	for i := 0; i < MaxVars+1; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(":v")
		sb.WriteString(string(rune('a' + i%26)))
	}
	_, _, err := Parse(sb.String(), namedEmitter)
	if err == nil {
		t.Fatal("expected an overflow error past MaxVars bind variables")
	}
	if !dbierrors.Is(err, dbierrors.KindBindOverflow) {
		t.Errorf("error kind = %v, want KindBindOverflow", err)
	}
}

func TestParse_EmitterReceivesPositionalIndex(t *testing.T) {
	var gotIndexes []int
	var gotNames []string
	emit := func(buf *[]byte, name string, index int) {
		gotIndexes = append(gotIndexes, index)
		gotNames = append(gotNames, name)
		*buf = append(*buf, '?')
	}

	rewritten, _, err := Parse("insert into t (a, b) values (:a, :b)", emit)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if rewritten != "insert into t (a, b) values (?, ?)" {
		t.Errorf("rewritten = %q", rewritten)
	}
	if want := []int{0, 1}; !equalIntSlices(gotIndexes, want) {
		t.Errorf("indexes = %v, want %v", gotIndexes, want)
	}
	if want := []string{"a", "b"}; !equalSlices(gotNames, want) {
		t.Errorf("names = %v, want %v", gotNames, want)
	}
}

func TestNoopEmitter_RoundTrip(t *testing.T) {
	const sql = "select * from t where a = :a and b = :b"
	rewritten, _, err := Parse(sql, NoopEmitter)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if rewritten != sql {
		t.Errorf("round trip changed SQL: got %q, want %q", rewritten, sql)
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalIntSlices(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
