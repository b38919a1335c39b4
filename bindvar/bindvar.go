// Package bindvar implements the SQL bind-variable scanner described in
// the core's spec §4.1: it finds every `:name` placeholder in a raw SQL
// string and asks a driver-supplied emitter to write that driver's
// native placeholder syntax ($1, ?, :1, ...) into the rewritten SQL.
//
// The scanning rules are grounded on two independent implementations in
// the retrieval pack that do the same job for the same reason
// (driver-portable named parameters): the quote/escape walk in
// burrowctl/client/stmt.go's countPlaceholders, and the named-parameter
// extraction in slingdata-io-godbc/params.go's ParseNamedParams. Neither
// is reused verbatim — this parser additionally distinguishes `::` type
// casts from bind markers and reports ordered (not deduplicated)
// variable names the way the original nsdbi stmt.c does.
package bindvar

import "github.com/lordbasex/dbicore/dbierrors"

// MaxVars is the compile-time maximum number of bind-variable positions
// permitted in a single statement (spec §4.1, §6).
const MaxVars = 32

// Emitter writes a driver's native placeholder notation for the
// variable at the given zero-based index into buf. Implementations
// correspond to the driver.Driver.BindVar callback (spec §4.4).
type Emitter func(buf *[]byte, name string, index int)

// Parse scans sql left to right, replacing each recognized `:name`
// bind variable with whatever emit appends to the output buffer, and
// returns the rewritten SQL plus the ordered list of variable names
// (duplicates preserved by position, not coalesced, since some drivers
// use positional placeholders and cannot resolve repeated names on
// their own).
//
// Recognition rules, scanning left to right:
//   - Inside a single-quoted string, only ' toggles the quoted state;
//     a ' preceded by \ does not toggle.
//   - A ':' starts a bind variable only when it is not inside a quoted
//     string, not immediately preceded by ':' (skips '::' type casts),
//     not immediately followed by ':', and not immediately preceded by
//     '\'.
//   - The variable name is the longest following run of
//     [A-Za-z0-9_]. A lone ':' with zero following name characters is
//     an error (spec §8: "a degenerate empty name -> Prepare error").
//   - A trailing variable at end of input is valid.
func Parse(sql string, emit Emitter) (rewritten string, names []string, err error) {
	var out []byte
	var quoted bool
	n := len(sql)

	for i := 0; i < n; i++ {
		c := sql[i]

		switch {
		case c == '\'':
			if !(quoted && i > 0 && sql[i-1] == '\\') {
				quoted = !quoted
			}
			out = append(out, c)

		case c == ':' && !quoted && !precededByColon(sql, i) && !precededByBackslash(sql, i) && !followedByColon(sql, i):
			start := i + 1
			end := start
			for end < n && isBindChar(sql[end]) {
				end++
			}
			if end == start {
				return "", nil, dbierrors.New(dbierrors.KindPrepare, "empty bind variable name at offset %d", i)
			}
			name := sql[start:end]
			if len(names) >= MaxVars {
				return "", nil, dbierrors.New(dbierrors.KindBindOverflow, "more than %d bind variables in statement", MaxVars)
			}
			emit(&out, name, len(names))
			names = append(names, name)
			i = end - 1

		default:
			out = append(out, c)
		}
	}

	return string(out), names, nil
}

func precededByColon(sql string, i int) bool {
	return i > 0 && sql[i-1] == ':'
}

func followedByColon(sql string, i int) bool {
	return i+1 < len(sql) && sql[i+1] == ':'
}

func precededByBackslash(sql string, i int) bool {
	return i > 0 && sql[i-1] == '\\'
}

func isBindChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

// NoopEmitter appends ":name" unchanged, useful for round-trip tests
// that check the parser's idempotence (spec §8).
func NoopEmitter(buf *[]byte, name string, index int) {
	*buf = append(*buf, ':')
	*buf = append(*buf, name...)
}
