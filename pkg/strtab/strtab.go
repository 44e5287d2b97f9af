// Package strtab implements the interned, reference-counted string table
// the core resolves every string Value against. Strings are deduplicated
// so that two Values holding the same text share one descriptor; pointer
// equality on that descriptor substitutes for content comparison on the
// hot path (property lookups, strict equality, typeof tags).
package strtab

import (
	"hash/fnv"
	"math"
	"strconv"
	"strings"
)

// String is an immutable, reference-counted byte sequence with a
// precomputed hash. Refs tracks the number of live Value holders; the
// Table reclaims an entry once its count reaches zero, unless the entry
// is pinned as a magic string.
type String struct {
	text   string
	hash   uint32
	refs   int32
	pinned bool
}

// Text returns the string's content.
func (s *String) Text() string { return s.text }

// Hash returns the precomputed FNV-1a hash.
func (s *String) Hash() uint32 { return s.hash }

// Len is the number of bytes in the string, i.e. O(1) per spec §3.
func (s *String) Len() int { return len(s.text) }

// Refs reports the current holder count, exposed for invariant tests.
func (s *String) Refs() int32 { return s.refs }

func hashOf(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// Table interns strings against a content-keyed map. The same *String
// pointer is returned for equal content, so equality checks on two
// interned values can compare pointers instead of bytes.
type Table struct {
	entries map[string]*String
}

// New returns an empty table.
func New() *Table {
	return &Table{entries: make(map[string]*String, 64)}
}

// Intern returns the table's descriptor for s, creating one with zero
// refs if this is the first sighting. Callers that keep a reference
// (store it in a Value) must call Retain.
func (t *Table) Intern(s string) *String {
	if d, ok := t.entries[s]; ok {
		return d
	}
	d := &String{text: s, hash: hashOf(s)}
	t.entries[s] = d
	return d
}

// Retain increments a descriptor's holder count.
func (t *Table) Retain(s *String) {
	if s == nil {
		return
	}
	s.refs++
}

// Release decrements a descriptor's holder count, evicting it from the
// table once no Value references it. Pinned (magic) strings are never
// evicted.
func (t *Table) Release(s *String) {
	if s == nil || s.pinned {
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(t.entries, s.text)
	}
}

// Pin marks a descriptor as a magic string: it is interned once at
// start-up and lives for the lifetime of the table regardless of refs.
func (t *Table) Pin(s string) *String {
	d := t.Intern(s)
	d.pinned = true
	d.refs++
	return d
}

// Len reports the number of live interned entries, for leak-detecting
// tests (every Retain should be matched by a Release; Len should return
// to its pre-test baseline once all Values referencing test-local
// strings are released).
func (t *Table) Len() int { return len(t.entries) }

// NumberToString renders f the way ECMA-262 9.8.1 / ToString(Number)
// does: NaN, Infinity, integers without a trailing ".0", and -0 as "0".
// Grounded on the teacher's cleanExponentialFormat post-processing of
// Go's exponential formatting, generalized to the full ToString grammar.
func NumberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		return cleanExponent(s)
	}

	return strconv.FormatFloat(f, 'f', -1, 64)
}

// cleanExponent trims Go's zero-padded exponent ("1e-07") down to the
// ECMA form ("1e-7"), writing an explicit "+" on positive exponents
// ("1e+21") as ECMA's ToString does.
func cleanExponent(s string) string {
	i := strings.IndexAny(s, "eE")
	if i < 0 {
		return s
	}
	mantissa, exp := s[:i], s[i+1:]
	sign := byte('+')
	if len(exp) > 0 && (exp[0] == '+' || exp[0] == '-') {
		sign = exp[0]
		exp = exp[1:]
	}
	exp = strings.TrimLeft(exp, "0")
	if exp == "" {
		exp = "0"
	}
	if sign == '-' {
		return mantissa + "e-" + exp
	}
	return mantissa + "e+" + exp
}

// StringToNumber implements ToNumber's StringNumericLiteral grammar: an
// empty (after trimming whitespace) string is +0, hexadecimal
// literals with a leading "0x" parse as integers, "Infinity" and its
// signed forms are recognized, and anything else is handed to strconv;
// a failure there yields NaN rather than an error, matching ECMA-262
// 9.3.1 (there are no "invalid number" errors at the conversion layer).
func StringToNumber(s string) float64 {
	s = strings.TrimFunc(s, isStrWhitespace)
	if s == "" {
		return 0
	}

	neg := false
	rest := s
	switch rest[0] {
	case '+':
		rest = rest[1:]
	case '-':
		neg = true
		rest = rest[1:]
	}
	if rest == "Infinity" {
		if neg {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") ||
		strings.HasPrefix(s, "-0x") || strings.HasPrefix(s, "-0X") ||
		strings.HasPrefix(s, "+0x") || strings.HasPrefix(s, "+0X") {
		sign := 1.0
		hex := s
		if hex[0] == '+' || hex[0] == '-' {
			if hex[0] == '-' {
				sign = -1
			}
			hex = hex[1:]
		}
		n, err := strconv.ParseUint(hex[2:], 16, 64)
		if err != nil {
			return math.NaN()
		}
		return sign * float64(n)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func isStrWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f', 0x00A0, 0xFEFF:
		return true
	}
	return false
}
