// Package vm implements the bytecode interpreter core: the Value and
// Completion model, the ECMA object model (properties, lexical
// environments, the [[...]] algorithms), the conversion/equality suite,
// and the interpreter loop that dispatches bytecode.Program opcodes.
package vm

import (
	"emberjs/pkg/heap"
	"emberjs/pkg/strtab"
)

// Kind discriminates the variant a Value holds. Simple constants,
// numbers, strings and object references share one packed Go struct —
// the idiomatic-Go analogue of the teacher's tagged ValueType + inline
// payload fields (pkg/vm/value.go), rather than the byte-packed union
// the original C engine uses to keep every Value the width of one
// machine word.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindTrue
	KindFalse
	KindEmpty // sentinel for uninitialised immutable bindings; never user-visible
	KindHole  // array-hole marker
	KindNumber
	KindString
	KindObject
)

// Value is the tagged union spec.md §3 describes. Exactly one payload
// field is meaningful, selected by Kind. Num is stored inline rather
// than through the original engine's indirect heap-owned number cell:
// Go's value semantics already give every copy its own float64, so the
// extra indirection the C implementation uses (to keep ecma_value_t one
// machine word on 32-bit targets) buys nothing here.
type Value struct {
	Kind Kind
	Num  float64
	Str  *strtab.String
	Obj  heap.Handle
}

func Undefined() Value { return Value{Kind: KindUndefined} }
func Null() Value      { return Value{Kind: KindNull} }
func True() Value      { return Value{Kind: KindTrue} }
func False() Value     { return Value{Kind: KindFalse} }
func Empty() Value     { return Value{Kind: KindEmpty} }
func Hole() Value      { return Value{Kind: KindHole} }

func BoolValue(b bool) Value {
	if b {
		return True()
	}
	return False()
}

func NumberValue(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// StringValue wraps an already-interned descriptor. Callers that intend
// to store this Value somewhere persistent (a register, a property, an
// array slot) must Retain it first via the owning Table; StringValue
// itself does not take a reference, mirroring spec.md §3's "creating a
// Value... increments ownership" only at the point of storage, not at
// every transient copy.
func StringValue(s *strtab.String) Value { return Value{Kind: KindString, Str: s} }

func ObjectValue(h heap.Handle) Value { return Value{Kind: KindObject, Obj: h} }

func (v Value) IsUndefined() bool { return v.Kind == KindUndefined }
func (v Value) IsNull() bool      { return v.Kind == KindNull }
func (v Value) IsEmpty() bool     { return v.Kind == KindEmpty }
func (v Value) IsHole() bool      { return v.Kind == KindHole }
func (v Value) IsBoolean() bool   { return v.Kind == KindTrue || v.Kind == KindFalse }
func (v Value) IsNumber() bool    { return v.Kind == KindNumber }
func (v Value) IsString() bool    { return v.Kind == KindString }
func (v Value) IsObject() bool    { return v.Kind == KindObject }

// IsNullOrUndefined is the common ECMA "CheckObjectCoercible would
// throw" test.
func (v Value) IsNullOrUndefined() bool { return v.Kind == KindUndefined || v.Kind == KindNull }

func (v Value) Bool() bool {
	return v.Kind == KindTrue
}

// Retain increments the string table's holder count if v owns a string.
// Call this whenever a Value is copied into a new persistent storage
// location (a register write, a property value, an array slot).
func (v Value) Retain(strings *strtab.Table) Value {
	if v.Kind == KindString {
		strings.Retain(v.Str)
	}
	return v
}

// Release decrements the string table's holder count if v owns a
// string. Call this whenever a persistent storage location holding v is
// overwritten or torn down (register file release, property deletion,
// array truncation).
func (v Value) Release(strings *strtab.Table) {
	if v.Kind == KindString {
		strings.Release(v.Str)
	}
}
