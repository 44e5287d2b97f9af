package bytecode

import "fmt"

// LiteralKind distinguishes the payload kinds the literal table holds.
type LiteralKind uint8

const (
	LitNumber LiteralKind = iota
	LitString
	LitFunction
)

// Literal is one entry of a Program's literal table: a number, a
// string, or a function template. Exactly one of Num/Str/Func is
// meaningful, selected by Kind.
type Literal struct {
	Kind LiteralKind `cbor:"kind"`
	Num  float64     `cbor:"num"`
	Str  string      `cbor:"str"`
	Func *FunctionTemplate `cbor:"func,omitempty"`
}

// FunctionTemplate describes a nested function body: where its code
// starts within the same flat instruction stream, its declared
// parameter names (arguments binding follows positional assignment),
// and the bits the closure-creation opcode and the call machinery need
// but that do not belong on every Value.
type FunctionTemplate struct {
	Name     string   `cbor:"name"`
	Params   []string `cbor:"params"`
	Start    int      `cbor:"start"`
	IsExpr   bool     `cbor:"is_expr"`
	Strict   bool     `cbor:"strict"`
}

// litKey packs a bytecode position and a per-instruction small literal
// id into one map key. Real front ends may assign more than one
// literal-bearing operand per instruction (a small id per operand
// position); this module's Assembler only ever needs id 0.
func litKey(position int, smallID byte) uint32 {
	return uint32(position)<<8 | uint32(smallID)
}

// ExceptionHandler describes one try statement's protected region,
// grounded on the teacher's compiler.ExceptionHandler table (pkg/compiler
// /compile_exception.go) and adapted from a register-based catch target
// to the lexical-environment-based catch binding spec.md §4.5 requires.
//
// TryStart/TryEnd bound the try body; CatchPC (-1 if no catch clause) is
// the position of the MetaCatchIdent instruction that opens the catch
// body, and CatchEnd is where that body ends. FinallyPC (-1 if no
// finally clause) is where the finally body begins; EndPC is the first
// position after the whole construct. EnvDepth is the static with-
// nesting depth in effect where the try statement appears lexically, so
// the interpreter can unwind any with-environments entered inside the
// try/catch body by walking Outer pointers back to that depth before
// transferring control to the handler.
type ExceptionHandler struct {
	TryStart  int `cbor:"try_start"`
	TryEnd    int `cbor:"try_end"`
	CatchPC   int `cbor:"catch_pc"`
	CatchEnd  int `cbor:"catch_end"`
	FinallyPC int `cbor:"finally_pc"`
	EndPC     int `cbor:"end_pc"`
	EnvDepth  int `cbor:"env_depth"`
}

// Contains reports whether pos falls inside the protected region this
// handler covers (try body plus, if present, the catch body — an
// exception raised while already running the catch clause still needs
// this handler's finally, but must not re-enter its own catch).
func (h ExceptionHandler) Contains(pos int) bool {
	end := h.TryEnd
	if h.CatchPC >= 0 {
		end = h.CatchEnd
	}
	return pos >= h.TryStart && pos < end
}

// InCatch reports whether pos lies within this handler's own catch body
// (as opposed to its try body).
func (h ExceptionHandler) InCatch(pos int) bool {
	return h.CatchPC >= 0 && pos >= h.TryEnd && pos < h.CatchEnd
}

// Program is the inbound contract the parser/serializer hands the
// interpreter: a read-only instruction stream, a literal table, and
// the side table resolving (position, smallID) pairs to literal table
// indices. The interpreter never mutates Code or Literals at runtime.
type Program struct {
	Code         []byte         `cbor:"code"`
	Literals     []Literal      `cbor:"literals"`
	LiteralIndex map[uint32]int `cbor:"literal_index"`

	// ExceptionHandlers is flat across the whole program (positions are
	// absolute), ordered by nesting: handlers compiled from an outer try
	// statement appear before any handler nested inside it.
	ExceptionHandlers []ExceptionHandler `cbor:"exception_handlers"`
}

// NewProgram returns an empty, ready-to-append Program.
func NewProgram() *Program {
	return &Program{LiteralIndex: make(map[uint32]int)}
}

// HandlerFor returns the innermost exception handler whose protected
// region contains pos and that is not in skip, or nil if none.
func (p *Program) HandlerFor(pos int, skip map[int]bool) (*ExceptionHandler, int) {
	bestIdx := -1
	bestSpan := -1
	for i := range p.ExceptionHandlers {
		if skip[i] {
			continue
		}
		h := &p.ExceptionHandlers[i]
		if !h.Contains(pos) {
			continue
		}
		span := h.CatchEnd - h.TryStart
		if h.CatchPC < 0 {
			span = h.TryEnd - h.TryStart
		}
		if bestIdx == -1 || span < bestSpan {
			bestIdx, bestSpan = i, span
		}
	}
	if bestIdx == -1 {
		return nil, -1
	}
	return &p.ExceptionHandlers[bestIdx], bestIdx
}

// ResolveLiteralID maps a (smallID, position) pair to an index into
// Literals, mirroring the parser contract's resolve_literal_id.
func (p *Program) ResolveLiteralID(smallID byte, position int) (int, bool) {
	idx, ok := p.LiteralIndex[litKey(position, smallID)]
	return idx, ok
}

// GetLiteral returns the literal table entry at idx.
func (p *Program) GetLiteral(idx int) Literal {
	if idx < 0 || idx >= len(p.Literals) {
		return Literal{}
	}
	return p.Literals[idx]
}

// ReadMetaCounter decodes the two operand bytes of an OpMeta(kind)
// instruction at position into a 16-bit unsigned value, mirroring the
// parser contract's read_meta_counter. Callers are expected to have
// already checked the instruction at position is OpMeta with the
// expected kind.
func (p *Program) ReadMetaCounter(position int) uint16 {
	if position+3 >= len(p.Code) {
		return 0
	}
	hi := p.Code[position+2]
	lo := p.Code[position+3]
	return uint16(hi)<<8 | uint16(lo)
}

// OpAt returns the opcode at position, or an error if position is out
// of range.
func (p *Program) OpAt(position int) (Op, error) {
	if position < 0 || position >= len(p.Code) {
		return 0, fmt.Errorf("bytecode: position %d out of range (len %d)", position, len(p.Code))
	}
	return Op(p.Code[position]), nil
}
