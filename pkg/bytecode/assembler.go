package bytecode

// Assembler builds a Program by hand, one instruction at a time. It
// stands in for the real front-end parser/serializer — out of scope
// for this repository — so the interpreter has concrete bytecode to
// run in tests. The command line has no assembler mode; it only loads
// programs already encoded with Encode.
type Assembler struct {
	prog *Program
}

// NewAssembler starts a fresh program.
func NewAssembler() *Assembler {
	return &Assembler{prog: NewProgram()}
}

// Pos returns the current write position, i.e. the position the next
// emitted instruction will occupy.
func (a *Assembler) Pos() int { return len(a.prog.Code) }

func (a *Assembler) emit(bytes ...byte) int {
	pos := a.Pos()
	a.prog.Code = append(a.prog.Code, bytes...)
	return pos
}

// addLiteral appends lit to the table (no deduplication — a real
// serializer would dedup; this one favours simplicity) and records
// (position, 0) -> index so ResolveLiteralID can find it.
func (a *Assembler) addLiteral(position int, lit Literal) byte {
	idx := len(a.prog.Literals)
	a.prog.Literals = append(a.prog.Literals, lit)
	a.prog.LiteralIndex[litKey(position, 0)] = idx
	return 0
}

// RegVarDecl must be the first instruction of every function body.
func (a *Assembler) RegVarDecl(minReg, maxReg byte) int {
	return a.emit(byte(OpRegVarDecl), minReg, maxReg)
}

// StrictCode marks the enclosing function body strict. Must directly
// follow RegVarDecl if present.
func (a *Assembler) StrictCode() int {
	return a.emit(byte(OpMeta), byte(MetaStrictCode), 0, 0)
}

func (a *Assembler) AssignSimple(dest byte, tag SimpleTag) int {
	return a.emit(byte(OpAssignment), dest, byte(AssignSimple), byte(tag))
}

func (a *Assembler) AssignString(dest byte, s string) int {
	pos := a.emit(byte(OpAssignment), dest, byte(AssignString), 0)
	a.addLiteral(pos, Literal{Kind: LitString, Str: s})
	return pos
}

// AssignVar loads the value bound to identifier name through the
// current lexical environment chain.
func (a *Assembler) AssignVar(dest byte, name string) int {
	pos := a.emit(byte(OpAssignment), dest, byte(AssignVar), 0)
	a.addLiteral(pos, Literal{Kind: LitString, Str: name})
	return pos
}

// SetVar writes src's current value into the named-identifier binding
// resolved through the running frame's lexical environment chain.
func (a *Assembler) SetVar(src byte, name string) int {
	pos := a.emit(byte(OpAssignment), src, byte(AssignSetVar), 0)
	a.addLiteral(pos, Literal{Kind: LitString, Str: name})
	return pos
}

func (a *Assembler) AssignNumber(dest byte, n float64) int {
	pos := a.emit(byte(OpAssignment), dest, byte(AssignNumber), 0)
	a.addLiteral(pos, Literal{Kind: LitNumber, Num: n})
	return pos
}

func (a *Assembler) AssignNegNumber(dest byte, n float64) int {
	pos := a.emit(byte(OpAssignment), dest, byte(AssignNegNumber), 0)
	a.addLiteral(pos, Literal{Kind: LitNumber, Num: n})
	return pos
}

func (a *Assembler) AssignSmallInt(dest byte, v int8) int {
	return a.emit(byte(OpAssignment), dest, byte(AssignSmallInt), byte(v))
}

func (a *Assembler) AssignNegSmallInt(dest byte, v int8) int {
	return a.emit(byte(OpAssignment), dest, byte(AssignNegSmallInt), byte(v))
}

func (a *Assembler) binary(op Op, dest, left, right byte) int {
	return a.emit(byte(op), dest, left, right)
}

func (a *Assembler) Add(dest, l, r byte) int         { return a.binary(OpAdd, dest, l, r) }
func (a *Assembler) Sub(dest, l, r byte) int         { return a.binary(OpSub, dest, l, r) }
func (a *Assembler) Mul(dest, l, r byte) int         { return a.binary(OpMul, dest, l, r) }
func (a *Assembler) Div(dest, l, r byte) int         { return a.binary(OpDiv, dest, l, r) }
func (a *Assembler) Mod(dest, l, r byte) int         { return a.binary(OpMod, dest, l, r) }
func (a *Assembler) Eq(dest, l, r byte) int          { return a.binary(OpEq, dest, l, r) }
func (a *Assembler) NotEq(dest, l, r byte) int       { return a.binary(OpNotEq, dest, l, r) }
func (a *Assembler) StrictEq(dest, l, r byte) int    { return a.binary(OpStrictEq, dest, l, r) }
func (a *Assembler) StrictNotEq(dest, l, r byte) int { return a.binary(OpStrictNotEq, dest, l, r) }
func (a *Assembler) Less(dest, l, r byte) int        { return a.binary(OpLess, dest, l, r) }
func (a *Assembler) Greater(dest, l, r byte) int     { return a.binary(OpGreater, dest, l, r) }
func (a *Assembler) LessEq(dest, l, r byte) int      { return a.binary(OpLessEq, dest, l, r) }
func (a *Assembler) GreaterEq(dest, l, r byte) int   { return a.binary(OpGreaterEq, dest, l, r) }

func (a *Assembler) unary(op Op, dest, src byte) int {
	return a.emit(byte(op), dest, src)
}

func (a *Assembler) Neg(dest, src byte) int      { return a.unary(OpNeg, dest, src) }
func (a *Assembler) Not(dest, src byte) int      { return a.unary(OpNot, dest, src) }
func (a *Assembler) Typeof(dest, src byte) int   { return a.unary(OpTypeof, dest, src) }
func (a *Assembler) ToNumber(dest, src byte) int { return a.unary(OpToNumber, dest, src) }

func (a *Assembler) PropGet(dest, base byte, name string) int {
	pos := a.emit(byte(OpPropGet), dest, base, 0)
	a.addLiteral(pos, Literal{Kind: LitString, Str: name})
	return pos
}

func (a *Assembler) PropSet(base byte, name string, value byte) int {
	pos := a.emit(byte(OpPropSet), base, 0, value)
	a.prog.LiteralIndex[litKey(pos, 0)] = len(a.prog.Literals)
	a.prog.Literals = append(a.prog.Literals, Literal{Kind: LitString, Str: name})
	return pos
}

func (a *Assembler) DeleteVar(dest byte, name string) int {
	pos := a.emit(byte(OpDeleteVar), dest, 0)
	a.addLiteral(pos, Literal{Kind: LitString, Str: name})
	return pos
}

func (a *Assembler) DeleteProp(dest, base byte, name string) int {
	pos := a.emit(byte(OpDeleteProp), dest, base, 0)
	a.addLiteral(pos, Literal{Kind: LitString, Str: name})
	return pos
}

func (a *Assembler) VarDecl(name string) int {
	pos := a.emit(byte(OpVarDecl), 0)
	a.addLiteral(pos, Literal{Kind: LitString, Str: name})
	return pos
}

// Jump emits an unconditional jump followed by a placeholder
// MetaJumpTarget; returns the position of the OpMeta instruction so
// callers can PatchJump it once the target is known.
func (a *Assembler) Jump() int {
	a.emit(byte(OpJump))
	return a.emitJumpTargetPlaceholder()
}

func (a *Assembler) JumpIfFalse(cond byte) int {
	a.emit(byte(OpJumpIfFalse), cond)
	return a.emitJumpTargetPlaceholder()
}

func (a *Assembler) JumpIfTrue(cond byte) int {
	a.emit(byte(OpJumpIfTrue), cond)
	return a.emitJumpTargetPlaceholder()
}

func (a *Assembler) emitJumpTargetPlaceholder() int {
	return a.emit(byte(OpMeta), byte(MetaJumpTarget), 0, 0)
}

// PatchJump rewrites the MetaJumpTarget instruction at metaPos (as
// returned by Jump/JumpIfFalse/JumpIfTrue) to target target.
func (a *Assembler) PatchJump(metaPos int, target int) {
	a.prog.Code[metaPos+2] = byte(target >> 8)
	a.prog.Code[metaPos+3] = byte(target)
}

func (a *Assembler) Closure(dest byte, tmpl *FunctionTemplate) int {
	pos := a.emit(byte(OpClosure), dest, 0)
	a.addLiteral(pos, Literal{Kind: LitFunction, Func: tmpl})
	return pos
}

func (a *Assembler) ThisArg(reg byte) int {
	return a.emit(byte(OpMeta), byte(MetaThisArg), reg, 0)
}

func (a *Assembler) Varg(reg byte) int {
	return a.emit(byte(OpMeta), byte(MetaVarg), reg, 0)
}

func (a *Assembler) CallN(dest, callee byte, argCount byte) int {
	return a.emit(byte(OpCallN), dest, callee, argCount)
}

func (a *Assembler) ConstructN(dest, ctor byte, argCount byte) int {
	return a.emit(byte(OpConstructN), dest, ctor, argCount)
}

func (a *Assembler) Ret() int            { return a.emit(byte(OpRet)) }
func (a *Assembler) RetVal(src byte) int { return a.emit(byte(OpRetVal), src) }
func (a *Assembler) Throw(src byte) int  { return a.emit(byte(OpThrow), src) }

func (a *Assembler) With(src byte) int { return a.emit(byte(OpWith), src) }
func (a *Assembler) EndWith() int      { return a.emit(byte(OpMeta), byte(MetaEndWith), 0, 0) }

func (a *Assembler) ArrayDecl(dest, start, count byte) int {
	return a.emit(byte(OpArrayDecl), dest, start, count)
}

func (a *Assembler) ObjDecl(dest byte, propCount byte) int {
	return a.emit(byte(OpObjDecl), dest, propCount)
}

func (a *Assembler) PropData(name string, valueReg byte) int {
	pos := a.emit(byte(OpMeta), byte(MetaPropData), 0, valueReg)
	a.prog.LiteralIndex[litKey(pos, 0)] = len(a.prog.Literals)
	a.prog.Literals = append(a.prog.Literals, Literal{Kind: LitString, Str: name})
	return pos
}

func (a *Assembler) PropGetter(name string, funcReg byte) int {
	pos := a.emit(byte(OpMeta), byte(MetaPropGetter), 0, funcReg)
	a.prog.LiteralIndex[litKey(pos, 0)] = len(a.prog.Literals)
	a.prog.Literals = append(a.prog.Literals, Literal{Kind: LitString, Str: name})
	return pos
}

func (a *Assembler) PropSetter(name string, funcReg byte) int {
	pos := a.emit(byte(OpMeta), byte(MetaPropSetter), 0, funcReg)
	a.prog.LiteralIndex[litKey(pos, 0)] = len(a.prog.Literals)
	a.prog.Literals = append(a.prog.Literals, Literal{Kind: LitString, Str: name})
	return pos
}

func (a *Assembler) CatchIdent(name string) int {
	pos := a.emit(byte(OpMeta), byte(MetaCatchIdent), 0, 0)
	a.addLiteral(pos, Literal{Kind: LitString, Str: name})
	return pos
}

func (a *Assembler) FinallyEnd() int {
	return a.emit(byte(OpMeta), byte(MetaFinallyEnd), 0, 0)
}

func (a *Assembler) This(dest byte) int { return a.emit(byte(OpThis), dest) }

// AddExceptionHandler registers a try statement's protected region. The
// positions must already be resolved (call after emitting the try body,
// catch body and finally body); see TestExceptionHandlerLookup in
// program_test.go for the emission order this expects.
func (a *Assembler) AddExceptionHandler(h ExceptionHandler) {
	a.prog.ExceptionHandlers = append(a.prog.ExceptionHandlers, h)
}

// Program returns the assembled program. The Assembler remains usable
// afterwards (further emits keep appending).
func (a *Assembler) Program() *Program { return a.prog }
