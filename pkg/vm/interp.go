package vm

import (
	"context"
	"strconv"

	"emberjs/pkg/bytecode"
)

// executeFrame is the dispatch loop spec.md §4.2 describes: read the
// opcode at frame.pc, run its handler, and keep going while the
// resulting completion is Empty (a Meta completion is treated the same
// way; a bare Normal completion ends the loop and is returned as is,
// since a handler never leaves one behind in well-formed runs, mirroring
// the original engine's run_int_loop assertion). Return compositions, throws
// and the host-visible exit status all end the loop; a throw or return
// first runs the gauntlet of resolveAbrupt against the program's
// exception handler table so try/catch/finally can intercept it
// without needing dedicated opcodes of their own.
func (vm *VM) executeFrame(ctx context.Context, frame *Frame) Completion {
	vm.frames = append(vm.frames, frame)
	defer func() { vm.frames = vm.frames[:len(vm.frames)-1] }()

	for {
		if vm.pollCancel() || ctx.Err() != nil {
			return ExitCompletion(false)
		}

		for len(frame.scopeStack) > 0 && frame.scopeStack[len(frame.scopeStack)-1].endPC == frame.pc {
			top := frame.scopeStack[len(frame.scopeStack)-1]
			frame.scopeStack = frame.scopeStack[:len(frame.scopeStack)-1]
			frame.env = top.savedEnv
			frame.envDepth = top.depth
		}

		pos := frame.pc
		op, err := frame.prog.OpAt(pos)
		if err != nil {
			return ThrowCompletion(vm.newTypeError("bytecode position out of range"))
		}
		if vm.hooks.Trace != nil {
			vm.hooks.Trace(pos, op)
		}

		next, c := vm.dispatch(ctx, frame, pos, op)
		if vm.fatalErr != nil {
			return ExitCompletion(false)
		}

		switch c.Kind {
		case CompletionEmpty, CompletionMeta:
			frame.pc = next
			continue
		case CompletionReturn, CompletionThrow:
			resumePC, keepGoing, final := vm.resolveAbrupt(frame, pos, c)
			if keepGoing {
				frame.pc = resumePC
				continue
			}
			return final
		default: // CompletionExit, or a stray Normal that escaped a handler
			return c
		}
	}
}

// resolveAbrupt walks the program's exception handler table outward
// from pos looking for a try/catch/finally construct that intercepts c.
// It never runs for Exit completions — those bypass finally entirely
// and propagate straight out, matching a host-requested exit rather
// than an ECMAScript control-flow event.
func (vm *VM) resolveAbrupt(frame *Frame, pos int, c Completion) (int, bool, Completion) {
	skip := map[int]bool{}
	for {
		h, idx := frame.prog.HandlerFor(pos, skip)
		if h == nil {
			return 0, false, c
		}
		vm.unwindEnvsTo(frame, h.EnvDepth)

		if c.Kind == CompletionThrow && h.CatchPC >= 0 && !h.InCatch(pos) {
			name := vm.catchIdentName(frame.prog, h.CatchPC)
			catchEnv := vm.NewDeclarativeEnv(frame.env)
			catchObj := vm.envObject(catchEnv)
			vm.CreateMutableBinding(catchObj, name, true)
			vm.SetMutableBinding(catchObj, name, c.Value, false)
			frame.scopeStack = append(frame.scopeStack, envScope{
				savedEnv: frame.env, depth: frame.envDepth, endPC: h.CatchEnd,
			})
			frame.env = catchEnv
			frame.envDepth++
			return h.CatchPC + bytecode.OpMeta.Size(), true, Completion{}
		}

		if h.FinallyPC >= 0 && !frame.exhaustedFinally[idx] {
			if frame.exhaustedFinally == nil {
				frame.exhaustedFinally = make(map[int]bool)
			}
			frame.exhaustedFinally[idx] = true
			frame.finallyWait = &pendingFinally{completion: c, at: h.EndPC}
			return h.FinallyPC, true, Completion{}
		}

		skip[idx] = true
	}
}

// unwindEnvsTo pops with/catch environments (indistinguishable for this
// purpose — see Frame.envDepth's doc comment) down to target, dropping
// any now-stale catch scopeStack entries along the way.
func (vm *VM) unwindEnvsTo(frame *Frame, target int) {
	for frame.envDepth > target {
		obj := vm.envObject(frame.env)
		frame.env = vm.outerEnv(obj)
		frame.envDepth--
	}
	for len(frame.scopeStack) > 0 && frame.scopeStack[len(frame.scopeStack)-1].depth > frame.envDepth {
		frame.scopeStack = frame.scopeStack[:len(frame.scopeStack)-1]
	}
}

func (vm *VM) catchIdentName(prog *bytecode.Program, catchPC int) string {
	idx, ok := prog.ResolveLiteralID(0, catchPC)
	if !ok {
		return ""
	}
	return prog.GetLiteral(idx).Str
}

// dispatch runs the single opcode at pos, returning the position the
// loop should resume at (on Empty/Meta) and the completion produced.
func (vm *VM) dispatch(ctx context.Context, frame *Frame, pos int, op bytecode.Op) (int, Completion) {
	code := frame.prog.Code
	switch op {
	case bytecode.OpRegVarDecl:
		return pos + op.Size(), NormalEmpty()

	case bytecode.OpAssignment:
		return vm.execAssignment(frame, pos)

	case bytecode.OpAdd:
		return vm.execAdd(frame, pos)
	case bytecode.OpSub:
		return vm.execNumericBinary(frame, pos, func(a, b float64) float64 { return a - b })
	case bytecode.OpMul:
		return vm.execNumericBinary(frame, pos, func(a, b float64) float64 { return a * b })
	case bytecode.OpDiv:
		return vm.execNumericBinary(frame, pos, func(a, b float64) float64 { return a / b })
	case bytecode.OpMod:
		return vm.execNumericBinary(frame, pos, mathMod)

	case bytecode.OpEq, bytecode.OpNotEq, bytecode.OpStrictEq, bytecode.OpStrictNotEq,
		bytecode.OpLess, bytecode.OpGreater, bytecode.OpLessEq, bytecode.OpGreaterEq:
		return vm.execCompare(frame, pos, op)

	case bytecode.OpNeg:
		return vm.execUnaryNumeric(frame, pos, func(n float64) float64 { return -n })
	case bytecode.OpNot:
		dest, src := code[pos+1], code[pos+2]
		frame.setReg(vm.strings, dest, BoolValue(!frame.reg(src).ToBoolean()))
		return pos + op.Size(), NormalEmpty()
	case bytecode.OpTypeof:
		dest, src := code[pos+1], code[pos+2]
		frame.setReg(vm.strings, dest, vm.internString(vm.typeofString(frame.reg(src))))
		return pos + op.Size(), NormalEmpty()
	case bytecode.OpToNumber:
		dest, src := code[pos+1], code[pos+2]
		n := vm.ToNumber(frame.reg(src))
		if n.IsAbrupt() {
			return pos, n
		}
		frame.setReg(vm.strings, dest, n.Value)
		return pos + op.Size(), NormalEmpty()

	case bytecode.OpPropGet:
		return vm.execPropGet(frame, pos)
	case bytecode.OpPropSet:
		return vm.execPropSet(frame, pos)

	case bytecode.OpDeleteVar:
		return vm.execDeleteVar(frame, pos)
	case bytecode.OpDeleteProp:
		return vm.execDeleteProp(frame, pos)
	case bytecode.OpVarDecl:
		return vm.execVarDecl(frame, pos)

	case bytecode.OpJump:
		target := int(frame.prog.ReadMetaCounter(pos + op.Size()))
		return target, NormalEmpty()
	case bytecode.OpJumpIfFalse:
		cond := code[pos+1]
		metaPos := pos + op.Size()
		if !frame.reg(cond).ToBoolean() {
			return int(frame.prog.ReadMetaCounter(metaPos)), NormalEmpty()
		}
		return metaPos + bytecode.OpMeta.Size(), NormalEmpty()
	case bytecode.OpJumpIfTrue:
		cond := code[pos+1]
		metaPos := pos + op.Size()
		if frame.reg(cond).ToBoolean() {
			return int(frame.prog.ReadMetaCounter(metaPos)), NormalEmpty()
		}
		return metaPos + bytecode.OpMeta.Size(), NormalEmpty()

	case bytecode.OpClosure:
		return vm.execClosure(frame, pos)

	case bytecode.OpCallN:
		return vm.execCallN(ctx, frame, pos)
	case bytecode.OpConstructN:
		return vm.execConstructN(frame, pos)

	case bytecode.OpRet:
		return pos, ReturnCompletion(Undefined())
	case bytecode.OpRetVal:
		src := code[pos+1]
		return pos, ReturnCompletion(frame.reg(src))

	case bytecode.OpThrow:
		src := code[pos+1]
		return pos, ThrowCompletion(frame.reg(src))

	case bytecode.OpWith:
		return vm.execWith(frame, pos)

	case bytecode.OpArrayDecl:
		return vm.execArrayDecl(frame, pos)
	case bytecode.OpObjDecl:
		return vm.execObjDecl(frame, pos)

	case bytecode.OpThis:
		dest := code[pos+1]
		frame.setReg(vm.strings, dest, frame.this)
		return pos + op.Size(), NormalEmpty()

	case bytecode.OpMeta:
		return vm.execMeta(frame, pos)

	default:
		return pos, ThrowCompletion(vm.newTypeError("unknown opcode %d", byte(op)))
	}
}

func mathMod(a, b float64) float64 {
	m := a - b*float64(int64(a/b))
	return m
}

// execMeta handles the OpMeta variants that can be reached through
// ordinary linear fallthrough: MetaEndWith pops the with-environment
// OpWith pushed, and MetaFinallyEnd either falls straight through (the
// finally ran to completion without having been diverted into by an
// abrupt completion) or re-raises the completion it was diverted for.
// Every other MetaKind is consumed inline by the opcode that precedes
// or follows it and should never reach this generic dispatch path.
func (vm *VM) execMeta(frame *Frame, pos int) (int, Completion) {
	kind := bytecode.MetaKind(frame.prog.Code[pos+1])
	switch kind {
	case bytecode.MetaEndWith:
		obj := vm.envObject(frame.env)
		frame.env = vm.outerEnv(obj)
		frame.envDepth--
		return pos + bytecode.OpMeta.Size(), NormalEmpty()
	case bytecode.MetaFinallyEnd:
		if frame.finallyWait == nil {
			return pos + bytecode.OpMeta.Size(), NormalEmpty()
		}
		pending := frame.finallyWait
		frame.finallyWait = nil
		resumePC, keepGoing, final := vm.resolveAbrupt(frame, pending.at, pending.completion)
		if keepGoing {
			return resumePC, NormalEmpty()
		}
		return pos, final
	default:
		return pos, ThrowCompletion(vm.newTypeError("malformed bytecode: stray meta instruction"))
	}
}

func (vm *VM) execAssignment(frame *Frame, pos int) (int, Completion) {
	code := frame.prog.Code
	op := bytecode.OpAssignment
	dest := code[pos+1]
	kind := bytecode.AssignKind(code[pos+2])
	operand := code[pos+3]

	switch kind {
	case bytecode.AssignSimple:
		var v Value
		switch bytecode.SimpleTag(operand) {
		case bytecode.SimpleUndefined:
			v = Undefined()
		case bytecode.SimpleNull:
			v = Null()
		case bytecode.SimpleTrue:
			v = True()
		case bytecode.SimpleFalse:
			v = False()
		case bytecode.SimpleEmpty:
			v = Empty()
		case bytecode.SimpleHole:
			v = Hole()
		}
		frame.setReg(vm.strings, dest, v)
		return pos + op.Size(), NormalEmpty()

	case bytecode.AssignString:
		idx, ok := frame.prog.ResolveLiteralID(0, pos)
		if !ok {
			return pos, ThrowCompletion(vm.newTypeError("malformed bytecode: missing string literal"))
		}
		frame.setReg(vm.strings, dest, vm.internString(frame.prog.GetLiteral(idx).Str))
		return pos + op.Size(), NormalEmpty()

	case bytecode.AssignVar:
		idx, ok := frame.prog.ResolveLiteralID(0, pos)
		if !ok {
			return pos, ThrowCompletion(vm.newTypeError("malformed bytecode: missing identifier literal"))
		}
		name := frame.prog.GetLiteral(idx).Str
		env := vm.ResolveIdentifier(vm.envObject(frame.env), name)
		if env == nil {
			return pos, ThrowCompletion(vm.newReferenceError("%s is not defined", name))
		}
		c := vm.GetBindingValue(env, name, frame.strict)
		if c.IsAbrupt() {
			return pos, c
		}
		frame.setReg(vm.strings, dest, c.Value)
		return pos + op.Size(), NormalEmpty()

	case bytecode.AssignSetVar:
		idx, ok := frame.prog.ResolveLiteralID(0, pos)
		if !ok {
			return pos, ThrowCompletion(vm.newTypeError("malformed bytecode: missing identifier literal"))
		}
		name := frame.prog.GetLiteral(idx).Str
		env := vm.ResolveIdentifier(vm.envObject(frame.env), name)
		target := vm.global
		if env != nil {
			target = env
		} else if frame.strict {
			return pos, ThrowCompletion(vm.newReferenceError("%s is not defined", name))
		}
		c := vm.SetMutableBinding(target, name, frame.reg(dest), frame.strict)
		if c.IsAbrupt() {
			return pos, c
		}
		return pos + op.Size(), NormalEmpty()

	case bytecode.AssignNumber:
		idx, ok := frame.prog.ResolveLiteralID(0, pos)
		if !ok {
			return pos, ThrowCompletion(vm.newTypeError("malformed bytecode: missing number literal"))
		}
		frame.setReg(vm.strings, dest, NumberValue(frame.prog.GetLiteral(idx).Num))
		return pos + op.Size(), NormalEmpty()

	case bytecode.AssignNegNumber:
		idx, ok := frame.prog.ResolveLiteralID(0, pos)
		if !ok {
			return pos, ThrowCompletion(vm.newTypeError("malformed bytecode: missing number literal"))
		}
		frame.setReg(vm.strings, dest, NumberValue(-frame.prog.GetLiteral(idx).Num))
		return pos + op.Size(), NormalEmpty()

	case bytecode.AssignSmallInt:
		frame.setReg(vm.strings, dest, NumberValue(float64(int8(operand))))
		return pos + op.Size(), NormalEmpty()

	case bytecode.AssignNegSmallInt:
		frame.setReg(vm.strings, dest, NumberValue(-float64(int8(operand))))
		return pos + op.Size(), NormalEmpty()

	default:
		return pos, ThrowCompletion(vm.newTypeError("malformed bytecode: reserved assignment kind"))
	}
}

// execAdd implements ECMA 11.6.1's special-cased + operator: string
// concatenation if either ToPrimitive'd operand is a string, numeric
// addition otherwise.
func (vm *VM) execAdd(frame *Frame, pos int) (int, Completion) {
	code := frame.prog.Code
	dest, l, r := code[pos+1], code[pos+2], code[pos+3]

	pl := vm.ToPrimitive(frame.reg(l), HintDefault)
	if pl.IsAbrupt() {
		return pos, pl
	}
	pr := vm.ToPrimitive(frame.reg(r), HintDefault)
	if pr.IsAbrupt() {
		return pos, pr
	}
	if pl.Value.Kind == KindString || pr.Value.Kind == KindString {
		sl := vm.ToString(pl.Value)
		if sl.IsAbrupt() {
			return pos, sl
		}
		sr := vm.ToString(pr.Value)
		if sr.IsAbrupt() {
			return pos, sr
		}
		frame.setReg(vm.strings, dest, vm.internString(sl.Value.Str.Text()+sr.Value.Str.Text()))
		return pos + bytecode.OpAdd.Size(), NormalEmpty()
	}
	nl := vm.ToNumber(pl.Value)
	if nl.IsAbrupt() {
		return pos, nl
	}
	nr := vm.ToNumber(pr.Value)
	if nr.IsAbrupt() {
		return pos, nr
	}
	frame.setReg(vm.strings, dest, NumberValue(nl.Value.Num+nr.Value.Num))
	return pos + bytecode.OpAdd.Size(), NormalEmpty()
}

func (vm *VM) execNumericBinary(frame *Frame, pos int, fn func(a, b float64) float64) (int, Completion) {
	code := frame.prog.Code
	dest, l, r := code[pos+1], code[pos+2], code[pos+3]
	nl := vm.ToNumber(frame.reg(l))
	if nl.IsAbrupt() {
		return pos, nl
	}
	nr := vm.ToNumber(frame.reg(r))
	if nr.IsAbrupt() {
		return pos, nr
	}
	frame.setReg(vm.strings, dest, NumberValue(fn(nl.Value.Num, nr.Value.Num)))
	return pos + 4, NormalEmpty()
}

func (vm *VM) execUnaryNumeric(frame *Frame, pos int, fn func(n float64) float64) (int, Completion) {
	code := frame.prog.Code
	dest, src := code[pos+1], code[pos+2]
	n := vm.ToNumber(frame.reg(src))
	if n.IsAbrupt() {
		return pos, n
	}
	frame.setReg(vm.strings, dest, NumberValue(fn(n.Value.Num)))
	return pos + 3, NormalEmpty()
}

// execCompare implements the eight comparison opcodes: the abstract
// and strict equality tables directly, and the relational operators
// per spec.md §4.6's operand-ordering rules (< and >= evaluate left
// first; > and <= swap operands before comparing; <= and >= turn an
// undefined result into false and negate any other, per ECMA
// 11.8.3/11.8.4).
func (vm *VM) execCompare(frame *Frame, pos int, op bytecode.Op) (int, Completion) {
	code := frame.prog.Code
	dest, l, r := code[pos+1], code[pos+2], code[pos+3]
	lv, rv := frame.reg(l), frame.reg(r)

	var result Value
	switch op {
	case bytecode.OpEq:
		c := vm.AbstractEqualityCompare(lv, rv)
		if c.IsAbrupt() {
			return pos, c
		}
		result = c.Value
	case bytecode.OpNotEq:
		c := vm.AbstractEqualityCompare(lv, rv)
		if c.IsAbrupt() {
			return pos, c
		}
		result = BoolValue(!c.Value.Bool())
	case bytecode.OpStrictEq:
		result = BoolValue(vm.StrictEqualityCompare(lv, rv))
	case bytecode.OpStrictNotEq:
		result = BoolValue(!vm.StrictEqualityCompare(lv, rv))
	case bytecode.OpLess:
		c := vm.AbstractRelationalCompare(lv, rv, true)
		if c.IsAbrupt() {
			return pos, c
		}
		result = BoolValue(!c.Value.IsUndefined() && c.Value.Bool())
	case bytecode.OpGreater:
		c := vm.AbstractRelationalCompare(rv, lv, false)
		if c.IsAbrupt() {
			return pos, c
		}
		result = BoolValue(!c.Value.IsUndefined() && c.Value.Bool())
	case bytecode.OpLessEq:
		c := vm.AbstractRelationalCompare(rv, lv, false)
		if c.IsAbrupt() {
			return pos, c
		}
		result = BoolValue(!c.Value.IsUndefined() && !c.Value.Bool())
	case bytecode.OpGreaterEq:
		c := vm.AbstractRelationalCompare(lv, rv, true)
		if c.IsAbrupt() {
			return pos, c
		}
		result = BoolValue(!c.Value.IsUndefined() && !c.Value.Bool())
	}
	frame.setReg(vm.strings, dest, result)
	return pos + 4, NormalEmpty()
}

func (vm *VM) typeofString(v Value) string {
	switch v.Kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "object"
	case KindTrue, KindFalse:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		obj, ok := vm.heap.Get(v.Obj).(*Object)
		if ok && obj.IsCallable() {
			return "function"
		}
		return "object"
	default:
		return "undefined"
	}
}

// propGet implements spec.md §4.3's property-read contract: reject
// null/undefined bases, special-case string length/indexing the way an
// embedded core needs without a full String built-in, and otherwise
// wrap primitives through ToObject before delegating to [[Get]].
func (vm *VM) propGet(base Value, name string) Completion {
	if base.IsNullOrUndefined() {
		return ThrowCompletion(vm.newTypeError("cannot read property %q of %s", name, base.Kind))
	}
	if base.Kind == KindObject {
		obj := vm.heap.Get(base.Obj).(*Object)
		return vm.Get(obj, name)
	}
	if base.Kind == KindString {
		text := base.Str.Text()
		if name == "length" {
			return Normal(NumberValue(float64(len(text))))
		}
		if idx, ok := stringIndex(name); ok && idx < len(text) {
			return Normal(vm.internString(string(text[idx])))
		}
	}
	objC := vm.ToObject(base)
	if objC.IsAbrupt() {
		return objC
	}
	obj := vm.heap.Get(objC.Value.Obj).(*Object)
	return vm.Get(obj, name)
}

func (vm *VM) propSet(base Value, name string, v Value, strict bool) Completion {
	if base.IsNullOrUndefined() {
		return ThrowCompletion(vm.newTypeError("cannot set property %q on %s", name, base.Kind))
	}
	if base.Kind != KindObject {
		if strict {
			return ThrowCompletion(vm.newTypeError("cannot create property %q on a primitive value", name))
		}
		return NormalEmpty()
	}
	obj := vm.heap.Get(base.Obj).(*Object)
	return vm.Put(obj, name, v, strict)
}

func stringIndex(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (vm *VM) execPropGet(frame *Frame, pos int) (int, Completion) {
	code := frame.prog.Code
	dest, base := code[pos+1], code[pos+2]
	idx, ok := frame.prog.ResolveLiteralID(0, pos)
	if !ok {
		return pos, ThrowCompletion(vm.newTypeError("malformed bytecode: missing property name"))
	}
	name := frame.prog.GetLiteral(idx).Str
	c := vm.propGet(frame.reg(base), name)
	if c.IsAbrupt() {
		return pos, c
	}
	frame.setReg(vm.strings, dest, c.Value)
	return pos + bytecode.OpPropGet.Size(), NormalEmpty()
}

func (vm *VM) execPropSet(frame *Frame, pos int) (int, Completion) {
	code := frame.prog.Code
	base, value := code[pos+1], code[pos+3]
	idx, ok := frame.prog.ResolveLiteralID(0, pos)
	if !ok {
		return pos, ThrowCompletion(vm.newTypeError("malformed bytecode: missing property name"))
	}
	name := frame.prog.GetLiteral(idx).Str
	c := vm.propSet(frame.reg(base), name, frame.reg(value), frame.strict)
	if c.IsAbrupt() {
		return pos, c
	}
	return pos + bytecode.OpPropSet.Size(), NormalEmpty()
}

func (vm *VM) execDeleteVar(frame *Frame, pos int) (int, Completion) {
	code := frame.prog.Code
	dest := code[pos+1]
	idx, ok := frame.prog.ResolveLiteralID(0, pos)
	if !ok {
		return pos, ThrowCompletion(vm.newTypeError("malformed bytecode: missing identifier literal"))
	}
	name := frame.prog.GetLiteral(idx).Str
	env := vm.ResolveIdentifier(vm.envObject(frame.env), name)
	if env == nil {
		frame.setReg(vm.strings, dest, True())
		return pos + bytecode.OpDeleteVar.Size(), NormalEmpty()
	}
	c := vm.DeleteBinding(env, name)
	if c.IsAbrupt() {
		return pos, c
	}
	frame.setReg(vm.strings, dest, c.Value)
	return pos + bytecode.OpDeleteVar.Size(), NormalEmpty()
}

func (vm *VM) execDeleteProp(frame *Frame, pos int) (int, Completion) {
	code := frame.prog.Code
	dest, base := code[pos+1], code[pos+2]
	idx, ok := frame.prog.ResolveLiteralID(0, pos)
	if !ok {
		return pos, ThrowCompletion(vm.newTypeError("malformed bytecode: missing property name"))
	}
	name := frame.prog.GetLiteral(idx).Str
	baseVal := frame.reg(base)
	if baseVal.Kind != KindObject {
		frame.setReg(vm.strings, dest, True())
		return pos + bytecode.OpDeleteProp.Size(), NormalEmpty()
	}
	obj := vm.heap.Get(baseVal.Obj).(*Object)
	c := vm.DeleteProp(obj, name, frame.strict)
	if c.IsAbrupt() {
		return pos, c
	}
	frame.setReg(vm.strings, dest, c.Value)
	return pos + bytecode.OpDeleteProp.Size(), NormalEmpty()
}

// execVarDecl hoists a var binding into the frame's current
// environment at the point the instruction is reached; it leaves an
// existing binding (and its value) alone, matching ECMA 10.5's
// "create only if absent" rule for variable declarations.
func (vm *VM) execVarDecl(frame *Frame, pos int) (int, Completion) {
	idx, ok := frame.prog.ResolveLiteralID(0, pos)
	if !ok {
		return pos, ThrowCompletion(vm.newTypeError("malformed bytecode: missing identifier literal"))
	}
	name := frame.prog.GetLiteral(idx).Str
	envObj := vm.envObject(frame.env)
	if !vm.HasBinding(envObj, name) {
		vm.CreateMutableBinding(envObj, name, false)
	}
	return pos + bytecode.OpVarDecl.Size(), NormalEmpty()
}

func (vm *VM) execWith(frame *Frame, pos int) (int, Completion) {
	code := frame.prog.Code
	src := code[pos+1]
	objC := vm.ToObject(frame.reg(src))
	if objC.IsAbrupt() {
		return pos, objC
	}
	frame.env = vm.NewObjectEnv(objC.Value.Obj, frame.env, true)
	frame.envDepth++
	return pos + bytecode.OpWith.Size(), NormalEmpty()
}

// execClosure implements spec.md §4.5's closure-creation contract,
// including the named-function-expression self-binding: a function
// expression with a name gets an extra declarative environment between
// its own [[Scope]] and the enclosing one, holding exactly one
// immutable binding of its own name to itself.
func (vm *VM) execClosure(frame *Frame, pos int) (int, Completion) {
	code := frame.prog.Code
	dest := code[pos+1]
	idx, ok := frame.prog.ResolveLiteralID(0, pos)
	if !ok {
		return pos, ThrowCompletion(vm.newTypeError("malformed bytecode: missing function template"))
	}
	tmpl := frame.prog.GetLiteral(idx).Func

	scope := frame.env
	if tmpl.IsExpr && tmpl.Name != "" {
		scope = vm.NewDeclarativeEnv(frame.env)
	}

	fn := NewObject(vm.functionPrototype)
	fn.Tag = TagFunction
	fn.setInternal(&Property{ISlot: SlotCodeEntry, IInt: tmpl.Start})
	fn.setInternal(&Property{ISlot: SlotFormalParameters, IStrs: tmpl.Params})
	fn.setInternal(&Property{ISlot: SlotScope, IHandle: scope})
	fn.setInternal(&Property{ISlot: SlotStrict, IBool: tmpl.Strict || frame.strict})
	fn.insertOrReplace(&Property{
		Kind: PropData, Name: "length", Value: NumberValue(float64(len(tmpl.Params))),
		Writable: false, Enumerable: false, Configurable: false,
	})
	fn.insertOrReplace(&Property{
		Kind: PropData, Name: "name", Value: vm.internString(tmpl.Name).Retain(vm.strings),
		Writable: false, Enumerable: false, Configurable: false,
	})
	proto := NewObject(vm.objectPrototype)
	protoH := vm.alloc(proto)
	vm.heap.AddRoot(protoH)
	defer vm.heap.RemoveRoot(protoH)
	fn.insertOrReplace(&Property{
		Kind: PropData, Name: "prototype", Value: ObjectValue(protoH),
		Writable: true, Enumerable: false, Configurable: false,
	})
	h := vm.alloc(fn)
	proto.insertOrReplace(&Property{
		Kind: PropData, Name: "constructor", Value: ObjectValue(h),
		Writable: true, Enumerable: false, Configurable: true,
	})

	if tmpl.IsExpr && tmpl.Name != "" {
		scopeObj := vm.envObject(scope)
		scopeObj.insertOrReplace(&Property{
			Kind: PropData, Name: tmpl.Name, Value: ObjectValue(h),
			Writable: false, Enumerable: false, Configurable: false,
		})
	}

	frame.setReg(vm.strings, dest, ObjectValue(h))
	return pos + bytecode.OpClosure.Size(), NormalEmpty()
}

// execCallN implements OpCallN's [[Call]] contract: the this-value
// comes from an OpMeta(MetaThisArg) immediately following this
// instruction (absent for an ordinary function call, where this stays
// undefined and callBytecodeFunction substitutes the global object in
// non-strict code), and the arguments follow as argCount
// OpMeta(MetaVarg) instructions after that.
func (vm *VM) execCallN(ctx context.Context, frame *Frame, pos int) (int, Completion) {
	code := frame.prog.Code
	dest, calleeReg, argCount := code[pos+1], code[pos+2], code[pos+3]

	next := pos + bytecode.OpCallN.Size()
	thisVal := Undefined()
	if next+bytecode.OpMeta.Size() <= len(code) &&
		bytecode.Op(code[next]) == bytecode.OpMeta &&
		bytecode.MetaKind(code[next+1]) == bytecode.MetaThisArg {
		thisVal = frame.reg(code[next+2])
		next += bytecode.OpMeta.Size()
	}

	args := make([]Value, 0, argCount)
	for i := byte(0); i < argCount; i++ {
		args = append(args, frame.reg(code[next+2]))
		next += bytecode.OpMeta.Size()
	}

	calleeVal := frame.reg(calleeReg)
	if calleeVal.Kind != KindObject {
		return pos, ThrowCompletion(vm.newTypeError("value is not a function"))
	}
	calleeObj, ok := vm.heap.Get(calleeVal.Obj).(*Object)
	if !ok || !calleeObj.IsCallable() {
		return pos, ThrowCompletion(vm.newTypeError("value is not a function"))
	}

	res := vm.CallCtx(ctx, calleeVal.Obj, thisVal, args)
	if res.IsAbrupt() {
		return pos, res
	}
	frame.setReg(vm.strings, dest, res.Value)
	return next, NormalEmpty()
}

func (vm *VM) execConstructN(frame *Frame, pos int) (int, Completion) {
	code := frame.prog.Code
	dest, ctorReg, argCount := code[pos+1], code[pos+2], code[pos+3]

	next := pos + bytecode.OpConstructN.Size()
	args := make([]Value, 0, argCount)
	for i := byte(0); i < argCount; i++ {
		args = append(args, frame.reg(code[next+2]))
		next += bytecode.OpMeta.Size()
	}

	ctorVal := frame.reg(ctorReg)
	if ctorVal.Kind != KindObject {
		return pos, ThrowCompletion(vm.newTypeError("value is not a constructor"))
	}
	res := vm.Construct(ctorVal.Obj, args)
	if res.IsAbrupt() {
		return pos, res
	}
	frame.setReg(vm.strings, dest, res.Value)
	return next, NormalEmpty()
}

// execArrayDecl builds an array from count consecutive registers,
// treating a Hole-valued register as an elided element (present in
// length, absent as an own property) per spec.md §3's array-hole rule.
func (vm *VM) execArrayDecl(frame *Frame, pos int) (int, Completion) {
	code := frame.prog.Code
	dest, start, count := code[pos+1], code[pos+2], code[pos+3]

	arr := NewObject(vm.arrayPrototype)
	arr.Tag = TagArray
	for i := byte(0); i < count; i++ {
		v := frame.reg(start + i)
		if v.IsHole() {
			continue
		}
		arr.insertOrReplace(&Property{
			Kind: PropData, Name: strconv.Itoa(int(i)), Value: v.Retain(vm.strings),
			Writable: true, Enumerable: true, Configurable: true,
		})
	}
	arr.insertOrReplace(&Property{
		Kind: PropData, Name: "length", Value: NumberValue(float64(count)),
		Writable: true, Enumerable: false, Configurable: false,
	})
	h := vm.alloc(arr)
	frame.setReg(vm.strings, dest, ObjectValue(h))
	return pos + bytecode.OpArrayDecl.Size(), NormalEmpty()
}

// execObjDecl builds an object literal from propCount trailing meta
// entries; each entry's value (or accessor function) has already been
// evaluated into a register by the instructions preceding this one,
// per spec.md §3's obj_decl contract. Duplicate keys apply in order,
// the last one winning, and a data/accessor pair sharing a name merges
// into one accessor property exactly as [[DefineOwnProperty]] already
// does for any other redefinition.
func (vm *VM) execObjDecl(frame *Frame, pos int) (int, Completion) {
	code := frame.prog.Code
	dest, propCount := code[pos+1], code[pos+2]

	obj := NewObject(vm.objectPrototype)
	h := vm.alloc(obj)

	metaPos := pos + bytecode.OpObjDecl.Size()
	for i := byte(0); i < propCount; i++ {
		kind := bytecode.MetaKind(code[metaPos+1])
		valueReg := code[metaPos+3]
		idx, ok := frame.prog.ResolveLiteralID(0, metaPos)
		if !ok {
			return pos, ThrowCompletion(vm.newTypeError("malformed bytecode: missing property name"))
		}
		name := frame.prog.GetLiteral(idx).Str
		v := frame.reg(valueReg)

		var desc PropertyDescriptor
		switch kind {
		case bytecode.MetaPropData:
			desc = PropertyDescriptor{
				HasValue: true, Value: v,
				HasWritable: true, Writable: true,
				HasEnumerable: true, Enumerable: true,
				HasConfigurable: true, Configurable: true,
			}
		case bytecode.MetaPropGetter:
			desc = PropertyDescriptor{
				HasGet: true, Get: v.Obj,
				HasEnumerable: true, Enumerable: true,
				HasConfigurable: true, Configurable: true,
			}
		case bytecode.MetaPropSetter:
			desc = PropertyDescriptor{
				HasSet: true, Set: v.Obj,
				HasEnumerable: true, Enumerable: true,
				HasConfigurable: true, Configurable: true,
			}
		default:
			return pos, ThrowCompletion(vm.newTypeError("malformed bytecode: unexpected obj_decl entry"))
		}
		if existing, ok := vm.GetOwnProperty(obj, name); ok && existing.isAccessor() && desc.isAccessor() {
			desc.HasEnumerable, desc.HasConfigurable = false, false
		}
		c := vm.DefineOwnProperty(obj, name, desc, false)
		if c.IsAbrupt() {
			return pos, c
		}
		metaPos += bytecode.OpMeta.Size()
	}

	frame.setReg(vm.strings, dest, ObjectValue(h))
	return metaPos, NormalEmpty()
}
