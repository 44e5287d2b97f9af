package vm

import (
	"emberjs/pkg/bytecode"
	"emberjs/pkg/heap"
	"emberjs/pkg/strtab"
)

// pendingFinally records an abrupt completion a finally block must let
// run to completion before it is re-raised (or replaced by whatever
// completion the finally block itself produces), and the bytecode
// position the handler search should resume from if the finally
// completes normally and the completion must keep propagating outward.
type pendingFinally struct {
	completion Completion
	at         int
}

// Frame is one activation record: the register file spec.md §3
// describes, the current lexical environment, and the bookkeeping the
// try/catch/finally handler search needs across a run of the dispatch
// loop. Frames never point at each other directly; the call stack is
// the Go call stack of vm.Call/vm.executeFrame, matching the teacher's
// own recursive CallFrame design (pkg/vm/vm.go) rather than a hand
// rolled frame array.
type Frame struct {
	prog *bytecode.Program

	regs []Value
	pc   int

	this   Value
	env    heap.Handle
	strict bool

	// envDepth counts every lexical environment pushed onto the frame's
	// env chain since frame entry — with-statement environments and
	// active catch clauses alike — matching ExceptionHandler.EnvDepth's
	// static bookkeeping so a handler search can unwind exactly the
	// right number of levels by walking Outer pointers.
	envDepth int

	// scopeStack records catch environments awaiting their implicit
	// pop: there is no dedicated "end of catch" opcode the way with
	// statements get MetaEndWith, so the dispatch loop pops one off
	// whenever frame.pc reaches its endPC through ordinary fallthrough
	// (as opposed to through another abrupt completion, which unwinds
	// it via envDepth instead).
	scopeStack []envScope

	finallyWait      *pendingFinally
	exhaustedFinally map[int]bool
}

type envScope struct {
	savedEnv heap.Handle
	depth    int
	endPC    int
}

// newFrame allocates a frame whose register file holds maxReg slots
// (registers 0..maxReg-1), all initialized to undefined. minReg is
// accepted but not used to size or offset the register file.
func newFrame(prog *bytecode.Program, minReg, maxReg int, this Value, env heap.Handle, strict bool) *Frame {
	f := &Frame{
		prog: prog,
		regs: make([]Value, maxReg),
		pc:   0,
		this: this,
		env:  env,
		strict: strict,
	}
	for i := range f.regs {
		f.regs[i] = Undefined()
	}
	_ = minReg
	return f
}

func (f *Frame) reg(i byte) Value {
	if int(i) >= len(f.regs) {
		return Undefined()
	}
	return f.regs[i]
}

// setReg overwrites register i, retaining v's string (if any) and
// releasing the register's previous occupant, per spec.md §3's
// register-file ownership rule.
func (f *Frame) setReg(strings *strtab.Table, i byte, v Value) {
	if int(i) >= len(f.regs) {
		return
	}
	f.regs[i].Release(strings)
	f.regs[i] = v.Retain(strings)
}
