package vm

import (
	"context"
	"testing"

	"emberjs/pkg/bytecode"
	"emberjs/pkg/config"

	"github.com/stretchr/testify/require"
)

func newTestVM(t *testing.T) *VM {
	t.Helper()
	machine, err := New(config.Default(), HostHooks{}, nil)
	require.NoError(t, err)
	return machine
}

// runFrame builds a top-level frame over prog starting at entry (the
// position of prog's reg_var_decl) and drives it to completion, the way
// Run does internally but exposing the raw Completion for assertions
// tests need that Run's exit-status/error boiling-down would otherwise
// hide.
func runFrame(vm *VM, prog *bytecode.Program, entry int, minReg, maxReg byte) Completion {
	vm.prog = prog
	frame := newFrame(prog, int(minReg), int(maxReg), ObjectValue(vm.globalH), vm.globalEnv, false)
	frame.pc = entry + bytecode.OpRegVarDecl.Size()
	return vm.executeFrame(context.Background(), frame)
}

func TestArithmeticReturnsSum(t *testing.T) {
	vm := newTestVM(t)
	a := bytecode.NewAssembler()
	a.RegVarDecl(0, 3)
	a.AssignSmallInt(0, 3)
	a.AssignSmallInt(1, 4)
	a.Add(2, 0, 1)
	a.RetVal(2)

	c := runFrame(vm, a.Program(), 0, 0, 3)
	require.Equal(t, CompletionReturn, c.Kind)
	require.Equal(t, KindNumber, c.Value.Kind)
	require.Equal(t, float64(7), c.Value.Num)
}

func TestAddConcatenatesWhenEitherOperandIsAString(t *testing.T) {
	vm := newTestVM(t)
	a := bytecode.NewAssembler()
	a.RegVarDecl(0, 3)
	a.AssignString(0, "foo")
	a.AssignString(1, "bar")
	a.Add(2, 0, 1)
	a.RetVal(2)

	c := runFrame(vm, a.Program(), 0, 0, 3)
	require.Equal(t, CompletionReturn, c.Kind)
	require.Equal(t, KindString, c.Value.Kind)
	require.Equal(t, "foobar", c.Value.Str.Text())
}

func TestRelationalOperatorArgumentOrder(t *testing.T) {
	vm := newTestVM(t)
	a := bytecode.NewAssembler()
	a.RegVarDecl(0, 3)
	a.AssignSmallInt(0, 1)
	a.AssignSmallInt(1, 2)
	a.Less(2, 0, 1)
	a.RetVal(2)

	c := runFrame(vm, a.Program(), 0, 0, 3)
	require.Equal(t, CompletionReturn, c.Kind)
	require.True(t, c.Value.Bool())
}

func TestPropertyGetReadsBackAnObjectLiteralValue(t *testing.T) {
	vm := newTestVM(t)
	a := bytecode.NewAssembler()
	a.RegVarDecl(0, 3)
	a.AssignSmallInt(0, 42)
	a.ObjDecl(1, 1)
	a.PropData("x", 0)
	a.PropGet(2, 1, "x")
	a.RetVal(2)

	c := runFrame(vm, a.Program(), 0, 0, 3)
	require.Equal(t, CompletionReturn, c.Kind)
	require.Equal(t, float64(42), c.Value.Num)
}

// TestPropSetThrowingSetterPropagatesThrow builds an object literal with
// an accessor property whose setter always throws, then checks that
// writing to that property surfaces the setter's throw completion
// instead of silently succeeding.
func TestPropSetThrowingSetterPropagatesThrow(t *testing.T) {
	vm := newTestVM(t)
	a := bytecode.NewAssembler()

	setterStart := a.Pos()
	a.RegVarDecl(0, 1)
	a.AssignString(0, "setter exploded")
	a.Throw(0)

	outerStart := a.Pos()
	a.RegVarDecl(0, 3)
	tmpl := &bytecode.FunctionTemplate{Name: "", Start: setterStart, Params: []string{"v"}}
	a.Closure(0, tmpl)
	a.ObjDecl(1, 1)
	a.PropSetter("x", 0)
	a.AssignSmallInt(2, 1)
	a.PropSet(1, "x", 2)
	a.RetVal(2)

	c := runFrame(vm, a.Program(), outerStart, 0, 3)
	require.Equal(t, CompletionThrow, c.Kind)
	require.Equal(t, "setter exploded", c.Value.Str.Text())
}

// TestPropSetGetterOnlyPropertyIsSilentlyIgnored checks spec.md §8's
// getter-only-property write scenario: assigning to a property that has
// only a getter (no setter) is a no-op in non-strict code rather than an
// error, and a later read still observes the getter's original value.
func TestPropSetGetterOnlyPropertyIsSilentlyIgnored(t *testing.T) {
	vm := newTestVM(t)
	a := bytecode.NewAssembler()

	getterStart := a.Pos()
	a.RegVarDecl(0, 1)
	a.AssignSmallInt(0, 42)
	a.RetVal(0)

	outerStart := a.Pos()
	a.RegVarDecl(0, 4)
	tmpl := &bytecode.FunctionTemplate{Name: "", Start: getterStart}
	a.Closure(0, tmpl)
	a.ObjDecl(1, 1)
	a.PropGetter("x", 0)
	a.AssignSmallInt(2, 99)
	a.PropSet(1, "x", 2)
	a.PropGet(3, 1, "x")
	a.RetVal(3)

	c := runFrame(vm, a.Program(), outerStart, 0, 4)
	require.Equal(t, CompletionReturn, c.Kind)
	require.Equal(t, float64(42), c.Value.Num)
}

func TestArrayDeclCountsHolesInLength(t *testing.T) {
	vm := newTestVM(t)
	a := bytecode.NewAssembler()
	a.RegVarDecl(0, 4)
	a.AssignSmallInt(0, 1)
	a.AssignSimple(1, bytecode.SimpleHole)
	a.AssignSmallInt(2, 3)
	a.ArrayDecl(3, 0, 3)
	a.PropGet(0, 3, "length")
	a.RetVal(0)

	c := runFrame(vm, a.Program(), 0, 0, 4)
	require.Equal(t, CompletionReturn, c.Kind)
	require.Equal(t, float64(3), c.Value.Num)
}

// TestClosureCallInvokesNestedFrame builds a nested function body ahead
// of the calling frame in the flat instruction stream (its position is
// only reachable via OpCallN's frame push, never by falling through the
// outer frame's own pc), then closes over and calls it.
func TestClosureCallInvokesNestedFrame(t *testing.T) {
	vm := newTestVM(t)
	a := bytecode.NewAssembler()

	funcStart := a.Pos()
	a.RegVarDecl(0, 1)
	a.AssignSmallInt(0, 99)
	a.RetVal(0)

	outerStart := a.Pos()
	a.RegVarDecl(0, 3)
	tmpl := &bytecode.FunctionTemplate{Name: "f", Start: funcStart}
	a.Closure(1, tmpl)
	a.CallN(2, 1, 0)
	a.RetVal(2)

	c := runFrame(vm, a.Program(), outerStart, 0, 3)
	require.Equal(t, CompletionReturn, c.Kind)
	require.Equal(t, float64(99), c.Value.Num)
}

// TestTryCatchBindsThrownValue mirrors the assembly emission order the
// bytecode package's own exception-handler-lookup test uses.
func TestTryCatchBindsThrownValue(t *testing.T) {
	vm := newTestVM(t)
	a := bytecode.NewAssembler()
	a.RegVarDecl(0, 2)
	a.AssignSmallInt(0, 7)
	tryStart := a.Pos()
	a.Throw(0)
	tryEnd := a.Pos()
	catchPC := a.Pos()
	a.CatchIdent("e")
	a.AssignVar(1, "e")
	a.RetVal(1)
	catchEnd := a.Pos()

	a.AddExceptionHandler(bytecode.ExceptionHandler{
		TryStart: tryStart, TryEnd: tryEnd,
		CatchPC: catchPC, CatchEnd: catchEnd,
		FinallyPC: -1, EndPC: catchEnd,
	})

	c := runFrame(vm, a.Program(), 0, 0, 2)
	require.Equal(t, CompletionReturn, c.Kind)
	require.Equal(t, float64(7), c.Value.Num)
}

// TestFinallyRunsBeforeAnAbruptReturnPropagates checks that a return
// inside a protected try body is diverted through its finally clause
// (observed via a side effect the finally performs) before the original
// return value keeps propagating outward.
func TestFinallyRunsBeforeAnAbruptReturnPropagates(t *testing.T) {
	vm := newTestVM(t)
	a := bytecode.NewAssembler()
	a.RegVarDecl(0, 2)
	a.AssignSmallInt(0, 5)
	tryStart := a.Pos()
	a.RetVal(0)
	tryEnd := a.Pos()
	finallyPC := a.Pos()
	a.AssignSmallInt(1, 1)
	a.FinallyEnd()
	endPC := a.Pos()

	a.AddExceptionHandler(bytecode.ExceptionHandler{
		TryStart: tryStart, TryEnd: tryEnd,
		CatchPC: -1, CatchEnd: -1,
		FinallyPC: finallyPC, EndPC: endPC,
	})

	prog := a.Program()
	frame := newFrame(prog, 0, 2, ObjectValue(vm.globalH), vm.globalEnv, false)
	frame.pc = bytecode.OpRegVarDecl.Size()
	c := vm.executeFrame(context.Background(), frame)

	require.Equal(t, CompletionReturn, c.Kind)
	require.Equal(t, float64(5), c.Value.Num)
	require.Equal(t, float64(1), frame.regs[1].Num, "finally block should have run before the return propagated")
}

func TestUncaughtThrowPropagatesAsThrowCompletion(t *testing.T) {
	vm := newTestVM(t)
	a := bytecode.NewAssembler()
	a.RegVarDecl(0, 1)
	a.AssignString(0, "boom")
	a.Throw(0)

	c := runFrame(vm, a.Program(), 0, 0, 1)
	require.Equal(t, CompletionThrow, c.Kind)
	require.Equal(t, "boom", c.Value.Str.Text())
}

// TestAssignSetVarReassignsAnExistingBinding checks that writing through
// AssignSetVar is visible to a later AssignVar read of the same name,
// i.e. that plain variable reassignment (x = 1; x = 2;) actually mutates
// the declared binding rather than only ever reading it.
func TestAssignSetVarReassignsAnExistingBinding(t *testing.T) {
	vm := newTestVM(t)
	a := bytecode.NewAssembler()
	a.RegVarDecl(0, 2)
	a.VarDecl("x")
	a.AssignSmallInt(0, 1)
	a.SetVar(0, "x")
	a.AssignSmallInt(0, 2)
	a.SetVar(0, "x")
	a.AssignVar(1, "x")
	a.RetVal(1)

	c := runFrame(vm, a.Program(), 0, 0, 2)
	require.Equal(t, CompletionReturn, c.Kind)
	require.Equal(t, KindNumber, c.Value.Kind)
	require.Equal(t, float64(2), c.Value.Num)
}

func TestTypeofObjectLiteralIsObject(t *testing.T) {
	vm := newTestVM(t)
	a := bytecode.NewAssembler()
	a.RegVarDecl(0, 2)
	a.ObjDecl(0, 0)
	a.Typeof(1, 0)
	a.RetVal(1)

	c := runFrame(vm, a.Program(), 0, 0, 2)
	require.Equal(t, CompletionReturn, c.Kind)
	require.Equal(t, "object", c.Value.Str.Text())
}
