package vm

import (
	"context"
	"strconv"

	"emberjs/pkg/bytecode"
	"emberjs/pkg/heap"
	"emberjs/pkg/vmerrors"
)

// Call implements spec.md §4.4's [[Call]] for both native and bytecode
// function objects. A native function's Go closure runs directly; a
// bytecode function gets a fresh Frame whose lexical environment is a
// declarative environment chained to the closure's captured [[Scope]],
// with formal parameters bound positionally and an arguments object
// installed per spec.md §5.
func (vm *VM) Call(fnHandle heap.Handle, this Value, args []Value) Completion {
	obj, ok := vm.heap.Get(fnHandle).(*Object)
	if !ok || !obj.IsCallable() {
		return ThrowCompletion(vm.newTypeError("value is not a function"))
	}
	if native := obj.getInternal(SlotNativeFunc); native != nil {
		return native.INative(vm, this, args)
	}
	return vm.callBytecodeFunction(context.Background(), obj, this, args)
}

// CallCtx is Call with a context for cooperative cancellation,
// threaded through by bytecode call sites so a long-running callback
// still honors the host's cancellation hook.
func (vm *VM) CallCtx(ctx context.Context, fnHandle heap.Handle, this Value, args []Value) Completion {
	obj, ok := vm.heap.Get(fnHandle).(*Object)
	if !ok || !obj.IsCallable() {
		return ThrowCompletion(vm.newTypeError("value is not a function"))
	}
	if native := obj.getInternal(SlotNativeFunc); native != nil {
		return native.INative(vm, this, args)
	}
	return vm.callBytecodeFunction(ctx, obj, this, args)
}

func (vm *VM) callBytecodeFunction(ctx context.Context, obj *Object, this Value, args []Value) Completion {
	if vm.callDepth >= vm.cfg.MaxCallDepth {
		vm.fatalErr = vmerrors.NewResourceError(vmerrors.Position{}, "call depth exceeds max_call_depth")
		return ThrowCompletion(vm.newStandardError(vmerrors.KindRange, "call stack size exceeded"))
	}
	vm.callDepth++
	defer func() { vm.callDepth-- }()

	entry := obj.getInternal(SlotCodeEntry)
	scope := obj.getInternal(SlotScope)
	params := obj.getInternal(SlotFormalParameters)
	strictSlot := obj.getInternal(SlotStrict)
	if entry == nil {
		return ThrowCompletion(vm.newTypeError("value is not a function"))
	}

	op, err := vm.prog.OpAt(entry.IInt)
	if err != nil || op != bytecode.OpRegVarDecl {
		return ThrowCompletion(vm.newTypeError("malformed function entry"))
	}
	minReg := int(vm.prog.Code[entry.IInt+1])
	maxReg := int(vm.prog.Code[entry.IInt+2])
	if maxReg > vm.cfg.MaxRegisters {
		vm.fatalErr = vmerrors.NewResourceError(vmerrors.Position{}, "function register window exceeds max_registers")
		return ThrowCompletion(vm.newTypeError("resource limit exceeded"))
	}

	strict := strictSlot != nil && strictSlot.IBool
	actualThis := this
	if !strict {
		if this.IsNullOrUndefined() {
			actualThis = ObjectValue(vm.globalH)
		} else if this.Kind != KindObject {
			c := vm.ToObject(this)
			if !c.IsAbrupt() {
				actualThis = c.Value
			}
		}
	}

	var outerEnv heap.Handle
	if scope != nil {
		outerEnv = scope.IHandle
	} else {
		outerEnv = vm.globalEnv
	}
	callEnv := vm.NewDeclarativeEnv(outerEnv)
	callEnvObj := vm.envObject(callEnv)
	vm.heap.AddRoot(callEnv)
	defer vm.heap.RemoveRoot(callEnv)

	var paramNames []string
	if params != nil {
		paramNames = params.IStrs
	}
	for i, name := range paramNames {
		v := Undefined()
		if i < len(args) {
			v = args[i]
		}
		callEnvObj.insertOrReplace(&Property{
			Kind: PropData, Name: name, Value: v.Retain(vm.strings),
			Writable: true, Enumerable: true, Configurable: false,
		})
	}
	vm.installArguments(callEnvObj, args, paramNames)

	frame := newFrame(vm.prog, minReg, maxReg, actualThis, callEnv, strict)
	frame.pc = entry.IInt + 3
	if vm.peekStrictMarker(frame) {
		frame.strict = true
		frame.pc += 4
	}

	c := vm.executeFrame(ctx, frame)
	switch c.Kind {
	case CompletionReturn:
		return Normal(c.Value)
	case CompletionThrow, CompletionExit:
		return c
	default:
		return Normal(Undefined())
	}
}

// installArguments builds the arguments object spec.md §5 requires
// every bytecode function frame to have bound as "arguments" in its
// call environment: an Array-like object with indexed own properties
// for each actual argument and a length.
func (vm *VM) installArguments(env *Object, args []Value, paramNames []string) {
	argsObj := NewObject(vm.objectPrototype)
	argsObj.Tag = TagArguments
	for i, v := range args {
		argsObj.insertOrReplace(&Property{
			Kind: PropData, Name: strconv.Itoa(i), Value: v.Retain(vm.strings),
			Writable: true, Enumerable: true, Configurable: true,
		})
	}
	argsObj.insertOrReplace(&Property{
		Kind: PropData, Name: "length", Value: NumberValue(float64(len(args))),
		Writable: true, Enumerable: false, Configurable: true,
	})
	h := vm.alloc(argsObj)
	env.insertOrReplace(&Property{
		Kind: PropData, Name: "arguments", Value: ObjectValue(h),
		Writable: true, Enumerable: false, Configurable: false,
	})
}

// Construct implements spec.md §4.4's [[Construct]]: allocate a fresh
// object whose prototype is the function's own "prototype" property
// (falling back to Object.prototype if that property is absent or not
// an object), call the function with that object as this, and return
// the call's result if it is itself an object, or the freshly
// allocated object otherwise.
func (vm *VM) Construct(fnHandle heap.Handle, args []Value) Completion {
	obj, ok := vm.heap.Get(fnHandle).(*Object)
	if !ok || !obj.IsConstructor() {
		return ThrowCompletion(vm.newTypeError("value is not a constructor"))
	}
	proto := vm.objectPrototype
	if d, ok := vm.GetProperty(obj, "prototype"); ok && d.isData() && d.Value.Kind == KindObject {
		proto = d.Value.Obj
	}
	newObj := NewObject(proto)
	h := vm.alloc(newObj)
	vm.heap.AddRoot(h)
	defer vm.heap.RemoveRoot(h)

	res := vm.Call(fnHandle, ObjectValue(h), args)
	if res.IsAbrupt() {
		return res
	}
	if res.Value.Kind == KindObject {
		return res
	}
	return Normal(ObjectValue(h))
}
