package vm

import "emberjs/pkg/vmerrors"

// bootstrap builds the minimal prototype chain and global object this
// core ships: Object.prototype, Function.prototype, Array.prototype,
// String/Number/Boolean.prototype, one Error.prototype per standard
// kind, and a handful of native globals (exit, the Error constructors,
// Object.defineProperty/getOwnPropertyDescriptor). A hosted program
// that needs more of the built-in library links it in as native
// functions registered on vm.global the same way; spec.md §12 scopes
// the built-in library itself out of this repository.
func (vm *VM) bootstrap() {
	vm.objectPrototype = vm.alloc(NewObject(0))

	fnProto := NewObject(vm.objectPrototype)
	fnProto.Tag = TagFunction
	vm.functionPrototype = vm.alloc(fnProto)

	vm.arrayPrototype = vm.alloc(NewObject(vm.objectPrototype))
	vm.stringPrototype = vm.alloc(NewObject(vm.objectPrototype))
	vm.numberPrototype = vm.alloc(NewObject(vm.objectPrototype))
	vm.booleanPrototype = vm.alloc(NewObject(vm.objectPrototype))

	for _, kind := range []vmerrors.StandardKind{
		vmerrors.KindType, vmerrors.KindReference, vmerrors.KindRange,
		vmerrors.KindSyntax, vmerrors.KindURI, vmerrors.KindEval,
	} {
		proto := NewObject(vm.objectPrototype)
		proto.insertOrReplace(&Property{
			Kind: PropData, Name: "name", Value: vm.internString(string(kind)).Retain(vm.strings),
			Writable: true, Enumerable: false, Configurable: true,
		})
		vm.errorPrototypes[kind] = vm.alloc(proto)
	}

	vm.global = NewObject(vm.objectPrototype)
	vm.global.Tag = TagGlobal
	vm.globalH = vm.alloc(vm.global)
	vm.heap.AddRoot(vm.globalH)
	vm.globalEnv = vm.NewObjectEnv(vm.globalH, 0, true)
	vm.heap.AddRoot(vm.globalEnv)

	vm.defineNative("exit", 1, vm.nativeExit)
	vm.installErrorConstructors()
	vm.installObjectStatics()
}

func (vm *VM) newNativeFunction(name string, length int, fn NativeFunc) *Object {
	obj := NewObject(vm.functionPrototype)
	obj.Tag = TagNativeFunction
	obj.setInternal(&Property{ISlot: SlotNativeFunc, INative: fn})
	obj.insertOrReplace(&Property{Kind: PropData, Name: "length", Value: NumberValue(float64(length)), Writable: false, Enumerable: false, Configurable: false})
	obj.insertOrReplace(&Property{Kind: PropData, Name: "name", Value: vm.internString(name).Retain(vm.strings), Writable: false, Enumerable: false, Configurable: false})
	return obj
}

func (vm *VM) defineNative(name string, length int, fn NativeFunc) {
	obj := vm.newNativeFunction(name, length, fn)
	h := vm.alloc(obj)
	vm.global.insertOrReplace(&Property{
		Kind: PropData, Name: name, Value: ObjectValue(h),
		Writable: true, Enumerable: false, Configurable: true,
	})
}

// nativeExit implements the global exit(status) function spec.md §6
// names as the program's one mandatory host-visible primitive: it
// turns an ordinary call into an Exit completion, short-circuiting
// every enclosing frame's dispatch loop and Run itself.
func (vm *VM) nativeExit(_ *VM, _ Value, args []Value) Completion {
	status := true
	if len(args) > 0 {
		status = args[0].ToBoolean()
	}
	return ExitCompletion(status)
}

// installErrorConstructors adds TypeError/ReferenceError/.../EvalError
// as callable globals, each producing a fresh error object wired to
// its prototype, mirroring how the core's own vmerrors.StandardError
// values are surfaced to script code when thrown internally.
func (vm *VM) installErrorConstructors() {
	for _, kind := range []vmerrors.StandardKind{
		vmerrors.KindType, vmerrors.KindReference, vmerrors.KindRange,
		vmerrors.KindSyntax, vmerrors.KindURI, vmerrors.KindEval,
	} {
		kind := kind
		ctor := vm.newNativeFunction(string(kind), 1, func(vm *VM, this Value, args []Value) Completion {
			msg := ""
			if len(args) > 0 && !args[0].IsUndefined() {
				s := vm.ToString(args[0])
				if s.IsAbrupt() {
					return s
				}
				msg = s.Value.Str.Text()
			}
			return Normal(vm.newStandardError(kind, "%s", msg))
		})
		ctor.insertOrReplace(&Property{
			Kind: PropData, Name: "prototype", Value: ObjectValue(vm.errorPrototypes[kind]),
			Writable: false, Enumerable: false, Configurable: false,
		})
		h := vm.alloc(ctor)
		vm.global.insertOrReplace(&Property{
			Kind: PropData, Name: string(kind), Value: ObjectValue(h),
			Writable: true, Enumerable: false, Configurable: true,
		})
	}
}

// installObjectStatics wires Object.defineProperty and
// Object.getOwnPropertyDescriptor directly to [[DefineOwnProperty]] and
// the ToPropertyDescriptor/FromPropertyDescriptor pair, the minimal
// slice of the Object constructor spec.md's embedding story needs to
// exercise the property-descriptor machinery from script code.
func (vm *VM) installObjectStatics() {
	objectCtor := vm.newNativeFunction("Object", 1, func(vm *VM, this Value, args []Value) Completion {
		if len(args) == 0 || args[0].IsNullOrUndefined() {
			h := vm.alloc(NewObject(vm.objectPrototype))
			return Normal(ObjectValue(h))
		}
		return vm.ToObject(args[0])
	})
	objectCtor.insertOrReplace(&Property{Kind: PropData, Name: "prototype", Value: ObjectValue(vm.objectPrototype), Writable: false, Enumerable: false, Configurable: false})

	defineProperty := vm.newNativeFunction("defineProperty", 3, func(vm *VM, this Value, args []Value) Completion {
		if len(args) < 2 || args[0].Kind != KindObject {
			return ThrowCompletion(vm.newTypeError("Object.defineProperty called on non-object"))
		}
		obj := vm.heap.Get(args[0].Obj).(*Object)
		name := ""
		if len(args) > 1 {
			s := vm.ToString(args[1])
			if s.IsAbrupt() {
				return s
			}
			name = s.Value.Str.Text()
		}
		var descArg Value = Undefined()
		if len(args) > 2 {
			descArg = args[2]
		}
		desc, c := vm.ToPropertyDescriptor(descArg)
		if c.IsAbrupt() {
			return c
		}
		res := vm.DefineOwnProperty(obj, name, desc, true)
		if res.IsAbrupt() {
			return res
		}
		return Normal(args[0])
	})
	objectCtor.insertOrReplace(&Property{Kind: PropData, Name: "defineProperty", Value: ObjectValue(vm.alloc(defineProperty)), Writable: true, Enumerable: false, Configurable: true})

	getOwnDesc := vm.newNativeFunction("getOwnPropertyDescriptor", 2, func(vm *VM, this Value, args []Value) Completion {
		if len(args) < 1 || args[0].Kind != KindObject {
			return ThrowCompletion(vm.newTypeError("Object.getOwnPropertyDescriptor called on non-object"))
		}
		obj := vm.heap.Get(args[0].Obj).(*Object)
		name := ""
		if len(args) > 1 {
			s := vm.ToString(args[1])
			if s.IsAbrupt() {
				return s
			}
			name = s.Value.Str.Text()
		}
		d, ok := vm.GetOwnProperty(obj, name)
		if !ok {
			return Normal(Undefined())
		}
		return Normal(vm.FromPropertyDescriptor(d))
	})
	objectCtor.insertOrReplace(&Property{Kind: PropData, Name: "getOwnPropertyDescriptor", Value: ObjectValue(vm.alloc(getOwnDesc)), Writable: true, Enumerable: false, Configurable: true})

	h := vm.alloc(objectCtor)
	vm.global.insertOrReplace(&Property{Kind: PropData, Name: "Object", Value: ObjectValue(h), Writable: true, Enumerable: false, Configurable: true})
}
