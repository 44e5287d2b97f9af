package vm

import (
	"emberjs/pkg/heap"
	"emberjs/pkg/vmerrors"
)

// Lexical environments are Objects with Disc == DiscLexEnv. A
// declarative environment record stores its bindings as ordinary named
// Properties on that Object; an object-bound environment (the
// with-statement's environment, and the global environment) delegates
// to SlotBindingObject instead. Both forms share the SlotOuterEnv link
// spec.md §4.5 calls the environment's outer reference.
//
// A binding created "immutable, not yet initialized" is represented by
// giving its Property KindEmpty as its Value and Writable=false; GetBindingValue on such a binding throws a ReferenceError
// exactly as spec.md §4.5 requires, and SetMutableBinding's first write
// replaces the Empty sentinel and leaves Writable=false behind so a
// second write is rejected.

// NewDeclarativeEnv allocates a lexical environment with no delegate
// object, linked to outer.
func (vm *VM) NewDeclarativeEnv(outer heap.Handle) heap.Handle {
	env := &Object{Disc: DiscLexEnv, Tag: TagGeneral}
	if outer != 0 {
		env.setInternal(&Property{ISlot: SlotOuterEnv, IHandle: outer})
	}
	return vm.alloc(env)
}

// NewObjectEnv allocates an object-bound lexical environment delegating
// to bindingObj (the with-statement's expression result, or the global
// object for the program's outermost environment).
func (vm *VM) NewObjectEnv(bindingObj heap.Handle, outer heap.Handle, provideThis bool) heap.Handle {
	env := &Object{Disc: DiscLexEnv, Tag: TagGeneral}
	env.setInternal(&Property{ISlot: SlotBindingObject, IHandle: bindingObj})
	env.setInternal(&Property{ISlot: SlotProvideThis, IBool: provideThis})
	if outer != 0 {
		env.setInternal(&Property{ISlot: SlotOuterEnv, IHandle: outer})
	}
	return vm.alloc(env)
}

func (vm *VM) envObject(h heap.Handle) *Object {
	o, _ := vm.heap.Get(h).(*Object)
	return o
}

func (vm *VM) outerEnv(env *Object) heap.Handle {
	if p := env.getInternal(SlotOuterEnv); p != nil {
		return p.IHandle
	}
	return 0
}

func (vm *VM) bindingObject(env *Object) (heap.Handle, bool) {
	if p := env.getInternal(SlotBindingObject); p != nil {
		return p.IHandle, true
	}
	return 0, false
}

// HasBinding implements spec.md §4.5's HasBinding: true if this
// environment record (not any outer one) binds name.
func (vm *VM) HasBinding(env *Object, name string) bool {
	if bindObj, ok := vm.bindingObject(env); ok {
		return vm.hasProperty(vm.envObject(bindObj), name)
	}
	return env.GetOwnProperty(name) != nil
}

// CreateMutableBinding creates a new mutable binding, initialized to
// undefined, optionally deletable. Declarative environments get a
// plain Property; object-bound ones call through to [[DefineOwnProperty]]
// on the delegate so with-scoped declarations are visible through the
// delegate object too.
func (vm *VM) CreateMutableBinding(env *Object, name string, deletable bool) Completion {
	if bindObj, ok := vm.bindingObject(env); ok {
		return vm.DefineOwnProperty(vm.envObject(bindObj), name, PropertyDescriptor{
			HasValue: true, Value: Undefined(),
			HasWritable: true, Writable: true,
			HasEnumerable: true, Enumerable: true,
			HasConfigurable: true, Configurable: deletable,
		}, false)
	}
	env.insertOrReplace(&Property{
		Kind: PropData, Name: name, Value: Undefined(),
		Writable: true, Enumerable: true, Configurable: deletable,
	})
	return NormalEmpty()
}

// SetMutableBinding implements spec.md §4.5: write an existing binding,
// throwing in strict mode if the binding doesn't exist or is immutable.
func (vm *VM) SetMutableBinding(env *Object, name string, v Value, strict bool) Completion {
	if bindObj, ok := vm.bindingObject(env); ok {
		return vm.Put(vm.envObject(bindObj), name, v, strict)
	}
	p := env.GetOwnProperty(name)
	if p == nil {
		if strict {
			return ThrowCompletion(vm.newReferenceError("%s is not defined", name))
		}
		vm.global.insertOrReplace(&Property{
			Kind: PropData, Name: name, Value: v.Retain(vm.strings),
			Writable: true, Enumerable: true, Configurable: true,
		})
		return NormalEmpty()
	}
	if !p.Writable && p.Kind == PropData && p.Value.IsEmpty() {
		p.Value = v.Retain(vm.strings)
		return NormalEmpty()
	}
	if !p.Writable {
		if strict {
			return ThrowCompletion(vm.newTypeError("assignment to constant %q", name))
		}
		return NormalEmpty()
	}
	p.Value.Release(vm.strings)
	p.Value = v.Retain(vm.strings)
	return NormalEmpty()
}

// GetBindingValue implements spec.md §4.5: read an existing binding,
// throwing a ReferenceError on an uninitialized immutable binding or a
// name this environment doesn't bind at all. The one exception is an
// object-bound environment in non-strict code, where an unbound name
// reads as undefined.
func (vm *VM) GetBindingValue(env *Object, name string, strict bool) Completion {
	if bindObj, ok := vm.bindingObject(env); ok {
		bo := vm.envObject(bindObj)
		if !vm.hasProperty(bo, name) {
			if strict {
				return ThrowCompletion(vm.newReferenceError("%s is not defined", name))
			}
			return Normal(Undefined())
		}
		return vm.Get(bo, name)
	}
	p := env.GetOwnProperty(name)
	if p == nil {
		return ThrowCompletion(vm.newReferenceError("%s is not defined", name))
	}
	if p.Kind == PropData && p.Value.IsEmpty() {
		return ThrowCompletion(vm.newReferenceError("%s used before initialization", name))
	}
	if p.Kind == PropAccessor {
		return vm.callAccessorGet(p)
	}
	return Normal(p.Value)
}

// DeleteBinding implements spec.md §4.5's DeleteBinding.
func (vm *VM) DeleteBinding(env *Object, name string) Completion {
	if bindObj, ok := vm.bindingObject(env); ok {
		return vm.DeleteProp(vm.envObject(bindObj), name, false)
	}
	p := env.GetOwnProperty(name)
	if p == nil {
		return Normal(True())
	}
	if !p.Configurable {
		return Normal(False())
	}
	env.removeOwn(name)
	return Normal(True())
}

// ImplicitThisValue implements spec.md §4.5: undefined for every
// environment kind except a with-statement's provideThis object
// environment, which yields the delegate object itself.
func (vm *VM) ImplicitThisValue(env *Object) Value {
	if bindObj, ok := vm.bindingObject(env); ok {
		if p := env.getInternal(SlotProvideThis); p != nil && p.IBool {
			return ObjectValue(bindObj)
		}
	}
	return Undefined()
}

// ResolveIdentifier walks the scope chain starting at env looking for a
// binding named name, per spec.md §4.5's identifier resolution. Returns
// the environment record that binds it, or nil if unresolved.
func (vm *VM) ResolveIdentifier(env *Object, name string) *Object {
	for e := env; e != nil; {
		if vm.HasBinding(e, name) {
			return e
		}
		outer := vm.outerEnv(e)
		if outer == 0 {
			return nil
		}
		e = vm.envObject(outer)
	}
	return nil
}

func (vm *VM) newReferenceError(format string, args ...any) Value {
	return vm.newStandardError(vmerrors.KindReference, format, args...)
}
