package vm

import (
	"math"

	"emberjs/pkg/heap"
	"emberjs/pkg/strtab"
)

// PreferredHint steers ToPrimitive's method order, per spec.md §4.6.
type PreferredHint uint8

const (
	HintDefault PreferredHint = iota
	HintNumber
	HintString
)

// ToPrimitive implements spec.md §4.6: objects try valueOf/toString (or
// the reverse order under HintString) until one returns a primitive;
// every other Kind is already primitive and returned unchanged.
func (vm *VM) ToPrimitive(v Value, hint PreferredHint) Completion {
	if v.Kind != KindObject {
		return Normal(v)
	}
	obj := vm.heap.Get(v.Obj).(*Object)
	order := [2]string{"valueOf", "toString"}
	if hint == HintString {
		order = [2]string{"toString", "valueOf"}
	}
	for _, name := range order {
		fnC := vm.Get(obj, name)
		if fnC.IsAbrupt() {
			return fnC
		}
		if fnC.Value.Kind != KindObject {
			continue
		}
		fnObj := vm.heap.Get(fnC.Value.Obj).(*Object)
		if !fnObj.IsCallable() {
			continue
		}
		res := vm.Call(fnC.Value.Obj, v, nil)
		if res.IsAbrupt() {
			return res
		}
		if res.Value.Kind != KindObject {
			return Normal(res.Value)
		}
	}
	return ThrowCompletion(vm.newTypeError("cannot convert object to primitive value"))
}

// ToBoolean implements spec.md §4.6's ToBoolean table exactly; it never
// throws.
func (v Value) ToBoolean() bool {
	switch v.Kind {
	case KindUndefined, KindNull, KindFalse:
		return false
	case KindTrue:
		return true
	case KindNumber:
		return v.Num != 0 && !math.IsNaN(v.Num)
	case KindString:
		return v.Str.Len() != 0
	case KindObject:
		return true
	default:
		return false
	}
}

// ToNumber implements spec.md §4.6: ToPrimitive(HintNumber) then the
// primitive-to-number table, delegating string parsing to strtab's
// StringToNumber.
func (vm *VM) ToNumber(v Value) Completion {
	switch v.Kind {
	case KindUndefined:
		return Normal(NumberValue(math.NaN()))
	case KindNull, KindFalse:
		return Normal(NumberValue(0))
	case KindTrue:
		return Normal(NumberValue(1))
	case KindNumber:
		return Normal(v)
	case KindString:
		return Normal(NumberValue(strtab.StringToNumber(v.Str.Text())))
	case KindObject:
		prim := vm.ToPrimitive(v, HintNumber)
		if prim.IsAbrupt() {
			return prim
		}
		return vm.ToNumber(prim.Value)
	default:
		return Normal(NumberValue(math.NaN()))
	}
}

// ToInteger implements spec.md §4.6's ToInteger: ToNumber then round
// toward zero, clamping NaN to 0 and infinities to themselves.
func (vm *VM) ToInteger(v Value) Completion {
	n := vm.ToNumber(v)
	if n.IsAbrupt() {
		return n
	}
	f := n.Value.Num
	if math.IsNaN(f) {
		return Normal(NumberValue(0))
	}
	if math.IsInf(f, 0) {
		return Normal(NumberValue(f))
	}
	return Normal(NumberValue(math.Trunc(f)))
}

// ToInt32 / ToUint32 implement spec.md §4.6's modular reduction used by
// the bitwise operators.
func (vm *VM) ToInt32(v Value) (int32, Completion) {
	n := vm.ToNumber(v)
	if n.IsAbrupt() {
		return 0, n
	}
	return toInt32Bits(n.Value.Num), NormalEmpty()
}

func (vm *VM) ToUint32(v Value) (uint32, Completion) {
	n := vm.ToNumber(v)
	if n.IsAbrupt() {
		return 0, n
	}
	return uint32(toInt32Bits(n.Value.Num)), NormalEmpty()
}

func toInt32Bits(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return 0
	}
	m := math.Mod(math.Trunc(f), 4294967296)
	if m < 0 {
		m += 4294967296
	}
	if m >= 2147483648 {
		m -= 4294967296
	}
	return int32(m)
}

// ToString implements spec.md §4.6: ToPrimitive(HintString) then the
// primitive-to-string table, returning an interned, unretained
// *strtab.String wrapped in a Value. Callers that persist the result
// must Retain it.
func (vm *VM) ToString(v Value) Completion {
	switch v.Kind {
	case KindUndefined:
		return Normal(vm.internString("undefined"))
	case KindNull:
		return Normal(vm.internString("null"))
	case KindTrue:
		return Normal(vm.internString("true"))
	case KindFalse:
		return Normal(vm.internString("false"))
	case KindNumber:
		return Normal(vm.internString(strtab.NumberToString(v.Num)))
	case KindString:
		return Normal(v)
	case KindObject:
		prim := vm.ToPrimitive(v, HintString)
		if prim.IsAbrupt() {
			return prim
		}
		return vm.ToString(prim.Value)
	default:
		return Normal(vm.internString(""))
	}
}

func (vm *VM) internString(s string) Value {
	return StringValue(vm.strings.Intern(s))
}

// ToObject implements spec.md §4.6: wraps primitives in the matching
// wrapper object, throws for null/undefined, passes objects through.
func (vm *VM) ToObject(v Value) Completion {
	switch v.Kind {
	case KindUndefined, KindNull:
		return ThrowCompletion(vm.newTypeError("cannot convert %s to object", v.Kind))
	case KindObject:
		return Normal(v)
	case KindBool1, KindBool2:
		return vm.wrapPrimitive(v, TagBooleanObject, vm.booleanPrototype)
	case KindNumber:
		return vm.wrapPrimitive(v, TagNumberObject, vm.numberPrototype)
	case KindString:
		return vm.wrapPrimitive(v, TagStringObject, vm.stringPrototype)
	default:
		return ThrowCompletion(vm.newTypeError("cannot convert to object"))
	}
}

// KindBool1/KindBool2 alias True/False for the ToObject switch above,
// which needs to match both boolean tags with one case without adding
// an IsBoolean helper to the switch itself.
const (
	KindBool1 = KindTrue
	KindBool2 = KindFalse
)

func (vm *VM) wrapPrimitive(v Value, tag TypeTag, proto heap.Handle) Completion {
	obj := NewObject(proto)
	obj.Tag = tag
	obj.setInternal(&Property{ISlot: SlotPrimitiveValue, Value: v.Retain(vm.strings)})
	h := vm.alloc(obj)
	return Normal(ObjectValue(h))
}

// PrimitiveValueOf reads back the primitive a wrapper object built by
// wrapPrimitive holds, used by valueOf/toString on Boolean/Number/
// String wrapper instances.
func (vm *VM) PrimitiveValueOf(obj *Object) (Value, bool) {
	p := obj.getInternal(SlotPrimitiveValue)
	if p == nil {
		return Value{}, false
	}
	return p.Value, true
}

// SameValue implements spec.md §4.6's SameValue algorithm (the strict,
// NaN-is-same-as-NaN, signed-zero-distinguishing equality used by
// property-descriptor comparisons, not the == operator).
func (vm *VM) SameValue(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNumber:
		if math.IsNaN(a.Num) && math.IsNaN(b.Num) {
			return true
		}
		if a.Num == 0 && b.Num == 0 {
			return math.Signbit(a.Num) == math.Signbit(b.Num)
		}
		return a.Num == b.Num
	case KindString:
		return a.Str.Text() == b.Str.Text()
	case KindObject:
		return a.Obj == b.Obj
	default:
		return true // undefined/null/true/false: Kind equality is enough
	}
}

// AbstractRelationalCompare implements spec.md §4.6's x < y algorithm,
// returning the boolean result, or undefined for the "uncomparable"
// case (either operand converts to NaN); callers decide what undefined
// means for their operator.
func (vm *VM) AbstractRelationalCompare(x, y Value, leftFirst bool) (result Completion) {
	var px, py Completion
	if leftFirst {
		px = vm.ToPrimitive(x, HintNumber)
		if px.IsAbrupt() {
			return px
		}
		py = vm.ToPrimitive(y, HintNumber)
		if py.IsAbrupt() {
			return py
		}
	} else {
		py = vm.ToPrimitive(y, HintNumber)
		if py.IsAbrupt() {
			return py
		}
		px = vm.ToPrimitive(x, HintNumber)
		if px.IsAbrupt() {
			return px
		}
	}
	if px.Value.Kind == KindString && py.Value.Kind == KindString {
		return Normal(BoolValue(px.Value.Str.Text() < py.Value.Str.Text()))
	}
	nx := vm.ToNumber(px.Value)
	if nx.IsAbrupt() {
		return nx
	}
	ny := vm.ToNumber(py.Value)
	if ny.IsAbrupt() {
		return ny
	}
	if math.IsNaN(nx.Value.Num) || math.IsNaN(ny.Value.Num) {
		return Normal(Undefined())
	}
	return Normal(BoolValue(nx.Value.Num < ny.Value.Num))
}

// AbstractEqualityCompare implements spec.md §4.6's == algorithm: the
// full ECMA 11.9.3 coercion table, recursing at most a few times before
// landing on a same-kind comparison.
func (vm *VM) AbstractEqualityCompare(x, y Value) Completion {
	if x.Kind == y.Kind {
		switch x.Kind {
		case KindNumber:
			return Normal(BoolValue(x.Num == y.Num))
		case KindString:
			return Normal(BoolValue(x.Str.Text() == y.Str.Text()))
		case KindObject:
			return Normal(BoolValue(x.Obj == y.Obj))
		default:
			return Normal(True())
		}
	}
	if x.IsNullOrUndefined() && y.IsNullOrUndefined() {
		return Normal(True())
	}
	if x.IsNullOrUndefined() || y.IsNullOrUndefined() {
		return Normal(False())
	}
	if x.Kind == KindNumber && y.Kind == KindString {
		yn := vm.ToNumber(y)
		if yn.IsAbrupt() {
			return yn
		}
		return vm.AbstractEqualityCompare(x, yn.Value)
	}
	if x.Kind == KindString && y.Kind == KindNumber {
		xn := vm.ToNumber(x)
		if xn.IsAbrupt() {
			return xn
		}
		return vm.AbstractEqualityCompare(xn.Value, y)
	}
	if x.IsBoolean() {
		xn := vm.ToNumber(x)
		if xn.IsAbrupt() {
			return xn
		}
		return vm.AbstractEqualityCompare(xn.Value, y)
	}
	if y.IsBoolean() {
		yn := vm.ToNumber(y)
		if yn.IsAbrupt() {
			return yn
		}
		return vm.AbstractEqualityCompare(x, yn.Value)
	}
	if (x.Kind == KindNumber || x.Kind == KindString) && y.Kind == KindObject {
		yp := vm.ToPrimitive(y, HintDefault)
		if yp.IsAbrupt() {
			return yp
		}
		return vm.AbstractEqualityCompare(x, yp.Value)
	}
	if x.Kind == KindObject && (y.Kind == KindNumber || y.Kind == KindString) {
		xp := vm.ToPrimitive(x, HintDefault)
		if xp.IsAbrupt() {
			return xp
		}
		return vm.AbstractEqualityCompare(xp.Value, y)
	}
	return Normal(False())
}

// StrictEqualityCompare implements spec.md §4.6's === algorithm: same
// kind required, no coercion.
func (vm *VM) StrictEqualityCompare(x, y Value) bool {
	if x.Kind != y.Kind {
		return false
	}
	switch x.Kind {
	case KindNumber:
		return x.Num == y.Num
	case KindString:
		return x.Str.Text() == y.Str.Text()
	case KindObject:
		return x.Obj == y.Obj
	default:
		return true
	}
}

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindTrue, KindFalse:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}
