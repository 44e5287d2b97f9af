package vm

import "emberjs/pkg/heap"

// ObjectDiscriminator distinguishes a generic object from a lexical
// environment, per spec.md §3's Object header.
type ObjectDiscriminator uint8

const (
	DiscGeneric ObjectDiscriminator = iota
	DiscLexEnv
)

// TypeTag further classifies a generic object, mirroring the object-
// type tag field spec.md §3 lists on the Object header.
type TypeTag uint8

const (
	TagGeneral TypeTag = iota
	TagFunction
	TagNativeFunction
	TagArray
	TagArguments
	TagStringObject
	TagNumberObject
	TagBooleanObject
	TagError
	TagGlobal
)

// PropKind discriminates the Property union: named-data, named-
// accessor, or internal (spec.md §3).
type PropKind uint8

const (
	PropData PropKind = iota
	PropAccessor
	PropInternal
)

// InternalSlotKind enumerates the payload an internal Property carries.
type InternalSlotKind uint8

const (
	SlotClass InternalSlotKind = iota
	SlotFormalParameters
	SlotScope // [[Scope]]: enclosing lex-env Handle a closure captured
	SlotPrimitiveValue
	SlotCodeEntry // bytecode position of a function body's reg_var_decl
	SlotOuterEnv  // lex-env Outer link
	SlotProvideThis
	SlotBindingObject // object-bound env's delegate object
	SlotNativeFunc
	SlotStrict
)

// Property is the discriminated union spec.md §3 specifies, kept as a
// node of the object's singly linked property list (insertion order is
// preserved by appending at the tail, matching observable for-in order
// in practice even though ECMA5 leaves it unspecified).
type Property struct {
	Name string
	Kind PropKind

	// Named-data
	Value                              Value
	Writable, Enumerable, Configurable bool
	LCached                            bool // inline-cache hint, §4.3/SPEC_FULL §11

	// Named-accessor
	Get, Set heap.Handle // 0 = absent

	// Internal
	ISlot   InternalSlotKind
	IHandle heap.Handle // used by SlotScope/SlotOuterEnv/SlotBindingObject
	IBool   bool        // used by SlotProvideThis/SlotStrict
	IInt    int         // used by SlotCodeEntry
	IStrs   []string    // used by SlotFormalParameters
	INative NativeFunc  // used by SlotNativeFunc

	next *Property
}

// NativeFunc is a built-in implemented in Go rather than bytecode. It
// receives the VM, the this-binding and arguments, and returns a
// Completion exactly like a bytecode call would — allowing a native
// (e.g. the global "exit" function) to produce an Exit or Throw
// completion, not just an ordinary return value.
type NativeFunc func(vm *VM, this Value, args []Value) Completion

// Object is the header spec.md §3 describes for both generic objects
// and lexical environments (an Object whose Disc is DiscLexEnv).
type Object struct {
	Proto      heap.Handle // 0 = null
	Extensible bool
	Disc       ObjectDiscriminator
	Tag        TypeTag
	IsBuiltin  bool

	props     *Property
	propsTail *Property
}

// NewObject returns a plain, extensible object with the given
// prototype (0 for null).
func NewObject(proto heap.Handle) *Object {
	return &Object{Proto: proto, Extensible: true, Disc: DiscGeneric, Tag: TagGeneral}
}

// GCChildren implements heap.Object: every strong edge this object (or
// lexical environment) holds.
func (o *Object) GCChildren() []heap.Handle {
	var out []heap.Handle
	if o.Proto != 0 {
		out = append(out, o.Proto)
	}
	for p := o.props; p != nil; p = p.next {
		switch p.Kind {
		case PropData:
			if p.Value.Kind == KindObject && p.Value.Obj != 0 {
				out = append(out, p.Value.Obj)
			}
		case PropAccessor:
			if p.Get != 0 {
				out = append(out, p.Get)
			}
			if p.Set != 0 {
				out = append(out, p.Set)
			}
		case PropInternal:
			if p.IHandle != 0 {
				out = append(out, p.IHandle)
			}
		}
	}
	return out
}

// GetOwnProperty returns the raw property list node for name, or nil,
// per spec.md §4.4's [[GetOwnProperty]]
// contract ("return the property node with the given name, or
// nothing").
func (o *Object) GetOwnProperty(name string) *Property {
	for p := o.props; p != nil; p = p.next {
		if p.Kind != PropInternal && p.Name == name {
			return p
		}
	}
	return nil
}

// getInternal returns the internal slot of the given kind, or nil.
func (o *Object) getInternal(slot InternalSlotKind) *Property {
	for p := o.props; p != nil; p = p.next {
		if p.Kind == PropInternal && p.ISlot == slot {
			return p
		}
	}
	return nil
}

func (o *Object) setInternal(p *Property) {
	p.Kind = PropInternal
	if existing := o.getInternal(p.ISlot); existing != nil {
		next := existing.next
		*existing = *p
		existing.next = next
		return
	}
	o.append(p)
}

func (o *Object) append(p *Property) {
	if o.props == nil {
		o.props = p
		o.propsTail = p
		return
	}
	o.propsTail.next = p
	o.propsTail = p
}

// insertOrReplace adds p to the property list, replacing any existing
// node with the same name (property name uniqueness per object,
// spec.md §3's invariant). Internal slots are keyed by ISlot instead
// and never collide with named properties.
func (o *Object) insertOrReplace(p *Property) {
	for cur := o.props; cur != nil; cur = cur.next {
		if cur.Kind != PropInternal && cur.Name == p.Name {
			next := cur.next
			*cur = *p
			cur.next = next
			return
		}
	}
	o.append(p)
}

// removeOwn deletes the named property node, relinking the list. Returns
// true if a node was removed.
func (o *Object) removeOwn(name string) bool {
	var prev *Property
	for cur := o.props; cur != nil; cur = cur.next {
		if cur.Kind != PropInternal && cur.Name == name {
			if prev == nil {
				o.props = cur.next
			} else {
				prev.next = cur.next
			}
			if o.propsTail == cur {
				o.propsTail = prev
			}
			return true
		}
		prev = cur
	}
	return false
}

// OwnPropertyNames returns own enumerable-or-not property names in
// insertion order (internal slots excluded), for for-in enumeration
// support and diagnostics.
func (o *Object) OwnPropertyNames() []string {
	var names []string
	for p := o.props; p != nil; p = p.next {
		if p.Kind != PropInternal {
			names = append(names, p.Name)
		}
	}
	return names
}

// IsCallable reports whether this object is tagged as a bytecode
// function (TagFunction) or a native function (TagNativeFunction). The
// tag alone decides; SlotCodeEntry is not checked here.
func (o *Object) IsCallable() bool {
	return o.Tag == TagFunction || o.Tag == TagNativeFunction
}

// IsConstructor restricts [[Construct]] to function-tagged objects;
// this core has no arrow-function/generator distinction to exclude.
func (o *Object) IsConstructor() bool {
	return o.IsCallable()
}
