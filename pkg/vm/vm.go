package vm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"emberjs/pkg/bytecode"
	"emberjs/pkg/config"
	"emberjs/pkg/heap"
	"emberjs/pkg/strtab"
	"emberjs/pkg/vmerrors"
)

// HostHooks lets an embedder observe and steer a running program: a
// cancellation check polled every cfg.CancelPollOpcodes instructions
// (spec.md §6's external interface to the host scheduler), and an
// optional opcode trace sink for the CLI's --bytecode flag.
type HostHooks struct {
	Cancelled func() bool
	Trace     func(pc int, op bytecode.Op)
}

// VM is one interpreter instance: its heap, string table, global
// object/environment, resource limits and host hooks. Each VM runs one
// Program at a time; embedding multiple scripts means multiple VMs,
// matching spec.md §1's "no global mutable program pointer" redesign.
type VM struct {
	cfg    config.Config
	heap   *heap.Heap
	strings *strtab.Table
	log    *slog.Logger
	hooks  HostHooks

	prog *bytecode.Program

	global     *Object
	globalH    heap.Handle
	globalEnv  heap.Handle

	objectPrototype  heap.Handle
	functionPrototype heap.Handle
	arrayPrototype   heap.Handle
	stringPrototype  heap.Handle
	numberPrototype  heap.Handle
	booleanPrototype heap.Handle
	errorPrototypes  map[vmerrors.StandardKind]heap.Handle

	callDepth int
	opCounter int
	lastPoll  time.Time

	// frames is the stack of activation records currently executing,
	// pushed/popped by executeFrame. Collect walks it via gcRoots so a
	// value reachable only from a register (not yet stored into a
	// binding or property) survives an allocation-triggered collection
	// elsewhere in the same call chain.
	frames []*Frame

	fatalErr error
}

// New constructs a VM bound to cfg's resource limits. Call Load before
// Run.
func New(cfg config.Config, hooks HostHooks, logger *slog.Logger) (*VM, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	vm := &VM{
		cfg:             cfg,
		heap:            heap.New(cfg.HeapCells, cfg.GCTriggerFraction),
		strings:         strtab.New(),
		log:             logger,
		hooks:           hooks,
		errorPrototypes: make(map[vmerrors.StandardKind]heap.Handle),
	}
	vm.heap.SetScanRoots(vm.gcRoots)
	vm.bootstrap()
	return vm, nil
}

// gcRoots exposes every live frame's environment and register file to
// the collector; see the frames field's doc comment.
func (vm *VM) gcRoots() []heap.Handle {
	var out []heap.Handle
	for _, f := range vm.frames {
		if f.env != 0 {
			out = append(out, f.env)
		}
		for _, r := range f.regs {
			if r.Kind == KindObject && r.Obj != 0 {
				out = append(out, r.Obj)
			}
		}
	}
	return out
}

// alloc wraps heap.Alloc, recording a fatal ResourceError if the heap
// is exhausted even after a collection. The dispatch loop checks
// vm.fatalErr after every opcode that can allocate and aborts the run
// if it is set, matching spec.md §7's "allocation failure is fatal, not
// a throw completion" rule.
func (vm *VM) alloc(obj heap.Object) heap.Handle {
	h, err := vm.heap.Alloc(obj)
	if err != nil {
		vm.fatalErr = vmerrors.NewResourceError(vmerrors.Position{}, err.Error())
		return 0
	}
	return h
}

func (vm *VM) newStandardError(kind vmerrors.StandardKind, format string, args ...any) Value {
	msg := fmt.Sprintf(format, args...)
	proto := vm.errorPrototypes[kind]
	obj := NewObject(proto)
	obj.Tag = TagError
	h := vm.alloc(obj)
	vm.heap.AddRoot(h)
	defer vm.heap.RemoveRoot(h)
	obj.insertOrReplace(&Property{
		Kind: PropData, Name: "message", Value: vm.internString(msg).Retain(vm.strings),
		Writable: true, Enumerable: false, Configurable: true,
	})
	obj.insertOrReplace(&Property{
		Kind: PropData, Name: "name", Value: vm.internString(string(kind)).Retain(vm.strings),
		Writable: true, Enumerable: false, Configurable: true,
	})
	return ObjectValue(h)
}

// Load installs prog. It leaves the global environment's existing
// bindings as they are and does not run anything; call Run to execute the program's top-level
// function body (which bytecode.Program always starts with, beginning
// at code position 0 per spec.md §5).
func (vm *VM) Load(prog *bytecode.Program) error {
	if prog == nil {
		return fmt.Errorf("vm: nil program")
	}
	vm.prog = prog
	return nil
}

// Run executes the loaded program's top-level code to completion,
// returning the exit status spec.md §6 defines: true only when the
// program ended through exit with a truthy status, false for
// exit(false), for an uncaught exception, and for top-level code that
// finishes without calling exit. The error is non-nil for fatal
// host-level conditions (resource exhaustion, malformed bytecode) and
// for an uncaught exception.
func (vm *VM) Run(ctx context.Context) (bool, error) {
	if vm.prog == nil {
		return false, fmt.Errorf("vm: no program loaded")
	}
	op, err := vm.prog.OpAt(0)
	if err != nil {
		return false, err
	}
	if op != bytecode.OpRegVarDecl {
		return false, vmerrors.NewAssertionError(vmerrors.Position{}, "program does not start with reg_var_decl")
	}
	minReg := int(vm.prog.Code[1])
	maxReg := int(vm.prog.Code[2])
	if maxReg > vm.cfg.MaxRegisters {
		return false, vmerrors.NewResourceError(vmerrors.Position{}, "top-level register window exceeds max_registers")
	}

	frame := newFrame(vm.prog, minReg, maxReg, ObjectValue(vm.globalH), vm.globalEnv, false)
	frame.pc = 3
	if vm.peekStrictMarker(frame) {
		frame.strict = true
		frame.pc += 4
	}

	c := vm.executeFrame(ctx, frame)
	switch c.Kind {
	case CompletionExit:
		return c.Value.Bool(), vm.fatalErr
	case CompletionThrow:
		msg := vm.describeThrown(c.Value)
		return false, fmt.Errorf("uncaught exception: %s", msg)
	default:
		if vm.fatalErr != nil {
			return false, vm.fatalErr
		}
		return false, nil
	}
}

func (vm *VM) peekStrictMarker(frame *Frame) bool {
	op, err := vm.prog.OpAt(frame.pc)
	if err != nil || op != bytecode.OpMeta {
		return false
	}
	if frame.pc+1 >= len(vm.prog.Code) {
		return false
	}
	return bytecode.MetaKind(vm.prog.Code[frame.pc+1]) == bytecode.MetaStrictCode
}

func (vm *VM) describeThrown(v Value) string {
	if v.Kind == KindObject {
		obj, ok := vm.heap.Get(v.Obj).(*Object)
		if ok {
			c := vm.Get(obj, "message")
			if !c.IsAbrupt() && c.Value.Kind == KindString {
				return c.Value.Str.Text()
			}
		}
	}
	s := vm.ToString(v)
	if s.Value.Kind == KindString {
		return s.Value.Str.Text()
	}
	return "<non-stringifiable>"
}

// pollCancel checks the host's cancellation hook every
// cfg.CancelPollOpcodes dispatched instructions, throttled further by
// cfg.CancelPollInterval, per spec.md §6.
func (vm *VM) pollCancel() bool {
	if vm.hooks.Cancelled == nil {
		return false
	}
	vm.opCounter++
	if vm.opCounter < vm.cfg.CancelPollOpcodes {
		return false
	}
	vm.opCounter = 0
	now := time.Now()
	if now.Sub(vm.lastPoll) < vm.cfg.CancelPollInterval {
		return false
	}
	vm.lastPoll = now
	return vm.hooks.Cancelled()
}
