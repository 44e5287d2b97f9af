// Package heap implements the core's object heap: a bounded pool of
// cells addressed by a compact Handle (an index, not a raw pointer) and
// reclaimed by a tracing mark-and-sweep collector. This is the "Heap &
// pointer encoding" component of the spec, scoped to the encoding and
// lifecycle contract the interpreter core needs; the slab/pool byte
// allocator underneath a real cell and its statistics are the out-of-
// scope embedder-side allocator spec.md §1 names as an external
// collaborator.
//
// The opaque-handle pattern here is the re-architected form of the
// custom smart-pointer-to-heap-index wrappers a C engine uses: Handle
// carries no arithmetic, only identity and a reserved zero value for
// "no object."
package heap

import "fmt"

// Handle is a compact reference into a Heap. The zero Handle never
// denotes a live object (slot 0 is reserved), giving every Handle field
// a safe "null" value without a separate boolean.
type Handle uint32

// Object is implemented by whatever the embedding package stores in the
// heap. GCChildren returns every Handle this object holds a strong
// reference to, so the collector can trace the live set without the
// heap package knowing anything about object shape.
type Object interface {
	GCChildren() []Handle
}

type cell struct {
	obj    Object
	marked bool
	alive  bool
}

// Stats reports the outcome of one collection cycle.
type Stats struct {
	Live       int
	Reclaimed  int
	Cycles     int
	TotalAllocs int
}

// Heap is a bounded pool of cells. It never grows past Max; Alloc
// triggers a collection once Live crosses the trigger fraction, and
// returns an error if the heap is still full afterwards.
type Heap struct {
	cells []cell
	free  []Handle
	roots map[Handle]int // refcounted roots: frames/embedder pins
	max   int
	trigger float64

	// scanRoots, when set, is consulted by Collect alongside the
	// refcounted root set. The interpreter uses it to expose every
	// register of every currently executing frame, so a value that is
	// live only because a register holds it survives a collection
	// triggered by a later allocation in the same call.
	scanRoots func() []Handle

	live        int
	cycles      int
	totalAllocs int
}

// New returns a heap bounded at max cells, collecting once the live set
// crosses triggerFraction*max (clamped to (0,1]).
func New(max int, triggerFraction float64) *Heap {
	if triggerFraction <= 0 || triggerFraction > 1 {
		triggerFraction = 0.75
	}
	return &Heap{
		cells:   make([]cell, 1, max+1), // slot 0 reserved as the null handle
		roots:   make(map[Handle]int),
		max:     max,
		trigger: triggerFraction,
	}
}

// Len returns the number of live objects.
func (h *Heap) Len() int { return h.live }

// Alloc stores obj in a fresh or reclaimed cell and returns its Handle.
// If the heap is under trigger pressure, Alloc collects first; if it is
// still full after collecting, it reports an error (the embedder's
// ResourceError per spec §7).
func (h *Heap) Alloc(obj Object) (Handle, error) {
	if float64(h.live) >= h.trigger*float64(h.max) {
		h.Collect()
	}
	if len(h.free) > 0 {
		idx := h.free[len(h.free)-1]
		h.free = h.free[:len(h.free)-1]
		h.cells[idx] = cell{obj: obj, alive: true}
		h.live++
		h.totalAllocs++
		return idx, nil
	}
	if len(h.cells)-1 >= h.max {
		return 0, fmt.Errorf("heap: exhausted (%d cells)", h.max)
	}
	h.cells = append(h.cells, cell{obj: obj, alive: true})
	h.live++
	h.totalAllocs++
	return Handle(len(h.cells) - 1), nil
}

// Get dereferences a Handle. It returns nil for the null handle or a
// handle to a cell that has already been reclaimed — callers that hold
// onto a Handle past a point where it could have been collected (i.e.
// without pinning it as a root) have violated the ownership discipline
// spec.md §5 describes.
func (h *Heap) Get(ref Handle) Object {
	if ref == 0 || int(ref) >= len(h.cells) || !h.cells[ref].alive {
		return nil
	}
	return h.cells[ref].obj
}

// HandleOf finds the Handle owning obj by identity scan. This is the
// slow path used only where the caller has an *Object but not the
// Handle it was allocated under (e.g. resolving "this" for an accessor
// invocation reached via the prototype chain); the interpreter's hot
// property-access path always carries the Handle already and never
// calls this.
func (h *Heap) HandleOf(obj Object) Handle {
	for i := 1; i < len(h.cells); i++ {
		if h.cells[i].alive && h.cells[i].obj == obj {
			return Handle(i)
		}
	}
	return 0
}

// SetScanRoots installs a callback Collect consults for additional
// live handles beyond the refcounted root set. Passing nil disables it.
func (h *Heap) SetScanRoots(fn func() []Handle) {
	h.scanRoots = fn
}

// AddRoot pins ref so a collection will never reclaim it, incrementing
// a count so nested pins (e.g. two active frames referencing the same
// global object) compose correctly.
func (h *Heap) AddRoot(ref Handle) {
	if ref == 0 {
		return
	}
	h.roots[ref]++
}

// RemoveRoot undoes one AddRoot.
func (h *Heap) RemoveRoot(ref Handle) {
	if ref == 0 {
		return
	}
	if n := h.roots[ref] - 1; n <= 0 {
		delete(h.roots, ref)
	} else {
		h.roots[ref] = n
	}
}

// Collect runs one mark-and-sweep cycle: every root and everything
// transitively reachable from it is marked live; everything else is
// swept onto the free list. Safe to call with no live roots (sweeps
// everything) and safe to call repeatedly (idempotent if nothing
// changed since the last cycle).
func (h *Heap) Collect() Stats {
	h.cycles++
	for i := range h.cells {
		h.cells[i].marked = false
	}

	var stack []Handle
	for ref := range h.roots {
		stack = append(stack, ref)
	}
	if h.scanRoots != nil {
		stack = append(stack, h.scanRoots()...)
	}
	for len(stack) > 0 {
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if ref == 0 || int(ref) >= len(h.cells) || !h.cells[ref].alive || h.cells[ref].marked {
			continue
		}
		h.cells[ref].marked = true
		stack = append(stack, h.cells[ref].obj.GCChildren()...)
	}

	reclaimed := 0
	for i := 1; i < len(h.cells); i++ {
		c := &h.cells[i]
		if c.alive && !c.marked {
			c.alive = false
			c.obj = nil
			h.free = append(h.free, Handle(i))
			h.live--
			reclaimed++
		}
	}

	return Stats{Live: h.live, Reclaimed: reclaimed, Cycles: h.cycles, TotalAllocs: h.totalAllocs}
}
