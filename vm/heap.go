package vm

import (
	"fmt"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Arena: per-process heap objects and bindings
// ---------------------------------------------------------------------------

// ObjectKind identifies the layout of a heap object.
type ObjectKind uint8

const (
	KindString ObjectKind = iota + 1
	KindArray
	KindBlock
	KindError
)

func (k ObjectKind) String() string {
	switch k {
	case KindString:
		return "String"
	case KindArray:
		return "Array"
	case KindBlock:
		return "Block"
	case KindError:
		return "Error"
	default:
		return fmt.Sprintf("ObjectKind(%d)", k)
	}
}

// Object is a heap-allocated value. Only the fields matching Kind are used.
type Object struct {
	Kind  ObjectKind
	Str   string  // KindString, KindError
	Items []Value // KindArray
	Block Block   // KindBlock

	marked atomic.Bool
}

// Arena owns every object and binding a process allocates. Nothing in an
// arena is shared with another process; the whole arena is dropped when the
// process terminates.
type Arena struct {
	objects     []*Object
	freeObjects []ObjectRef

	bindings     []*Binding
	freeBindings []BindingRef

	// allocations since the last collection
	allocations int
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		objects:  make([]*Object, 0, 16),
		bindings: make([]*Binding, 0, 8),
	}
}

func (a *Arena) alloc(o *Object) Value {
	a.allocations++
	if n := len(a.freeObjects); n > 0 {
		ref := a.freeObjects[n-1]
		a.freeObjects = a.freeObjects[:n-1]
		a.objects[ref] = o
		return FromRef(ref)
	}
	a.objects = append(a.objects, o)
	return FromRef(ObjectRef(len(a.objects) - 1))
}

// NewString allocates a string object.
func (a *Arena) NewString(s string) Value {
	return a.alloc(&Object{Kind: KindString, Str: s})
}

// NewArray allocates an array object. The arena takes ownership of items.
func (a *Arena) NewArray(items []Value) Value {
	if items == nil {
		items = []Value{}
	}
	return a.alloc(&Object{Kind: KindArray, Items: items})
}

// NewBlock allocates a block object.
func (a *Arena) NewBlock(b Block) Value {
	return a.alloc(&Object{Kind: KindBlock, Block: b})
}

// NewError allocates an error object carrying message.
func (a *Arena) NewError(message string) Value {
	return a.alloc(&Object{Kind: KindError, Str: message})
}

// Object returns the object v refers to.
func (a *Arena) Object(v Value) (*Object, error) {
	if !v.IsObject() {
		return nil, fmt.Errorf("%s is not an object", v)
	}
	ref := v.Ref()
	if int(ref) >= len(a.objects) || a.objects[ref] == nil {
		return nil, fmt.Errorf("dangling object reference %d", ref)
	}
	return a.objects[ref], nil
}

func (a *Arena) objectOf(v Value, kind ObjectKind, op string) (*Object, error) {
	o, err := a.Object(v)
	if err != nil {
		return nil, &InvariantError{Op: op, Err: err}
	}
	if o.Kind != kind {
		return nil, invariantf(op, "expected %s, found %s", kind, o.Kind)
	}
	return o, nil
}

// BlockOf returns the block stored in v.
func (a *Arena) BlockOf(v Value) (Block, error) {
	o, err := a.objectOf(v, KindBlock, "block")
	if err != nil {
		return Block{}, err
	}
	return o.Block, nil
}

// StringOf returns the string stored in v.
func (a *Arena) StringOf(v Value) (string, error) {
	o, err := a.objectOf(v, KindString, "string")
	if err != nil {
		return "", err
	}
	return o.Str, nil
}

// ArrayOf returns the items of the array stored in v.
func (a *Arena) ArrayOf(v Value) ([]Value, error) {
	o, err := a.objectOf(v, KindArray, "array")
	if err != nil {
		return nil, err
	}
	return o.Items, nil
}

// ObjectCount returns the number of live objects.
func (a *Arena) ObjectCount() int {
	return len(a.objects) - len(a.freeObjects)
}

// Allocations returns the number of objects and bindings allocated since the
// last sweep.
func (a *Arena) Allocations() int {
	return a.allocations
}

// SweepStats reports what one sweep reclaimed.
type SweepStats struct {
	Objects  int
	Bindings int
}

// Sweep frees every object and binding that was not marked by the last
// trace, and clears the marks of the survivors.
func (a *Arena) Sweep() SweepStats {
	var stats SweepStats
	for i, o := range a.objects {
		if o == nil {
			continue
		}
		if o.marked.Load() {
			o.marked.Store(false)
			continue
		}
		a.objects[i] = nil
		a.freeObjects = append(a.freeObjects, ObjectRef(i))
		stats.Objects++
	}
	for i, b := range a.bindings {
		if b == nil {
			continue
		}
		if b.marked.Load() {
			b.marked.Store(false)
			continue
		}
		a.bindings[i] = nil
		a.freeBindings = append(a.freeBindings, BindingRef(i))
		stats.Bindings++
	}
	a.allocations = 0
	return stats
}

// Release drops every object and binding at once.
func (a *Arena) Release() {
	a.objects = nil
	a.freeObjects = nil
	a.bindings = nil
	a.freeBindings = nil
	a.allocations = 0
}
