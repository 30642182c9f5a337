package vm

import "sync/atomic"

// BindingRef indexes a binding in a process arena.
type BindingRef int32

// NoBinding is the parent of an outermost binding.
const NoBinding BindingRef = -1

// Binding is the local-variable frame of one block invocation. Its slot
// count is fixed when it is created. Parent points at the binding the block
// closed over, so nested blocks can reach enclosing locals.
type Binding struct {
	Locals []Value
	Parent BindingRef

	marked atomic.Bool
}

// NewBinding allocates a binding with size slots, all nil.
func (a *Arena) NewBinding(size int, parent BindingRef) BindingRef {
	b := &Binding{Locals: make([]Value, size), Parent: parent}
	for i := range b.Locals {
		b.Locals[i] = Nil
	}

	a.allocations++
	if n := len(a.freeBindings); n > 0 {
		ref := a.freeBindings[n-1]
		a.freeBindings = a.freeBindings[:n-1]
		a.bindings[ref] = b
		return ref
	}
	a.bindings = append(a.bindings, b)
	return BindingRef(len(a.bindings) - 1)
}

// Binding returns the binding for ref.
func (a *Arena) Binding(ref BindingRef) (*Binding, error) {
	if ref < 0 || int(ref) >= len(a.bindings) || a.bindings[ref] == nil {
		return nil, invariantf("binding", "dangling binding reference %d", ref)
	}
	return a.bindings[ref], nil
}

// Ancestor walks depth parent links up from ref.
func (a *Arena) Ancestor(ref BindingRef, depth int) (*Binding, error) {
	b, err := a.Binding(ref)
	if err != nil {
		return nil, err
	}
	for i := 0; i < depth; i++ {
		if b.Parent == NoBinding {
			return nil, invariantf("binding", "no parent binding at depth %d", i+1)
		}
		if b, err = a.Binding(b.Parent); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// BindingCount returns the number of live bindings.
func (a *Arena) BindingCount() int {
	return len(a.bindings) - len(a.freeBindings)
}

// Get returns local slot i.
func (b *Binding) Get(i int) (Value, error) {
	if i < 0 || i >= len(b.Locals) {
		return Nil, invariantf("binding", "local %d out of range (%d locals)", i, len(b.Locals))
	}
	return b.Locals[i], nil
}

// Set stores v in local slot i.
func (b *Binding) Set(i int, v Value) error {
	if i < 0 || i >= len(b.Locals) {
		return invariantf("binding", "local %d out of range (%d locals)", i, len(b.Locals))
	}
	b.Locals[i] = v
	return nil
}
