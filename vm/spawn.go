package vm

// arenaCopier deep-copies values from one process arena into another.
// Each source object and binding is copied once, so shared structure and
// cycles through bindings survive the copy.
type arenaCopier struct {
	src, dst *Arena
	objects  map[ObjectRef]Value
	bindings map[BindingRef]BindingRef
}

func newArenaCopier(src, dst *Arena) *arenaCopier {
	return &arenaCopier{
		src:      src,
		dst:      dst,
		objects:  make(map[ObjectRef]Value),
		bindings: make(map[BindingRef]BindingRef),
	}
}

func (c *arenaCopier) block(b Block) (Block, error) {
	ref, err := c.binding(b.Binding)
	if err != nil {
		return Block{}, err
	}
	b.Binding = ref
	return b, nil
}

func (c *arenaCopier) binding(ref BindingRef) (BindingRef, error) {
	if ref == NoBinding {
		return NoBinding, nil
	}
	if copied, ok := c.bindings[ref]; ok {
		return copied, nil
	}
	b, err := c.src.Binding(ref)
	if err != nil {
		return NoBinding, err
	}

	copied := c.dst.NewBinding(len(b.Locals), NoBinding)
	c.bindings[ref] = copied

	parent, err := c.binding(b.Parent)
	if err != nil {
		return NoBinding, err
	}
	locals := make([]Value, len(b.Locals))
	for i, v := range b.Locals {
		if locals[i], err = c.value(v); err != nil {
			return NoBinding, err
		}
	}

	nb := c.dst.bindings[copied]
	nb.Parent = parent
	nb.Locals = locals
	return copied, nil
}

func (c *arenaCopier) value(v Value) (Value, error) {
	if !v.IsObject() {
		return v, nil
	}
	if copied, ok := c.objects[v.Ref()]; ok {
		return copied, nil
	}
	o, err := c.src.Object(v)
	if err != nil {
		return Nil, &InvariantError{Op: "process_spawn", Err: err}
	}

	switch o.Kind {
	case KindString:
		copied := c.dst.NewString(o.Str)
		c.objects[v.Ref()] = copied
		return copied, nil
	case KindError:
		copied := c.dst.NewError(o.Str)
		c.objects[v.Ref()] = copied
		return copied, nil
	case KindArray:
		copied := c.dst.NewArray(nil)
		c.objects[v.Ref()] = copied
		items := make([]Value, len(o.Items))
		for i, item := range o.Items {
			if items[i], err = c.value(item); err != nil {
				return Nil, err
			}
		}
		c.dst.objects[copied.Ref()].Items = items
		return copied, nil
	case KindBlock:
		copied := c.dst.NewBlock(Block{})
		c.objects[v.Ref()] = copied
		b, err := c.block(o.Block)
		if err != nil {
			return Nil, err
		}
		c.dst.objects[copied.Ref()].Block = b
		return copied, nil
	default:
		return Nil, invariantf("process_spawn", "cannot copy %s object", o.Kind)
	}
}
