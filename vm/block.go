package vm

// GlobalScope identifies the module a block was loaded from. Every block
// created while running a module's code shares its scope.
type GlobalScope struct {
	Path string
}

// NewGlobalScope creates the scope for the module at path.
func NewGlobalScope(path string) *GlobalScope {
	return &GlobalScope{Path: path}
}

// Block is a closure: compiled code plus the binding it captured. Blocks
// are small values and are copied freely; the binding lives in the arena of
// the process that created the block.
type Block struct {
	Code    *CompiledCode
	Binding BindingRef
	Globals *GlobalScope
}

// bindArguments checks args against the block's signature and, if they fit,
// allocates the binding for one invocation. Nothing is allocated when the
// arity check fails.
func bindArguments(a *Arena, b Block, args []Value) (BindingRef, error) {
	code := b.Code
	given, total := len(args), code.Arguments

	if given > total && !code.RestArgument {
		return NoBinding, &ArityError{Block: code.Name, Given: given, Expected: total, Reason: ErrTooManyArguments}
	}
	if given < code.RequiredArguments {
		return NoBinding, &ArityError{Block: code.Name, Given: given, Expected: code.RequiredArguments, Reason: ErrTooFewArguments}
	}
	if code.Locals < code.FixedSlots() {
		return NoBinding, invariantf("run_block", "%s has %d locals for %d parameter slots",
			code.Name, code.Locals, code.FixedSlots())
	}

	ref := a.NewBinding(code.Locals, b.Binding)
	binding := a.bindings[ref]

	n := min(given, total)
	copy(binding.Locals, args[:n])

	// Parameters without an argument keep their nil default.
	if code.RestArgument {
		rest := make([]Value, len(args)-n)
		copy(rest, args[n:])
		binding.Locals[total] = a.NewArray(rest)
	}
	return ref, nil
}
