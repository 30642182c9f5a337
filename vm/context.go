package vm

// ExecutionContext is one frame of a process's call stack. Contexts form a
// singly linked list through Parent and are only ever touched by the worker
// currently running their process.
type ExecutionContext struct {
	Code    *CompiledCode
	Binding BindingRef
	Globals *GlobalScope

	// ReturnRegister is the register in Parent that receives this
	// context's return value (-1 to discard it).
	ReturnRegister int

	Parent *ExecutionContext

	registers []Value
	ip        int // offset of the next instruction
}

func newExecutionContext(b Block, binding BindingRef, returnRegister int, parent *ExecutionContext) *ExecutionContext {
	regs := make([]Value, b.Code.Registers)
	for i := range regs {
		regs[i] = Nil
	}
	return &ExecutionContext{
		Code:           b.Code,
		Binding:        binding,
		Globals:        b.Globals,
		ReturnRegister: returnRegister,
		Parent:         parent,
		registers:      regs,
	}
}

// Register returns register i.
func (c *ExecutionContext) Register(i int) Value {
	return c.registers[i]
}

// SetRegister stores v in register i.
func (c *ExecutionContext) SetRegister(i int, v Value) {
	c.registers[i] = v
}

// Registers returns the context's register file.
func (c *ExecutionContext) Registers() []Value {
	return c.registers
}

// IP returns the offset of the next instruction to execute.
func (c *ExecutionContext) IP() int {
	return c.ip
}

// Depth returns the number of contexts from c to the bottom of the stack.
func (c *ExecutionContext) Depth() int {
	n := 0
	for ctx := c; ctx != nil; ctx = ctx.Parent {
		n++
	}
	return n
}

// faultOffset is the offset of the instruction the context last executed,
// which is what catch tables are matched against.
func (c *ExecutionContext) faultOffset() int {
	return c.ip - 1
}
