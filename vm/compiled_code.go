package vm

import (
	"fmt"

	"github.com/chazu/skein/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// CompiledCode: immutable executable form of a bytecode unit
// ---------------------------------------------------------------------------

// CompiledCode is one compiled code object: a file's top level or a block
// nested inside it. It is never modified after construction and may be
// shared by any number of blocks and processes.
type CompiledCode struct {
	// Identity
	Name string
	File string // file the code was loaded from (empty for in-memory code)
	Line int

	// Signature
	Arguments         int  // fixed parameters, excluding the rest parameter
	RequiredArguments int  // fixed parameters without a default
	RestArgument      bool // extra arguments are packed into local slot Arguments

	// Frame layout
	Locals    int
	Registers int

	Instructions []bytecode.Instruction
	Literals     []bytecode.Literal
	Code         []*CompiledCode // nested code objects, referenced by OpSetBlock
	CatchTable   []bytecode.CatchEntry
}

// CompiledCodeFromUnit validates a decoded unit and converts it, with every
// nested unit, into CompiledCode. file is recorded for diagnostics.
func CompiledCodeFromUnit(u *bytecode.Unit, file string) (*CompiledCode, error) {
	if err := bytecode.Validate(u); err != nil {
		return nil, err
	}
	return convertUnit(u, file), nil
}

func convertUnit(u *bytecode.Unit, file string) *CompiledCode {
	c := &CompiledCode{
		Name:              u.Name,
		File:              file,
		Line:              u.Line,
		Arguments:         u.Arguments,
		RequiredArguments: u.RequiredArguments,
		RestArgument:      u.RestArgument,
		Locals:            u.Locals,
		Registers:         u.Registers,
		Instructions:      append([]bytecode.Instruction(nil), u.Instructions...),
		Literals:          append([]bytecode.Literal(nil), u.Literals...),
		CatchTable:        append([]bytecode.CatchEntry(nil), u.CatchTable...),
	}
	if len(u.Code) > 0 {
		c.Code = make([]*CompiledCode, len(u.Code))
		for i, child := range u.Code {
			c.Code[i] = convertUnit(child, file)
		}
	}
	return c
}

// Validate runs the bytecode checks on c and its nested code objects.
// Code built by CompiledCodeFromUnit always passes; code assembled by hand
// must pass before it may run.
func (c *CompiledCode) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil code object", bytecode.ErrMalformed)
	}
	return bytecode.Validate(c.unit())
}

// unit returns a view of c as a bytecode unit. Slices are shared.
func (c *CompiledCode) unit() *bytecode.Unit {
	if c == nil {
		return nil
	}
	u := &bytecode.Unit{
		Name:              c.Name,
		Line:              c.Line,
		Arguments:         c.Arguments,
		RequiredArguments: c.RequiredArguments,
		RestArgument:      c.RestArgument,
		Locals:            c.Locals,
		Registers:         c.Registers,
		Instructions:      c.Instructions,
		Literals:          c.Literals,
		CatchTable:        c.CatchTable,
	}
	if len(c.Code) > 0 {
		u.Code = make([]*bytecode.Unit, len(c.Code))
		for i, child := range c.Code {
			u.Code[i] = child.unit()
		}
	}
	return u
}

// FixedSlots returns the number of locals the signature occupies.
func (c *CompiledCode) FixedSlots() int {
	if c.RestArgument {
		return c.Arguments + 1
	}
	return c.Arguments
}

// catchEntry returns the innermost catch entry covering offset. Entries are
// stored innermost first, so the first match wins.
func (c *CompiledCode) catchEntry(offset int) (bytecode.CatchEntry, bool) {
	for _, e := range c.CatchTable {
		if e.Covers(offset) {
			return e, true
		}
	}
	return bytecode.CatchEntry{}, false
}

// String returns the name used in diagnostics.
func (c *CompiledCode) String() string {
	if c.File == "" {
		return c.Name
	}
	return c.File + ":" + c.Name
}
