package bytecode

import (
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every structural validation failure.
var ErrMalformed = errors.New("malformed bytecode")

// Validate checks the structural integrity of a unit and every unit nested
// inside it. A unit that passes validation never makes the runtime index a
// register, literal or nested code object out of range.
func Validate(u *Unit) error {
	return validateUnit(u, "")
}

func validateUnit(u *Unit, parent string) error {
	if u == nil {
		return fmt.Errorf("%w: %snil code object", ErrMalformed, parent)
	}
	path := parent + u.Name

	malformed := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrMalformed, path, fmt.Sprintf(format, args...))
	}

	if u.Arguments < 0 || u.RequiredArguments < 0 {
		return malformed("negative argument count")
	}
	if u.RequiredArguments > u.Arguments {
		return malformed("requires %d arguments but only declares %d", u.RequiredArguments, u.Arguments)
	}
	if u.Locals < u.FixedSlots() {
		return malformed("%d locals cannot hold %d parameter slots", u.Locals, u.FixedSlots())
	}
	if u.Registers < 0 {
		return malformed("negative register count")
	}

	for i, in := range u.Instructions {
		if err := validateInstruction(u, in); err != nil {
			return malformed("instruction %d (%s): %v", i, in.Op, err)
		}
	}

	for i, c := range u.CatchTable {
		switch {
		case c.Start < 0 || c.Start > c.End || c.End > len(u.Instructions):
			return malformed("catch entry %d: invalid range [%d, %d)", i, c.Start, c.End)
		case c.Jump < 0 || c.Jump > len(u.Instructions):
			return malformed("catch entry %d: jump %d out of range", i, c.Jump)
		case c.Register < 0 || c.Register >= u.Registers:
			return malformed("catch entry %d: register %d out of range", i, c.Register)
		}
	}

	for _, child := range u.Code {
		if err := validateUnit(child, path+"/"); err != nil {
			return err
		}
	}
	return nil
}

func validateInstruction(u *Unit, in Instruction) error {
	info, ok := GetOpcodeInfo(in.Op)
	if !ok {
		return errors.New("unknown opcode")
	}

	min := len(info.Operands) - info.Optional
	switch {
	case len(in.Args) < min:
		return fmt.Errorf("expected at least %d operands, got %d", min, len(in.Args))
	case !info.Variadic && len(in.Args) > len(info.Operands):
		return fmt.Errorf("expected at most %d operands, got %d", len(info.Operands), len(in.Args))
	}

	for i, arg := range in.Args {
		kind := OperandRegister
		if i < len(info.Operands) {
			kind = info.Operands[i]
		}
		if err := checkOperand(u, kind, arg); err != nil {
			return fmt.Errorf("operand %d: %w", i, err)
		}
	}
	return nil
}

func checkOperand(u *Unit, kind OperandKind, arg int) error {
	if arg < 0 {
		return fmt.Errorf("negative index %d", arg)
	}
	switch kind {
	case OperandRegister:
		if arg >= u.Registers {
			return fmt.Errorf("register %d out of range (%d registers)", arg, u.Registers)
		}
	case OperandLocal:
		// Parent bindings have layouts this unit cannot see; the runtime
		// bounds-checks every local access.
	case OperandLiteral:
		if arg >= len(u.Literals) {
			return fmt.Errorf("literal %d out of range", arg)
		}
	case OperandCode:
		if arg >= len(u.Code) {
			return fmt.Errorf("code object %d out of range", arg)
		}
	case OperandTarget:
		if arg > len(u.Instructions) {
			return fmt.Errorf("jump target %d out of range", arg)
		}
	case OperandDepth:
		if arg == 0 {
			return errors.New("parent depth must be at least 1")
		}
	}
	return nil
}
