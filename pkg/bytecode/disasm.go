package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing for the unit and every unit
// nested inside it.
func (u *Unit) Disassemble() string {
	var sb strings.Builder
	u.disassemble(&sb, u.Name)
	return sb.String()
}

func (u *Unit) disassemble(sb *strings.Builder, path string) {
	sb.WriteString(fmt.Sprintf("; === %s ===\n", path))
	sb.WriteString(fmt.Sprintf("; Skein Bytecode v%d\n", Version))

	sig := fmt.Sprintf("; Arguments: %d (required %d)", u.Arguments, u.RequiredArguments)
	if u.RestArgument {
		sig += " +rest"
	}
	sb.WriteString(sig + "\n")
	sb.WriteString(fmt.Sprintf("; Locals: %d slots, Registers: %d\n", u.Locals, u.Registers))
	sb.WriteString("\n")

	if len(u.Literals) > 0 {
		sb.WriteString("; Literals:\n")
		for i, l := range u.Literals {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, formatLiteral(l)))
		}
		sb.WriteString("\n")
	}

	if len(u.CatchTable) > 0 {
		sb.WriteString("; Catch:\n")
		for _, c := range u.CatchTable {
			sb.WriteString(fmt.Sprintf(";   %04X..%04X -> %04X r%d\n", c.Start, c.End, c.Jump, c.Register))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("; Code:\n")
	for offset, in := range u.Instructions {
		line := u.DisassembleInstruction(offset)
		if in.Line > 0 {
			sb.WriteString(fmt.Sprintf("%04X  %-30s ; line %d\n", offset, line, in.Line))
		} else {
			sb.WriteString(fmt.Sprintf("%04X  %s\n", offset, line))
		}
	}

	for i, child := range u.Code {
		sb.WriteString("\n")
		child.disassemble(sb, fmt.Sprintf("%s/%d:%s", path, i, child.Name))
	}
}

// DisassembleInstruction returns a human-readable representation of a
// single instruction.
func (u *Unit) DisassembleInstruction(offset int) string {
	if offset < 0 || offset >= len(u.Instructions) {
		return "<end of code>"
	}
	in := u.Instructions[offset]
	info, _ := GetOpcodeInfo(in.Op)

	operands := make([]string, 0, len(in.Args))
	for i, arg := range in.Args {
		kind := OperandRegister
		if i < len(info.Operands) {
			kind = info.Operands[i]
		}
		operands = append(operands, formatOperand(kind, arg))
	}

	line := info.Name
	if len(operands) > 0 {
		line += " " + strings.Join(operands, ", ")
	}

	switch in.Op {
	case OpSetLiteral:
		if idx := in.Arg(1); idx >= 0 && idx < len(u.Literals) {
			line += " ; " + formatLiteral(u.Literals[idx])
		}
	case OpSetBlock:
		if idx := in.Arg(1); idx >= 0 && idx < len(u.Code) {
			line += " ; " + u.Code[idx].Name
		}
	}
	return line
}

func formatOperand(kind OperandKind, arg int) string {
	switch kind {
	case OperandLocal:
		return fmt.Sprintf("l%d", arg)
	case OperandLiteral:
		return fmt.Sprintf("#%d", arg)
	case OperandCode:
		return fmt.Sprintf("code%d", arg)
	case OperandTarget:
		return fmt.Sprintf("-> %04X", arg)
	case OperandDepth:
		return fmt.Sprintf("^%d", arg)
	default:
		return fmt.Sprintf("r%d", arg)
	}
}

func formatLiteral(l Literal) string {
	switch l.Kind {
	case LiteralInt:
		return fmt.Sprintf("%d", l.Int)
	case LiteralFloat:
		return fmt.Sprintf("%g", l.Float)
	case LiteralString:
		// Truncate long strings for readability
		display := l.Str
		if len(display) > 40 {
			display = display[:37] + "..."
		}
		return fmt.Sprintf("%q", display)
	default:
		return l.Kind.String()
	}
}
