package bytecode

import "fmt"

// Version is the current bytecode format version.
// Increment when making incompatible changes to the format.
const Version uint16 = 1

// Magic bytes for bytecode files: "SKBC" (SKein ByteCode)
var Magic = []byte{'S', 'K', 'B', 'C'}

// LiteralKind tags the variant stored in a Literal.
type LiteralKind uint8

const (
	LiteralNil LiteralKind = iota
	LiteralTrue
	LiteralFalse
	LiteralInt
	LiteralFloat
	LiteralString
)

// String returns a human-readable name for the kind.
func (k LiteralKind) String() string {
	switch k {
	case LiteralNil:
		return "nil"
	case LiteralTrue:
		return "true"
	case LiteralFalse:
		return "false"
	case LiteralInt:
		return "int"
	case LiteralFloat:
		return "float"
	case LiteralString:
		return "string"
	default:
		return fmt.Sprintf("LiteralKind(%d)", k)
	}
}

// Literal is a constant referenced by OpSetLiteral.
type Literal struct {
	Kind  LiteralKind `cbor:"1,keyasint"`
	Int   int64       `cbor:"2,keyasint,omitempty"`
	Float float64     `cbor:"3,keyasint,omitempty"`
	Str   string      `cbor:"4,keyasint,omitempty"`
}

// Int returns an integer literal.
func Int(v int64) Literal { return Literal{Kind: LiteralInt, Int: v} }

// Float returns a float literal.
func Float(v float64) Literal { return Literal{Kind: LiteralFloat, Float: v} }

// String returns a string literal.
func String(v string) Literal { return Literal{Kind: LiteralString, Str: v} }

// Bool returns the true or false literal.
func Bool(v bool) Literal {
	if v {
		return Literal{Kind: LiteralTrue}
	}
	return Literal{Kind: LiteralFalse}
}

// Nil returns the nil literal.
func Nil() Literal { return Literal{Kind: LiteralNil} }

// Instruction is a single register-based instruction.
type Instruction struct {
	Op   Opcode `cbor:"1,keyasint"`
	Args []int  `cbor:"2,keyasint,omitempty"`
	Line int    `cbor:"3,keyasint,omitempty"`
}

// Arg returns operand i, or -1 when the instruction has fewer operands.
func (in Instruction) Arg(i int) int {
	if i < 0 || i >= len(in.Args) {
		return -1
	}
	return in.Args[i]
}

// CatchEntry routes a throw raised by an instruction in [Start, End) to Jump,
// storing the thrown value in Register.
type CatchEntry struct {
	Start    int `cbor:"1,keyasint"`
	End      int `cbor:"2,keyasint"`
	Jump     int `cbor:"3,keyasint"`
	Register int `cbor:"4,keyasint"`
}

// Covers reports whether the entry protects the instruction at offset.
func (c CatchEntry) Covers(offset int) bool {
	return offset >= c.Start && offset < c.End
}

// Unit is the serialized form of one compiled code object.
type Unit struct {
	Name string `cbor:"1,keyasint"`
	Line int    `cbor:"2,keyasint,omitempty"`

	// Signature
	Arguments         int  `cbor:"3,keyasint,omitempty"` // fixed parameters
	RequiredArguments int  `cbor:"4,keyasint,omitempty"`
	RestArgument      bool `cbor:"5,keyasint,omitempty"`

	// Frame layout
	Locals    int `cbor:"6,keyasint,omitempty"`
	Registers int `cbor:"7,keyasint,omitempty"`

	Instructions []Instruction `cbor:"8,keyasint"`
	Literals     []Literal     `cbor:"9,keyasint,omitempty"`
	Code         []*Unit       `cbor:"10,keyasint,omitempty"`
	CatchTable   []CatchEntry  `cbor:"11,keyasint,omitempty"`
}

// NewUnit creates an empty unit with the given name.
func NewUnit(name string) *Unit {
	return &Unit{
		Name:         name,
		Instructions: make([]Instruction, 0, 16),
	}
}

// Emit appends an instruction and returns its offset.
// Registers referenced by the operands grow the register count as needed.
func (u *Unit) Emit(op Opcode, args ...int) int {
	offset := len(u.Instructions)
	u.Instructions = append(u.Instructions, Instruction{Op: op, Args: args})

	info, _ := GetOpcodeInfo(op)
	for i, a := range args {
		kind := OperandRegister
		if i < len(info.Operands) {
			kind = info.Operands[i]
		}
		if kind == OperandRegister && a >= u.Registers {
			u.Registers = a + 1
		}
	}
	return offset
}

// AddLiteral adds a literal to the pool and returns its index.
// If an identical literal already exists, returns the existing index.
func (u *Unit) AddLiteral(l Literal) int {
	for i, existing := range u.Literals {
		if existing == l {
			return i
		}
	}
	u.Literals = append(u.Literals, l)
	return len(u.Literals) - 1
}

// AddCode nests a code object and returns its index for OpSetBlock.
func (u *Unit) AddCode(child *Unit) int {
	u.Code = append(u.Code, child)
	return len(u.Code) - 1
}

// AddCatch protects instructions [start, end).
func (u *Unit) AddCatch(start, end, jump, register int) {
	u.CatchTable = append(u.CatchTable, CatchEntry{
		Start:    start,
		End:      end,
		Jump:     jump,
		Register: register,
	})
	if register >= u.Registers {
		u.Registers = register + 1
	}
}

// PatchTarget rewrites the jump target operand of the instruction at offset.
func (u *Unit) PatchTarget(offset, target int) {
	u.Instructions[offset].Args[0] = target
}

// CurrentOffset returns the offset the next emitted instruction will get.
func (u *Unit) CurrentOffset() int {
	return len(u.Instructions)
}

// FixedSlots returns the number of local slots the signature needs:
// one per fixed parameter plus one for the rest parameter.
func (u *Unit) FixedSlots() int {
	n := u.Arguments
	if u.RestArgument {
		n++
	}
	return n
}
