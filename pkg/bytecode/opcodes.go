package bytecode

import "fmt"

// Opcode identifies a register-based instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode uint8

const (
	// ========================================================================
	// Values (0x00-0x0F)
	// ========================================================================

	OpNop        Opcode = 0x00 // No operation
	OpSetLiteral Opcode = 0x01 // dest, literal
	OpSetArray   Opcode = 0x02 // dest, values...

	// ========================================================================
	// Bindings (0x10-0x1F)
	// ========================================================================

	OpGetLocal       Opcode = 0x10 // dest, slot
	OpSetLocal       Opcode = 0x11 // slot, src
	OpGetParentLocal Opcode = 0x12 // dest, depth, slot

	// ========================================================================
	// Blocks and control flow (0x20-0x2F)
	// ========================================================================

	OpSetBlock    Opcode = 0x20 // dest, code
	OpRunBlock    Opcode = 0x21 // dest, block, args...
	OpReturn      Opcode = 0x22 // [src]
	OpThrow       Opcode = 0x23 // src
	OpGoto        Opcode = 0x24 // target
	OpGotoIfFalse Opcode = 0x25 // target, reg

	// ========================================================================
	// Code loading (0x30-0x3F)
	// ========================================================================

	OpParseFile  Opcode = 0x30 // dest, path
	OpFileParsed Opcode = 0x31 // dest, path

	// ========================================================================
	// Processes (0x40-0x4F)
	// ========================================================================

	OpProcessSuspend   Opcode = 0x40 // yield the rest of the slice
	OpProcessSpawn     Opcode = 0x41 // dest, block
	OpProcessPin       Opcode = 0x42 // pin to the current worker
	OpProcessUnpin     Opcode = 0x43 // release the pin
	OpProcessTerminate Opcode = 0x44 // stop the current process
)

// OperandKind describes what an operand index refers to.
type OperandKind uint8

const (
	OperandRegister OperandKind = iota
	OperandLocal
	OperandLiteral
	OperandCode
	OperandTarget
	OperandDepth
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name string // Human-readable name

	// Operands lists the fixed operands in order.
	Operands []OperandKind

	// Optional is the number of trailing fixed operands that may be omitted.
	Optional int

	// Variadic is true when any number of extra register operands may follow.
	Variadic bool
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop:        {Name: "NOP"},
	OpSetLiteral: {Name: "SET_LITERAL", Operands: []OperandKind{OperandRegister, OperandLiteral}},
	OpSetArray:   {Name: "SET_ARRAY", Operands: []OperandKind{OperandRegister}, Variadic: true},

	OpGetLocal:       {Name: "GET_LOCAL", Operands: []OperandKind{OperandRegister, OperandLocal}},
	OpSetLocal:       {Name: "SET_LOCAL", Operands: []OperandKind{OperandLocal, OperandRegister}},
	OpGetParentLocal: {Name: "GET_PARENT_LOCAL", Operands: []OperandKind{OperandRegister, OperandDepth, OperandLocal}},

	OpSetBlock:    {Name: "SET_BLOCK", Operands: []OperandKind{OperandRegister, OperandCode}},
	OpRunBlock:    {Name: "RUN_BLOCK", Operands: []OperandKind{OperandRegister, OperandRegister}, Variadic: true},
	OpReturn:      {Name: "RETURN", Operands: []OperandKind{OperandRegister}, Optional: 1},
	OpThrow:       {Name: "THROW", Operands: []OperandKind{OperandRegister}},
	OpGoto:        {Name: "GOTO", Operands: []OperandKind{OperandTarget}},
	OpGotoIfFalse: {Name: "GOTO_IF_FALSE", Operands: []OperandKind{OperandTarget, OperandRegister}},

	OpParseFile:  {Name: "PARSE_FILE", Operands: []OperandKind{OperandRegister, OperandRegister}},
	OpFileParsed: {Name: "FILE_PARSED", Operands: []OperandKind{OperandRegister, OperandRegister}},

	OpProcessSuspend:   {Name: "PROCESS_SUSPEND"},
	OpProcessSpawn:     {Name: "PROCESS_SPAWN", Operands: []OperandKind{OperandRegister, OperandRegister}},
	OpProcessPin:       {Name: "PROCESS_PIN"},
	OpProcessUnpin:     {Name: "PROCESS_UNPIN"},
	OpProcessTerminate: {Name: "PROCESS_TERMINATE"},
}

// GetOpcodeInfo returns metadata for an opcode.
// Unknown opcodes get a placeholder name and ok set to false.
func GetOpcodeInfo(op Opcode) (OpcodeInfo, bool) {
	info, ok := opcodeInfoTable[op]
	if !ok {
		return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", uint8(op))}, false
	}
	return info, true
}

// String returns the opcode's mnemonic.
func (op Opcode) String() string {
	info, _ := GetOpcodeInfo(op)
	return info.Name
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// IsJump returns true if this opcode transfers control inside a code object.
func (op Opcode) IsJump() bool {
	return op == OpGoto || op == OpGotoIfFalse
}

// AllOpcodes returns a slice of all defined opcodes.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}
