// Package bytecode defines the on-disk representation of compiled code for
// the skein runtime.
//
// A bytecode file holds one Unit: the serialized form of a compiled code
// object together with the code objects nested inside it (closures). The
// runtime treats a Unit as an immutable blob; it only interprets the handful
// of instructions the execution core needs.
//
// # File format
//
//	offset  size  field
//	0       4     magic "SKBC"
//	4       2     format version (big endian)
//	6       ...   CBOR-encoded Unit (canonical encoding)
//
// # Instructions
//
// Instructions are register based. Every operand is a 0-based index whose
// meaning depends on the opcode: a register of the current execution
// context, a local slot of the current binding, a literal, a nested code
// object or an instruction offset. See OpcodeInfo for the operand shapes.
//
// Use Validate before handing a decoded Unit to the runtime; Decode does
// this automatically.
package bytecode
