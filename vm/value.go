package vm

import (
	"fmt"
	"math"
	"strconv"
)

// Value is a register or local slot: a float64 bit pattern, with every
// other kind packed into the payload of a quiet NaN.
//
// Layout of a boxed value:
//
//	bits 63..51  sign clear, quiet NaN prefix (0x7FF8)
//	bits 50..48  tag: 1 object, 2 int, 3 nil/true/false
//	bits 47..0   payload: arena index, 48-bit two's complement int, or constant id
//
// An object payload indexes the arena of the process that allocated it and
// means nothing to any other process.
type Value uint64

const (
	quietNaN   uint64 = 0x7FF8_0000_0000_0000
	tagBits    uint64 = 0x0007_0000_0000_0000
	payload48  uint64 = 0x0000_FFFF_FFFF_FFFF
	expBits    uint64 = 0x7FF0_0000_0000_0000
	mantissa52 uint64 = 0x000F_FFFF_FFFF_FFFF

	tagObject   uint64 = 1 << 48
	tagInt      uint64 = 2 << 48
	tagConstant uint64 = 3 << 48

	int48Sign uint64 = 1 << 47
	int48High uint64 = 0xFFFF_0000_0000_0000
)

const (
	Nil   = Value(quietNaN | tagConstant | 0)
	True  = Value(quietNaN | tagConstant | 1)
	False = Value(quietNaN | tagConstant | 2)
)

// Bounds of the integers a Value holds without allocating.
const (
	MaxSmallInt int64 = 1<<47 - 1
	MinSmallInt int64 = -1 << 47
)

// ObjectRef indexes an object in a process heap.
type ObjectRef uint32

func (v Value) hasTag(tag uint64) bool {
	return uint64(v)&(quietNaN|tagBits) == quietNaN|tag
}

// IsFloat covers ordinary numbers, the infinities and untagged NaNs.
func (v Value) IsFloat() bool {
	bits := uint64(v)
	switch {
	case bits&expBits != expBits:
		return true
	case bits&mantissa52 == 0:
		return true
	case bits&quietNaN != quietNaN:
		return true
	}
	return bits&tagBits == 0
}

func (v Value) IsSmallInt() bool { return v.hasTag(tagInt) }
func (v Value) IsObject() bool   { return v.hasTag(tagObject) }
func (v Value) IsSpecial() bool  { return v.hasTag(tagConstant) }

func (v Value) IsNil() bool   { return v == Nil }
func (v Value) IsTrue() bool  { return v == True }
func (v Value) IsFalse() bool { return v == False }
func (v Value) IsBool() bool  { return v == True || v == False }

// IsTruthy reports whether a conditional branch takes v as true: anything
// except nil and false.
func (v Value) IsTruthy() bool { return !v.IsFalsy() }

func (v Value) IsFalsy() bool { return v == False || v == Nil }

// Float64 panics unless v.IsFloat().
func (v Value) Float64() float64 {
	if !v.IsFloat() {
		panic("vm: Float64 of non-float value " + v.String())
	}
	return math.Float64frombits(uint64(v))
}

func FromFloat64(f float64) Value {
	return Value(math.Float64bits(f))
}

// SmallInt panics unless v.IsSmallInt().
func (v Value) SmallInt() int64 {
	if !v.IsSmallInt() {
		panic("vm: SmallInt of non-integer value " + v.String())
	}
	n := uint64(v) & payload48
	if n&int48Sign != 0 {
		n |= int48High
	}
	return int64(n)
}

// FromSmallInt panics when n does not fit in 48 bits; use TryFromSmallInt
// for values that come from outside the VM.
func FromSmallInt(n int64) Value {
	v, ok := TryFromSmallInt(n)
	if !ok {
		panic("vm: integer " + strconv.FormatInt(n, 10) + " does not fit a small int")
	}
	return v
}

func TryFromSmallInt(n int64) (Value, bool) {
	if n < MinSmallInt || n > MaxSmallInt {
		return Nil, false
	}
	return Value(quietNaN | tagInt | uint64(n)&payload48), true
}

// Ref panics unless v.IsObject().
func (v Value) Ref() ObjectRef {
	if !v.IsObject() {
		panic("vm: Ref of non-object value " + v.String())
	}
	return ObjectRef(uint64(v) & payload48)
}

func FromRef(ref ObjectRef) Value {
	return Value(quietNaN | tagObject | uint64(ref))
}

// Bool panics unless v.IsBool().
func (v Value) Bool() bool {
	if !v.IsBool() {
		panic("vm: Bool of non-boolean value " + v.String())
	}
	return v == True
}

func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// String is used by logs and the disassembler. Objects print as their
// arena index.
func (v Value) String() string {
	switch {
	case v == Nil:
		return "nil"
	case v == True:
		return "true"
	case v == False:
		return "false"
	case v.IsSmallInt():
		return strconv.FormatInt(v.SmallInt(), 10)
	case v.IsObject():
		return fmt.Sprintf("object#%d", v.Ref())
	case v.IsFloat():
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	}
	return fmt.Sprintf("Value(%#016x)", uint64(v))
}
