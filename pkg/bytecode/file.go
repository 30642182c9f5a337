package bytecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// HeaderSize is the size of the magic plus version prefix.
const HeaderSize = 6

var (
	ErrInvalidMagic    = errors.New("invalid magic number: expected SKBC")
	ErrVersionMismatch = errors.New("bytecode version mismatch")
)

// cborEncMode uses canonical options so identical units always encode to
// identical bytes.
var cborEncMode cbor.EncMode

// cborDecMode bounds nesting so a hostile file cannot exhaust the stack.
var cborDecMode cbor.DecMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{MaxNestedLevels: 256}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// Marshal serializes a unit, including its header, to bytes.
func Marshal(u *Unit) ([]byte, error) {
	body, err := cborEncMode.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("bytecode: marshal %s: %w", u.Name, err)
	}
	buf := make([]byte, HeaderSize, HeaderSize+len(body))
	copy(buf, Magic)
	binary.BigEndian.PutUint16(buf[4:], Version)
	return append(buf, body...), nil
}

// Unmarshal deserializes and validates a unit.
func Unmarshal(data []byte) (*Unit, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: file is %d bytes", ErrMalformed, len(data))
	}
	if !bytes.Equal(data[:4], Magic) {
		return nil, ErrInvalidMagic
	}
	if v := binary.BigEndian.Uint16(data[4:6]); v != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, v, Version)
	}

	var u Unit
	if err := cborDecMode.Unmarshal(data[HeaderSize:], &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := Validate(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Encode writes a unit to w.
func Encode(w io.Writer, u *Unit) error {
	data, err := Marshal(u)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Decode reads a unit from r.
func Decode(r io.Reader) (*Unit, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read bytecode: %w", err)
	}
	return Unmarshal(data)
}

// ReadFile loads and validates the unit stored at path.
func ReadFile(path string) (*Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	u, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return u, nil
}

// WriteFile stores u at path.
func WriteFile(path string, u *Unit) error {
	data, err := Marshal(u)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
