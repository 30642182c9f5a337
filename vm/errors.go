package vm

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrTooManyArguments = errors.New("too many arguments")
	ErrTooFewArguments  = errors.New("too few arguments")
	ErrRegistryClosed   = errors.New("bytecode file registry is closed")
	ErrTracerPoolClosed = errors.New("tracer pool is closed")
	ErrVMNotStarted     = errors.New("vm is not started")
	ErrVMShutdown       = errors.New("vm is shut down")
)

// ArityError reports a block invoked with the wrong number of arguments.
// It is thrown inside the invoking process and can be caught there.
type ArityError struct {
	Block    string // name of the invoked code object
	Given    int
	Expected int // upper bound for too many, lower bound for too few
	Reason   error
}

func (e *ArityError) Error() string {
	if e.Reason == ErrTooManyArguments {
		return fmt.Sprintf("%s accepts up to %d arguments, but %d arguments were given",
			e.Block, e.Expected, e.Given)
	}
	return fmt.Sprintf("%s requires %d arguments, but %d arguments were given",
		e.Block, e.Expected, e.Given)
}

// Unwrap makes errors.Is(err, ErrTooManyArguments) and friends work.
func (e *ArityError) Unwrap() error { return e.Reason }

// LoadError reports a bytecode file that could not be read or decoded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// InvariantError reports interpreter state that valid bytecode can never
// produce. It aborts the owning process but leaves the pool running.
type InvariantError struct {
	Op  string
	Err error
}

func (e *InvariantError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("internal invariant violated: %v", e.Err)
	}
	return fmt.Sprintf("internal invariant violated in %s: %v", e.Op, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }

func invariantf(op, format string, args ...any) *InvariantError {
	return &InvariantError{Op: op, Err: fmt.Errorf(format, args...)}
}

// PoolCorruption reports shared scheduler state that can no longer be
// trusted. The pool stops and the VM exits.
type PoolCorruption struct {
	Reason string
	Cause  any // recovered panic value or error, if any
}

func (e *PoolCorruption) Error() string {
	if e.Cause == nil {
		return "pool corruption: " + e.Reason
	}
	return fmt.Sprintf("pool corruption: %s: %v", e.Reason, e.Cause)
}

func (e *PoolCorruption) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}

// ThrownError is the result of a process that terminated with a throw no
// catch table handled.
type ThrownError struct {
	Value any // exported thrown value
}

func (e *ThrownError) Error() string {
	return fmt.Sprintf("uncaught throw: %v", e.Value)
}

// ErrorObject is the exported form of an error heap object.
type ErrorObject struct {
	Message string
}

func (e ErrorObject) Error() string { return e.Message }
