package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalid is returned for a bad handle, argument or malformed merge input.
	ErrInvalid = errors.New("invalid argument")
	// ErrNoEnt is returned when a handle is not found or was already released.
	ErrNoEnt = errors.New("no such handle")
	// ErrNoMem is returned when allocation or handle space is exhausted.
	ErrNoMem = errors.New("out of memory")
	// ErrAlready is returned on duplicate registration of a unique resource.
	ErrAlready = errors.New("already registered")
	// ErrTimeout is returned when a wait expires without a signal.
	ErrTimeout = errors.New("timed out")

	// ErrAlreadySignaled is returned when signaling an object that left ACTIVE.
	ErrAlreadySignaled = fmt.Errorf("object already signaled: %w", ErrInvalid)
	// ErrSessionClosed is returned for operations on a torn down session.
	ErrSessionClosed = fmt.Errorf("session closed: %w", ErrInvalid)
)

// Code is the result code surfaced to collaborating domains.
type Code int

const (
	CodeSuccess Code = iota
	CodeInvalid
	CodeNoEnt
	CodeNoMem
	CodeAlready
	CodeTimeout
)

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "SUCCESS"
	case CodeInvalid:
		return "INVALID"
	case CodeNoEnt:
		return "NOENT"
	case CodeNoMem:
		return "NOMEM"
	case CodeAlready:
		return "ALREADY"
	case CodeTimeout:
		return "TIMEOUT"
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// CodeOf maps err onto a result code. Errors outside the taxonomy map to CodeInvalid.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeSuccess
	case errors.Is(err, ErrNoEnt):
		return CodeNoEnt
	case errors.Is(err, ErrNoMem):
		return CodeNoMem
	case errors.Is(err, ErrAlready):
		return CodeAlready
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeInvalid
	}
}

// OpError records the operation and handle that failed.
type OpError struct {
	Op     string
	Handle Handle
	Err    error
}

func (e *OpError) Error() string {
	if e.Handle != 0 {
		return fmt.Sprintf("%s %d: %v", e.Op, uint32(e.Handle), e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError wraps err with the failing operation. A nil err yields nil.
func NewOpError(op string, h Handle, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Handle: h, Err: err}
}
