package core

import (
	"fmt"
)

// ErrorKind classifies a failed array operation.
type ErrorKind uint8

const (
	KindBounds       ErrorKind = iota + 1 // index or count outside [0, length]
	KindDimOverflow                       // dimension product does not fit
	KindSizeOverflow                      // shape fits but the byte size does not
	KindUndefRef                          // read of a never-assigned reference slot
	KindSharedResize                      // structural change of a shared buffer
	KindType                              // value does not match the element type
	KindOutOfMemory                       // an allocation step failed
	KindArgument                          // malformed request (bad dims, misaligned pointer, ...)
	KindConcurrency                       // racing use of a destructive operation
)

var kindNames = [...]string{
	KindBounds:       "BoundsError",
	KindDimOverflow:  "DimensionError",
	KindSizeOverflow: "SizeError",
	KindUndefRef:     "UndefRefError",
	KindSharedResize: "SharedResizeError",
	KindType:         "TypeError",
	KindOutOfMemory:  "OutOfMemoryError",
	KindArgument:     "ArgumentError",
	KindConcurrency:  "ConcurrencyViolation",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// Error is the error type returned by every array operation.
type Error struct {
	Kind  ErrorKind
	Op    string // operation that failed, e.g. "grow_at"
	Index int    // offending index, -1 when not applicable
	Msg   string
	Cause error // underlying cause, if any
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s += " in " + e.Op
	}
	if e.Index >= 0 {
		s += fmt.Sprintf(" at index %d", e.Index)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Message() string { return e.Msg }
func (e *Error) Unwrap() error   { return e.Cause }

// Is matches any *Error of the same kind, so errors.Is(err, ErrBounds) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// CausedBy attaches an underlying cause.
func (e *Error) CausedBy(cause error) *Error {
	e.Cause = cause
	return e
}

// Sentinels for errors.Is.
var (
	ErrBounds       = &Error{Kind: KindBounds, Index: -1}
	ErrDimOverflow  = &Error{Kind: KindDimOverflow, Index: -1}
	ErrSizeOverflow = &Error{Kind: KindSizeOverflow, Index: -1}
	ErrUndefRef     = &Error{Kind: KindUndefRef, Index: -1}
	ErrSharedResize = &Error{Kind: KindSharedResize, Index: -1}
	ErrType         = &Error{Kind: KindType, Index: -1}
	ErrOutOfMemory  = &Error{Kind: KindOutOfMemory, Index: -1}
	ErrArgument     = &Error{Kind: KindArgument, Index: -1}
	ErrConcurrency  = &Error{Kind: KindConcurrency, Index: -1}
)

// BoundsError reports an out-of-range index.
func BoundsError(op string, index int) *Error {
	return &Error{Kind: KindBounds, Op: op, Index: index}
}

// Errorf builds an *Error of the given kind with no index.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Index: -1, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) ErrorKind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0
		}
		err = u.Unwrap()
	}
	return 0
}
