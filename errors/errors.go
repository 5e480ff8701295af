// Package errors provides a common error type for fsarchiver-go.
// Errors carry a Kind, an optional message and an optional wrapped
// cause, and chain together to form a single printable error.
package errors

import (
	"fmt"
	"strings"
)

// Kind classifies the error so that callers can branch on it without
// string matching.
type Kind int

const (
	Other Kind = iota
	Canceled
	Invalid
	NotExist
	OOM
	Corrupt
	WrongType
	NotFound
	MissingKey
	LengthMismatch
	EndOfQueue
	TooManyTries
	Timeout
	maxKind
)

var kindText = [maxKind]string{
	Other:          "error",
	Canceled:       "operation canceled",
	Invalid:        "invalid argument",
	NotExist:       "does not exist",
	OOM:            "out of memory",
	Corrupt:        "data corruption",
	WrongType:      "wrong item type",
	NotFound:       "not found",
	MissingKey:     "missing key",
	LengthMismatch: "length mismatch",
	EndOfQueue:     "end of queue",
	TooManyTries:   "too many tries",
	Timeout:        "timeout",
}

func (k Kind) String() string {
	if k < 0 || k >= maxKind {
		return "unknown error kind"
	}
	return kindText[k]
}

// Error is the concrete error type returned by E. Errors chain through
// Err: Error() prints the full chain, separated by ": ".
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// E constructs an *Error from its arguments. Arguments are interpreted by
// type: a Kind sets the error's kind, a string is appended to the
// message (space-separated), an error sets the wrapped cause. If no Kind
// is given but the wrapped error is itself an *Error, the new error
// inherits its kind.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("errors.E: no args")
	}
	e := new(Error)
	var msg strings.Builder
	for _, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case string:
			if msg.Len() > 0 {
				msg.WriteString(" ")
			}
			msg.WriteString(arg)
		case *Error:
			cp := *arg
			e.Err = &cp
		case error:
			e.Err = arg
		default:
			return &Error{Kind: Invalid, Message: fmt.Sprintf("errors.E: bad arg type %T", arg)}
		}
	}
	e.Message = msg.String()
	if e.Kind == Other {
		if prev, ok := e.Err.(*Error); ok {
			e.Kind = prev.Kind
		}
	}
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Kind != Other {
		b.WriteString(e.Kind.String())
		if e.Message != "" || e.Err != nil {
			b.WriteString(": ")
		}
	}
	if e.Message != "" {
		b.WriteString(e.Message)
		if e.Err != nil {
			b.WriteString(": ")
		}
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	if b.Len() == 0 {
		return "error"
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether err (or any error in its chain) has the given kind.
func Is(kind Kind, err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Err
			continue
		}
		if u, ok := err.(interface{ Unwrap() error }); ok {
			err = u.Unwrap()
			continue
		}
		return false
	}
	return false
}

// Recover converts any error into an *Error, wrapping it with Kind Other
// if it is not already one.
func Recover(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Kind: Other, Err: err}
}
