package vm

import (
	"fmt"
)

// ErrorKind classifies runtime failures.
type ErrorKind int

const (
	ErrTypeMismatch ErrorKind = iota + 1
	ErrInvalidParamCount
	ErrInvalidParamType
	ErrNotCallable
	ErrMissingMember
	ErrConstAssign
	ErrDivideByZero
	ErrBadOperand
	ErrStackOverflow
)

var errorKindNames = map[ErrorKind]string{
	ErrTypeMismatch:      "type mismatch",
	ErrInvalidParamCount: "invalid parameter count",
	ErrInvalidParamType:  "invalid parameter type",
	ErrNotCallable:       "not callable",
	ErrMissingMember:     "missing member",
	ErrConstAssign:       "assignment to const",
	ErrDivideByZero:      "division by zero",
	ErrBadOperand:        "bad operand",
	ErrStackOverflow:     "stack overflow",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error lets a bare kind serve as an errors.Is target.
func (k ErrorKind) Error() string {
	return k.String()
}

// RuntimeError is a failure raised while executing bytecode.
type RuntimeError struct {
	Kind     ErrorKind
	Message  string
	Function string
	Source   string
	Line     int
}

func (e *RuntimeError) Error() string {
	loc := e.Source
	if loc == "" {
		loc = "<unknown>"
	}
	if e.Function != "" {
		return fmt.Sprintf("%s:%d: in %s: %s: %s", loc, e.Line, e.Function, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s:%d: %s: %s", loc, e.Line, e.Kind, e.Message)
}

// Is matches another *RuntimeError or an ErrorKind of the same kind.
func (e *RuntimeError) Is(target error) bool {
	switch t := target.(type) {
	case ErrorKind:
		return e.Kind == t
	case *RuntimeError:
		return e.Kind == t.Kind
	}
	return false
}

func newError(kind ErrorKind, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
