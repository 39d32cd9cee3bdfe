package compiler

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrorKind classifies compile errors.
type ErrorKind int

const (
	ErrLexical ErrorKind = iota + 1
	ErrSyntax
	ErrSemantic
	ErrUnimplemented
	ErrInternal
)

var errorKindNames = map[ErrorKind]string{
	ErrLexical:       "lexical",
	ErrSyntax:        "syntax",
	ErrSemantic:      "semantic",
	ErrUnimplemented: "unimplemented",
	ErrInternal:      "internal",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error lets a bare kind serve as an errors.Is target.
func (k ErrorKind) Error() string {
	return k.String() + " error"
}

// Error is the first failure of a compile unit.
type Error struct {
	Kind    ErrorKind
	Message string
	File    string
	Pos     Position
	Line    string // the offending source line
	Check   string // internal check that raised the error
}

// Error renders the diagnostic: location and message, the source line, a
// caret under the failing column, and the raising check.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Summary())
	if e.Line != "" {
		b.WriteByte('\n')
		b.WriteString(e.Line)
		b.WriteByte('\n')
		col := e.Pos.Column - 1
		for i := 0; i < col && i < len(e.Line); i++ {
			if e.Line[i] == '\t' {
				b.WriteByte('\t')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteByte('^')
	}
	if e.Check != "" {
		fmt.Fprintf(&b, "\n(check: %s)", e.Check)
	}
	return b.String()
}

// Summary is the one-line form: file:line:col: kind error: message.
func (e *Error) Summary() string {
	file := e.File
	if file == "" {
		file = "<input>"
	}
	return fmt.Sprintf("%s:%d:%d: %s error: %s", file, e.Pos.Line, e.Pos.Column, e.Kind.String(), e.Message)
}

// Is matches an ErrorKind or another *Error of the same kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case ErrorKind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// sourceLine extracts the line of src containing offset.
func sourceLine(src string, offset int) string {
	if offset > len(src) {
		offset = len(src)
	}
	start := strings.LastIndexByte(src[:offset], '\n') + 1
	end := strings.IndexByte(src[offset:], '\n')
	if end < 0 {
		end = len(src)
	} else {
		end += offset
	}
	return strings.TrimRight(src[start:end], "\r")
}

// callerCheck names the compiler function skip frames above the caller.
func callerCheck(skip int) string {
	pc, _, _, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return ""
	}
	name := fn.Name()
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// abort carries a fatal error out of deep recursion; Compile recovers it.
type abort struct {
	err *Error
}
