package vm

import (
	"fmt"
	"strings"
)

// ErrorKind classifies script failures.
type ErrorKind int

const (
	LexError ErrorKind = iota + 1
	ParseError
	TypeError
	NameError
	ArityError
	UnknownMethodError
	DivideByZeroError
	GCInternalError
	NativeError
	StackOverflowError
	StepLimitError
)

var errorKindNames = map[ErrorKind]string{
	LexError:           "LexError",
	ParseError:         "ParseError",
	TypeError:          "TypeError",
	NameError:          "NameError",
	ArityError:         "ArityError",
	UnknownMethodError: "UnknownMethodError",
	DivideByZeroError:  "DivideByZeroError",
	GCInternalError:    "GCInternalError",
	NativeError:        "NativeError",
	StackOverflowError: "StackOverflowError",
	StepLimitError:     "StepLimitError",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinels for errors.Is. A sentinel matches any *Error of its kind.
var (
	ErrLex           = &Error{Kind: LexError}
	ErrParse         = &Error{Kind: ParseError}
	ErrType          = &Error{Kind: TypeError}
	ErrName          = &Error{Kind: NameError}
	ErrArity         = &Error{Kind: ArityError}
	ErrUnknownMethod = &Error{Kind: UnknownMethodError}
	ErrDivideByZero  = &Error{Kind: DivideByZeroError}
	ErrGCInternal    = &Error{Kind: GCInternalError}
	ErrNative        = &Error{Kind: NativeError}
	ErrStackOverflow = &Error{Kind: StackOverflowError}
	ErrStepLimit     = &Error{Kind: StepLimitError}
)

// TraceEntry is one script frame active when an error was raised.
type TraceEntry struct {
	Function string
	Source   string
	Line     int
}

func (t TraceEntry) String() string {
	return fmt.Sprintf("%s (%s:%d)", t.Function, t.Source, t.Line)
}

// Error is a script failure surfaced to the host. Runtime errors carry the
// script stack, innermost frame first.
type Error struct {
	Kind    ErrorKind
	Message string
	Source  string
	Line    int
	Trace   []TraceEntry
	Err     error // underlying cause, e.g. a native's Go error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Line > 0 {
		fmt.Fprintf(&sb, " (%s:%d)", e.Source, e.Line)
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// FormatTrace renders the error followed by its script stack.
func (e *Error) FormatTrace() string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	for _, entry := range e.Trace {
		sb.WriteString("\n    at ")
		sb.WriteString(entry.String())
	}
	return sb.String()
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
