package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// LexError is a malformed token. Line and Col are 1-based.
type LexError struct {
	Source string
	Line   int
	Col    int
	Msg    string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", sourceName(e.Source), e.Line, e.Col, e.Msg)
}

// ParseError is a syntax or scoping error. Line and Col are 1-based.
type ParseError struct {
	Source string
	Line   int
	Col    int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", sourceName(e.Source), e.Line, e.Col, e.Msg)
}

func sourceName(name string) string {
	if name == "" {
		return "<input>"
	}
	return name
}

// FormatError renders lex and parse errors as a snippet of src with a caret
// under the offending column. Other errors are rendered with Error().
func FormatError(err error, src string) string {
	var (
		header    string
		line, col int
		msg, name string
	)
	var lexErr *LexError
	var parseErr *ParseError
	switch {
	case errors.As(err, &lexErr):
		header, line, col, msg, name = "lex error", lexErr.Line, lexErr.Col, lexErr.Msg, lexErr.Source
	case errors.As(err, &parseErr):
		header, line, col, msg, name = "parse error", parseErr.Line, parseErr.Col, parseErr.Msg, parseErr.Source
	default:
		return err.Error()
	}

	lines := strings.Split(src, "\n")
	if line < 1 {
		line = 1
	}
	if line > len(lines) {
		line = len(lines)
	}
	if col < 1 {
		col = 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s in %s at %d:%d: %s\n", header, sourceName(name), line, col, msg)
	if line > 1 {
		fmt.Fprintf(&b, "%4d | %s\n", line-1, lines[line-2])
	}
	fmt.Fprintf(&b, "%4d | %s\n", line, lines[line-1])
	fmt.Fprintf(&b, "     | %s^", strings.Repeat(" ", col-1))
	return b.String()
}
