package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for Piccolo syntax
// ---------------------------------------------------------------------------

// Lexer tokenizes Piccolo source code.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // column of ch (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = l.readPos
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.position()
	if l.atEOF() {
		return Token{Type: TokenEOF, Pos: pos}
	}

	single := func(t TokenType) Token {
		lit := string(l.ch)
		l.readChar()
		return Token{Type: t, Literal: lit, Pos: pos}
	}
	double := func(next rune, two, one TokenType) Token {
		first := l.ch
		l.readChar()
		if l.ch == next {
			l.readChar()
			return Token{Type: two, Literal: string(first) + string(next), Pos: pos}
		}
		return Token{Type: one, Literal: string(first), Pos: pos}
	}

	switch ch := l.ch; {
	case ch == '(':
		return single(TokenLParen)
	case ch == ')':
		return single(TokenRParen)
	case ch == '{':
		return single(TokenLBrace)
	case ch == '}':
		return single(TokenRBrace)
	case ch == ',':
		return single(TokenComma)
	case ch == '.':
		return l.readDots(pos)
	case ch == ';':
		return single(TokenSemicolon)
	case ch == '+':
		return single(TokenPlus)
	case ch == '-':
		return single(TokenMinus)
	case ch == '*':
		return single(TokenStar)
	case ch == '/':
		return single(TokenSlash)
	case ch == '%':
		return single(TokenPercent)
	case ch == '=':
		return double('=', TokenEqual, TokenAssign)
	case ch == '!':
		return double('=', TokenNotEqual, TokenBang)
	case ch == '<' && l.peekChar() == '<':
		return double('<', TokenShiftLeft, TokenLess)
	case ch == '<':
		return double('=', TokenLessEqual, TokenLess)
	case ch == '>' && l.peekChar() == '>':
		return double('>', TokenShiftRight, TokenGreater)
	case ch == '>':
		return double('=', TokenGreaterEqual, TokenGreater)
	case ch == '&':
		return double('&', TokenAnd, TokenAmp)
	case ch == '|':
		return double('|', TokenOr, TokenPipe)
	case ch == '^':
		return single(TokenCaret)
	case ch == '"':
		return l.readString(pos)
	case isDigit(ch):
		return l.readNumber(pos)
	case isIdentStart(ch):
		return l.readIdentifier(pos)
	}

	bad := l.ch
	l.readChar()
	return Token{Type: TokenError, Literal: "unexpected character " + quoteRune(bad), Pos: pos}
}

// Tokenize returns all tokens up to and including EOF, stopping at the
// first error token.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return tokens
		}
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.atEOF():
			return
		case unicode.IsSpace(l.ch):
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		default:
			return
		}
	}
}

// readDots reads '.', '..' or '...'.
func (l *Lexer) readDots(pos Position) Token {
	n := 0
	for l.ch == '.' && n < 3 {
		l.readChar()
		n++
	}
	switch n {
	case 1:
		return Token{Type: TokenDot, Literal: ".", Pos: pos}
	case 2:
		return Token{Type: TokenDotDot, Literal: "..", Pos: pos}
	}
	return Token{Type: TokenDotDotDot, Literal: "...", Pos: pos}
}

// readString reads a double-quoted string literal. The token literal holds
// the decoded contents.
func (l *Lexer) readString(pos Position) Token {
	l.readChar() // opening quote
	var sb strings.Builder
	for {
		if l.atEOF() {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		}
		switch l.ch {
		case '"':
			l.readChar()
			return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '0':
				sb.WriteByte(0)
			case '\\', '"':
				sb.WriteRune(l.ch)
			default:
				if l.atEOF() {
					return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
				}
				return Token{Type: TokenError, Literal: "invalid escape \\" + string(l.ch), Pos: pos}
			}
			l.readChar()
		default:
			sb.WriteRune(l.ch)
			l.readChar()
		}
	}
}

// readNumber reads an integer or float literal. A '.' only continues the
// number when a digit follows it.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	isFloat := false
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		isFloat = true
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			isFloat = true
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			if !isDigit(l.ch) {
				return Token{Type: TokenError, Literal: "malformed exponent", Pos: pos}
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
	lit := l.input[start:l.pos]
	if isFloat {
		return Token{Type: TokenFloat, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenInteger, Literal: lit, Pos: pos}
}

func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if t, ok := reservedWords[lit]; ok {
		return Token{Type: t, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: lit, Pos: pos}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

func quoteRune(r rune) string {
	return "'" + string(r) + "'"
}
