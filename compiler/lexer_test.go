package compiler

import (
	"testing"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `( ) { } , . ; = + - * / % ! == != < <= > >= && ||`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenLBrace, "{"},
		{TokenRBrace, "}"},
		{TokenComma, ","},
		{TokenDot, "."},
		{TokenSemicolon, ";"},
		{TokenAssign, "="},
		{TokenPlus, "+"},
		{TokenMinus, "-"},
		{TokenStar, "*"},
		{TokenSlash, "/"},
		{TokenPercent, "%"},
		{TokenBang, "!"},
		{TokenEqual, "=="},
		{TokenNotEqual, "!="},
		{TokenLess, "<"},
		{TokenLessEqual, "<="},
		{TokenGreater, ">"},
		{TokenGreaterEqual, ">="},
		{TokenAnd, "&&"},
		{TokenOr, "||"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerReservedWords(t *testing.T) {
	input := "let fn return if else while class self nil true false and or for in lets inner"
	want := []TokenType{
		TokenLet, TokenFn, TokenReturn, TokenIf, TokenElse, TokenWhile, TokenClass,
		TokenSelf, TokenNil, TokenTrue, TokenFalse, TokenAnd, TokenOr, TokenFor, TokenIn,
		TokenIdentifier, TokenIdentifier, TokenEOF,
	}
	l := NewLexer(input)
	for i, typ := range want {
		tok := l.NextToken()
		if tok.Type != typ {
			t.Errorf("token[%d] = %v, want %v", i, tok.Type, typ)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		want  string
	}{
		{"42", TokenInteger, "42"},
		{"0", TokenInteger, "0"},
		{"3.14", TokenFloat, "3.14"},
		{"1e10", TokenFloat, "1e10"},
		{"2.5E-3", TokenFloat, "2.5E-3"},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok := l.NextToken()
		if tok.Type != tc.typ {
			t.Errorf("Lexer(%q): type = %v, want %v", tc.input, tok.Type, tc.typ)
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerDotAfterInteger(t *testing.T) {
	// "1.foo" is a field access on 1, not a malformed float.
	l := NewLexer("1.foo")
	want := []TokenType{TokenInteger, TokenDot, TokenIdentifier, TokenEOF}
	for i, typ := range want {
		if tok := l.NextToken(); tok.Type != typ {
			t.Errorf("token[%d] = %v, want %v", i, tok.Type, typ)
		}
	}
}

func TestLexerBitwiseAndRangeTokens(t *testing.T) {
	input := `a & b | c ^ d << 2 >> 1 < <= > >= && || 0..10 1...n x.y`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenIdentifier, "a"},
		{TokenAmp, "&"},
		{TokenIdentifier, "b"},
		{TokenPipe, "|"},
		{TokenIdentifier, "c"},
		{TokenCaret, "^"},
		{TokenIdentifier, "d"},
		{TokenShiftLeft, "<<"},
		{TokenInteger, "2"},
		{TokenShiftRight, ">>"},
		{TokenInteger, "1"},
		{TokenLess, "<"},
		{TokenLessEqual, "<="},
		{TokenGreater, ">"},
		{TokenGreaterEqual, ">="},
		{TokenAnd, "&&"},
		{TokenOr, "||"},
		{TokenInteger, "0"},
		{TokenDotDot, ".."},
		{TokenInteger, "10"},
		{TokenInteger, "1"},
		{TokenDotDotDot, "..."},
		{TokenIdentifier, "n"},
		{TokenIdentifier, "x"},
		{TokenDot, "."},
		{TokenIdentifier, "y"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ || tok.Literal != exp.lit {
			t.Errorf("token[%d] = %v %q, want %v %q", i, tok.Type, tok.Literal, exp.typ, exp.lit)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`""`, ""},
		{`"a\nb"`, "a\nb"},
		{`"tab\there"`, "tab\there"},
		{`"quote \" inside"`, `quote " inside`},
		{`"back\\slash"`, `back\slash`},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != TokenString {
			t.Errorf("Lexer(%s): type = %v, want STRING", tc.input, tok.Type)
			continue
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%s): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []string{
		`"unterminated`,
		`"bad \q escape"`,
		`@`,
		`a # b`,
		`1e+`,
	}
	for _, input := range tests {
		tokens := NewLexer(input).Tokenize()
		last := tokens[len(tokens)-1]
		if last.Type != TokenError {
			t.Errorf("Lexer(%q): last token = %v, want ERROR", input, last)
		}
	}
}

func TestLexerComments(t *testing.T) {
	input := "let x = 1; // trailing comment\n// whole line\nx"
	tokens := NewLexer(input).Tokenize()
	var types []TokenType
	for _, tok := range tokens {
		types = append(types, tok.Type)
	}
	want := []TokenType{TokenLet, TokenIdentifier, TokenAssign, TokenInteger, TokenSemicolon, TokenIdentifier, TokenEOF}
	if len(types) != len(want) {
		t.Fatalf("got %d tokens %v, want %d", len(types), types, len(want))
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("token[%d] = %v, want %v", i, types[i], want[i])
		}
	}
}

func TestLexerPositions(t *testing.T) {
	l := NewLexer("let\n  foo")
	first := l.NextToken()
	if first.Pos.Line != 1 || first.Pos.Column != 1 {
		t.Errorf("first token at %d:%d, want 1:1", first.Pos.Line, first.Pos.Column)
	}
	second := l.NextToken()
	if second.Pos.Line != 2 || second.Pos.Column != 3 {
		t.Errorf("second token at %d:%d, want 2:3", second.Pos.Line, second.Pos.Column)
	}
}
