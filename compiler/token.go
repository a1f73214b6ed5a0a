package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Piccolo lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42
	TokenFloat      // 3.14, 1.5e10
	TokenString     // "hello"
	TokenIdentifier // foo, Bar

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenComma     // ,
	TokenDot       // .
	TokenSemicolon // ;

	// Operators
	TokenAssign       // =
	TokenPlus         // +
	TokenMinus        // -
	TokenStar         // *
	TokenSlash        // /
	TokenPercent      // %
	TokenBang         // !
	TokenEqual        // ==
	TokenNotEqual     // !=
	TokenLess         // <
	TokenLessEqual    // <=
	TokenGreater      // >
	TokenGreaterEqual // >=
	TokenAnd          // and, &&
	TokenOr           // or, ||
	TokenAmp          // &
	TokenPipe         // |
	TokenCaret        // ^
	TokenShiftLeft    // <<
	TokenShiftRight   // >>
	TokenDotDot       // ..
	TokenDotDotDot    // ...

	// Reserved words
	TokenLet
	TokenFn
	TokenReturn
	TokenIf
	TokenElse
	TokenWhile
	TokenClass
	TokenSelf
	TokenNil
	TokenTrue
	TokenFalse
	TokenFor
	TokenIn
)

var tokenNames = map[TokenType]string{
	TokenEOF:          "EOF",
	TokenError:        "ERROR",
	TokenInteger:      "INTEGER",
	TokenFloat:        "FLOAT",
	TokenString:       "STRING",
	TokenIdentifier:   "IDENTIFIER",
	TokenLParen:       "(",
	TokenRParen:       ")",
	TokenLBrace:       "{",
	TokenRBrace:       "}",
	TokenComma:        ",",
	TokenDot:          ".",
	TokenSemicolon:    ";",
	TokenAssign:       "=",
	TokenPlus:         "+",
	TokenMinus:        "-",
	TokenStar:         "*",
	TokenSlash:        "/",
	TokenPercent:      "%",
	TokenBang:         "!",
	TokenEqual:        "==",
	TokenNotEqual:     "!=",
	TokenLess:         "<",
	TokenLessEqual:    "<=",
	TokenGreater:      ">",
	TokenGreaterEqual: ">=",
	TokenAnd:          "and",
	TokenOr:           "or",
	TokenAmp:          "&",
	TokenPipe:         "|",
	TokenCaret:        "^",
	TokenShiftLeft:    "<<",
	TokenShiftRight:   ">>",
	TokenDotDot:       "..",
	TokenDotDotDot:    "...",
	TokenLet:          "let",
	TokenFn:           "fn",
	TokenReturn:       "return",
	TokenIf:           "if",
	TokenElse:         "else",
	TokenWhile:        "while",
	TokenClass:        "class",
	TokenSelf:         "self",
	TokenNil:          "nil",
	TokenTrue:         "true",
	TokenFalse:        "false",
	TokenFor:          "for",
	TokenIn:           "in",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text, or the decoded value for strings
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"let":    TokenLet,
	"fn":     TokenFn,
	"return": TokenReturn,
	"if":     TokenIf,
	"else":   TokenElse,
	"while":  TokenWhile,
	"class":  TokenClass,
	"self":   TokenSelf,
	"nil":    TokenNil,
	"true":   TokenTrue,
	"false":  TokenFalse,
	"and":    TokenAnd,
	"or":     TokenOr,
	"for":    TokenFor,
	"in":     TokenIn,
}

// IsReserved reports whether name is a reserved word.
func IsReserved(name string) bool {
	_, ok := reservedWords[name]
	return ok
}
