package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser with precedence climbing for Piccolo
// ---------------------------------------------------------------------------

// Binding powers for binary operators, lowest first.
const (
	precNone = iota
	precOr
	precAnd
	precEquality
	precComparison
	precBitOr
	precBitXor
	precBitAnd
	precShift
	precTerm
	precFactor
)

var binaryPrecedence = map[TokenType]int{
	TokenOr:           precOr,
	TokenAnd:          precAnd,
	TokenEqual:        precEquality,
	TokenNotEqual:     precEquality,
	TokenLess:         precComparison,
	TokenLessEqual:    precComparison,
	TokenGreater:      precComparison,
	TokenGreaterEqual: precComparison,
	TokenPipe:         precBitOr,
	TokenCaret:        precBitXor,
	TokenAmp:          precBitAnd,
	TokenShiftLeft:    precShift,
	TokenShiftRight:   precShift,
	TokenPlus:         precTerm,
	TokenMinus:        precTerm,
	TokenStar:         precFactor,
	TokenSlash:        precFactor,
	TokenPercent:      precFactor,
}

// Parser parses Piccolo source code into an AST.
type Parser struct {
	lexer     *Lexer
	name      string
	curToken  Token
	peekToken Token
	prevToken Token
	errors    []error
	panicking bool
	depth     int // current nesting of statements and expressions
}

// MaxNestingDepth bounds how deeply statements and expressions may nest.
// Later passes recurse over the tree, so the bound keeps them off the
// limit of the Go stack.
const MaxNestingDepth = 1000

// NewParser creates a new parser for the given input. name is used in
// error messages.
func NewParser(name, input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
		name:  name,
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token. Lexical errors are recorded as they
// reach the current position and skipped.
func (p *Parser) nextToken() {
	p.prevToken = p.curToken
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
	for p.curToken.Type == TokenError {
		p.errors = append(p.errors, &LexError{
			Source: p.name,
			Line:   p.curToken.Pos.Line,
			Col:    p.curToken.Pos.Column,
			Msg:    p.curToken.Literal,
		})
		p.panicking = true
		p.curToken = p.peekToken
		p.peekToken = p.lexer.NextToken()
	}
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// accept consumes the current token if it matches.
func (p *Parser) accept(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType, context string) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected '%s' %s, got %s", t, context, describe(p.curToken))
	return false
}

func describe(tok Token) string {
	switch tok.Type {
	case TokenEOF:
		return "end of input"
	case TokenIdentifier, TokenInteger, TokenFloat:
		return fmt.Sprintf("%q", tok.Literal)
	case TokenString:
		return "string literal"
	}
	return "'" + tok.Type.String() + "'"
}

// errorf records a parse error at the current token. Only the first error
// of a statement is kept; synchronize clears the state.
func (p *Parser) errorf(format string, args ...interface{}) {
	p.errorAt(p.curToken.Pos, format, args...)
}

func (p *Parser) errorAt(pos Position, format string, args ...interface{}) {
	if p.panicking {
		return
	}
	p.panicking = true
	p.errors = append(p.errors, &ParseError{
		Source: p.name,
		Line:   pos.Line,
		Col:    pos.Column,
		Msg:    fmt.Sprintf(format, args...),
	})
}

// synchronize skips tokens until a likely statement boundary.
func (p *Parser) synchronize() {
	for !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenSemicolon) {
			p.nextToken()
			break
		}
		switch p.curToken.Type {
		case TokenLet, TokenFn, TokenClass, TokenIf, TokenWhile, TokenFor, TokenReturn:
			p.panicking = false
			return
		case TokenRBrace:
			p.nextToken()
			p.panicking = false
			return
		}
		p.nextToken()
	}
	p.panicking = false
}

// enter charges one level of nesting. It records an error and returns
// false once MaxNestingDepth is exceeded; leave must be called either way.
func (p *Parser) enter() bool {
	p.depth++
	return p.checkDepth(0)
}

func (p *Parser) leave() { p.depth-- }

// checkDepth reports whether extra levels on top of the current depth are
// still within MaxNestingDepth. Left-deep chains such as a.b.c or 1+2+3
// are built in loops and pass their length as extra.
func (p *Parser) checkDepth(extra int) bool {
	if p.depth+extra > MaxNestingDepth {
		p.errorf("nesting exceeds the limit of %d", MaxNestingDepth)
		return false
	}
	return true
}

// Errors returns accumulated lex and parse errors.
func (p *Parser) Errors() []error {
	return p.errors
}

func (p *Parser) span(start Position) Span {
	end := p.prevToken.Pos
	end.Offset += len(p.prevToken.Literal)
	end.Column += len(p.prevToken.Literal)
	return Span{Start: start, End: end}
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses statements until EOF.
func (p *Parser) ParseProgram() []Stmt {
	var stmts []Stmt
	for !p.curTokenIs(TokenEOF) {
		stmt := p.parseDeclaration()
		if p.panicking {
			p.synchronize()
			continue
		}
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// ParseExpression parses a single expression.
func (p *Parser) ParseExpression() Expr {
	return p.parseAssignment()
}

func (p *Parser) parseDeclaration() Stmt {
	defer p.leave()
	if !p.enter() {
		return nil
	}
	switch {
	case p.curTokenIs(TokenLet):
		return p.parseLet()
	case p.curTokenIs(TokenFn) && p.peekTokenIs(TokenIdentifier):
		return p.parseFuncDecl()
	case p.curTokenIs(TokenClass):
		return p.parseClassDecl()
	}
	return p.parseStatement()
}

func (p *Parser) parseLet() Stmt {
	start := p.curToken.Pos
	p.nextToken() // let
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected variable name after 'let', got %s", describe(p.curToken))
		return nil
	}
	name := p.curToken.Literal
	p.nextToken()

	var init Expr
	if p.accept(TokenAssign) {
		init = p.ParseExpression()
	}
	p.endStatement()
	return &LetStmt{SpanVal: p.span(start), Name: name, Init: init}
}

func (p *Parser) parseFuncDecl() Stmt {
	start := p.curToken.Pos
	p.nextToken() // fn
	name := p.curToken.Literal
	p.nextToken()
	fn := p.parseFunctionRest(start, name, false)
	if fn == nil {
		return nil
	}
	return &FuncDecl{SpanVal: p.span(start), Name: name, Func: fn}
}

func (p *Parser) parseClassDecl() Stmt {
	start := p.curToken.Pos
	p.nextToken() // class
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected class name, got %s", describe(p.curToken))
		return nil
	}
	name := p.curToken.Literal
	p.nextToken()
	if !p.expect(TokenLBrace, "before class body") {
		return nil
	}

	decl := &ClassDecl{Name: name}
	seen := make(map[string]bool)
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		mstart := p.curToken.Pos
		if !p.expect(TokenFn, "to start a method") {
			return nil
		}
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected method name, got %s", describe(p.curToken))
			return nil
		}
		mname := p.curToken.Literal
		if seen[mname] {
			p.errorf("method %q already defined in class %s", mname, name)
			return nil
		}
		seen[mname] = true
		p.nextToken()
		fn := p.parseFunctionRest(mstart, name+"."+mname, true)
		if fn == nil {
			return nil
		}
		decl.Methods = append(decl.Methods, fn)
	}
	if !p.expect(TokenRBrace, "after class body") {
		return nil
	}
	decl.SpanVal = p.span(start)
	return decl
}

// parseFunctionRest parses "(params) { body }".
func (p *Parser) parseFunctionRest(start Position, name string, isMethod bool) *Function {
	if !p.expect(TokenLParen, "after function name") {
		return nil
	}
	var params []string
	seen := make(map[string]bool)
	if !p.curTokenIs(TokenRParen) {
		for {
			if !p.curTokenIs(TokenIdentifier) {
				p.errorf("expected parameter name, got %s", describe(p.curToken))
				return nil
			}
			param := p.curToken.Literal
			if seen[param] {
				p.errorf("duplicate parameter %q", param)
				return nil
			}
			seen[param] = true
			params = append(params, param)
			p.nextToken()
			if !p.accept(TokenComma) {
				break
			}
		}
	}
	if !p.expect(TokenRParen, "after parameters") {
		return nil
	}
	body := p.parseBlock()
	if body == nil {
		return nil
	}
	return &Function{
		SpanVal:  p.span(start),
		Source:   p.name,
		Name:     name,
		Params:   params,
		Body:     body.Stmts,
		IsMethod: isMethod,
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() Stmt {
	switch p.curToken.Type {
	case TokenLBrace:
		if b := p.parseBlock(); b != nil {
			return b
		}
		return nil
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenFor:
		return p.parseFor()
	case TokenReturn:
		return p.parseReturn()
	}

	start := p.curToken.Pos
	expr := p.ParseExpression()
	if expr == nil {
		return nil
	}
	p.endStatement()
	return &ExprStmt{SpanVal: p.span(start), Expr: expr}
}

// endStatement requires a ';' unless the statement is the last one before a
// closing brace or the end of input.
func (p *Parser) endStatement() {
	if p.accept(TokenSemicolon) {
		return
	}
	if p.curTokenIs(TokenRBrace) || p.curTokenIs(TokenEOF) {
		return
	}
	p.errorf("expected ';' after statement, got %s", describe(p.curToken))
}

func (p *Parser) parseBlock() *Block {
	start := p.curToken.Pos
	if !p.expect(TokenLBrace, "to open block") {
		return nil
	}
	var stmts []Stmt
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		stmt := p.parseDeclaration()
		if p.panicking {
			return nil
		}
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	if !p.expect(TokenRBrace, "to close block") {
		return nil
	}
	return &Block{SpanVal: p.span(start), Stmts: stmts}
}

func (p *Parser) parseIf() Stmt {
	defer p.leave()
	if !p.enter() {
		return nil
	}
	start := p.curToken.Pos
	p.nextToken() // if
	cond := p.ParseExpression()
	if cond == nil {
		return nil
	}
	then := p.parseBlock()
	if then == nil {
		return nil
	}
	stmt := &IfStmt{Cond: cond, Then: then}
	if p.accept(TokenElse) {
		if p.curTokenIs(TokenIf) {
			stmt.Else = p.parseIf()
		} else if b := p.parseBlock(); b != nil {
			stmt.Else = b
		}
		if stmt.Else == nil {
			return nil
		}
	}
	stmt.SpanVal = p.span(start)
	return stmt
}

func (p *Parser) parseWhile() Stmt {
	start := p.curToken.Pos
	p.nextToken() // while
	cond := p.ParseExpression()
	if cond == nil {
		return nil
	}
	body := p.parseBlock()
	if body == nil {
		return nil
	}
	return &WhileStmt{SpanVal: p.span(start), Cond: cond, Body: body}
}

// parseFor parses for name in start..end { ... } and the inclusive
// start...end form.
func (p *Parser) parseFor() Stmt {
	start := p.curToken.Pos
	p.nextToken() // for
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected loop variable name, got %s", describe(p.curToken))
		return nil
	}
	name := p.curToken.Literal
	p.nextToken()
	if !p.expect(TokenIn, "after loop variable") {
		return nil
	}
	from := p.parseBinary(precOr)
	if from == nil {
		return nil
	}
	inclusive := p.curTokenIs(TokenDotDotDot)
	if !inclusive && !p.curTokenIs(TokenDotDot) {
		p.errorf("expected '..' or '...' in range, got %s", describe(p.curToken))
		return nil
	}
	p.nextToken()
	to := p.parseBinary(precOr)
	if to == nil {
		return nil
	}
	body := p.parseBlock()
	if body == nil {
		return nil
	}
	return &ForStmt{
		SpanVal:   p.span(start),
		Name:      name,
		Start:     from,
		End:       to,
		Inclusive: inclusive,
		Body:      body,
	}
}

func (p *Parser) parseReturn() Stmt {
	start := p.curToken.Pos
	p.nextToken() // return
	var value Expr
	if !p.curTokenIs(TokenSemicolon) && !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		value = p.ParseExpression()
		if value == nil {
			return nil
		}
	}
	p.endStatement()
	return &ReturnStmt{SpanVal: p.span(start), Value: value}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (p *Parser) parseAssignment() Expr {
	defer p.leave()
	if !p.enter() {
		return nil
	}
	start := p.curToken.Pos
	target := p.parseBinary(precOr)
	if target == nil {
		return nil
	}
	if !p.curTokenIs(TokenAssign) {
		return target
	}
	eqPos := p.curToken.Pos
	p.nextToken()
	value := p.parseAssignment()
	if value == nil {
		return nil
	}
	switch t := target.(type) {
	case *Variable:
		if t.Name == "self" {
			p.errorAt(eqPos, "cannot assign to 'self'")
			return nil
		}
		return &Assign{SpanVal: p.span(start), Name: t.Name, Value: value}
	case *Get:
		return &Set{SpanVal: p.span(start), Object: t.Object, Name: t.Name, Value: value}
	}
	p.errorAt(eqPos, "invalid assignment target")
	return nil
}

// parseBinary parses operators whose precedence is at least minPrec. All
// binary operators are left-associative.
func (p *Parser) parseBinary(minPrec int) Expr {
	start := p.curToken.Pos
	left := p.parseUnary()
	if left == nil {
		return nil
	}
	for links := 1; ; links++ {
		op := p.curToken.Type
		prec, ok := binaryPrecedence[op]
		if !ok || prec < minPrec {
			return left
		}
		if !p.checkDepth(links) {
			return nil
		}
		p.nextToken()
		right := p.parseBinary(prec + 1)
		if right == nil {
			return nil
		}
		if op == TokenAnd || op == TokenOr {
			left = &Logical{SpanVal: p.span(start), Op: op, Left: left, Right: right}
		} else {
			left = &Binary{SpanVal: p.span(start), Op: op, Left: left, Right: right}
		}
	}
}

func (p *Parser) parseUnary() Expr {
	defer p.leave()
	if !p.enter() {
		return nil
	}
	if p.curTokenIs(TokenBang) || p.curTokenIs(TokenMinus) {
		start := p.curToken.Pos
		op := p.curToken.Type
		p.nextToken()
		operand := p.parseUnary()
		if operand == nil {
			return nil
		}
		return &Unary{SpanVal: p.span(start), Op: op, Operand: operand}
	}
	return p.parsePostfix()
}

// parsePostfix parses calls, field reads and method calls.
func (p *Parser) parsePostfix() Expr {
	start := p.curToken.Pos
	expr := p.parsePrimary()
	if expr == nil {
		return nil
	}
	for links := 1; ; links++ {
		if (p.curTokenIs(TokenLParen) || p.curTokenIs(TokenDot)) && !p.checkDepth(links) {
			return nil
		}
		switch {
		case p.curTokenIs(TokenLParen):
			args, ok := p.parseArgs()
			if !ok {
				return nil
			}
			expr = &Call{SpanVal: p.span(start), Callee: expr, Args: args}
		case p.curTokenIs(TokenDot):
			p.nextToken()
			if !p.curTokenIs(TokenIdentifier) {
				p.errorf("expected field name after '.', got %s", describe(p.curToken))
				return nil
			}
			name := p.curToken.Literal
			p.nextToken()
			if p.curTokenIs(TokenLParen) {
				args, ok := p.parseArgs()
				if !ok {
					return nil
				}
				expr = &MethodCall{SpanVal: p.span(start), Receiver: expr, Name: name, Args: args}
			} else {
				expr = &Get{SpanVal: p.span(start), Object: expr, Name: name}
			}
		default:
			return expr
		}
	}
}

func (p *Parser) parseArgs() ([]Expr, bool) {
	p.nextToken() // (
	var args []Expr
	if !p.curTokenIs(TokenRParen) {
		for {
			arg := p.ParseExpression()
			if arg == nil {
				return nil, false
			}
			args = append(args, arg)
			if !p.accept(TokenComma) {
				break
			}
		}
	}
	if !p.expect(TokenRParen, "after arguments") {
		return nil, false
	}
	return args, true
}

func (p *Parser) parsePrimary() Expr {
	tok := p.curToken
	start := tok.Pos
	switch tok.Type {
	case TokenInteger:
		p.nextToken()
		n, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			p.errorAt(start, "integer literal %s out of range", tok.Literal)
			return nil
		}
		return &IntLiteral{SpanVal: p.span(start), Value: n}
	case TokenFloat:
		p.nextToken()
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorAt(start, "invalid float literal %s", tok.Literal)
			return nil
		}
		return &FloatLiteral{SpanVal: p.span(start), Value: f}
	case TokenString:
		p.nextToken()
		return &StringLiteral{SpanVal: p.span(start), Value: tok.Literal}
	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLiteral{SpanVal: p.span(start), Value: tok.Type == TokenTrue}
	case TokenNil:
		p.nextToken()
		return &NilLiteral{SpanVal: p.span(start)}
	case TokenIdentifier, TokenSelf:
		p.nextToken()
		return &Variable{SpanVal: p.span(start), Name: tok.Literal}
	case TokenLParen:
		p.nextToken()
		expr := p.ParseExpression()
		if expr == nil {
			return nil
		}
		if !p.expect(TokenRParen, "after expression") {
			return nil
		}
		return expr
	case TokenFn:
		p.nextToken()
		fn := p.parseFunctionRest(start, "", false)
		if fn == nil {
			return nil
		}
		return &FuncLit{SpanVal: p.span(start), Func: fn}
	}
	p.errorf("expected expression, got %s", describe(tok))
	return nil
}

// ---------------------------------------------------------------------------
// Entry point
// ---------------------------------------------------------------------------

// Parse lexes, parses and resolves src into a Unit ready for execution.
// The returned error is the first *LexError or *ParseError encountered.
func Parse(name, src string) (*Unit, error) {
	p := NewParser(name, src)
	stmts := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, errs[0]
	}
	unit := &Unit{Name: name, Source: src, Body: stmts}
	if err := Resolve(unit); err != nil {
		return nil, err
	}
	return unit, nil
}
