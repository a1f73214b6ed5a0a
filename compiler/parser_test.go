package compiler

import (
	"errors"
	"strings"
	"testing"
)

func parseExpr(t *testing.T, input string) Expr {
	t.Helper()
	p := NewParser("test", input)
	expr := p.ParseExpression()
	if len(p.Errors()) > 0 {
		t.Fatalf("parse %q: %v", input, p.Errors())
	}
	if expr == nil {
		t.Fatalf("parse %q: nil expression", input)
	}
	return expr
}

func parseProgram(t *testing.T, input string) []Stmt {
	t.Helper()
	p := NewParser("test", input)
	stmts := p.ParseProgram()
	if len(p.Errors()) > 0 {
		t.Fatalf("parse %q: %v", input, p.Errors())
	}
	return stmts
}

func TestParserLiterals(t *testing.T) {
	tests := []struct {
		input string
		check func(Expr) bool
		desc  string
	}{
		{"42", func(e Expr) bool { return e.(*IntLiteral).Value == 42 }, "integer"},
		{"3.14", func(e Expr) bool { return e.(*FloatLiteral).Value == 3.14 }, "float"},
		{`"hello"`, func(e Expr) bool { return e.(*StringLiteral).Value == "hello" }, "string"},
		{"true", func(e Expr) bool { return e.(*BoolLiteral).Value }, "true"},
		{"false", func(e Expr) bool { return !e.(*BoolLiteral).Value }, "false"},
		{"nil", func(e Expr) bool { _, ok := e.(*NilLiteral); return ok }, "nil"},
		{"foo", func(e Expr) bool { return e.(*Variable).Name == "foo" }, "variable"},
	}

	for _, tc := range tests {
		expr := parseExpr(t, tc.input)
		if !tc.check(expr) {
			t.Errorf("%s: check failed for %q", tc.desc, tc.input)
		}
	}
}

func TestParserPrecedence(t *testing.T) {
	// 1 + 2 * 3 parses as 1 + (2 * 3)
	expr := parseExpr(t, "1 + 2 * 3")
	add, ok := expr.(*Binary)
	if !ok || add.Op != TokenPlus {
		t.Fatalf("top = %T, want + Binary", expr)
	}
	mul, ok := add.Right.(*Binary)
	if !ok || mul.Op != TokenStar {
		t.Fatalf("right = %T, want * Binary", add.Right)
	}

	// 1 - 2 - 3 is left-associative
	expr = parseExpr(t, "1 - 2 - 3")
	sub := expr.(*Binary)
	if _, ok := sub.Left.(*Binary); !ok {
		t.Errorf("1 - 2 - 3: left = %T, want Binary", sub.Left)
	}

	// a or b and c parses as a or (b and c)
	expr = parseExpr(t, "a or b and c")
	or, ok := expr.(*Logical)
	if !ok || or.Op != TokenOr {
		t.Fatalf("top = %T, want or", expr)
	}
	if and, ok := or.Right.(*Logical); !ok || and.Op != TokenAnd {
		t.Errorf("right = %T, want and", or.Right)
	}

	// comparison binds tighter than equality
	expr = parseExpr(t, "1 < 2 == true")
	if eq := expr.(*Binary); eq.Op != TokenEqual {
		t.Errorf("top op = %v, want ==", eq.Op)
	}

	// from loosest: | ^ & shifts, all tighter than comparison and looser
	// than + and *
	ops := []struct {
		input string
		top   TokenType
	}{
		{"a | b ^ c", TokenPipe},
		{"a ^ b | c", TokenPipe},
		{"a ^ b & c", TokenCaret},
		{"a & b << c", TokenAmp},
		{"a << b + c", TokenShiftLeft},
		{"a + b >> c", TokenShiftRight},
		{"a | b < c", TokenLess},
		{"a == b & c", TokenEqual},
	}
	for _, tc := range ops {
		bin, ok := parseExpr(t, tc.input).(*Binary)
		if !ok || bin.Op != tc.top {
			t.Errorf("%s: top = %v, want %v", tc.input, bin, tc.top)
		}
	}
}

func TestParserUnary(t *testing.T) {
	expr := parseExpr(t, "-!x")
	neg, ok := expr.(*Unary)
	if !ok || neg.Op != TokenMinus {
		t.Fatalf("top = %T, want - Unary", expr)
	}
	if not, ok := neg.Operand.(*Unary); !ok || not.Op != TokenBang {
		t.Errorf("operand = %T, want ! Unary", neg.Operand)
	}
}

func TestParserPostfix(t *testing.T) {
	expr := parseExpr(t, "a.b.c(1, 2)(3)")
	call, ok := expr.(*Call)
	if !ok || len(call.Args) != 1 {
		t.Fatalf("top = %T, want Call with 1 arg", expr)
	}
	mc, ok := call.Callee.(*MethodCall)
	if !ok || mc.Name != "c" || len(mc.Args) != 2 {
		t.Fatalf("callee = %T, want MethodCall c/2", call.Callee)
	}
	get, ok := mc.Receiver.(*Get)
	if !ok || get.Name != "b" {
		t.Fatalf("receiver = %T, want Get b", mc.Receiver)
	}
}

func TestParserAssignment(t *testing.T) {
	expr := parseExpr(t, "a = b = 3")
	outer, ok := expr.(*Assign)
	if !ok || outer.Name != "a" {
		t.Fatalf("top = %T, want Assign a", expr)
	}
	if inner, ok := outer.Value.(*Assign); !ok || inner.Name != "b" {
		t.Errorf("value = %T, want Assign b", outer.Value)
	}

	expr = parseExpr(t, "p.x = 1")
	set, ok := expr.(*Set)
	if !ok || set.Name != "x" {
		t.Fatalf("top = %T, want Set x", expr)
	}
}

func TestParserInvalidAssignment(t *testing.T) {
	for _, input := range []string{"1 = 2;", "f() = 3;", "self = 1;", "a + b = c;"} {
		p := NewParser("test", input)
		p.ParseProgram()
		if len(p.Errors()) == 0 {
			t.Errorf("parse %q: expected error", input)
		}
	}
}

func TestParserStatements(t *testing.T) {
	src := `
let a = 1;
let b;
fn add(x, y) { return x + y; }
class Point {
  fn init(x, y) { self.x = x; self.y = y; }
  fn sum() { return self.x + self.y; }
}
if a < 2 { a = 2; } else if a < 3 { a = 3; } else { a = 4; }
while a < 10 { a = a + 1; }
{ let c = a; }
add(a, 2)
`
	stmts := parseProgram(t, src)
	if len(stmts) != 8 {
		t.Fatalf("got %d statements, want 8", len(stmts))
	}
	if let, ok := stmts[1].(*LetStmt); !ok || let.Init != nil {
		t.Errorf("stmt[1] = %#v, want let without initializer", stmts[1])
	}
	fn, ok := stmts[2].(*FuncDecl)
	if !ok || fn.Name != "add" || len(fn.Func.Params) != 2 {
		t.Fatalf("stmt[2] = %T, want FuncDecl add/2", stmts[2])
	}
	class, ok := stmts[3].(*ClassDecl)
	if !ok || class.Name != "Point" || len(class.Methods) != 2 {
		t.Fatalf("stmt[3] = %T, want ClassDecl Point with 2 methods", stmts[3])
	}
	if !class.Methods[0].IsMethod || class.Methods[0].Name != "Point.init" {
		t.Errorf("method[0] = %q method=%v", class.Methods[0].Name, class.Methods[0].IsMethod)
	}
	ifStmt := stmts[4].(*IfStmt)
	if _, ok := ifStmt.Else.(*IfStmt); !ok {
		t.Errorf("else branch = %T, want *IfStmt", ifStmt.Else)
	}
	if _, ok := stmts[5].(*WhileStmt); !ok {
		t.Errorf("stmt[5] = %T, want WhileStmt", stmts[5])
	}
	if _, ok := stmts[6].(*Block); !ok {
		t.Errorf("stmt[6] = %T, want Block", stmts[6])
	}
	if _, ok := stmts[7].(*ExprStmt); !ok {
		t.Errorf("stmt[7] = %T, want ExprStmt", stmts[7])
	}
}

func TestParserFunctionLiteral(t *testing.T) {
	stmts := parseProgram(t, "let f = fn(a) { return a; };")
	let := stmts[0].(*LetStmt)
	lit, ok := let.Init.(*FuncLit)
	if !ok {
		t.Fatalf("init = %T, want FuncLit", let.Init)
	}
	if len(lit.Func.Params) != 1 || lit.Func.IsMethod {
		t.Errorf("literal params = %v method=%v", lit.Func.Params, lit.Func.IsMethod)
	}
}

func TestParserFor(t *testing.T) {
	stmts := parseProgram(t, "for i in 0..n + 1 { print(i); }\nfor j in a...b {}")
	if len(stmts) != 2 {
		t.Fatalf("got %d statements, want 2", len(stmts))
	}
	loop, ok := stmts[0].(*ForStmt)
	if !ok {
		t.Fatalf("stmt[0] = %T, want ForStmt", stmts[0])
	}
	if loop.Name != "i" || loop.Inclusive {
		t.Errorf("loop = %q inclusive=%v, want i exclusive", loop.Name, loop.Inclusive)
	}
	if end, ok := loop.End.(*Binary); !ok || end.Op != TokenPlus {
		t.Errorf("end = %T, want + Binary", loop.End)
	}
	if len(loop.Body.Stmts) != 1 {
		t.Errorf("body has %d statements, want 1", len(loop.Body.Stmts))
	}
	if incl := stmts[1].(*ForStmt); !incl.Inclusive {
		t.Error("a...b should be inclusive")
	}

	for _, input := range []string{
		"for in 0..1 {}",
		"for i 0..1 {}",
		"for i in 0 {}",
		"for i in 0..1;",
	} {
		if _, err := Parse("test", input); err == nil {
			t.Errorf("%q: expected a parse error", input)
		}
	}
}

func TestParserMissingSemicolon(t *testing.T) {
	p := NewParser("test", "let a = 1 let b = 2;")
	p.ParseProgram()
	errs := p.Errors()
	if len(errs) == 0 {
		t.Fatal("expected error")
	}
	var pe *ParseError
	if !errors.As(errs[0], &pe) {
		t.Fatalf("error = %T, want *ParseError", errs[0])
	}
	if pe.Line != 1 || pe.Col != 11 {
		t.Errorf("error at %d:%d, want 1:11", pe.Line, pe.Col)
	}
}

func TestParserRecoversAfterError(t *testing.T) {
	p := NewParser("test", "let = 1;\nlet b = ;\nlet c = 3;")
	stmts := p.ParseProgram()
	if len(p.Errors()) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(p.Errors()), p.Errors())
	}
	if len(stmts) != 1 {
		t.Errorf("got %d statements, want 1", len(stmts))
	}
}

func TestParseReportsLexError(t *testing.T) {
	_, err := Parse("test", "let s = \"open;")
	var le *LexError
	if !errors.As(err, &le) {
		t.Fatalf("error = %v (%T), want *LexError", err, err)
	}
	if le.Line != 1 || le.Col != 9 {
		t.Errorf("lex error at %d:%d, want 1:9", le.Line, le.Col)
	}
}

func TestFormatError(t *testing.T) {
	src := "let a = 1;\nlet b = (2 + ;\n"
	_, err := Parse("demo.pc", src)
	if err == nil {
		t.Fatal("expected error")
	}
	out := FormatError(err, src)
	if !strings.Contains(out, "parse error in demo.pc at 2:") {
		t.Errorf("header missing: %q", out)
	}
	if !strings.Contains(out, "   2 | let b = (2 + ;") {
		t.Errorf("source line missing: %q", out)
	}
	if !strings.HasSuffix(out, "^") {
		t.Errorf("caret missing: %q", out)
	}
}

func TestParserNestingLimit(t *testing.T) {
	deep := 100000
	tests := []struct {
		name string
		src  string
	}{
		{"parens", strings.Repeat("(", deep) + "1" + strings.Repeat(")", deep) + ";"},
		{"unary", strings.Repeat("-", deep) + "1;"},
		{"blocks", strings.Repeat("{", deep) + strings.Repeat("}", deep)},
		{"else if", "if a {}" + strings.Repeat(" else if a {}", deep)},
		{"field chain", "a" + strings.Repeat(".b", deep) + ";"},
		{"call chain", "f" + strings.Repeat("()", deep) + ";"},
		{"sum", "1" + strings.Repeat(" + 1", deep) + ";"},
		{"function literals", strings.Repeat("fn() { return ", deep) + "1" + strings.Repeat("; }", deep) + ";"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("test", tc.src)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error = %v (%T), want *ParseError", err, err)
			}
			if !strings.Contains(pe.Msg, "nesting exceeds the limit") {
				t.Errorf("error = %q, want nesting limit", pe.Msg)
			}
		})
	}
}

func TestParserNestingWithinLimit(t *testing.T) {
	n := 200
	parseProgram(t, strings.Repeat("(", n)+"1"+strings.Repeat(")", n)+";")
	parseProgram(t, strings.Repeat("{", n)+strings.Repeat("}", n))
	parseProgram(t, "1"+strings.Repeat(" + 1", n)+";")
}
