package compiler

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for Piccolo
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Variable resolution
// ---------------------------------------------------------------------------

// RefKind says where a resolved variable lives at runtime.
type RefKind int

const (
	// RefGlobal is looked up by name in the global namespace, falling back
	// to module namespaces for reads.
	RefGlobal RefKind = iota
	// RefLocal is a slot in the executing frame.
	RefLocal
	// RefUpvalue is an index into the executing closure's captured cells.
	RefUpvalue
)

func (k RefKind) String() string {
	switch k {
	case RefLocal:
		return "local"
	case RefUpvalue:
		return "upvalue"
	default:
		return "global"
	}
}

// VarRef is filled in by the resolver.
type VarRef struct {
	Kind  RefKind
	Index int // slot for RefLocal, upvalue index for RefUpvalue
}

// UpvalueDesc tells closure creation where to find a captured cell: a slot
// of the enclosing frame (IsLocal) or one of the enclosing closure's own
// upvalues.
type UpvalueDesc struct {
	IsLocal bool
	Index   int
	Name    string
}

// ---------------------------------------------------------------------------
// Compilation units and functions
// ---------------------------------------------------------------------------

// Function is a function literal, declaration body, or method body.
type Function struct {
	SpanVal  Span
	Source   string // name of the unit the function was parsed from
	Name     string
	Params   []string
	Body     []Stmt
	IsMethod bool // slot 0 holds self, parameters start at slot 1

	// Filled in by the resolver.
	NumSlots int
	Upvalues []UpvalueDesc
}

func (f *Function) Span() Span { return f.SpanVal }
func (f *Function) node()      {}

// ParamSlot returns the frame slot of the i'th parameter.
func (f *Function) ParamSlot(i int) int {
	if f.IsMethod {
		return i + 1
	}
	return i
}

// Unit is a parsed and resolved source file or REPL entry. Top-level lets
// and declarations bind globals; block-scoped locals live in the unit's
// own frame.
type Unit struct {
	Name     string
	Source   string
	Body     []Stmt
	NumSlots int
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	SpanVal Span
	Value   int64
}

func (n *IntLiteral) Span() Span { return n.SpanVal }
func (n *IntLiteral) node()      {}
func (n *IntLiteral) expr()      {}

// FloatLiteral represents a floating-point literal.
type FloatLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *FloatLiteral) Span() Span { return n.SpanVal }
func (n *FloatLiteral) node()      {}
func (n *FloatLiteral) expr()      {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// NilLiteral represents nil.
type NilLiteral struct {
	SpanVal Span
}

func (n *NilLiteral) Span() Span { return n.SpanVal }
func (n *NilLiteral) node()      {}
func (n *NilLiteral) expr()      {}

// Variable represents a variable reference. self is a Variable named
// "self" that resolves to slot 0 of the enclosing method.
type Variable struct {
	SpanVal Span
	Name    string
	Ref     VarRef
}

func (n *Variable) Span() Span { return n.SpanVal }
func (n *Variable) node()      {}
func (n *Variable) expr()      {}

// Assign represents name = value.
type Assign struct {
	SpanVal Span
	Name    string
	Ref     VarRef
	Value   Expr
}

func (n *Assign) Span() Span { return n.SpanVal }
func (n *Assign) node()      {}
func (n *Assign) expr()      {}

// Binary represents an arithmetic, comparison or equality operator.
type Binary struct {
	SpanVal Span
	Op      TokenType
	Left    Expr
	Right   Expr
}

func (n *Binary) Span() Span { return n.SpanVal }
func (n *Binary) node()      {}
func (n *Binary) expr()      {}

// Logical represents the short-circuiting and/or operators.
type Logical struct {
	SpanVal Span
	Op      TokenType // TokenAnd or TokenOr
	Left    Expr
	Right   Expr
}

func (n *Logical) Span() Span { return n.SpanVal }
func (n *Logical) node()      {}
func (n *Logical) expr()      {}

// Unary represents -x and !x.
type Unary struct {
	SpanVal Span
	Op      TokenType
	Operand Expr
}

func (n *Unary) Span() Span { return n.SpanVal }
func (n *Unary) node()      {}
func (n *Unary) expr()      {}

// FuncLit represents an anonymous function literal.
type FuncLit struct {
	SpanVal Span
	Func    *Function
}

func (n *FuncLit) Span() Span { return n.SpanVal }
func (n *FuncLit) node()      {}
func (n *FuncLit) expr()      {}

// Call represents callee(args...).
type Call struct {
	SpanVal Span
	Callee  Expr
	Args    []Expr
}

func (n *Call) Span() Span { return n.SpanVal }
func (n *Call) node()      {}
func (n *Call) expr()      {}

// Get represents a field read object.name.
type Get struct {
	SpanVal Span
	Object  Expr
	Name    string
}

func (n *Get) Span() Span { return n.SpanVal }
func (n *Get) node()      {}
func (n *Get) expr()      {}

// Set represents a field write object.name = value.
type Set struct {
	SpanVal Span
	Object  Expr
	Name    string
	Value   Expr
}

func (n *Set) Span() Span { return n.SpanVal }
func (n *Set) node()      {}
func (n *Set) expr()      {}

// MethodCall represents receiver.name(args...).
type MethodCall struct {
	SpanVal  Span
	Receiver Expr
	Name     string
	Args     []Expr
}

func (n *MethodCall) Span() Span { return n.SpanVal }
func (n *MethodCall) node()      {}
func (n *MethodCall) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// ExprStmt represents an expression used as a statement.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// LetStmt declares a variable. At the top level of a unit it defines a
// global.
type LetStmt struct {
	SpanVal Span
	Name    string
	Init    Expr // may be nil
	Ref     VarRef
}

func (n *LetStmt) Span() Span { return n.SpanVal }
func (n *LetStmt) node()      {}
func (n *LetStmt) stmt()      {}

// Block is a braced statement list. Slots [Base, Base+NumLocals) belong to
// the block and are released when it exits.
type Block struct {
	SpanVal   Span
	Stmts     []Stmt
	Base      int
	NumLocals int
}

func (n *Block) Span() Span { return n.SpanVal }
func (n *Block) node()      {}
func (n *Block) stmt()      {}

// IfStmt represents if/else. Else is nil, a *Block or another *IfStmt.
type IfStmt struct {
	SpanVal Span
	Cond    Expr
	Then    *Block
	Else    Stmt
}

func (n *IfStmt) Span() Span { return n.SpanVal }
func (n *IfStmt) node()      {}
func (n *IfStmt) stmt()      {}

// WhileStmt represents a while loop.
type WhileStmt struct {
	SpanVal Span
	Cond    Expr
	Body    *Block
}

func (n *WhileStmt) Span() Span { return n.SpanVal }
func (n *WhileStmt) node()      {}
func (n *WhileStmt) stmt()      {}

// ForStmt iterates Name over the integers from Start up to End, excluding
// End unless Inclusive. Name lives in Body's first slot and is fresh on
// every iteration.
type ForStmt struct {
	SpanVal   Span
	Name      string
	Ref       VarRef
	Start     Expr
	End       Expr
	Inclusive bool
	Body      *Block
}

func (n *ForStmt) Span() Span { return n.SpanVal }
func (n *ForStmt) node()      {}
func (n *ForStmt) stmt()      {}

// ReturnStmt represents return with an optional value.
type ReturnStmt struct {
	SpanVal Span
	Value   Expr // may be nil
}

func (n *ReturnStmt) Span() Span { return n.SpanVal }
func (n *ReturnStmt) node()      {}
func (n *ReturnStmt) stmt()      {}

// FuncDecl represents fn name(params) { ... }.
type FuncDecl struct {
	SpanVal Span
	Name    string
	Func    *Function
	Ref     VarRef
}

func (n *FuncDecl) Span() Span { return n.SpanVal }
func (n *FuncDecl) node()      {}
func (n *FuncDecl) stmt()      {}

// ClassDecl represents class Name { fn method(...) { ... } ... }.
type ClassDecl struct {
	SpanVal Span
	Name    string
	Methods []*Function
	Ref     VarRef
}

func (n *ClassDecl) Span() Span { return n.SpanVal }
func (n *ClassDecl) node()      {}
func (n *ClassDecl) stmt()      {}
