package compiler

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Resolver: scope analysis ahead of execution
// ---------------------------------------------------------------------------

// Resolver walks a parsed unit and annotates every variable reference with
// where it lives at runtime: a slot in the executing frame, a captured
// upvalue of the executing closure, or a global looked up by name. It also
// sizes each function's frame and records the upvalue descriptors closure
// creation needs.
type Resolver struct {
	source   string
	fs       *funcScope
	errors   []error
	warnings []string
}

// funcScope tracks one function (or the unit itself) being resolved.
type funcScope struct {
	enclosing *funcScope
	fn        *Function // nil for the unit
	scopes    []map[string]int
	next      int // next free slot
	max       int
	upvalues  []UpvalueDesc
	pending   map[int]bool // slots whose let initializer is being resolved
}

// NewResolver creates a resolver. source names the unit in error messages.
func NewResolver(source string) *Resolver {
	return &Resolver{source: source}
}

// Errors returns accumulated resolution errors.
func (r *Resolver) Errors() []error {
	return r.errors
}

// Warnings returns non-fatal diagnostics such as unreachable code.
func (r *Resolver) Warnings() []string {
	return r.warnings
}

func (r *Resolver) errorAt(node Node, format string, args ...interface{}) {
	pos := node.Span().Start
	r.errors = append(r.errors, &ParseError{
		Source: r.source,
		Line:   pos.Line,
		Col:    pos.Column,
		Msg:    fmt.Sprintf(format, args...),
	})
}

func (r *Resolver) warnAt(node Node, format string, args ...interface{}) {
	pos := node.Span().Start
	msg := fmt.Sprintf("warning: line %d, column %d: %s", pos.Line, pos.Column, fmt.Sprintf(format, args...))
	r.warnings = append(r.warnings, msg)
}

// ResolveUnit annotates unit in place.
func (r *Resolver) ResolveUnit(unit *Unit) {
	r.fs = &funcScope{}
	r.resolveStatements(unit.Body)
	r.checkUnreachableCode(unit.Body)
	unit.NumSlots = r.fs.max
	r.fs = nil
}

// Resolve annotates unit and returns the first error, if any.
func Resolve(unit *Unit) error {
	r := NewResolver(unit.Name)
	r.ResolveUnit(unit)
	if len(r.errors) > 0 {
		return r.errors[0]
	}
	return nil
}

// ---------------------------------------------------------------------------
// Scopes
// ---------------------------------------------------------------------------

// atGlobalScope reports whether declarations bind globals: the unit's
// outermost level.
func (r *Resolver) atGlobalScope() bool {
	return r.fs.fn == nil && len(r.fs.scopes) == 0
}

func (r *Resolver) beginScope() {
	r.fs.scopes = append(r.fs.scopes, make(map[string]int))
}

func (r *Resolver) endScope(base int) {
	r.fs.scopes = r.fs.scopes[:len(r.fs.scopes)-1]
	r.fs.next = base
}

// declare binds name to a fresh slot in the innermost scope.
func (r *Resolver) declare(node Node, name string) int {
	scope := r.fs.scopes[len(r.fs.scopes)-1]
	if _, exists := scope[name]; exists {
		r.errorAt(node, "variable %q already declared in this scope", name)
	}
	slot := r.fs.next
	scope[name] = slot
	r.fs.next++
	if r.fs.next > r.fs.max {
		r.fs.max = r.fs.next
	}
	return slot
}

func (fs *funcScope) lookupLocal(name string) int {
	for i := len(fs.scopes) - 1; i >= 0; i-- {
		if slot, ok := fs.scopes[i][name]; ok {
			return slot
		}
	}
	return -1
}

func (fs *funcScope) addUpvalue(isLocal bool, index int, name string) int {
	for i, uv := range fs.upvalues {
		if uv.IsLocal == isLocal && uv.Index == index {
			return i
		}
	}
	fs.upvalues = append(fs.upvalues, UpvalueDesc{IsLocal: isLocal, Index: index, Name: name})
	return len(fs.upvalues) - 1
}

func resolveUpvalue(fs *funcScope, name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if slot := fs.enclosing.lookupLocal(name); slot >= 0 {
		return fs.addUpvalue(true, slot, name)
	}
	if idx := resolveUpvalue(fs.enclosing, name); idx >= 0 {
		return fs.addUpvalue(false, idx, name)
	}
	return -1
}

func (r *Resolver) lookup(name string) VarRef {
	if slot := r.fs.lookupLocal(name); slot >= 0 {
		return VarRef{Kind: RefLocal, Index: slot}
	}
	if idx := resolveUpvalue(r.fs, name); idx >= 0 {
		return VarRef{Kind: RefUpvalue, Index: idx}
	}
	return VarRef{Kind: RefGlobal}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (r *Resolver) resolveStatements(stmts []Stmt) {
	for _, stmt := range stmts {
		r.resolveStmt(stmt)
	}
}

func (r *Resolver) resolveStmt(stmt Stmt) {
	switch st := stmt.(type) {
	case *ExprStmt:
		r.resolveExpr(st.Expr)
	case *LetStmt:
		if r.atGlobalScope() {
			if st.Init != nil {
				r.resolveExpr(st.Init)
			}
			st.Ref = VarRef{Kind: RefGlobal}
			return
		}
		// The slot exists before the initializer runs so a function
		// literal in it can capture the variable it is assigned to.
		slot := r.declare(st, st.Name)
		st.Ref = VarRef{Kind: RefLocal, Index: slot}
		if st.Init != nil {
			if r.fs.pending == nil {
				r.fs.pending = make(map[int]bool)
			}
			r.fs.pending[slot] = true
			r.resolveExpr(st.Init)
			delete(r.fs.pending, slot)
		}
	case *FuncDecl:
		if r.atGlobalScope() {
			st.Ref = VarRef{Kind: RefGlobal}
		} else {
			st.Ref = VarRef{Kind: RefLocal, Index: r.declare(st, st.Name)}
		}
		r.resolveFunction(st.Func)
	case *ClassDecl:
		if r.atGlobalScope() {
			st.Ref = VarRef{Kind: RefGlobal}
		} else {
			st.Ref = VarRef{Kind: RefLocal, Index: r.declare(st, st.Name)}
		}
		for _, m := range st.Methods {
			r.resolveFunction(m)
		}
	case *Block:
		r.resolveBlock(st)
	case *IfStmt:
		r.resolveExpr(st.Cond)
		r.resolveBlock(st.Then)
		if st.Else != nil {
			r.resolveStmt(st.Else)
		}
	case *WhileStmt:
		r.resolveExpr(st.Cond)
		r.resolveBlock(st.Body)
	case *ForStmt:
		r.resolveExpr(st.Start)
		r.resolveExpr(st.End)
		b := st.Body
		b.Base = r.fs.next
		r.beginScope()
		st.Ref = VarRef{Kind: RefLocal, Index: r.declare(st, st.Name)}
		r.resolveStatements(b.Stmts)
		r.checkUnreachableCode(b.Stmts)
		b.NumLocals = r.fs.max - b.Base
		r.endScope(b.Base)
	case *ReturnStmt:
		if st.Value != nil {
			r.resolveExpr(st.Value)
		}
	}
}

func (r *Resolver) resolveBlock(b *Block) {
	b.Base = r.fs.next
	r.beginScope()
	r.resolveStatements(b.Stmts)
	r.checkUnreachableCode(b.Stmts)
	b.NumLocals = r.fs.max - b.Base
	if b.NumLocals < 0 {
		b.NumLocals = 0
	}
	r.endScope(b.Base)
}

// resolveFunction resolves a function body in a new frame nested inside
// the current one.
func (r *Resolver) resolveFunction(fn *Function) {
	fs := &funcScope{enclosing: r.fs, fn: fn}
	r.fs = fs
	r.beginScope()
	if fn.IsMethod {
		r.declare(fn, "self")
	}
	for _, param := range fn.Params {
		r.declare(fn, param)
	}
	r.resolveStatements(fn.Body)
	r.checkUnreachableCode(fn.Body)
	fn.NumSlots = fs.max
	fn.Upvalues = fs.upvalues
	r.fs = fs.enclosing
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (r *Resolver) resolveExpr(expr Expr) {
	switch e := expr.(type) {
	case *Variable:
		e.Ref = r.lookup(e.Name)
		if e.Ref.Kind == RefLocal && r.fs.pending[e.Ref.Index] {
			r.errorAt(e, "cannot read local variable %q in its own initializer", e.Name)
		}
		if e.Name == "self" && e.Ref.Kind == RefGlobal {
			r.errorAt(e, "'self' used outside of a method")
		}
	case *Assign:
		r.resolveExpr(e.Value)
		e.Ref = r.lookup(e.Name)
	case *Binary:
		r.resolveExpr(e.Left)
		r.resolveExpr(e.Right)
	case *Logical:
		r.resolveExpr(e.Left)
		r.resolveExpr(e.Right)
	case *Unary:
		r.resolveExpr(e.Operand)
	case *FuncLit:
		r.resolveFunction(e.Func)
	case *Call:
		r.resolveExpr(e.Callee)
		for _, arg := range e.Args {
			r.resolveExpr(arg)
		}
	case *Get:
		r.resolveExpr(e.Object)
	case *Set:
		r.resolveExpr(e.Object)
		r.resolveExpr(e.Value)
	case *MethodCall:
		r.resolveExpr(e.Receiver)
		for _, arg := range e.Args {
			r.resolveExpr(arg)
		}
	// Literals don't need resolving
	case *IntLiteral, *FloatLiteral, *StringLiteral, *BoolLiteral, *NilLiteral:
	}
}

// checkUnreachableCode warns about statements after a return.
func (r *Resolver) checkUnreachableCode(stmts []Stmt) {
	for i, stmt := range stmts {
		if _, isReturn := stmt.(*ReturnStmt); isReturn && i < len(stmts)-1 {
			r.warnAt(stmts[i+1], "unreachable code after return")
			return
		}
	}
}
