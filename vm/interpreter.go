package vm

import (
	"math"

	"github.com/cheezgi/piccolo/compiler"
)

// ---------------------------------------------------------------------------
// Interpreter: tree-walking evaluation of resolved units
// ---------------------------------------------------------------------------
//
// Rooting discipline: a collection can only start inside an allocation.
// Any value that must survive an allocation while it is held in a Go local
// is pushed onto the temp stack first (binary operands, callees, arguments,
// receivers). Values stored in frame slots, globals, fields or upvalues are
// reachable already.

// step charges one unit against the configured step budget.
func (v *VM) step() error {
	v.steps++
	if v.stepLimit > 0 && v.steps > v.stepLimit {
		return v.raise(StepLimitError, "step limit of %d exceeded", v.stepLimit)
	}
	return nil
}

// runUnit executes a unit in a fresh frame. The result is the value of a
// top-level return, else the value of the last top-level expression
// statement, else nil.
func (v *VM) runUnit(unit *compiler.Unit) (Value, error) {
	f, err := v.pushFrame("<script>", unit.Name, unit.NumSlots)
	if err != nil {
		return Nil, err
	}

	saved := v.lastValue
	v.lastValue = Nil
	defer func() { v.lastValue = saved }()

	for _, stmt := range unit.Body {
		if es, ok := stmt.(*compiler.ExprStmt); ok {
			f.line = es.SpanVal.Start.Line
			if err := v.step(); err != nil {
				v.popFrame(f)
				return Nil, err
			}
			val, err := v.eval(f, es.Expr)
			if err != nil {
				v.popFrame(f)
				return Nil, err
			}
			v.lastValue = val
			continue
		}
		returned, err := v.exec(f, stmt)
		if err != nil {
			v.popFrame(f)
			return Nil, err
		}
		if returned {
			v.lastValue = f.ret
			break
		}
	}

	result := v.lastValue
	v.popFrame(f)
	return result, nil
}

// execBody runs statements until one returns.
func (v *VM) execBody(f *frame, stmts []compiler.Stmt) (bool, error) {
	for _, stmt := range stmts {
		returned, err := v.exec(f, stmt)
		if err != nil || returned {
			return returned, err
		}
	}
	return false, nil
}

func (v *VM) execBlock(f *frame, b *compiler.Block) (bool, error) {
	returned, err := v.execBody(f, b.Stmts)
	v.exitBlock(f, b)
	return returned, err
}

// exec runs one statement. It reports true when a return statement
// completed; the value is left in f.ret.
func (v *VM) exec(f *frame, stmt compiler.Stmt) (bool, error) {
	f.line = stmt.Span().Start.Line
	if err := v.step(); err != nil {
		return false, err
	}

	switch s := stmt.(type) {
	case *compiler.ExprStmt:
		_, err := v.eval(f, s.Expr)
		return false, err

	case *compiler.LetStmt:
		val := Nil
		if s.Init != nil {
			var err error
			if val, err = v.eval(f, s.Init); err != nil {
				return false, err
			}
		}
		v.declare(f, s.Name, s.Ref, val)
		return false, nil

	case *compiler.FuncDecl:
		c := v.makeClosure(f, s.Func)
		v.declare(f, s.Name, s.Ref, objectValue(c))
		return false, nil

	case *compiler.ClassDecl:
		cls := v.makeClass(f, s)
		v.declare(f, s.Name, s.Ref, objectValue(cls))
		return false, nil

	case *compiler.Block:
		return v.execBlock(f, s)

	case *compiler.IfStmt:
		cond, err := v.eval(f, s.Cond)
		if err != nil {
			return false, err
		}
		if cond.Truthy() {
			return v.execBlock(f, s.Then)
		}
		if s.Else != nil {
			return v.exec(f, s.Else)
		}
		return false, nil

	case *compiler.WhileStmt:
		for {
			cond, err := v.eval(f, s.Cond)
			if err != nil {
				return false, err
			}
			if !cond.Truthy() {
				return false, nil
			}
			returned, err := v.execBlock(f, s.Body)
			if err != nil || returned {
				return returned, err
			}
			if err := v.step(); err != nil {
				return false, err
			}
		}

	case *compiler.ForStmt:
		return v.execFor(f, s)

	case *compiler.ReturnStmt:
		val := Nil
		if s.Value != nil {
			var err error
			if val, err = v.eval(f, s.Value); err != nil {
				return false, err
			}
		}
		f.ret = val
		return true, nil
	}

	return false, v.raise(GCInternalError, "unknown statement %T", stmt)
}

// execFor runs an integer range loop. Both bounds are evaluated once.
// exitBlock closes any upvalue over the loop variable, so closures made in
// different iterations see different variables.
func (v *VM) execFor(f *frame, s *compiler.ForStmt) (bool, error) {
	lo, err := v.eval(f, s.Start)
	if err != nil {
		return false, err
	}
	if lo.kind != KindInt {
		return false, v.raise(TypeError, "range start must be Integer, got %s", lo.TypeName())
	}
	hi, err := v.eval(f, s.End)
	if err != nil {
		return false, err
	}
	if hi.kind != KindInt {
		return false, v.raise(TypeError, "range end must be Integer, got %s", hi.TypeName())
	}
	from, to := lo.AsInt(), hi.AsInt()
	if !s.Inclusive {
		if to == math.MinInt64 {
			return false, nil
		}
		to--
	}
	for i := from; i <= to; i++ {
		f.slots[s.Ref.Index] = Int(i)
		returned, err := v.execBlock(f, s.Body)
		if err != nil || returned {
			return returned, err
		}
		if err := v.step(); err != nil {
			return false, err
		}
		if i == to {
			break
		}
	}
	return false, nil
}

// declare binds a let, fn or class declaration.
func (v *VM) declare(f *frame, name string, ref compiler.VarRef, val Value) {
	if ref.Kind == compiler.RefLocal {
		f.slots[ref.Index] = val
		return
	}
	v.registry.Globals().Define(name, val)
}

// makeClosure captures the upvalues fn's body references. Cells for the
// current frame's slots are shared with any other closure that captured
// the same slot.
func (v *VM) makeClosure(f *frame, fn *compiler.Function) *Closure {
	upvalues := make([]*Upvalue, len(fn.Upvalues))
	for i, desc := range fn.Upvalues {
		if desc.IsLocal {
			upvalues[i] = v.captureUpvalue(f, desc.Index)
		} else {
			upvalues[i] = f.closure.Upvalues[desc.Index]
		}
	}
	return v.newClosure(fn, upvalues)
}

// makeClass builds a class and its method closures. Each finished closure
// stays on the temp stack until the class object owns it.
func (v *VM) makeClass(f *frame, decl *compiler.ClassDecl) *Class {
	mark := v.tempMark()
	methods := make(map[string]*Closure, len(decl.Methods))
	for _, m := range decl.Methods {
		c := v.makeClosure(f, m)
		v.push(objectValue(c))
		methods[methodName(m.Name)] = c
	}
	cls := v.newClass(decl.Name, methods)
	v.truncateTemps(mark)
	return cls
}

// methodName strips the "Class." prefix the parser adds to method names.
func methodName(qualified string) string {
	for i := len(qualified) - 1; i >= 0; i-- {
		if qualified[i] == '.' {
			return qualified[i+1:]
		}
	}
	return qualified
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (v *VM) eval(f *frame, expr compiler.Expr) (Value, error) {
	switch e := expr.(type) {
	case *compiler.IntLiteral:
		return Int(e.Value), nil
	case *compiler.FloatLiteral:
		return Float(e.Value), nil
	case *compiler.BoolLiteral:
		return Bool(e.Value), nil
	case *compiler.NilLiteral:
		return Nil, nil
	case *compiler.StringLiteral:
		return v.NewString(e.Value), nil

	case *compiler.Variable:
		return v.load(f, e)

	case *compiler.Assign:
		val, err := v.eval(f, e.Value)
		if err != nil {
			return Nil, err
		}
		if err := v.assign(f, e, val); err != nil {
			return Nil, err
		}
		return val, nil

	case *compiler.Binary:
		mark := v.tempMark()
		left, err := v.eval(f, e.Left)
		if err != nil {
			return Nil, err
		}
		v.push(left)
		right, err := v.eval(f, e.Right)
		if err != nil {
			return Nil, err
		}
		v.push(right)
		result, err := v.binary(e.Op, left, right)
		v.truncateTemps(mark)
		return result, err

	case *compiler.Logical:
		left, err := v.eval(f, e.Left)
		if err != nil {
			return Nil, err
		}
		if e.Op == compiler.TokenOr && left.Truthy() {
			return left, nil
		}
		if e.Op == compiler.TokenAnd && !left.Truthy() {
			return left, nil
		}
		return v.eval(f, e.Right)

	case *compiler.Unary:
		operand, err := v.eval(f, e.Operand)
		if err != nil {
			return Nil, err
		}
		return v.unary(e.Op, operand)

	case *compiler.FuncLit:
		return objectValue(v.makeClosure(f, e.Func)), nil

	case *compiler.Call:
		return v.evalCall(f, e)

	case *compiler.MethodCall:
		return v.evalMethodCall(f, e)

	case *compiler.Get:
		return v.evalGet(f, e)

	case *compiler.Set:
		return v.evalSet(f, e)
	}
	return Nil, v.raise(GCInternalError, "unknown expression %T", expr)
}

func (v *VM) load(f *frame, e *compiler.Variable) (Value, error) {
	switch e.Ref.Kind {
	case compiler.RefLocal:
		return f.slots[e.Ref.Index], nil
	case compiler.RefUpvalue:
		return f.closure.Upvalues[e.Ref.Index].Get(), nil
	}
	if val, ok := v.registry.Globals().Lookup(e.Name); ok {
		return val, nil
	}
	if _, ok := v.registry.Module(e.Name); ok {
		return Nil, v.raise(TypeError, "module '%s' is not a value; use %s.name", e.Name, e.Name)
	}
	return Nil, v.raise(NameError, "undefined variable '%s'", e.Name)
}

func (v *VM) assign(f *frame, e *compiler.Assign, val Value) error {
	switch e.Ref.Kind {
	case compiler.RefLocal:
		f.slots[e.Ref.Index] = val
		return nil
	case compiler.RefUpvalue:
		f.closure.Upvalues[e.Ref.Index].Set(val)
		return nil
	}
	if !v.registry.Globals().Assign(e.Name, val) {
		return v.raise(NameError, "undefined variable '%s'", e.Name)
	}
	return nil
}

// evalArgs evaluates arguments left to right, rooting each, and returns a
// copy. The caller truncates the temp stack once the call completes.
func (v *VM) evalArgs(f *frame, exprs []compiler.Expr) ([]Value, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	args := make([]Value, len(exprs))
	for i, arg := range exprs {
		val, err := v.eval(f, arg)
		if err != nil {
			return nil, err
		}
		v.push(val)
		args[i] = val
	}
	return args, nil
}

func (v *VM) evalCall(f *frame, e *compiler.Call) (Value, error) {
	mark := v.tempMark()
	callee, err := v.eval(f, e.Callee)
	if err != nil {
		return Nil, err
	}
	v.push(callee)
	args, err := v.evalArgs(f, e.Args)
	if err != nil {
		return Nil, err
	}
	f.line = e.SpanVal.Start.Line
	result, err := v.callValue(callee, args)
	v.truncateTemps(mark)
	return result, err
}

// moduleReceiver reports whether expr names a module namespace rather than
// a variable: an identifier with no global binding but a registered module.
func (v *VM) moduleReceiver(expr compiler.Expr) (*Namespace, bool) {
	ident, ok := expr.(*compiler.Variable)
	if !ok || ident.Ref.Kind != compiler.RefGlobal {
		return nil, false
	}
	if v.registry.Globals().Has(ident.Name) {
		return nil, false
	}
	return v.registry.Module(ident.Name)
}

func (v *VM) evalMethodCall(f *frame, e *compiler.MethodCall) (Value, error) {
	mark := v.tempMark()
	if ns, ok := v.moduleReceiver(e.Receiver); ok {
		fn, ok := ns.Lookup(e.Name)
		if !ok {
			return Nil, v.raise(NameError, "module '%s' has no binding '%s'", ns.Name(), e.Name)
		}
		v.push(fn)
		args, err := v.evalArgs(f, e.Args)
		if err != nil {
			return Nil, err
		}
		f.line = e.SpanVal.Start.Line
		result, err := v.callValue(fn, args)
		v.truncateTemps(mark)
		return result, err
	}

	recv, err := v.eval(f, e.Receiver)
	if err != nil {
		return Nil, err
	}
	v.push(recv)
	args, err := v.evalArgs(f, e.Args)
	if err != nil {
		return Nil, err
	}
	f.line = e.SpanVal.Start.Line
	result, err := v.invoke(recv, e.Name, args)
	v.truncateTemps(mark)
	return result, err
}

func (v *VM) evalGet(f *frame, e *compiler.Get) (Value, error) {
	if ns, ok := v.moduleReceiver(e.Object); ok {
		val, ok := ns.Lookup(e.Name)
		if !ok {
			return Nil, v.raise(NameError, "module '%s' has no binding '%s'", ns.Name(), e.Name)
		}
		return val, nil
	}
	obj, err := v.eval(f, e.Object)
	if err != nil {
		return Nil, err
	}
	inst := obj.Instance()
	if inst == nil {
		return Nil, v.raise(TypeError, "cannot read field '%s' of %s value", e.Name, obj.TypeName())
	}
	val, ok := inst.Field(e.Name)
	if !ok {
		return Nil, v.raise(NameError, "undefined field '%s' on %s instance", e.Name, inst.Class.Name)
	}
	return val, nil
}

func (v *VM) evalSet(f *frame, e *compiler.Set) (Value, error) {
	mark := v.tempMark()
	obj, err := v.eval(f, e.Object)
	if err != nil {
		return Nil, err
	}
	v.push(obj)
	val, err := v.eval(f, e.Value)
	if err != nil {
		return Nil, err
	}
	inst := obj.Instance()
	if inst == nil {
		return Nil, v.raise(TypeError, "cannot set field '%s' on %s value", e.Name, obj.TypeName())
	}
	v.setField(inst, e.Name, val)
	v.truncateTemps(mark)
	return val, nil
}

// setField creates or replaces an own field.
func (v *VM) setField(inst *Instance, name string, val Value) {
	if _, exists := inst.Fields[name]; !exists {
		v.heap.grow(inst, sizeEntry)
	}
	inst.Fields[name] = val
}
