package vm

import (
	"errors"
)

// ---------------------------------------------------------------------------
// Call dispatch
// ---------------------------------------------------------------------------
//
// Callers root the callee and every argument before dispatching; args is
// a private copy that dispatch may keep.

// callValue invokes any callable value.
func (v *VM) callValue(callee Value, args []Value) (Value, error) {
	switch callee.kind {
	case KindClosure:
		return v.callClosure(callee.Closure(), Nil, args)
	case KindNative:
		return v.callNative(callee.Native(), args)
	case KindClass:
		return v.construct(callee.Class(), args)
	}
	return Nil, v.raise(TypeError, "cannot call %s value", callee.TypeName())
}

// callClosure runs c in a new frame. Missing arguments are nil and extra
// arguments are dropped. For methods self occupies slot 0.
func (v *VM) callClosure(c *Closure, self Value, args []Value) (Value, error) {
	fn := c.Func
	name := fn.Name
	if name == "" {
		name = "<fn>"
	}
	f, err := v.pushFrame(name, fn.Source, fn.NumSlots)
	if err != nil {
		return Nil, err
	}
	f.closure = c
	f.line = fn.SpanVal.Start.Line
	if fn.IsMethod {
		f.slots[0] = self
	}
	for i := range fn.Params {
		if i < len(args) {
			f.slots[fn.ParamSlot(i)] = args[i]
		}
	}

	returned, err := v.execBody(f, fn.Body)
	if err != nil {
		v.popFrame(f)
		return Nil, err
	}
	result := Nil
	if returned {
		result = f.ret
	}
	v.popFrame(f)
	return result, nil
}

// construct creates an instance of cls and runs its init method, if any.
// The call always yields the instance; init's return value is ignored.
func (v *VM) construct(cls *Class, args []Value) (Value, error) {
	mark := v.tempMark()
	inst := objectValue(v.newInstance(cls))
	v.push(inst)
	if init, ok := cls.Method("init"); ok {
		if _, err := v.callClosure(init, inst, args); err != nil {
			return Nil, err
		}
	}
	v.truncateTemps(mark)
	return inst, nil
}

// invoke performs recv.name(args). An own field shadows a method of the
// same name: a callable field is called without a receiver.
func (v *VM) invoke(recv Value, name string, args []Value) (Value, error) {
	inst := recv.Instance()
	if inst == nil {
		return Nil, v.raise(TypeError, "cannot call method '%s' on %s value", name, recv.TypeName())
	}
	if field, ok := inst.Field(name); ok {
		if !field.IsCallable() {
			return Nil, v.raise(TypeError, "field '%s' of %s instance is a %s, not callable",
				name, inst.Class.Name, field.TypeName())
		}
		mark := v.tempMark()
		v.push(field)
		result, err := v.callValue(field, args)
		v.truncateTemps(mark)
		return result, err
	}
	if method, ok := inst.Class.Method(name); ok {
		return v.callClosure(method, recv, args)
	}
	return Nil, v.raise(UnknownMethodError, "%s instance has no method '%s'", inst.Class.Name, name)
}

// callNative runs a host function in a native frame. Values the native
// allocates through its CallContext stay rooted until it returns.
func (v *VM) callNative(fn *NativeFunction, args []Value) (Value, error) {
	if fn.Arity >= 0 && len(args) < fn.Arity {
		return Nil, v.raise(ArityError, "%s expects at least %d arguments, got %d",
			fn.QualifiedName(), fn.Arity, len(args))
	}
	f, err := v.pushFrame(fn.QualifiedName(), "<native>", 0)
	if err != nil {
		return Nil, err
	}
	f.native = fn

	mark := v.tempMark()
	ctx := &CallContext{vm: v, fn: fn}
	result, err := fn.Fn(ctx, args)
	if err != nil {
		err = v.nativeError(fn, err)
		v.popFrame(f)
		v.truncateTemps(mark)
		return Nil, err
	}
	v.popFrame(f)
	v.truncateTemps(mark)
	return result, nil
}

// nativeError converts a Go error returned by a native into a script error.
// Script errors that passed through a re-entrant call keep their kind.
func (v *VM) nativeError(fn *NativeFunction, err error) error {
	var se *Error
	if errors.As(err, &se) {
		v.attachTrace(se)
		return se
	}
	e := v.raise(NativeError, "%s: %s", fn.QualifiedName(), err.Error())
	e.Err = err
	return e
}
