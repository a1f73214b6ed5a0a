package vm

import (
	"bufio"
	"fmt"
	"io"
)

// ---------------------------------------------------------------------------
// Native functions
// ---------------------------------------------------------------------------

// NativeFunc is the signature of a host function callable from scripts.
// args holds exactly the values the script passed. A returned Go error
// becomes a NativeError unless it already is an *Error.
type NativeFunc func(ctx *CallContext, args []Value) (Value, error)

// NativeFunction is a host function bound into a module or the globals.
// Arity >= 0 is the minimum argument count; -1 accepts any number.
type NativeFunction struct {
	Module string
	Name   string
	Arity  int
	Fn     NativeFunc
}

// QualifiedName returns "module.name", or just the name for globals.
func (n *NativeFunction) QualifiedName() string {
	if n.Module == "" {
		return n.Name
	}
	return n.Module + "." + n.Name
}

// ---------------------------------------------------------------------------
// CallContext
// ---------------------------------------------------------------------------

// CallContext is handed to a native for the duration of one call. Heap
// values created through it are rooted until the native returns, so a
// native may allocate several values before handing them back.
type CallContext struct {
	vm *VM
	fn *NativeFunction
}

// VM returns the interpreter running the call.
func (c *CallContext) VM() *VM { return c.vm }

// Function returns the native being called.
func (c *CallContext) Function() *NativeFunction { return c.fn }

// Root keeps val reachable until the native returns.
func (c *CallContext) Root(val Value) Value {
	c.vm.push(val)
	return val
}

// NewString allocates a rooted string.
func (c *CallContext) NewString(s string) Value {
	return c.Root(c.vm.NewString(s))
}

// NewInstance allocates a rooted, field-less instance of cls.
func (c *CallContext) NewInstance(cls *Class) Value {
	return c.Root(objectValue(c.vm.newInstance(cls)))
}

// SetField creates or replaces a field of an instance.
func (c *CallContext) SetField(inst Value, name string, val Value) error {
	in := inst.Instance()
	if in == nil {
		return c.vm.raise(TypeError, "cannot set field '%s' on %s value", name, inst.TypeName())
	}
	c.vm.setField(in, name, val)
	return nil
}

// NewHandle pins val beyond the current call.
func (c *CallContext) NewHandle(val Value) *Handle {
	return c.vm.NewHandle(val)
}

// Call re-enters the interpreter. callee and args must be reachable, e.g.
// passed in by the script or created through this context. Errors raised
// by the callee come back unchanged; returning them from the native
// propagates them to the script.
func (c *CallContext) Call(callee Value, args ...Value) (Value, error) {
	mark := c.vm.tempMark()
	c.vm.push(callee)
	for _, a := range args {
		c.vm.push(a)
	}
	result, err := c.vm.callValue(callee, append([]Value(nil), args...))
	c.vm.truncateTemps(mark)
	if err != nil {
		return Nil, err
	}
	return c.Root(result), nil
}

// Invoke calls a method on an instance from native code.
func (c *CallContext) Invoke(recv Value, name string, args ...Value) (Value, error) {
	mark := c.vm.tempMark()
	c.vm.push(recv)
	for _, a := range args {
		c.vm.push(a)
	}
	result, err := c.vm.invoke(recv, name, append([]Value(nil), args...))
	c.vm.truncateTemps(mark)
	if err != nil {
		return Nil, err
	}
	return c.Root(result), nil
}

// Stdout returns the VM's output stream.
func (c *CallContext) Stdout() io.Writer { return c.vm.stdout }

// Stdin returns the VM's buffered input stream.
func (c *CallContext) Stdin() *bufio.Reader { return c.vm.stdin }

// TypeError builds a TypeError for a bad argument.
func (c *CallContext) TypeError(format string, args ...interface{}) error {
	return c.vm.raise(TypeError, "%s: %s", c.fn.QualifiedName(), fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

// StringArg returns args[i] as a Go string.
func (c *CallContext) StringArg(args []Value, i int) (string, error) {
	if i >= len(args) {
		return "", c.TypeError("missing argument %d", i+1)
	}
	s, ok := args[i].AsString()
	if !ok {
		return "", c.TypeError("argument %d must be a string, not %s", i+1, args[i].TypeName())
	}
	return s, nil
}

// IntArg returns args[i] as an int64. Floats are not converted.
func (c *CallContext) IntArg(args []Value, i int) (int64, error) {
	if i >= len(args) {
		return 0, c.TypeError("missing argument %d", i+1)
	}
	if args[i].kind != KindInt {
		return 0, c.TypeError("argument %d must be an int, not %s", i+1, args[i].TypeName())
	}
	return args[i].AsInt(), nil
}

// OptionalIntArg returns args[i] as an int64, or def when absent or nil.
func (c *CallContext) OptionalIntArg(args []Value, i int, def int64) (int64, error) {
	if i >= len(args) || args[i].IsNil() {
		return def, nil
	}
	return c.IntArg(args, i)
}
