package vm

import (
	"fmt"
	"sort"

	"github.com/cheezgi/piccolo/compiler"
)

// ---------------------------------------------------------------------------
// Heap objects
// ---------------------------------------------------------------------------

// header is embedded in every garbage-collected object.
type header struct {
	kind      Kind
	marked    bool
	freed     bool
	size      int
	finalizer func(Value)
}

func (h *header) hdr() *header { return h }

// heapObject is implemented by every type the collector manages.
type heapObject interface {
	hdr() *header
	// trace marks every heap reference the object holds.
	trace(m *marker)
	// release drops references once the object has been reclaimed.
	release()
}

// live returns obj, or panics with a GCInternalError if obj has already
// been reclaimed. A reclaimed object reachable from script code means a
// root was missed.
func live[T heapObject](obj T) T {
	if h := obj.hdr(); h.freed {
		panic(&Error{
			Kind:    GCInternalError,
			Message: fmt.Sprintf("use of reclaimed %s object", h.kind),
		})
	}
	return obj
}

// Object size estimates used for collection pacing.
const (
	sizeString   = 32
	sizeUpvalue  = 48
	sizeClosure  = 48
	sizeClass    = 64
	sizeInstance = 48
	sizeSlot     = 16
	sizeEntry    = 48
)

// ---------------------------------------------------------------------------
// String
// ---------------------------------------------------------------------------

// String is an immutable heap string.
type String struct {
	header
	Chars string
}

func (s *String) trace(*marker) {}
func (s *String) release()      {}

// ---------------------------------------------------------------------------
// Upvalue
// ---------------------------------------------------------------------------

// Upvalue is a shared mutable cell for a captured variable. While open it
// aliases a slot of a live frame; closing copies the current value into the
// cell itself. Every closure that captured the variable holds the same
// *Upvalue, so writes through any of them are visible to all.
type Upvalue struct {
	header
	slots  []Value // frame slots while open
	index  int
	closed Value
	open   bool
}

// Get returns the current value of the captured variable.
func (u *Upvalue) Get() Value {
	if u.open {
		return u.slots[u.index]
	}
	return u.closed
}

// Set assigns the captured variable.
func (u *Upvalue) Set(v Value) {
	if u.open {
		u.slots[u.index] = v
		return
	}
	u.closed = v
}

// IsOpen reports whether the cell still aliases a frame slot.
func (u *Upvalue) IsOpen() bool { return u.open }

func (u *Upvalue) close() {
	if !u.open {
		return
	}
	u.closed = u.slots[u.index]
	u.slots = nil
	u.open = false
}

func (u *Upvalue) trace(m *marker) {
	// Open cells alias frame slots, which are roots already.
	if !u.open {
		m.markValue(u.closed)
	}
}

func (u *Upvalue) release() {
	u.slots = nil
	u.closed = Nil
}

// ---------------------------------------------------------------------------
// Closure
// ---------------------------------------------------------------------------

// Closure pairs a function literal with the upvalue cells it captured when
// it was created.
type Closure struct {
	header
	Func     *compiler.Function
	Upvalues []*Upvalue
}

// Name returns the function's declared name, or "" for a literal.
func (c *Closure) Name() string { return c.Func.Name }

// Arity returns the declared parameter count.
func (c *Closure) Arity() int { return len(c.Func.Params) }

func (c *Closure) trace(m *marker) {
	for _, uv := range c.Upvalues {
		m.markObject(uv)
	}
}

func (c *Closure) release() {
	c.Upvalues = nil
}

// ---------------------------------------------------------------------------
// Class
// ---------------------------------------------------------------------------

// Class is created once by a class declaration and never changes. All of
// its instances share the method table.
type Class struct {
	header
	Name    string
	Methods map[string]*Closure
}

// Method looks up a method by name.
func (c *Class) Method(name string) (*Closure, bool) {
	m, ok := c.Methods[name]
	return m, ok
}

// MethodNames returns the sorted method names.
func (c *Class) MethodNames() []string {
	names := make([]string, 0, len(c.Methods))
	for name := range c.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Class) trace(m *marker) {
	for _, method := range c.Methods {
		m.markObject(method)
	}
}

func (c *Class) release() {
	c.Methods = nil
}

// ---------------------------------------------------------------------------
// Instance
// ---------------------------------------------------------------------------

// Instance is a data instance: a class reference plus its own mutable
// field map. Field storage is never shared between instances.
type Instance struct {
	header
	Class  *Class
	Fields map[string]Value
}

// Field returns the value of an own field.
func (i *Instance) Field(name string) (Value, bool) {
	v, ok := i.Fields[name]
	return v, ok
}

// FieldNames returns the sorted field names.
func (i *Instance) FieldNames() []string {
	names := make([]string, 0, len(i.Fields))
	for name := range i.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (i *Instance) trace(m *marker) {
	m.markObject(i.Class)
	for _, v := range i.Fields {
		m.markValue(v)
	}
}

func (i *Instance) release() {
	i.Class = nil
	i.Fields = nil
}
