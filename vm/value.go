package vm

import (
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Value: tagged union of every script-visible value
// ---------------------------------------------------------------------------

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindClosure
	KindNative
	KindInstance
	KindClass

	// kindUpvalue tags captured-variable cells. Upvalues are heap objects
	// but never appear as script values.
	kindUpvalue
)

var kindNames = [...]string{
	KindNil:      "nil",
	KindBool:     "bool",
	KindInt:      "int",
	KindFloat:    "float",
	KindString:   "string",
	KindClosure:  "function",
	KindNative:   "native",
	KindInstance: "instance",
	KindClass:    "class",
	kindUpvalue:  "upvalue",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is a script value. Nil, Bool, Int and Float are stored inline;
// String, Closure, Instance and Class reference objects owned by a VM's
// heap; Native references a host-owned *NativeFunction.
//
// A Value referencing a heap object is only valid while that object is
// reachable from the VM's roots. Hosts that hold values across calls into
// the VM must pin them with a Handle.
type Value struct {
	kind Kind
	bits uint64 // bool, int64 or float64 bits
	ref  interface{}
}

// Well-known constant values.
var (
	Nil   = Value{kind: KindNil}
	True  = Value{kind: KindBool, bits: 1}
	False = Value{kind: KindBool}
)

// Int returns an integer value.
func Int(n int64) Value {
	return Value{kind: KindInt, bits: uint64(n)}
}

// Float returns a float value.
func Float(f float64) Value {
	return Value{kind: KindFloat, bits: math.Float64bits(f)}
}

// Bool returns True or False.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// NativeValue wraps a native function as a value.
func NativeValue(fn *NativeFunction) Value {
	if fn == nil {
		return Nil
	}
	return Value{kind: KindNative, ref: fn}
}

// objectValue wraps a heap object.
func objectValue(obj heapObject) Value {
	return Value{kind: obj.hdr().kind, ref: obj}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// TypeName returns the script-level type name of v.
func (v Value) TypeName() string {
	if v.kind == KindInstance {
		return live(v.ref.(*Instance)).Class.Name
	}
	return v.kind.String()
}

// IsNil reports whether v is nil.
func (v Value) IsNil() bool { return v.kind == KindNil }

// IsNumber reports whether v is an Int or a Float.
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// IsCallable reports whether v can be invoked.
func (v Value) IsCallable() bool {
	return v.kind == KindClosure || v.kind == KindNative || v.kind == KindClass
}

// IsHeap reports whether v references a garbage-collected object.
func (v Value) IsHeap() bool {
	_, ok := v.ref.(heapObject)
	return ok
}

// AsBool returns the boolean payload. Only meaningful for KindBool.
func (v Value) AsBool() bool { return v.kind == KindBool && v.bits != 0 }

// AsInt returns the integer payload. Only meaningful for KindInt.
func (v Value) AsInt() int64 { return int64(v.bits) }

// AsFloat returns the float payload. Only meaningful for KindFloat.
func (v Value) AsFloat() float64 { return math.Float64frombits(v.bits) }

// Float64 returns the numeric value of an Int or Float as a float64.
func (v Value) Float64() float64 {
	if v.kind == KindInt {
		return float64(int64(v.bits))
	}
	return math.Float64frombits(v.bits)
}

// AsString returns the contents of a String value.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return live(v.ref.(*String)).Chars, true
}

// Closure returns the referenced closure, or nil.
func (v Value) Closure() *Closure {
	if v.kind != KindClosure {
		return nil
	}
	return live(v.ref.(*Closure))
}

// Instance returns the referenced data instance, or nil.
func (v Value) Instance() *Instance {
	if v.kind != KindInstance {
		return nil
	}
	return live(v.ref.(*Instance))
}

// Class returns the referenced class, or nil.
func (v Value) Class() *Class {
	if v.kind != KindClass {
		return nil
	}
	return live(v.ref.(*Class))
}

// Native returns the referenced native function, or nil.
func (v Value) Native() *NativeFunction {
	if v.kind != KindNative {
		return nil
	}
	return v.ref.(*NativeFunction)
}

// object returns the heap object v references, or nil.
func (v Value) object() heapObject {
	obj, _ := v.ref.(heapObject)
	return obj
}

// Truthy implements script truthiness: nil and false are falsy, everything
// else (including 0 and "") is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.bits != 0
	}
	return true
}

// Equal implements script ==. Numbers compare with Int/Float promotion,
// strings by content, reference kinds by identity. Values of different
// kinds are unequal.
func Equal(a, b Value) bool {
	if a.kind == KindInt && b.kind == KindInt {
		return a.bits == b.bits
	}
	if a.IsNumber() && b.IsNumber() {
		return a.Float64() == b.Float64()
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.bits == b.bits
	case KindString:
		as, _ := a.AsString()
		bs, _ := b.AsString()
		return as == bs
	}
	return a.ref == b.ref
}

// String renders v the way print shows it.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.bits != 0 {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(int64(v.bits), 10)
	case KindFloat:
		return formatFloat(v.AsFloat())
	case KindString:
		s, _ := v.AsString()
		return s
	case KindClosure:
		c := v.Closure()
		if c.Name() == "" {
			return "<fn>"
		}
		return "<fn " + c.Name() + ">"
	case KindNative:
		return "<native " + v.Native().QualifiedName() + ">"
	case KindInstance:
		return "<" + v.Instance().Class.Name + " instance>"
	case KindClass:
		return "<class " + v.Class().Name + ">"
	}
	return "<?>"
}

// Repr renders v for a REPL: like String, but strings are quoted.
func (v Value) Repr() string {
	if v.kind == KindString {
		s, _ := v.AsString()
		return strconv.Quote(s)
	}
	return v.String()
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return s
	}
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
