package vm

import (
	"fmt"
	"math"
	"reflect"
	"sort"
)

// ---------------------------------------------------------------------------
// Go <-> script value conversion
// ---------------------------------------------------------------------------

// RecordClassName is the class of instances built from Go maps.
const RecordClassName = "Record"

// RecordClass returns the VM's built-in Record class, creating it on first
// use.
func (v *VM) RecordClass() *Class {
	if v.recordClass == nil {
		v.recordClass = v.newClass(RecordClassName, map[string]*Closure{})
	}
	return v.recordClass
}

// ToValue converts a Go value. Supported: nil, bool, integers, floats,
// string, Value, *NativeFunction and maps with string keys, which become
// Record instances. Unsigned values above math.MaxInt64 are rejected. The
// result is unrooted.
func (v *VM) ToValue(val interface{}) (Value, error) {
	return v.guard(func() (Value, error) {
		return v.toValue(val)
	})
}

func (v *VM) toValue(val interface{}) (Value, error) {
	switch x := val.(type) {
	case nil:
		return Nil, nil
	case Value:
		return x, nil
	case *NativeFunction:
		return NativeValue(x), nil
	case *Handle:
		return x.Value(), nil
	case string:
		return v.NewString(x), nil
	case bool:
		return Bool(x), nil
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := rv.Uint()
		if n > math.MaxInt64 {
			return Nil, fmt.Errorf("cannot convert %T %d: out of int range", val, n)
		}
		return Int(int64(n)), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.String:
		return v.NewString(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Nil, fmt.Errorf("cannot convert map with %s keys", rv.Type().Key())
		}
		return v.mapToRecord(rv)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return Nil, nil
		}
		return v.toValue(rv.Elem().Interface())
	}
	return Nil, fmt.Errorf("cannot convert %T to a script value", val)
}

// mapToRecord builds a Record instance field by field. The instance stays
// on the temp stack while nested values are allocated.
func (v *VM) mapToRecord(rv reflect.Value) (Value, error) {
	cls := v.RecordClass()
	inst := v.newInstance(cls)
	v.push(objectValue(inst))

	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	for _, k := range keys {
		field, err := v.toValue(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
		if err != nil {
			return Nil, fmt.Errorf("field %q: %w", k, err)
		}
		v.setField(inst, k, field)
	}
	return objectValue(inst), nil
}

// FromValue converts a script value to Go: nil, bool, int64, float64,
// string, map[string]interface{} for instances, and the *NativeFunction,
// *Closure or *Class itself for callables.
func FromValue(val Value) (interface{}, error) {
	return fromValue(val, 0)
}

// maxMarshalDepth bounds recursion through self-referencing instances.
const maxMarshalDepth = 64

func fromValue(val Value, depth int) (interface{}, error) {
	if depth > maxMarshalDepth {
		return nil, fmt.Errorf("value nested deeper than %d levels", maxMarshalDepth)
	}
	switch val.kind {
	case KindNil:
		return nil, nil
	case KindBool:
		return val.AsBool(), nil
	case KindInt:
		return val.AsInt(), nil
	case KindFloat:
		return val.AsFloat(), nil
	case KindString:
		s, _ := val.AsString()
		return s, nil
	case KindNative:
		return val.Native(), nil
	case KindClosure:
		return val.Closure(), nil
	case KindClass:
		return val.Class(), nil
	case KindInstance:
		inst := val.Instance()
		out := make(map[string]interface{}, len(inst.Fields))
		for name, field := range inst.Fields {
			gv, err := fromValue(field, depth+1)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			out[name] = gv
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value kind %s", val.kind)
}
