package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode so equal values encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// wireValue is the persisted form of a primitive value.
type wireValue struct {
	Kind  Kind    `cbor:"1,keyasint"`
	Bool  bool    `cbor:"2,keyasint,omitempty"`
	Int   int64   `cbor:"3,keyasint,omitempty"`
	Float float64 `cbor:"4,keyasint,omitempty"`
	Str   string  `cbor:"5,keyasint,omitempty"`
}

// errNotPersistable is returned for values that only make sense inside
// one VM, such as closures and instances.
type errNotPersistable struct{ kind Kind }

func (e errNotPersistable) Error() string {
	return fmt.Sprintf("%s values cannot be persisted", e.kind)
}

// MarshalValue encodes nil, bool, int, float and string values to CBOR.
func MarshalValue(val Value) ([]byte, error) {
	w := wireValue{Kind: val.kind}
	switch val.kind {
	case KindNil:
	case KindBool:
		w.Bool = val.AsBool()
	case KindInt:
		w.Int = val.AsInt()
	case KindFloat:
		w.Float = val.AsFloat()
	case KindString:
		w.Str, _ = val.AsString()
	default:
		return nil, errNotPersistable{val.kind}
	}
	return cborEncMode.Marshal(&w)
}

// UnmarshalValue decodes bytes produced by MarshalValue. Strings are
// allocated on v's heap and returned unrooted.
func (v *VM) UnmarshalValue(data []byte) (Value, error) {
	var w wireValue
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Nil, fmt.Errorf("vm: unmarshal value: %w", err)
	}
	switch w.Kind {
	case KindNil:
		return Nil, nil
	case KindBool:
		return Bool(w.Bool), nil
	case KindInt:
		return Int(w.Int), nil
	case KindFloat:
		return Float(w.Float), nil
	case KindString:
		return v.NewString(w.Str), nil
	}
	return Nil, fmt.Errorf("vm: unmarshal value: unexpected kind %s", w.Kind)
}
