package vm

import (
	"math"

	"github.com/cheezgi/piccolo/compiler"
)

// binary applies an arithmetic, comparison or equality operator. Both
// operands must already be rooted by the caller since + on strings
// allocates.
func (v *VM) binary(op compiler.TokenType, a, b Value) (Value, error) {
	switch op {
	case compiler.TokenEqual:
		return Bool(Equal(a, b)), nil
	case compiler.TokenNotEqual:
		return Bool(!Equal(a, b)), nil
	case compiler.TokenLess, compiler.TokenLessEqual, compiler.TokenGreater, compiler.TokenGreaterEqual:
		return v.compare(op, a, b)
	case compiler.TokenPlus:
		if a.kind == KindString && b.kind == KindString {
			as, _ := a.AsString()
			bs, _ := b.AsString()
			return v.NewString(as + bs), nil
		}
	case compiler.TokenAmp, compiler.TokenPipe, compiler.TokenCaret,
		compiler.TokenShiftLeft, compiler.TokenShiftRight:
		return v.bitwise(op, a, b)
	}
	return v.arith(op, a, b)
}

// bitwise applies &, |, ^, << or >> to two Integers. Shifts of 64 or more
// yield 0, or -1 for >> of a negative value.
func (v *VM) bitwise(op compiler.TokenType, a, b Value) (Value, error) {
	if a.kind != KindInt || b.kind != KindInt {
		return Nil, v.raise(TypeError, "unsupported operand types for %s: %s and %s", op, a.TypeName(), b.TypeName())
	}
	x, y := a.AsInt(), b.AsInt()
	switch op {
	case compiler.TokenAmp:
		return Int(x & y), nil
	case compiler.TokenPipe:
		return Int(x | y), nil
	case compiler.TokenCaret:
		return Int(x ^ y), nil
	}
	if y < 0 {
		return Nil, v.raise(TypeError, "negative shift count %d", y)
	}
	if op == compiler.TokenShiftLeft {
		return Int(x << uint64(y)), nil
	}
	return Int(x >> uint64(y)), nil
}

func (v *VM) arith(op compiler.TokenType, a, b Value) (Value, error) {
	if !a.IsNumber() || !b.IsNumber() {
		return Nil, v.raise(TypeError, "unsupported operand types for %s: %s and %s", op, a.TypeName(), b.TypeName())
	}

	if a.kind == KindInt && b.kind == KindInt {
		x, y := a.AsInt(), b.AsInt()
		switch op {
		case compiler.TokenPlus:
			return Int(x + y), nil
		case compiler.TokenMinus:
			return Int(x - y), nil
		case compiler.TokenStar:
			return Int(x * y), nil
		case compiler.TokenSlash:
			if y == 0 {
				return Nil, v.raise(DivideByZeroError, "integer division by zero")
			}
			if x == math.MinInt64 && y == -1 {
				return Int(x), nil
			}
			return Int(x / y), nil
		case compiler.TokenPercent:
			if y == 0 {
				return Nil, v.raise(DivideByZeroError, "integer modulo by zero")
			}
			if y == -1 {
				return Int(0), nil
			}
			return Int(x % y), nil
		}
	}

	x, y := a.Float64(), b.Float64()
	switch op {
	case compiler.TokenPlus:
		return Float(x + y), nil
	case compiler.TokenMinus:
		return Float(x - y), nil
	case compiler.TokenStar:
		return Float(x * y), nil
	case compiler.TokenSlash:
		return Float(x / y), nil
	case compiler.TokenPercent:
		return Float(math.Mod(x, y)), nil
	}
	return Nil, v.raise(TypeError, "unknown operator %s", op)
}

func (v *VM) compare(op compiler.TokenType, a, b Value) (Value, error) {
	var c int
	switch {
	case a.kind == KindInt && b.kind == KindInt:
		c = cmpOrdered(a.AsInt(), b.AsInt())
	case a.IsNumber() && b.IsNumber():
		x, y := a.Float64(), b.Float64()
		if math.IsNaN(x) || math.IsNaN(y) {
			return False, nil
		}
		c = cmpOrdered(x, y)
	case a.kind == KindString && b.kind == KindString:
		as, _ := a.AsString()
		bs, _ := b.AsString()
		c = cmpOrdered(as, bs)
	default:
		return Nil, v.raise(TypeError, "cannot compare %s and %s with %s", a.TypeName(), b.TypeName(), op)
	}
	switch op {
	case compiler.TokenLess:
		return Bool(c < 0), nil
	case compiler.TokenLessEqual:
		return Bool(c <= 0), nil
	case compiler.TokenGreater:
		return Bool(c > 0), nil
	default:
		return Bool(c >= 0), nil
	}
}

func cmpOrdered[T int64 | float64 | string](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// unary applies - or !.
func (v *VM) unary(op compiler.TokenType, a Value) (Value, error) {
	if op == compiler.TokenBang {
		return Bool(!a.Truthy()), nil
	}
	switch a.kind {
	case KindInt:
		return Int(-a.AsInt()), nil
	case KindFloat:
		return Float(-a.AsFloat()), nil
	}
	return Nil, v.raise(TypeError, "bad operand type for unary -: %s", a.TypeName())
}
