package vm

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// string module
// ---------------------------------------------------------------------------

func (v *VM) installString() {
	v.RegisterNative(ModuleString, "len", 1, func(ctx *CallContext, args []Value) (Value, error) {
		s, err := ctx.StringArg(args, 0)
		if err != nil {
			return Nil, err
		}
		return Int(int64(len(s))), nil
	})

	v.RegisterNative(ModuleString, "upper", 1, stringMap(strings.ToUpper))
	v.RegisterNative(ModuleString, "lower", 1, stringMap(strings.ToLower))
	v.RegisterNative(ModuleString, "trim", 1, stringMap(strings.TrimSpace))

	// sub(s, i, j) returns the bytes [i, j). Offsets are clamped; j
	// defaults to the end of s.
	v.RegisterNative(ModuleString, "sub", 2, func(ctx *CallContext, args []Value) (Value, error) {
		s, err := ctx.StringArg(args, 0)
		if err != nil {
			return Nil, err
		}
		i, err := ctx.IntArg(args, 1)
		if err != nil {
			return Nil, err
		}
		j, err := ctx.OptionalIntArg(args, 2, int64(len(s)))
		if err != nil {
			return Nil, err
		}
		i, j = clamp(i, int64(len(s))), clamp(j, int64(len(s)))
		if j < i {
			j = i
		}
		return ctx.NewString(s[i:j]), nil
	})

	v.RegisterNative(ModuleString, "find", 2, func(ctx *CallContext, args []Value) (Value, error) {
		s, err := ctx.StringArg(args, 0)
		if err != nil {
			return Nil, err
		}
		needle, err := ctx.StringArg(args, 1)
		if err != nil {
			return Nil, err
		}
		return Int(int64(strings.Index(s, needle))), nil
	})

	v.RegisterNative(ModuleString, "contains", 2, func(ctx *CallContext, args []Value) (Value, error) {
		s, err := ctx.StringArg(args, 0)
		if err != nil {
			return Nil, err
		}
		needle, err := ctx.StringArg(args, 1)
		if err != nil {
			return Nil, err
		}
		return Bool(strings.Contains(s, needle)), nil
	})

	v.RegisterNative(ModuleString, "repeat", 2, func(ctx *CallContext, args []Value) (Value, error) {
		s, err := ctx.StringArg(args, 0)
		if err != nil {
			return Nil, err
		}
		n, err := ctx.IntArg(args, 1)
		if err != nil {
			return Nil, err
		}
		if n < 0 {
			return Nil, ctx.TypeError("negative repeat count %d", n)
		}
		return ctx.NewString(strings.Repeat(s, int(n))), nil
	})

	// from renders any value the way print does.
	v.RegisterNative(ModuleString, "from", 1, func(ctx *CallContext, args []Value) (Value, error) {
		if args[0].kind == KindString {
			return args[0], nil
		}
		return ctx.NewString(args[0].String()), nil
	})

	v.RegisterNative(ModuleString, "to_int", 1, func(ctx *CallContext, args []Value) (Value, error) {
		s, err := ctx.StringArg(args, 0)
		if err != nil {
			return Nil, err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Nil, nil
		}
		return Int(n), nil
	})

	v.RegisterNative(ModuleString, "to_float", 1, func(ctx *CallContext, args []Value) (Value, error) {
		s, err := ctx.StringArg(args, 0)
		if err != nil {
			return Nil, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Nil, nil
		}
		return Float(f), nil
	})
}

func stringMap(fn func(string) string) NativeFunc {
	return func(ctx *CallContext, args []Value) (Value, error) {
		s, err := ctx.StringArg(args, 0)
		if err != nil {
			return Nil, err
		}
		return ctx.NewString(fn(s)), nil
	}
}

func clamp(n, limit int64) int64 {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}
