package vm

import (
	"fmt"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Prelude: global natives available without a module prefix
// ---------------------------------------------------------------------------

func (v *VM) installPrelude() {
	v.RegisterNative("", "print", -1, primPrintln)

	v.RegisterNative("", "assert", 1, func(ctx *CallContext, args []Value) (Value, error) {
		if args[0].Truthy() {
			return Nil, nil
		}
		msg := "assertion failed"
		if len(args) > 1 {
			msg = "assertion failed: " + args[1].String()
		}
		return Nil, fmt.Errorf("%s", msg)
	})

	v.RegisterNative("", "type", 1, primType)
	v.RegisterNative("", "clock", 0, primClock)
	v.RegisterNative("", "collect", 0, primCollect)

	v.DefineGlobal(RecordClassName, objectValue(v.RecordClass()))
}

// joinArgs renders values the way print shows them, space separated.
func joinArgs(args []Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}

func primPrintln(ctx *CallContext, args []Value) (Value, error) {
	if _, err := fmt.Fprintln(ctx.Stdout(), joinArgs(args)); err != nil {
		return Nil, err
	}
	return Nil, nil
}

func primType(ctx *CallContext, args []Value) (Value, error) {
	return ctx.NewString(args[0].TypeName()), nil
}

func primClock(ctx *CallContext, args []Value) (Value, error) {
	return Float(time.Since(ctx.VM().started).Seconds()), nil
}

// primCollect runs a collection and returns the number of objects freed.
func primCollect(ctx *CallContext, args []Value) (Value, error) {
	stats := ctx.VM().Collect()
	return Int(int64(stats.Freed)), nil
}
