package vm

import (
	"os"
	"time"
)

// ---------------------------------------------------------------------------
// sys module
// ---------------------------------------------------------------------------

func (v *VM) installSys() {
	v.RegisterNative(ModuleSys, "clock", 0, primClock)

	v.RegisterNative(ModuleSys, "time", 0, func(ctx *CallContext, args []Value) (Value, error) {
		return Int(time.Now().Unix()), nil
	})

	v.RegisterNative(ModuleSys, "env", 1, func(ctx *CallContext, args []Value) (Value, error) {
		name, err := ctx.StringArg(args, 0)
		if err != nil {
			return Nil, err
		}
		val, ok := os.LookupEnv(name)
		if !ok {
			return Nil, nil
		}
		return ctx.NewString(val), nil
	})

	v.RegisterNative(ModuleSys, "gc", 0, primCollect)

	v.RegisterNative(ModuleSys, "heap", 0, func(ctx *CallContext, args []Value) (Value, error) {
		return Int(int64(ctx.VM().heap.LiveBytes())), nil
	})

	v.RegisterNative(ModuleSys, "type", 1, primType)

	v.RegisterNative(ModuleSys, "id", 0, func(ctx *CallContext, args []Value) (Value, error) {
		return ctx.NewString(ctx.VM().id.String()), nil
	})
}
