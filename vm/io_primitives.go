package vm

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ---------------------------------------------------------------------------
// io module
// ---------------------------------------------------------------------------

func (v *VM) installIO() {
	v.RegisterNative(ModuleIO, "print", -1, func(ctx *CallContext, args []Value) (Value, error) {
		if _, err := fmt.Fprint(ctx.Stdout(), joinArgs(args)); err != nil {
			return Nil, err
		}
		return Nil, nil
	})

	v.RegisterNative(ModuleIO, "println", -1, primPrintln)

	// readline returns the next line without its terminator, or nil at EOF.
	v.RegisterNative(ModuleIO, "readline", 0, func(ctx *CallContext, args []Value) (Value, error) {
		line, err := ctx.Stdin().ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return Nil, err
		}
		if line == "" && err != nil {
			return Nil, nil
		}
		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")
		return ctx.NewString(line), nil
	})
}
