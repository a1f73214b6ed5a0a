package vm

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// newTestVM creates a VM writing to a buffer. A nil cfg gets defaults.
func newTestVM(t *testing.T, cfg *Config) (*VM, *bytes.Buffer) {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := &bytes.Buffer{}
	cfg.Stdout = out
	if cfg.Stdin == nil {
		cfg.Stdin = strings.NewReader("")
	}
	v, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	return v, out
}

// stressVM collects at every allocation.
func stressVM(t *testing.T) (*VM, *bytes.Buffer) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StressGC = true
	return newTestVM(t, cfg)
}

func mustRun(t *testing.T, v *VM, src string) Value {
	t.Helper()
	val, err := v.RunSource("test", src)
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			t.Fatalf("RunSource: %s", se.FormatTrace())
		}
		t.Fatalf("RunSource: %v", err)
	}
	return val
}

func runError(t *testing.T, v *VM, src string) *Error {
	t.Helper()
	_, err := v.RunSource("test", src)
	if err == nil {
		t.Fatalf("expected an error running %q", src)
	}
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	return se
}

func expectInt(t *testing.T, val Value, want int64) {
	t.Helper()
	if val.Kind() != KindInt || val.AsInt() != want {
		t.Fatalf("got %s (%s), want int %d", val.Repr(), val.Kind(), want)
	}
}

func expectString(t *testing.T, val Value, want string) {
	t.Helper()
	s, ok := val.AsString()
	if !ok || s != want {
		t.Fatalf("got %s (%s), want string %q", val.Repr(), val.Kind(), want)
	}
}

func TestNewDefaults(t *testing.T) {
	v, _ := newTestVM(t, nil)

	if v.ID().String() == "" {
		t.Error("VM should have an id")
	}
	mods := v.Registry().Modules()
	want := []string{"io", "string", "sys"}
	if len(mods) != len(want) {
		t.Fatalf("Modules() = %v, want %v", mods, want)
	}
	for i := range want {
		if mods[i] != want[i] {
			t.Errorf("Modules()[%d] = %q, want %q", i, mods[i], want[i])
		}
	}
	for _, name := range []string{"print", "assert", "type", "clock", "collect", "Record"} {
		if _, ok := v.Global(name); !ok {
			t.Errorf("prelude global %q missing", name)
		}
	}
}

func TestNewSelectedModules(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Modules = []string{ModuleString}
	v, _ := newTestVM(t, cfg)

	if _, ok := v.Global("print"); ok {
		t.Error("prelude should not be installed")
	}
	if _, ok := v.Registry().Module("io"); ok {
		t.Error("io should not be installed")
	}
	expectInt(t, mustRun(t, v, `string.len("abc");`), 3)
}

func TestNewUnknownModule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Modules = []string{"net"}
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unknown module")
	}
}

func TestVMsAreIsolated(t *testing.T) {
	a, _ := newTestVM(t, nil)
	b, _ := newTestVM(t, nil)

	mustRun(t, a, `let shared = 1;`)
	if _, ok := b.Global("shared"); ok {
		t.Error("globals leaked between VMs")
	}
	a.RegisterNative("extra", "f", 0, func(ctx *CallContext, args []Value) (Value, error) { return Nil, nil })
	if _, ok := b.Registry().Module("extra"); ok {
		t.Error("modules leaked between VMs")
	}
	if a.ID() == b.ID() {
		t.Error("VM ids should differ")
	}
}

func TestRunResult(t *testing.T) {
	v, _ := newTestVM(t, nil)

	tests := []struct {
		src  string
		want Value
	}{
		{`1 + 2;`, Int(3)},
		{`1; 2;`, Int(2)},
		{`let x = 5;`, Nil},
		{`return 7; 8;`, Int(7)},
		{`4; let y = 1;`, Int(4)},
		{``, Nil},
	}
	for _, tt := range tests {
		got := mustRun(t, v, tt.src)
		if !Equal(got, tt.want) {
			t.Errorf("%q: got %s, want %s", tt.src, got.Repr(), tt.want.Repr())
		}
	}
}

func TestGlobalsPersistAcrossRuns(t *testing.T) {
	v, _ := newTestVM(t, nil)

	mustRun(t, v, `let counter = 0; fn bump() { counter = counter + 1; return counter; }`)
	mustRun(t, v, `bump(); bump();`)
	expectInt(t, mustRun(t, v, `bump();`), 3)
}

func TestDefineGlobalAndCallGlobal(t *testing.T) {
	v, _ := newTestVM(t, nil)

	v.DefineGlobal("base", Int(40))
	mustRun(t, v, `fn add(n) { return base + n; }`)
	got, err := v.CallGlobal("add", Int(2))
	if err != nil {
		t.Fatalf("CallGlobal: %v", err)
	}
	expectInt(t, got, 42)

	if _, err := v.CallGlobal("missing"); !errors.Is(err, ErrName) {
		t.Errorf("CallGlobal(missing) = %v, want NameError", err)
	}
}

func TestCallHostValue(t *testing.T) {
	v, _ := newTestVM(t, nil)

	fn := mustRun(t, v, `fn(a, b) { return a * b; };`)
	h := v.NewHandle(fn)
	defer h.Release()

	got, err := v.Call(h.Value(), Int(6), Int(7))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	expectInt(t, got, 42)

	if _, err := v.Call(Int(1)); !errors.Is(err, ErrType) {
		t.Errorf("calling an int: got %v, want TypeError", err)
	}
}

func TestInvokeHostValue(t *testing.T) {
	v, _ := stressVM(t)

	inst := mustRun(t, v, `
class Counter {
	fn init() { self.n = 0; }
	fn add(k) { self.n = self.n + k; return self.n; }
}
Counter();`)
	h := v.NewHandle(inst)
	defer h.Release()

	v.Invoke(h.Value(), "add", Int(3))
	got, err := v.Invoke(h.Value(), "add", Int(4))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	expectInt(t, got, 7)

	if _, err := v.Invoke(h.Value(), "missing"); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("missing method: got %v, want UnknownMethodError", err)
	}
	if _, err := v.Invoke(Int(1), "add"); !errors.Is(err, ErrType) {
		t.Errorf("invoke on int: got %v, want TypeError", err)
	}
}

func TestRunSourceSyntaxErrors(t *testing.T) {
	v, _ := newTestVM(t, nil)

	e := runError(t, v, `let x = ;`)
	if e.Kind != ParseError {
		t.Errorf("kind = %s, want ParseError", e.Kind)
	}
	if e.Line != 1 {
		t.Errorf("line = %d, want 1", e.Line)
	}

	e = runError(t, v, "let s = \"unterminated;")
	if e.Kind != LexError {
		t.Errorf("kind = %s, want LexError", e.Kind)
	}
}

func TestDeepNestingIsParseError(t *testing.T) {
	v, _ := newTestVM(t, nil)

	n := 1000000
	e := runError(t, v, strings.Repeat("(", n)+"1"+strings.Repeat(")", n)+";")
	if e.Kind != ParseError || !strings.Contains(e.Message, "nesting") {
		t.Errorf("error = %v, want a nesting ParseError", e)
	}

	n = 100
	expectInt(t, mustRun(t, v, strings.Repeat("(", n)+"7"+strings.Repeat(")", n)+";"), 7)
}

func TestErrorLeavesVMUsable(t *testing.T) {
	v, _ := newTestVM(t, nil)

	runError(t, v, `fn f() { return 1 + nil; } f();`)
	if len(v.frames) != 0 {
		t.Errorf("frames not unwound: %d left", len(v.frames))
	}
	if len(v.temps) != 0 {
		t.Errorf("temps not truncated: %d left", len(v.temps))
	}
	expectInt(t, mustRun(t, v, `f; 5;`), 5)
}

func TestClose(t *testing.T) {
	v, err := New(&Config{Stdout: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	finalized := 0
	val := mustRun(t, v, `let keep = "alive"; keep;`)
	v.SetFinalizer(val, func(Value) { finalized++ })

	if err := v.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if finalized != 1 {
		t.Errorf("finalizer ran %d times on Close, want 1", finalized)
	}
	if v.Heap().LiveObjects() != 0 {
		t.Errorf("objects left after Close: %d", v.Heap().LiveObjects())
	}
	if _, err := v.RunSource("test", `1;`); !errors.Is(err, ErrClosed) {
		t.Errorf("RunSource after Close = %v, want ErrClosed", err)
	}
	if err := v.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
