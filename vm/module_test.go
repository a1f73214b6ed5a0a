package vm

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNamespace(t *testing.T) {
	ns := newNamespace("util")

	ns.Define("b", Int(2))
	ns.Define("a", Int(1))
	if ns.Name() != "util" || ns.Len() != 2 {
		t.Fatalf("Name/Len = %s/%d", ns.Name(), ns.Len())
	}
	if names := ns.Names(); names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v, want sorted", names)
	}
	if !ns.Assign("a", Int(10)) {
		t.Error("Assign to existing binding failed")
	}
	if ns.Assign("c", Int(3)) {
		t.Error("Assign to missing binding should fail")
	}
	if val, _ := ns.Lookup("a"); val.AsInt() != 10 {
		t.Errorf("Lookup(a) = %s", val)
	}
}

func TestRegistryDefineModuleIdempotent(t *testing.T) {
	r := newRegistry()
	a := r.DefineModule("x")
	b := r.DefineModule("x")
	if a != b {
		t.Error("DefineModule should return the existing namespace")
	}
	if mods := r.Modules(); len(mods) != 1 || mods[0] != "x" {
		t.Errorf("Modules() = %v", mods)
	}
}

func TestModuleBindingsAreRoots(t *testing.T) {
	v, _ := newTestVM(t, nil)

	ns := v.Registry().DefineModule("consts")
	greeting := v.NewString("hello")
	ns.Define("greeting", greeting)

	v.Collect()
	expectString(t, mustRun(t, v, `consts.greeting;`), "hello")
}

func TestStringModule(t *testing.T) {
	v, _ := newTestVM(t, nil)

	tests := []struct {
		src  string
		want Value
	}{
		{`string.len("hello");`, Int(5)},
		{`string.find("hello", "ll");`, Int(2)},
		{`string.find("hello", "z");`, Int(-1)},
		{`string.contains("hello", "ell");`, True},
		{`string.to_int(" 42 ");`, Int(42)},
		{`string.to_int("x");`, Nil},
		{`string.to_float("2.5");`, Float(2.5)},
		{`string.to_float("");`, Nil},
	}
	for _, tt := range tests {
		got := mustRun(t, v, tt.src)
		if !Equal(got, tt.want) || got.Kind() != tt.want.Kind() {
			t.Errorf("%s = %s, want %s", tt.src, got.Repr(), tt.want.Repr())
		}
	}

	strs := []struct {
		src  string
		want string
	}{
		{`string.upper("abc");`, "ABC"},
		{`string.lower("ABC");`, "abc"},
		{`string.trim("  x  ");`, "x"},
		{`string.sub("hello", 1, 3);`, "el"},
		{`string.sub("hello", 2);`, "llo"},
		{`string.sub("hello", -5, 100);`, "hello"},
		{`string.sub("hello", 4, 1);`, ""},
		{`string.repeat("ab", 3);`, "ababab"},
		{`string.from(1.0);`, "1.0"},
		{`string.from(nil);`, "nil"},
		{`string.from("same");`, "same"},
	}
	for _, tt := range strs {
		expectString(t, mustRun(t, v, tt.src), tt.want)
	}

	for _, src := range []string{`string.len(5);`, `string.repeat("a", -1);`, `string.sub("a", "b");`} {
		e := runError(t, v, src)
		if e.Kind != TypeError {
			t.Errorf("%s: kind = %s, want TypeError", src, e.Kind)
		}
	}
}

func TestSysModule(t *testing.T) {
	v, _ := newTestVM(t, nil)
	t.Setenv("PICCOLO_TEST_VAR", "set")

	expectString(t, mustRun(t, v, `sys.env("PICCOLO_TEST_VAR");`), "set")
	if got := mustRun(t, v, `sys.env("PICCOLO_SURELY_UNSET");`); !got.IsNil() {
		t.Errorf("unset env = %s, want nil", got.Repr())
	}
}

func TestSysModuleValues(t *testing.T) {
	v, _ := newTestVM(t, nil)

	if got := mustRun(t, v, `sys.clock();`); got.Kind() != KindFloat || got.AsFloat() < 0 {
		t.Errorf("sys.clock() = %s", got.Repr())
	}
	if got := mustRun(t, v, `sys.time();`); got.Kind() != KindInt || got.AsInt() <= 0 {
		t.Errorf("sys.time() = %s", got.Repr())
	}
	if got := mustRun(t, v, `sys.heap();`); got.Kind() != KindInt || got.AsInt() <= 0 {
		t.Errorf("sys.heap() = %s", got.Repr())
	}
	expectString(t, mustRun(t, v, `sys.id();`), v.ID().String())
	expectString(t, mustRun(t, v, `sys.type(1.5);`), "float")
	if got := mustRun(t, v, `sys.gc();`); got.Kind() != KindInt {
		t.Errorf("sys.gc() = %s", got.Repr())
	}
}

func TestStoreModule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	cfg := DefaultConfig()
	cfg.StorePath = path
	v, _ := newTestVM(t, cfg)

	mustRun(t, v, `
store.put("name", "piccolo");
store.put("answer", 42);
store.put("ratio", 0.5);
store.put("flag", true);
store.put("nothing", nil);
store.put("answer", 43);
`)
	expectInt(t, mustRun(t, v, `store.count();`), 5)
	expectString(t, mustRun(t, v, `store.get("name");`), "piccolo")
	expectInt(t, mustRun(t, v, `store.get("answer");`), 43)
	if got := mustRun(t, v, `store.get("ratio");`); got.AsFloat() != 0.5 {
		t.Errorf("ratio = %s", got.Repr())
	}
	if got := mustRun(t, v, `store.get("missing");`); !got.IsNil() {
		t.Errorf("missing key = %s, want nil", got.Repr())
	}
	if got := mustRun(t, v, `store.delete("flag");`); !got.AsBool() {
		t.Error("delete of an existing key should return true")
	}
	if got := mustRun(t, v, `store.delete("flag");`); got.AsBool() {
		t.Error("second delete should return false")
	}

	e := runError(t, v, `store.put("fn", fn() {});`)
	if !errors.Is(e, ErrType) {
		t.Errorf("storing a closure: got %v, want TypeError", e)
	}

	// Values persist across VMs sharing the file.
	v.Close()
	v2, _ := newTestVM(t, cfg)
	expectString(t, mustRun(t, v2, `store.get("name");`), "piccolo")
}

func TestStoreDisabledWithoutPath(t *testing.T) {
	v, _ := newTestVM(t, nil)
	if _, ok := v.Registry().Module(ModuleStore); ok {
		t.Error("store module should not be installed without a path")
	}
}

func TestStoreBadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.StorePath = filepath.Join(blocker, "store.db")
	if _, err := New(cfg); err == nil {
		t.Error("expected error opening a store under a regular file")
	}
}
