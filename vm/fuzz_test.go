package vm

import (
	"bytes"
	"errors"
	"testing"
)

// FuzzRunSource runs arbitrary source under a step limit with a collection
// at every allocation. Script errors are fine; a GC internal error or an
// escaped panic is not.
func FuzzRunSource(f *testing.F) {
	seeds := []string{
		`print(1 + 2);`,
		`let s = "a"; let i = 0; while i < 5 { s = s + s; i = i + 1; }`,
		`fn counter() { let n = 0; return fn() { n = n + 1; return n; }; } let c = counter(); c(); c();`,
		`class A { fn init(x) { self.x = x; } fn get() { return self.x; } } A(1).get();`,
		`class B { fn m() { return 1; } } let b = B(); b.m = 2; b.m();`,
		`fn f(a, b) { return b; } f(1); f(1, 2, 3);`,
		`string.len(1);`, `nil + 1;`, `undefined;`, `fn r() { return r(); } r();`,
		`sys.gc();`, `while true {}`,
		`let t = 0; for i in 0...20 { t = t ^ (i << 3) | i & 5; } t;`,
		`for i in 0..3 { let f = fn() { return i; }; f(); }`,
		`1 << -1;`, `for i in 0.."x" {}`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, src string) {
		v, err := New(&Config{StressGC: true, StepLimit: 10000, MaxCallDepth: 64, Stdout: &bytes.Buffer{}})
		if err != nil {
			t.Fatal(err)
		}
		defer v.Close()

		_, err = v.RunSource("<fuzz>", src)
		var vmErr *Error
		if errors.As(err, &vmErr) && vmErr.Kind == GCInternalError {
			t.Fatalf("heap corrupted running %q: %v", src, err)
		}
	})
}
