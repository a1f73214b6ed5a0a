package vm

import (
	"testing"
)

func TestStressGCRootSafety(t *testing.T) {
	v, out := stressVM(t)

	src := `
let parts = "";
let i = 0;
while (i < 20) {
	let piece = "x" + string.from(i);
	parts = parts + piece + ",";
	i = i + 1;
}
class Pair {
	fn init(a, b) { self.a = a; self.b = b; }
	fn join() { return self.a + "-" + self.b; }
}
let p = Pair("left" + "1", "right" + "2");
print(p.join(), string.upper("done"));
parts;
`
	got := mustRun(t, v, src)
	want := "x0,x1,x2,x3,x4,x5,x6,x7,x8,x9,x10,x11,x12,x13,x14,x15,x16,x17,x18,x19,"
	expectString(t, got, want)
	if out.String() != "left1-right2 DONE\n" {
		t.Errorf("output = %q", out.String())
	}
	if v.Heap().Cycles() == 0 {
		t.Error("stress mode should have collected")
	}
}

func TestStressGCClosures(t *testing.T) {
	v, _ := stressVM(t)

	src := `
fn makeCounter(prefix) {
	let n = 0;
	return fn() {
		n = n + 1;
		return prefix + string.from(n);
	};
}
let c = makeCounter("c");
c();
c();
c();
`
	expectString(t, mustRun(t, v, src), "c3")
}

func TestUnreachableObjectsReclaimed(t *testing.T) {
	v, _ := newTestVM(t, nil)

	mustRun(t, v, `class Node {} let keep = Node(); keep.label = "kept";`)
	v.Collect()
	baseline := v.Heap().LiveObjects()

	mustRun(t, v, `
let i = 0;
while (i < 100) {
	let garbage = Node();
	garbage.label = "g" + string.from(i);
	i = i + 1;
}
`)
	if v.Heap().LiveObjects() <= baseline {
		t.Fatalf("expected garbage before collection: %d live, baseline %d", v.Heap().LiveObjects(), baseline)
	}
	stats := v.Collect()
	if stats.Freed < 100 {
		t.Errorf("freed %d objects, want at least 100", stats.Freed)
	}
	if got := v.Heap().LiveObjects(); got != baseline {
		t.Errorf("live objects after collection = %d, want %d", got, baseline)
	}
	expectString(t, mustRun(t, v, `keep.label;`), "kept")
}

func TestCycleCollected(t *testing.T) {
	v, _ := newTestVM(t, nil)

	mustRun(t, v, `
class Box {}
let a = Box();
let b = Box();
a.other = b;
b.other = a;
`)
	a, _ := v.Global("a")
	b, _ := v.Global("b")
	finalized := 0
	v.SetFinalizer(a, func(Value) { finalized++ })
	v.SetFinalizer(b, func(Value) { finalized++ })

	v.Collect()
	if finalized != 0 {
		t.Fatalf("reachable cycle finalized")
	}

	mustRun(t, v, `a = nil; b = nil;`)
	stats := v.Collect()
	if finalized != 2 {
		t.Errorf("finalizers run = %d, want 2", finalized)
	}
	if stats.FinalizersRun != 2 {
		t.Errorf("stats.FinalizersRun = %d, want 2", stats.FinalizersRun)
	}

	v.Collect()
	if finalized != 2 {
		t.Errorf("finalizer ran more than once: %d", finalized)
	}
}

func TestFinalizerOnNonHeapValue(t *testing.T) {
	v, _ := newTestVM(t, nil)

	if v.SetFinalizer(Int(1), func(Value) {}) {
		t.Error("SetFinalizer on an int should report false")
	}
}

func TestThresholdGrowth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialHeap = 4096
	cfg.GrowthFactor = 2
	v, _ := newTestVM(t, cfg)

	if v.Heap().Threshold() != 4096 {
		t.Fatalf("initial threshold = %d", v.Heap().Threshold())
	}

	mustRun(t, v, `
let keep = "";
let i = 0;
while (i < 400) {
	keep = keep + "y";
	i = i + 1;
}
`)
	if v.Heap().Cycles() == 0 {
		t.Fatal("allocation past the threshold should trigger collections")
	}

	stats := v.Collect()
	want := stats.BytesAfter * 2
	if want < 4096 {
		want = 4096
	}
	if stats.Threshold != want || v.Heap().Threshold() != want {
		t.Errorf("threshold = %d, want %d", stats.Threshold, want)
	}
	if v.Stats().Cycle != stats.Cycle {
		t.Errorf("Stats() not updated")
	}
}

func TestCollectFromScript(t *testing.T) {
	v, _ := newTestVM(t, nil)

	got := mustRun(t, v, `
let i = 0;
while (i < 10) { "temp" + string.from(i); i = i + 1; }
collect();
`)
	if got.Kind() != KindInt || got.AsInt() < 10 {
		t.Errorf("collect() = %s, want at least 10 freed", got.Repr())
	}
}

func TestReclaimedObjectPanicsAsInternalError(t *testing.T) {
	v, _ := newTestVM(t, nil)

	s := v.NewString("lost")
	v.Collect()

	defer func() {
		r := recover()
		e, ok := r.(*Error)
		if !ok || e.Kind != GCInternalError {
			t.Errorf("recover() = %v, want GCInternalError", r)
		}
	}()
	s.AsString()
}

func TestInterpreterPanicBecomesError(t *testing.T) {
	v, _ := newTestVM(t, nil)

	lost := v.NewString("lost")
	v.Collect()
	v.DefineGlobal("lost", lost)

	e := runError(t, v, `lost + "x";`)
	if e.Kind != GCInternalError {
		t.Errorf("kind = %s, want GCInternalError", e.Kind)
	}
	expectInt(t, mustRun(t, v, `1 + 1;`), 2)
}
