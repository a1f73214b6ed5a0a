package vm

import (
	"time"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Heap: stop-the-world mark-sweep collector
// ---------------------------------------------------------------------------

// Collection pacing defaults.
const (
	DefaultInitialThreshold = 1 << 20
	DefaultGrowthFactor     = 2.0
)

// GCStats describes one collection cycle.
type GCStats struct {
	Cycle         uint64
	ObjectsBefore int
	ObjectsAfter  int
	BytesBefore   int
	BytesAfter    int
	Freed         int
	FinalizersRun int
	Threshold     int // trigger point for the next cycle
	Duration      time.Duration
	Timestamp     time.Time
}

// rootScanner enumerates the root set at the start of a collection.
type rootScanner interface {
	scanRoots(m *marker)
}

// marker holds the gray worklist during the mark phase. Tracing is
// iterative so deep object graphs cannot overflow the Go stack.
type marker struct {
	gray     []heapObject
	dangling int
}

func (m *marker) markValue(v Value) {
	if obj := v.object(); obj != nil {
		m.markObject(obj)
	}
}

func (m *marker) markObject(obj heapObject) {
	h := obj.hdr()
	if h.freed {
		m.dangling++
		return
	}
	if h.marked {
		return
	}
	h.marked = true
	m.gray = append(m.gray, obj)
}

func (m *marker) drain() {
	for len(m.gray) > 0 {
		obj := m.gray[len(m.gray)-1]
		m.gray = m.gray[:len(m.gray)-1]
		obj.trace(m)
	}
}

// Heap owns every garbage-collected object of one VM.
type Heap struct {
	objects   []heapObject
	bytes     int
	threshold int
	initial   int
	growth    float64
	stress    bool

	collecting bool
	cycles     uint64
	last       GCStats
	log        commonlog.Logger
}

// NewHeap creates a heap. initial is the byte count that triggers the first
// collection; growth scales the retained size into the next trigger point.
func NewHeap(initial int, growth float64, stress bool, log commonlog.Logger) *Heap {
	if initial <= 0 {
		initial = DefaultInitialThreshold
	}
	if growth < 1 {
		growth = DefaultGrowthFactor
	}
	return &Heap{
		threshold: initial,
		initial:   initial,
		growth:    growth,
		stress:    stress,
		log:       log,
	}
}

// shouldCollect reports whether allocating size more bytes must be preceded
// by a collection.
func (h *Heap) shouldCollect(size int) bool {
	if h.collecting {
		return false
	}
	return h.stress || h.bytes+size > h.threshold
}

// track registers a newly constructed object.
func (h *Heap) track(obj heapObject, size int) {
	hd := obj.hdr()
	hd.size = size
	h.objects = append(h.objects, obj)
	h.bytes += size
}

// grow accounts for an object that got bigger after allocation, such as an
// instance gaining a field.
func (h *Heap) grow(obj heapObject, delta int) {
	obj.hdr().size += delta
	h.bytes += delta
}

// Collect runs one full cycle: mark everything reachable from roots, then
// reclaim the rest. Finalizers of reclaimed objects run after marking and
// before the objects are flagged as freed.
func (h *Heap) Collect(roots rootScanner) GCStats {
	start := time.Now()
	h.collecting = true
	defer func() { h.collecting = false }()

	stats := GCStats{
		ObjectsBefore: len(h.objects),
		BytesBefore:   h.bytes,
		Timestamp:     start,
	}

	m := &marker{}
	roots.scanRoots(m)
	m.drain()
	if m.dangling > 0 {
		h.log.Errorf("collector found %d references to reclaimed objects", m.dangling)
	}

	kept := h.objects[:0]
	var dead []heapObject
	retained := 0
	for _, obj := range h.objects {
		hd := obj.hdr()
		if hd.marked {
			hd.marked = false
			kept = append(kept, obj)
			retained += hd.size
		} else {
			dead = append(dead, obj)
		}
	}
	// Clear the tail so the Go runtime can drop reclaimed objects.
	for i := len(kept); i < len(h.objects); i++ {
		h.objects[i] = nil
	}
	h.objects = kept
	h.bytes = retained

	stats.FinalizersRun = h.reclaim(dead)
	stats.Freed = len(dead)

	next := int(float64(retained) * h.growth)
	if next < h.initial {
		next = h.initial
	}
	h.threshold = next

	h.cycles++
	stats.Cycle = h.cycles
	stats.ObjectsAfter = len(h.objects)
	stats.BytesAfter = h.bytes
	stats.Threshold = h.threshold
	stats.Duration = time.Since(start)
	h.last = stats

	h.log.Debugf("gc cycle %d: freed %d objects (%d -> %d bytes) in %s",
		stats.Cycle, stats.Freed, stats.BytesBefore, stats.BytesAfter, stats.Duration)
	return stats
}

// reclaim runs finalizers then frees objects. Returns the number of
// finalizers run.
func (h *Heap) reclaim(dead []heapObject) int {
	ran := 0
	for _, obj := range dead {
		hd := obj.hdr()
		if hd.finalizer == nil {
			continue
		}
		fn := hd.finalizer
		hd.finalizer = nil
		h.runFinalizer(fn, objectValue(obj))
		ran++
	}
	for _, obj := range dead {
		obj.hdr().freed = true
		obj.release()
	}
	return ran
}

func (h *Heap) runFinalizer(fn func(Value), v Value) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Errorf("finalizer for %s panicked: %v", v.kind, r)
		}
	}()
	fn(v)
}

// FreeAll reclaims every object regardless of reachability. Used when the
// owning VM is closed.
func (h *Heap) FreeAll() int {
	h.collecting = true
	defer func() { h.collecting = false }()

	dead := h.objects
	h.objects = nil
	h.bytes = 0
	ran := h.reclaim(dead)
	h.log.Debugf("heap released: %d objects, %d finalizers", len(dead), ran)
	return len(dead)
}

// SetFinalizer attaches fn to the object v references. fn runs once, when
// the object is reclaimed. Returns false if v is not a heap value.
func (h *Heap) SetFinalizer(v Value, fn func(Value)) bool {
	obj := v.object()
	if obj == nil {
		return false
	}
	live(obj).hdr().finalizer = fn
	return true
}

// LiveObjects returns the number of tracked objects.
func (h *Heap) LiveObjects() int { return len(h.objects) }

// LiveBytes returns the estimated size of tracked objects.
func (h *Heap) LiveBytes() int { return h.bytes }

// Threshold returns the byte count that triggers the next collection.
func (h *Heap) Threshold() int { return h.threshold }

// Cycles returns the number of completed collections.
func (h *Heap) Cycles() uint64 { return h.cycles }

// LastStats returns statistics for the most recent collection.
func (h *Heap) LastStats() GCStats { return h.last }
