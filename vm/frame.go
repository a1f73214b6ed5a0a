package vm

import (
	"github.com/cheezgi/piccolo/compiler"
)

// DefaultMaxCallDepth bounds nested calls, script and native alike.
const DefaultMaxCallDepth = 10000

// frame is one activation on the call stack.
type frame struct {
	name    string
	source  string
	closure *Closure        // nil for a unit or native frame
	native  *NativeFunction // set for native frames
	slots   []Value         // fixed size; open upvalues alias it
	open    []*Upvalue      // open upvalues owned by this frame
	ret     Value           // return value in flight
	line    int
}

func (f *frame) mark(m *marker) {
	for _, v := range f.slots {
		m.markValue(v)
	}
	if f.closure != nil {
		m.markObject(f.closure)
	}
	for _, uv := range f.open {
		m.markObject(uv)
	}
	m.markValue(f.ret)
}

func (f *frame) traceEntry() TraceEntry {
	name := f.name
	if f.native != nil {
		name = "<native " + f.native.QualifiedName() + ">"
	}
	return TraceEntry{Function: name, Source: f.source, Line: f.line}
}

// pushFrame activates a new frame with numSlots Nil slots.
func (v *VM) pushFrame(name, source string, numSlots int) (*frame, error) {
	if len(v.frames) >= v.maxDepth {
		return nil, v.raise(StackOverflowError, "call depth exceeded %d", v.maxDepth)
	}
	f := &frame{
		name:   name,
		source: source,
		slots:  make([]Value, numSlots),
	}
	if top := v.currentFrame(); top != nil {
		f.line = top.line
	}
	v.frames = append(v.frames, f)
	return f, nil
}

// popFrame closes every upvalue the frame still owns and removes it from
// the stack. f must be the top frame.
func (v *VM) popFrame(f *frame) {
	for _, uv := range f.open {
		uv.close()
	}
	f.open = nil
	n := len(v.frames) - 1
	v.frames[n] = nil
	v.frames = v.frames[:n]
}

func (v *VM) currentFrame() *frame {
	if len(v.frames) == 0 {
		return nil
	}
	return v.frames[len(v.frames)-1]
}

// unwindTo pops frames until depth frames remain.
func (v *VM) unwindTo(depth int) {
	for len(v.frames) > depth {
		v.popFrame(v.frames[len(v.frames)-1])
	}
}

// captureUpvalue returns the frame's open upvalue for slot, creating it if
// this is the first capture. Sharing the cell is what makes mutations
// visible across every closure that captured the variable.
func (v *VM) captureUpvalue(f *frame, slot int) *Upvalue {
	for _, uv := range f.open {
		if uv.index == slot {
			return uv
		}
	}
	uv := v.newUpvalue(f.slots, slot)
	f.open = append(f.open, uv)
	return uv
}

// closeUpvalues closes the frame's open upvalues for slots >= from.
func (v *VM) closeUpvalues(f *frame, from int) {
	kept := f.open[:0]
	for _, uv := range f.open {
		if uv.index >= from {
			uv.close()
		} else {
			kept = append(kept, uv)
		}
	}
	for i := len(kept); i < len(f.open); i++ {
		f.open[i] = nil
	}
	f.open = kept
}

// exitBlock releases a block's slots: captured ones are closed so the next
// entry gets fresh cells, then the slots are cleared.
func (v *VM) exitBlock(f *frame, b *compiler.Block) {
	v.closeUpvalues(f, b.Base)
	end := b.Base + b.NumLocals
	if end > len(f.slots) {
		end = len(f.slots)
	}
	for i := b.Base; i < end; i++ {
		f.slots[i] = Nil
	}
}

// ---------------------------------------------------------------------------
// Temporary roots
// ---------------------------------------------------------------------------

// push roots an intermediate value while sibling expressions are evaluated.
func (v *VM) push(val Value) {
	v.temps = append(v.temps, val)
}

func (v *VM) tempMark() int { return len(v.temps) }

func (v *VM) truncateTemps(mark int) {
	for i := mark; i < len(v.temps); i++ {
		v.temps[i] = Nil
	}
	v.temps = v.temps[:mark]
}

// ---------------------------------------------------------------------------
// Errors with script context
// ---------------------------------------------------------------------------

// maxTraceEntries caps the recorded stack, mostly for stack overflows.
const maxTraceEntries = 64

// raise builds a runtime error carrying the current script stack.
func (v *VM) raise(kind ErrorKind, format string, args ...interface{}) *Error {
	e := newError(kind, format, args...)
	v.attachTrace(e)
	return e
}

func (v *VM) attachTrace(e *Error) {
	if e.Trace != nil {
		return
	}
	e.Trace = make([]TraceEntry, 0, min(len(v.frames), maxTraceEntries))
	for i := len(v.frames) - 1; i >= 0 && len(e.Trace) < maxTraceEntries; i-- {
		e.Trace = append(e.Trace, v.frames[i].traceEntry())
	}
	if e.Line == 0 {
		for i := len(v.frames) - 1; i >= 0; i-- {
			if f := v.frames[i]; f.native == nil {
				e.Source, e.Line = f.source, f.line
				break
			}
		}
	}
}
