package vm

// Handle pins a value for the host. A pinned value survives collections
// until the handle is released, independent of script reachability.
type Handle struct {
	vm       *VM
	id       uint64
	value    Value
	released bool
}

// NewHandle pins val. Non-heap values can be pinned too; the handle is
// then just a box.
func (v *VM) NewHandle(val Value) *Handle {
	v.nextHandle++
	h := &Handle{vm: v, id: v.nextHandle, value: val}
	v.handles[h.id] = h
	return h
}

// ID returns the handle's identifier, unique within its VM.
func (h *Handle) ID() uint64 { return h.id }

// Value returns the pinned value, or Nil after Release.
func (h *Handle) Value() Value {
	if h.released {
		return Nil
	}
	return h.value
}

// Released reports whether Release was called.
func (h *Handle) Released() bool { return h.released }

// Release unpins the value. Releasing twice is a no-op.
func (h *Handle) Release() {
	if h.released {
		return
	}
	h.released = true
	h.value = Nil
	delete(h.vm.handles, h.id)
}

// HandleCount returns the number of unreleased handles.
func (v *VM) HandleCount() int { return len(v.handles) }
