package vm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cheezgi/piccolo/compiler"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// VM: one Piccolo runtime instance
// ---------------------------------------------------------------------------

// Builtin module names accepted in Config.Modules.
const (
	ModulePrelude = "prelude"
	ModuleIO      = "io"
	ModuleString  = "string"
	ModuleSys     = "sys"
	ModuleStore   = "store"
)

// BuiltinModules lists the modules installed when Config.Modules is empty.
// The store module is added separately when Config.StorePath is set.
var BuiltinModules = []string{ModulePrelude, ModuleIO, ModuleString, ModuleSys}

// ErrClosed is returned by operations on a closed VM.
var ErrClosed = errors.New("vm is closed")

// Config tunes a VM. The zero value is usable; zero fields take defaults.
type Config struct {
	InitialHeap  int     // bytes allocated before the first collection
	GrowthFactor float64 // next threshold = retained bytes * GrowthFactor
	StressGC     bool    // collect at every allocation
	MaxCallDepth int
	StepLimit    int64 // 0 means unlimited; reset on each host entry

	Modules   []string // builtin modules to install; nil means BuiltinModules
	StorePath string   // sqlite file backing the store module; "" disables it

	Stdout io.Writer
	Stdin  io.Reader
}

// DefaultConfig returns the configuration New uses for a nil config.
func DefaultConfig() *Config {
	return &Config{
		InitialHeap:  DefaultInitialThreshold,
		GrowthFactor: DefaultGrowthFactor,
		MaxCallDepth: DefaultMaxCallDepth,
	}
}

// VM is a single-threaded interpreter instance. It owns its heap, its call
// stack and its module registry; nothing is shared between VMs. A VM must
// not be used from several goroutines at once.
type VM struct {
	id       uuid.UUID
	heap     *Heap
	registry *Registry

	frames []*frame
	temps  []Value

	handles    map[uint64]*Handle
	nextHandle uint64

	lastValue   Value // result of the last top-level expression statement
	recordClass *Class

	steps     int64
	stepLimit int64
	maxDepth  int

	started time.Time
	stdout  io.Writer
	stdin   *bufio.Reader
	store   *kvStore

	log    commonlog.Logger
	closed bool
}

// New creates a VM and installs the configured builtin modules.
func New(cfg *Config) (*VM, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := commonlog.GetLogger("piccolo.vm")

	v := &VM{
		id:        uuid.New(),
		heap:      NewHeap(cfg.InitialHeap, cfg.GrowthFactor, cfg.StressGC, log),
		registry:  newRegistry(),
		handles:   make(map[uint64]*Handle),
		stepLimit: cfg.StepLimit,
		maxDepth:  cfg.MaxCallDepth,
		started:   time.Now(),
		stdout:    cfg.Stdout,
		log:       log,
	}
	if v.maxDepth <= 0 {
		v.maxDepth = DefaultMaxCallDepth
	}
	if v.stdout == nil {
		v.stdout = os.Stdout
	}
	in := cfg.Stdin
	if in == nil {
		in = os.Stdin
	}
	v.stdin = bufio.NewReader(in)

	modules := cfg.Modules
	if modules == nil {
		modules = BuiltinModules
	}
	for _, name := range modules {
		install, ok := builtinInstallers[name]
		if !ok {
			return nil, fmt.Errorf("unknown builtin module %q", name)
		}
		install(v)
	}
	if cfg.StorePath != "" {
		store, err := openStore(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		v.store = store
		v.installStore()
	}

	v.log.Debugf("vm %s started (modules: %v, stress-gc: %t)", v.id, v.registry.Modules(), cfg.StressGC)
	return v, nil
}

// builtinInstallers maps module names accepted in Config.Modules to the
// function that populates them.
var builtinInstallers = map[string]func(*VM){
	ModulePrelude: (*VM).installPrelude,
	ModuleIO:      (*VM).installIO,
	ModuleString:  (*VM).installString,
	ModuleSys:     (*VM).installSys,
}

// Close frees every heap object, running pending finalizers, and closes the
// store. The VM is unusable afterwards.
func (v *VM) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	v.frames = nil
	v.temps = nil
	for _, h := range v.handles {
		h.released = true
		h.value = Nil
	}
	v.handles = map[uint64]*Handle{}
	v.lastValue = Nil
	freed := v.heap.FreeAll()
	v.log.Debugf("vm %s closed, %d objects released", v.id, freed)
	if v.store != nil {
		return v.store.Close()
	}
	return nil
}

// ID returns the VM's instance id.
func (v *VM) ID() uuid.UUID { return v.id }

// Registry returns the VM's module registry.
func (v *VM) Registry() *Registry { return v.registry }

// Heap returns the VM's heap.
func (v *VM) Heap() *Heap { return v.heap }

// ---------------------------------------------------------------------------
// Host API
// ---------------------------------------------------------------------------

// RegisterNative binds a host function. An empty module binds a global;
// otherwise the module is created on first use.
func (v *VM) RegisterNative(module, name string, arity int, fn NativeFunc) *NativeFunction {
	nf := &NativeFunction{Module: module, Name: name, Arity: arity, Fn: fn}
	if module == "" {
		v.registry.Globals().Define(name, NativeValue(nf))
	} else {
		v.registry.DefineModule(module).Define(name, NativeValue(nf))
	}
	return nf
}

// DefineGlobal creates or replaces a global binding.
func (v *VM) DefineGlobal(name string, val Value) {
	v.registry.Globals().Define(name, val)
}

// Global returns a global binding.
func (v *VM) Global(name string) (Value, bool) {
	return v.registry.Globals().Lookup(name)
}

// Run executes a resolved unit. The result is the value of a top-level
// return, else the last top-level expression statement, else nil. Heap
// results are only guaranteed to survive until the next call into the VM;
// pin them with NewHandle to keep them longer.
func (v *VM) Run(unit *compiler.Unit) (Value, error) {
	return v.guard(func() (Value, error) {
		return v.runUnit(unit)
	})
}

// RunSource parses, resolves and runs src. Syntax errors are returned as
// *Error of kind LexError or ParseError wrapping the compiler error.
func (v *VM) RunSource(name, src string) (Value, error) {
	if v.closed {
		return Nil, ErrClosed
	}
	unit, err := compiler.Parse(name, src)
	if err != nil {
		return Nil, compileError(err)
	}
	return v.Run(unit)
}

func compileError(err error) *Error {
	var lexErr *compiler.LexError
	if errors.As(err, &lexErr) {
		return &Error{Kind: LexError, Message: lexErr.Msg, Source: lexErr.Source, Line: lexErr.Line, Err: err}
	}
	var parseErr *compiler.ParseError
	if errors.As(err, &parseErr) {
		return &Error{Kind: ParseError, Message: parseErr.Msg, Source: parseErr.Source, Line: parseErr.Line, Err: err}
	}
	return &Error{Kind: ParseError, Message: err.Error(), Err: err}
}

// Call invokes a callable value from the host.
func (v *VM) Call(callee Value, args ...Value) (Value, error) {
	return v.guard(func() (Value, error) {
		v.push(callee)
		for _, a := range args {
			v.push(a)
		}
		return v.callValue(callee, append([]Value(nil), args...))
	})
}

// Invoke calls a method on an instance from the host. Fields shadow
// methods exactly as in script method calls.
func (v *VM) Invoke(recv Value, name string, args ...Value) (Value, error) {
	return v.guard(func() (Value, error) {
		v.push(recv)
		for _, a := range args {
			v.push(a)
		}
		return v.invoke(recv, name, append([]Value(nil), args...))
	})
}

// CallGlobal invokes the global bound to name.
func (v *VM) CallGlobal(name string, args ...Value) (Value, error) {
	callee, ok := v.Global(name)
	if !ok {
		return Nil, newError(NameError, "undefined variable '%s'", name)
	}
	return v.Call(callee, args...)
}

// NewString allocates a string. The result is unrooted: keep it reachable
// or pin it before the next allocation.
func (v *VM) NewString(s string) Value {
	v.reserve(sizeString)
	str := &String{header: header{kind: KindString}, Chars: s}
	v.heap.track(str, sizeString)
	return objectValue(str)
}

// Collect runs a full collection now.
func (v *VM) Collect() GCStats {
	return v.heap.Collect(v)
}

// Stats returns the most recent collection statistics.
func (v *VM) Stats() GCStats {
	return v.heap.LastStats()
}

// SetFinalizer attaches fn to the heap object val references. fn runs once
// when the object is reclaimed or the VM is closed; it must not call back
// into the VM.
func (v *VM) SetFinalizer(val Value, fn func(Value)) bool {
	return v.heap.SetFinalizer(val, fn)
}

// guard is the host boundary. It restores the call stack and temp roots on
// failure and turns interpreter panics into GCInternalError.
func (v *VM) guard(fn func() (Value, error)) (result Value, err error) {
	if v.closed {
		return Nil, ErrClosed
	}
	depth := len(v.frames)
	mark := v.tempMark()
	if depth == 0 {
		v.steps = 0
	}

	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(*Error)
			if !ok {
				e = newError(GCInternalError, "internal error: %v", r)
			}
			v.attachTrace(e)
			v.log.Errorf("recovered from interpreter panic: %s", e.Error())
			result, err = Nil, e
		}
		v.unwindTo(depth)
		v.truncateTemps(mark)
	}()

	return fn()
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// reserve runs a collection if allocating size more bytes crosses the
// threshold. Nothing about the object being allocated is visible yet, so
// everything the constructor needs must already be rooted.
func (v *VM) reserve(size int) {
	if v.heap.shouldCollect(size) {
		v.heap.Collect(v)
	}
}

func (v *VM) newUpvalue(slots []Value, index int) *Upvalue {
	v.reserve(sizeUpvalue)
	uv := &Upvalue{header: header{kind: kindUpvalue}, slots: slots, index: index, open: true}
	v.heap.track(uv, sizeUpvalue)
	return uv
}

// newClosure allocates a closure. The upvalues are already owned by the
// current frame or by the enclosing closure, so they are reachable.
func (v *VM) newClosure(fn *compiler.Function, upvalues []*Upvalue) *Closure {
	size := sizeClosure + len(upvalues)*sizeSlot
	v.reserve(size)
	c := &Closure{header: header{kind: KindClosure}, Func: fn, Upvalues: upvalues}
	v.heap.track(c, size)
	return c
}

// newClass allocates a class. Method closures must be rooted by the caller.
func (v *VM) newClass(name string, methods map[string]*Closure) *Class {
	size := sizeClass + len(methods)*sizeEntry
	v.reserve(size)
	cls := &Class{header: header{kind: KindClass}, Name: name, Methods: methods}
	v.heap.track(cls, size)
	return cls
}

// newInstance allocates an empty instance. cls must be rooted by the caller.
func (v *VM) newInstance(cls *Class) *Instance {
	v.reserve(sizeInstance)
	inst := &Instance{header: header{kind: KindInstance}, Class: cls, Fields: make(map[string]Value)}
	v.heap.track(inst, sizeInstance)
	return inst
}

// scanRoots marks the root set: frames, temps, namespaces, handles and the
// VM's own references.
func (v *VM) scanRoots(m *marker) {
	for _, f := range v.frames {
		f.mark(m)
	}
	for _, val := range v.temps {
		m.markValue(val)
	}
	v.registry.mark(m)
	for _, h := range v.handles {
		m.markValue(h.value)
	}
	m.markValue(v.lastValue)
	if v.recordClass != nil {
		m.markObject(v.recordClass)
	}
}
