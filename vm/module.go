package vm

import (
	"sort"
)

// ---------------------------------------------------------------------------
// Namespaces and the module registry
// ---------------------------------------------------------------------------

// Namespace is a flat name to value table: the globals, or one module.
type Namespace struct {
	name     string
	bindings map[string]Value
}

func newNamespace(name string) *Namespace {
	return &Namespace{name: name, bindings: make(map[string]Value)}
}

// Name returns the module name, or "" for the globals.
func (n *Namespace) Name() string { return n.name }

// Define creates or replaces a binding.
func (n *Namespace) Define(name string, val Value) {
	n.bindings[name] = val
}

// Assign replaces an existing binding. Returns false if name is unbound.
func (n *Namespace) Assign(name string, val Value) bool {
	if _, ok := n.bindings[name]; !ok {
		return false
	}
	n.bindings[name] = val
	return true
}

// Lookup returns the value bound to name.
func (n *Namespace) Lookup(name string) (Value, bool) {
	val, ok := n.bindings[name]
	return val, ok
}

// Has reports whether name is bound.
func (n *Namespace) Has(name string) bool {
	_, ok := n.bindings[name]
	return ok
}

// Names returns the sorted binding names.
func (n *Namespace) Names() []string {
	names := make([]string, 0, len(n.bindings))
	for name := range n.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of bindings.
func (n *Namespace) Len() int { return len(n.bindings) }

func (n *Namespace) mark(m *marker) {
	for _, val := range n.bindings {
		m.markValue(val)
	}
}

// Registry holds the globals and the named modules of one VM. Registries
// are never shared between VMs.
type Registry struct {
	globals *Namespace
	modules map[string]*Namespace
}

func newRegistry() *Registry {
	return &Registry{
		globals: newNamespace(""),
		modules: make(map[string]*Namespace),
	}
}

// Globals returns the global namespace.
func (r *Registry) Globals() *Namespace { return r.globals }

// Module returns a registered module.
func (r *Registry) Module(name string) (*Namespace, bool) {
	ns, ok := r.modules[name]
	return ns, ok
}

// DefineModule returns the module called name, creating it if needed.
func (r *Registry) DefineModule(name string) *Namespace {
	if ns, ok := r.modules[name]; ok {
		return ns
	}
	ns := newNamespace(name)
	r.modules[name] = ns
	return ns
}

// Modules returns the sorted module names.
func (r *Registry) Modules() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) mark(m *marker) {
	r.globals.mark(m)
	for _, ns := range r.modules {
		ns.mark(m)
	}
}
