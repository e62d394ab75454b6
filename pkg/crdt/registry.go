package crdt

import "sync"

// Registry maps a CRDT type tag (as carried in replica metadata and the
// wire protocol) to its capability-contract implementation. Grounded on
// the teacher's crdt.go type-switch dispatch table, generalized to a
// dynamic map so hosts can register implementations beyond the built-in
// reference zoo.
type Registry struct {
	mu    sync.RWMutex
	impls map[string]Impl
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{impls: make(map[string]Impl)}
}

// Register validates that impl satisfies the full capability contract and,
// if so, binds it to tag (overwriting any previous binding). If impl is
// missing one or more operations, Register returns a *MissingError and
// leaves the registry unchanged.
func (r *Registry) Register(tag string, impl any) error {
	if missing := Describe(impl); len(missing) > 0 {
		return &MissingError{Type: tag, Missing: missing}
	}
	full := impl.(Impl)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.impls[tag] = full
	return nil
}

// Lookup returns the implementation bound to tag, or ErrUnknownType.
func (r *Registry) Lookup(tag string) (Impl, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.impls[tag]
	if !ok {
		return nil, ErrUnknownType
	}
	return impl, nil
}

// Tags returns every registered type tag, in no particular order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.impls))
	for t := range r.impls {
		out = append(out, t)
	}
	return out
}

// Default returns a registry pre-populated with the reference zoo: gcounter
// (spec-mandated), pncounter, orset and lwwregister.
func Default() *Registry {
	r := NewRegistry()
	for tag, impl := range map[string]Impl{
		"gcounter":   GCounter{},
		"pncounter":  PNCounter{},
		"orset":      ORSet{},
		"lwwregister": LWWRegister{},
	} {
		if err := r.Register(tag, impl); err != nil {
			panic(err)
		}
	}
	return r
}
