// Package replica implements the core state machine (spec.md §4.8): dot
// minting, deduplicated local and remote application of CRDT mutations,
// and maintenance of the per-CRDT component log, digest and delta bundle
// production. Grounded on the teacher's testutil.TestEnvironment
// "ensure a CRDT type is constructible before use" helper style and on
// internal/storage/badger.go's commit-or-leave-unchanged transaction
// idiom (every mutating method here is atomic: on error the receiver's
// visible state is unchanged).
package replica

import (
	"fmt"
	"log"
	"sync"

	"github.com/rechain/crdtreplica/pkg/bundle"
	"github.com/rechain/crdtreplica/pkg/causal"
	"github.com/rechain/crdtreplica/pkg/components"
	"github.com/rechain/crdtreplica/pkg/config"
	"github.com/rechain/crdtreplica/pkg/crdt"
	"github.com/rechain/crdtreplica/pkg/digest"
)

// Binding is a bound CRDT instance: the type tag governing it, its
// opaque current state, and client-owned metadata (spec.md §3's
// "CRDT instance descriptor").
type Binding struct {
	Type  string
	State any
	Meta  map[string]any
}

// AddCRDTOptions configures AddCRDT (spec.md §4.8).
type AddCRDTOptions struct {
	// Overwrite allows rebinding an already-bound crdt id.
	Overwrite bool
	// InitialState, if non-nil, seeds the binding instead of type.Zero().
	InitialState any
	// Meta seeds the binding's metadata mapping.
	Meta map[string]any
}

// Replica is the single-threaded-per-call state machine described in
// spec.md §4.8-§5. Its exported methods take a mutex internally so a host
// that has not yet wired its own serialization (actor, queue, single
// mutex around the whole replica, per §5) still gets safe sequential
// semantics; the methods are not reentrant-safe to call concurrently with
// themselves in a way that could observe a torn intermediate state.
type Replica struct {
	mu sync.Mutex

	id       causal.ReplicaID
	registry *crdt.Registry
	policy   config.ReplicaPolicy
	logger   *log.Logger

	crdts      map[string]*Binding
	ctx        *causal.Context
	components *components.Log
}

// New constructs a replica bound to id, using registry to resolve
// crdt_type_tag values passed to AddCRDT/EnsureCRDT. id must be exactly
// 16 bytes (spec.md §4.8); otherwise New fails with causal.ErrInvalidID.
func New(id []byte, registry *crdt.Registry, policy config.ReplicaPolicy) (*Replica, error) {
	rid, err := causal.ReplicaIDFromBytes(id)
	if err != nil {
		return nil, err
	}
	if registry == nil {
		registry = crdt.Default()
	}
	return &Replica{
		id:         rid,
		registry:   registry,
		policy:     policy,
		logger:     log.Default(),
		crdts:      make(map[string]*Binding),
		ctx:        causal.New(),
		components: components.New(),
	}, nil
}

// ID returns the replica's own identifier.
func (r *Replica) ID() causal.ReplicaID { return r.id }

// SetLogger overrides the default *log.Logger (log.Default()) used for
// the one-line-per-operation logging spec.md's ambient stack calls for.
func (r *Replica) SetLogger(l *log.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = l
}

// Policy returns the replica's stored (never-enforced) policy options.
func (r *Replica) Policy() config.ReplicaPolicy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.policy
}

// AddCRDT binds crdtID to typeTag (spec.md §4.8). Fails with
// *AlreadyExistsError if crdtID is already bound and opts.Overwrite is
// false; fails with crdt.ErrUnknownType or *crdt.MissingError if typeTag
// does not resolve to a complete capability-contract implementation.
func (r *Replica) AddCRDT(crdtID, typeTag string, opts AddCRDTOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addCRDTLocked(crdtID, typeTag, opts)
}

func (r *Replica) addCRDTLocked(crdtID, typeTag string, opts AddCRDTOptions) error {
	if _, exists := r.crdts[crdtID]; exists && !opts.Overwrite {
		return &AlreadyExistsError{CRDTID: crdtID}
	}
	impl, err := r.registry.Lookup(typeTag)
	if err != nil {
		return err
	}
	if missing := crdt.Describe(impl); len(missing) > 0 {
		return &crdt.MissingError{Type: typeTag, Missing: missing}
	}

	state := opts.InitialState
	if state == nil {
		state = impl.Zero()
	}
	meta := opts.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	r.crdts[crdtID] = &Binding{Type: typeTag, State: state, Meta: meta}
	r.logger.Printf("replica %s: add_crdt %s type=%s overwrite=%v", r.id, crdtID, typeTag, opts.Overwrite)
	return nil
}

// EnsureCRDT is an idempotent AddCRDT: success if crdtID is already
// bound, otherwise behaves exactly like AddCRDT with Overwrite=false.
func (r *Replica) EnsureCRDT(crdtID, typeTag string, opts AddCRDTOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.crdts[crdtID]; exists {
		return nil
	}
	return r.addCRDTLocked(crdtID, typeTag, opts)
}

// FetchCRDT returns a copy of crdtID's descriptor, or *NotFoundError.
func (r *Replica) FetchCRDT(crdtID string) (Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.crdts[crdtID]
	if !ok {
		return Binding{}, &NotFoundError{CRDTID: crdtID}
	}
	return *b, nil
}

// ListCRDTs returns every bound crdt id with its type and metadata
// (state is omitted, matching spec.md §4.8 "type and meta only").
func (r *Replica) ListCRDTs() map[string]Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Binding, len(r.crdts))
	for id, b := range r.crdts {
		out[id] = Binding{Type: b.Type, Meta: b.Meta}
	}
	return out
}

// UpdateCRDTMeta replaces crdtID's metadata mapping. newMetaOrFn is either
// a map[string]any (used directly) or a func(map[string]any) any pure
// callback invoked with the current metadata; in either case a
// non-map[string]any result fails with ErrInvalidMeta and leaves the
// binding unchanged.
func (r *Replica) UpdateCRDTMeta(crdtID string, newMetaOrFn any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.crdts[crdtID]
	if !ok {
		return &NotFoundError{CRDTID: crdtID}
	}

	var result any
	switch v := newMetaOrFn.(type) {
	case func(map[string]any) any:
		result = v(b.Meta)
	default:
		result = newMetaOrFn
	}

	meta, ok := result.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: update_crdt_meta result is %T, not map[string]any", ErrInvalidMeta, result)
	}
	b.Meta = meta
	return nil
}

// ApplyOp applies a local mutation (spec.md §4.8, "local mutation, atomic
// all-or-nothing"). On any error after minting, the replica's context,
// component log, and CRDT state are all left exactly as they were.
func (r *Replica) ApplyOp(crdtID string, op any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.crdts[crdtID]
	if !ok {
		return &NotFoundError{CRDTID: crdtID}
	}
	impl, err := r.registry.Lookup(b.Type)
	if err != nil {
		return err
	}

	dot := causal.Dot{Origin: r.id, Counter: r.ctx.MaxFor(r.id) + 1}

	newState, delta, err := impl.Mutate(b.State, op, dot)
	if err != nil {
		return err
	}
	if err := r.components.Append(crdtID, r.id, dot.Counter, delta); err != nil {
		return err
	}

	b.State = newState
	r.ctx = r.ctx.Add(dot)
	r.logger.Printf("replica %s: apply_op %s dot=%s", r.id, crdtID, dot)
	return nil
}

// ApplyRemote ingests a single (dot, delta) pair for crdtID (spec.md
// §4.8, "idempotent ingestion"). If dot has already been observed,
// ApplyRemote returns success without touching any state. On any other
// error, all state is left unchanged.
func (r *Replica) ApplyRemote(crdtID string, dot causal.Dot, delta any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx.Contains(dot) {
		return nil
	}
	if !dot.Valid() {
		return fmt.Errorf("%w: %s", causal.ErrInvalidDot, dot)
	}

	b, ok := r.crdts[crdtID]
	if !ok {
		return &NotFoundError{CRDTID: crdtID}
	}
	impl, err := r.registry.Lookup(b.Type)
	if err != nil {
		return err
	}

	newState, err := impl.ApplyDelta(b.State, delta, r.ctx)
	if err != nil {
		return err
	}
	if err := r.components.Append(crdtID, dot.Origin, dot.Counter, delta); err != nil {
		// Invariant violation (spec.md §4.8 step 5): the dot was absent
		// from ctx but the log already recorded it. Treat as a hard
		// error and leave all state unchanged.
		return fmt.Errorf("apply_remote invariant violation: %w", err)
	}

	b.State = newState
	r.ctx = r.ctx.Add(dot)
	r.logger.Printf("replica %s: apply_remote %s dot=%s", r.id, crdtID, dot)
	return nil
}

// Value returns the projected external value of crdtID's current state.
func (r *Replica) Value(crdtID string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.crdts[crdtID]
	if !ok {
		return nil, &NotFoundError{CRDTID: crdtID}
	}
	impl, err := r.registry.Lookup(b.Type)
	if err != nil {
		return nil, err
	}
	return impl.Value(b.State), nil
}

// Digest emits the replica's anti-entropy progress summary (spec.md
// §4.8): for every bound crdt id, (self_id, ctx.MaxFor(self_id)). This is
// intentionally the same local maximum for every crdt regardless of
// which crdts the replica has actually authored events against (spec.md
// §9's Open Question — implemented as specified, not "fixed").
func (r *Replica) Digest() *digest.Digest {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := digest.New()
	maxCounter := r.ctx.MaxFor(r.id)
	for crdtID := range r.crdts {
		d.Set(crdtID, r.id, maxCounter)
	}
	r.logger.Printf("replica %s: digest crdts=%d max_counter=%d", r.id, len(r.crdts), maxCounter)
	return d
}

// Delta produces the bundle this replica can send a peer holding
// sinceDigest (spec.md §4.8): for every bound crdt id, every
// self-authored log entry whose counter strictly exceeds
// sinceDigest[crdt_id].counter (default 0). Crdts yielding no items are
// omitted.
func (r *Replica) Delta(sinceDigest *digest.Digest) *bundle.Bundle {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := bundle.New()
	for crdtID := range r.crdts {
		_, counter, ok := sinceDigest.Entry(crdtID)
		if !ok {
			counter = 0
		}
		for _, e := range r.components.SinceOrigin(crdtID, r.id, counter) {
			out.Add(crdtID, causal.Dot{Origin: r.id, Counter: e.Counter}, e.Delta)
		}
	}
	r.logger.Printf("replica %s: delta crdts=%d", r.id, len(r.crdts))
	return out
}

// Context returns a snapshot of the replica's causal context.
func (r *Replica) Context() *causal.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx
}

// Components returns the replica's component log, for hosts that need to
// drive components.Log.Since(digest) directly (the asymmetric "since"
// fallback behavior documented in spec.md §9, distinct from Delta above).
func (r *Replica) Components() *components.Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.components
}
