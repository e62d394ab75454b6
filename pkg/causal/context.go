package causal

// Context is a sparse per-replica counter set used for deduplication and
// for minting fresh local dots (spec.md §3, §4.2). A missing replica entry
// is semantically equivalent to an empty set.
type Context struct {
	sets map[ReplicaID]*OrdSet[Counter]
}

// New returns the empty context.
func New() *Context {
	return &Context{sets: make(map[ReplicaID]*OrdSet[Counter])}
}

// FromDots builds a context from a slice of dots, collapsing duplicates.
func FromDots(dots []Dot) *Context {
	ctx := New()
	for _, d := range dots {
		ctx = ctx.Add(d)
	}
	return ctx
}

func (c *Context) setFor(r ReplicaID) *OrdSet[Counter] {
	s, ok := c.sets[r]
	if !ok {
		return NewOrdSet[Counter]()
	}
	return s
}

// Contains reports whether d has been observed.
func (c *Context) Contains(d Dot) bool {
	return c.setFor(d.Origin).Contains(d.Counter)
}

// Add returns a new Context with d inserted into the origin's set.
func (c *Context) Add(d Dot) *Context {
	out := c.clone()
	s, ok := out.sets[d.Origin]
	if !ok {
		s = NewOrdSet[Counter]()
		out.sets[d.Origin] = s
	}
	s.Insert(d.Counter)
	return out
}

// MaxFor returns the largest counter recorded for replica r, or 0 if absent.
// Used to mint the next local dot.
func (c *Context) MaxFor(r ReplicaID) Counter {
	max, ok := c.setFor(r).Max()
	if !ok {
		return 0
	}
	return max
}

// IsEmpty reports whether every replica's set is empty (or there are none).
func (c *Context) IsEmpty() bool {
	for _, s := range c.sets {
		if !s.IsEmpty() {
			return false
		}
	}
	return true
}

// Replicas returns the set of replica ids with at least one tracked entry.
// Empty per-replica sets left behind by set operations are not reported.
func (c *Context) Replicas() []ReplicaID {
	var out []ReplicaID
	for r, s := range c.sets {
		if !s.IsEmpty() {
			out = append(out, r)
		}
	}
	return out
}

func (c *Context) clone() *Context {
	out := &Context{sets: make(map[ReplicaID]*OrdSet[Counter], len(c.sets))}
	for r, s := range c.sets {
		out.sets[r] = s.Clone()
	}
	return out
}

func unionKeys(a, b *Context) map[ReplicaID]struct{} {
	keys := make(map[ReplicaID]struct{}, len(a.sets)+len(b.sets))
	for r := range a.sets {
		keys[r] = struct{}{}
	}
	for r := range b.sets {
		keys[r] = struct{}{}
	}
	return keys
}

// Equal reports per-replica set equality across the union of keys in a
// and b. Missing replicas compare as the empty set.
func Equal(a, b *Context) bool {
	for r := range unionKeys(a, b) {
		if !a.setFor(r).Equal(b.setFor(r)) {
			return false
		}
	}
	return true
}

// Lt reports whether a is a strict subset of b: for every replica key in
// either operand a[k] ⊆ b[k], with at least one strict containment.
func Lt(a, b *Context) bool {
	strict := false
	for r := range unionKeys(a, b) {
		as, bs := a.setFor(r), b.setFor(r)
		if !as.Subset(bs) {
			return false
		}
		if as.Size() < bs.Size() {
			strict = true
		}
	}
	return strict
}

// Join returns the per-replica set union of a and b. Commutative and
// idempotent.
func Join(a, b *Context) *Context {
	out := New()
	for r := range unionKeys(a, b) {
		u := a.setFor(r).Union(b.setFor(r))
		if !u.IsEmpty() {
			out.sets[r] = u
		}
	}
	return out
}

// Since returns the per-replica set difference ctx[k] \ earlier[k],
// keeping only replicas with a non-empty remainder. Replicas present only
// in earlier contribute nothing; missing replicas in earlier are treated
// as empty.
func Since(ctx, earlier *Context) *Context {
	out := New()
	for r, s := range ctx.sets {
		d := s.Difference(earlier.setFor(r))
		if !d.IsEmpty() {
			out.sets[r] = d
		}
	}
	return out
}
