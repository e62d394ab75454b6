// Package digest implements the compact per-CRDT sync-progress summary
// exchanged during anti-entropy (spec.md §4.6): a map from crdt_id to the
// (origin, counter) pair a replica has most recently observed for it.
package digest

import (
	"sort"

	"github.com/rechain/crdtreplica/pkg/causal"
)

// Entry is a single digest value: the origin and counter a replica last
// observed for one crdt_id.
type Entry struct {
	Origin  causal.ReplicaID
	Counter causal.Counter
}

// Digest maps crdt_id to its progress entry.
type Digest struct {
	entries map[string]Entry
}

// New returns an empty digest.
func New() *Digest {
	return &Digest{entries: make(map[string]Entry)}
}

// Set records (origin, counter) for crdtID, overwriting any prior value.
func (d *Digest) Set(crdtID string, origin causal.ReplicaID, counter causal.Counter) {
	d.entries[crdtID] = Entry{Origin: origin, Counter: counter}
}

// Entry returns the recorded (origin, counter) for crdtID, or ok=false.
func (d *Digest) Entry(crdtID string) (causal.ReplicaID, causal.Counter, bool) {
	e, ok := d.entries[crdtID]
	if !ok {
		return causal.ReplicaID{}, 0, false
	}
	return e.Origin, e.Counter, true
}

// IsEmpty reports whether the digest has no entries.
func (d *Digest) IsEmpty() bool {
	return len(d.entries) == 0
}

// CRDTIDs returns every crdt_id present, sorted ascending.
func (d *Digest) CRDTIDs() []string {
	out := make([]string, 0, len(d.entries))
	for id := range d.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// FirstOrigin returns the origin of the canonically-first entry (sorted
// by crdt_id, matching the digest's own wire ordering), or ok=false for an
// empty digest. Used by pkg/components.Since's documented fallback for
// crdt ids missing from the digest.
func (d *Digest) FirstOrigin() (causal.ReplicaID, bool) {
	ids := d.CRDTIDs()
	if len(ids) == 0 {
		return causal.ReplicaID{}, false
	}
	return d.entries[ids[0]].Origin, true
}

// Clone returns an independent copy.
func (d *Digest) Clone() *Digest {
	out := New()
	for id, e := range d.entries {
		out.entries[id] = e
	}
	return out
}

// Merge returns the per-crdt maximum-by-counter of a and b; the origin
// follows whichever counter wins; ties keep a's origin.
func Merge(a, b *Digest) *Digest {
	out := New()
	for id, e := range a.entries {
		out.entries[id] = e
	}
	for id, be := range b.entries {
		ae, ok := out.entries[id]
		if !ok || be.Counter > ae.Counter {
			out.entries[id] = be
		}
	}
	return out
}

// Eq reports counter equality across the union of crdt ids (missing
// counts as 0); origins are ignored.
func Eq(a, b *Digest) bool {
	for id := range unionIDs(a, b) {
		if counterOf(a, id) != counterOf(b, id) {
			return false
		}
	}
	return true
}

// Gt reports strict dominance of a over b by counter (missing = 0): for
// every crdt present in a, a's counter is >= b's; for at least one crdt,
// strictly greater; and every non-zero-counter key in b must exist in a.
func Gt(a, b *Digest) bool {
	strict := false
	for id, ae := range a.entries {
		bc := counterOf(b, id)
		if ae.Counter < bc {
			return false
		}
		if ae.Counter > bc {
			strict = true
		}
	}
	for id, be := range b.entries {
		if be.Counter > 0 {
			if _, ok := a.entries[id]; !ok {
				return false
			}
		}
	}
	return strict
}

// Since keeps only crdt ids where ctx's counter strictly exceeds
// earlier's counter.
func Since(ctx, earlier *Digest) *Digest {
	out := New()
	for id, ce := range ctx.entries {
		if ce.Counter > counterOf(earlier, id) {
			out.entries[id] = ce
		}
	}
	return out
}

// CoversNonzero reports whether every key with counter > 0 in b is
// present (at all, any counter) in a.
func CoversNonzero(a, b *Digest) bool {
	for id, be := range b.entries {
		if be.Counter == 0 {
			continue
		}
		if _, ok := a.entries[id]; !ok {
			return false
		}
	}
	return true
}

func counterOf(d *Digest, crdtID string) causal.Counter {
	e, ok := d.entries[crdtID]
	if !ok {
		return 0
	}
	return e.Counter
}

func unionIDs(a, b *Digest) map[string]struct{} {
	out := make(map[string]struct{}, len(a.entries)+len(b.entries))
	for id := range a.entries {
		out[id] = struct{}{}
	}
	for id := range b.entries {
		out[id] = struct{}{}
	}
	return out
}
