// Package bundle implements the DeltaBundle shipped during anti-entropy
// sync (spec.md §4.7): a map from crdt_id to the sequence of (dot, delta)
// pairs the receiving replica needs to catch up.
package bundle

import (
	"sort"

	"github.com/rechain/crdtreplica/pkg/causal"
	"github.com/rechain/crdtreplica/pkg/components"
)

// Item is a single (dot, delta) pair destined for one crdt_id.
type Item struct {
	Dot   causal.Dot
	Delta any
}

// Bundle maps crdt_id to the ordered sequence of items produced for it.
// Order within a crdt is the concatenation order produced by Combine;
// receivers must tolerate any order because application is commutative
// (spec.md §4.7).
type Bundle struct {
	byCRDT map[string][]Item
}

// New returns an empty bundle.
func New() *Bundle {
	return &Bundle{byCRDT: make(map[string][]Item)}
}

// FromComponentsItems builds a bundle from the []components.Item slice
// produced by a Log's Since query, grouping by crdt_id.
func FromComponentsItems(items []components.Item) *Bundle {
	b := New()
	for _, it := range items {
		b.byCRDT[it.CRDTID] = append(b.byCRDT[it.CRDTID], Item{
			Dot:   causal.Dot{Origin: it.Origin, Counter: it.Counter},
			Delta: it.Delta,
		})
	}
	return b
}

// Add appends a single item for crdtID.
func (b *Bundle) Add(crdtID string, dot causal.Dot, delta any) {
	b.byCRDT[crdtID] = append(b.byCRDT[crdtID], Item{Dot: dot, Delta: delta})
}

// Items returns the items recorded for crdtID, or nil if none.
func (b *Bundle) Items(crdtID string) []Item {
	return b.byCRDT[crdtID]
}

// CRDTIDs returns every crdt id with at least one item, sorted ascending.
func (b *Bundle) CRDTIDs() []string {
	out := make([]string, 0, len(b.byCRDT))
	for id := range b.byCRDT {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsEmpty reports whether the bundle carries no items for any crdt.
func (b *Bundle) IsEmpty() bool {
	for _, items := range b.byCRDT {
		if len(items) > 0 {
			return false
		}
	}
	return true
}

// Combine returns the per-crdt concatenation of a then b: disjoint crdt
// ids are unioned, shared ids get a then b's items appended in order. Not
// commutative as a sequence, but commutative as a multiset for
// application — receivers must apply items independently of order.
func Combine(a, b *Bundle) *Bundle {
	out := New()
	for id, items := range a.byCRDT {
		out.byCRDT[id] = append(out.byCRDT[id], items...)
	}
	for id, items := range b.byCRDT {
		out.byCRDT[id] = append(out.byCRDT[id], items...)
	}
	return out
}

// SortItemsStable sorts the items recorded for every crdt id by
// (origin, counter), giving the bundle a canonical wire order (spec.md
// §4.9's SyncResponse requires "items within an entry sorted by
// (origin, counter)"). This is purely a wire-encoding convenience;
// receivers must not depend on any particular order for correctness.
func (b *Bundle) SortItemsStable() {
	for _, items := range b.byCRDT {
		sort.SliceStable(items, func(i, j int) bool {
			oi, oj := items[i].Dot.Origin, items[j].Dot.Origin
			if oi != oj {
				return lessReplicaID(oi, oj)
			}
			return items[i].Dot.Counter < items[j].Dot.Counter
		})
	}
}

func lessReplicaID(a, b causal.ReplicaID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
