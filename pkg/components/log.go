// Package components implements the append-only delta log every CRDT's
// local mutations and remote deltas are recorded into (spec.md §4.5). It
// is the store that anti-entropy sync bundles are served out of; the
// replica's digest is derived from its causal context, not from this log.
package components

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rechain/crdtreplica/pkg/causal"
	"github.com/rechain/crdtreplica/pkg/digest"
)

// ErrDuplicate is returned by Append when (crdt_id, origin, counter) is
// already recorded.
var ErrDuplicate = errors.New("duplicate")

// ErrInvalidCounter is returned by Append when counter is zero.
var ErrInvalidCounter = errors.New("invalid_counter")

// Entry pairs a dot with the delta minted or received at that dot.
type Entry struct {
	Counter causal.Counter
	Delta   any
}

// Item is a single yielded (dot, delta) pair from Since(digest).
type Item struct {
	CRDTID string
	Origin causal.ReplicaID
	Counter causal.Counter
	Delta   any
}

// Log is an append-only per-(crdt_id, origin) map from counter to delta.
// Not safe for concurrent use without external synchronization; callers
// that need concurrency (pkg/replica) hold their own lock around it.
type Log struct {
	// entries[crdtID][origin][counter] = delta
	entries map[string]map[causal.ReplicaID]map[causal.Counter]any
}

// New returns an empty log.
func New() *Log {
	return &Log{entries: make(map[string]map[causal.ReplicaID]map[causal.Counter]any)}
}

// Append records delta at (crdtID, origin, counter). counter must be >= 1.
// Returns ErrDuplicate if that counter is already recorded for that
// (crdtID, origin) pair; the log does not require counters to be
// contiguous or monotonic relative to previously seen counters for the
// same origin — that invariant is enforced by Context, not the log.
func (l *Log) Append(crdtID string, origin causal.ReplicaID, counter causal.Counter, delta any) error {
	if counter < 1 {
		return fmt.Errorf("%w: counter %d", ErrInvalidCounter, counter)
	}
	byOrigin, ok := l.entries[crdtID]
	if !ok {
		byOrigin = make(map[causal.ReplicaID]map[causal.Counter]any)
		l.entries[crdtID] = byOrigin
	}
	byCounter, ok := byOrigin[origin]
	if !ok {
		byCounter = make(map[causal.Counter]any)
		byOrigin[origin] = byCounter
	}
	if _, exists := byCounter[counter]; exists {
		return fmt.Errorf("%w: %s/%s/%d", ErrDuplicate, crdtID, origin, counter)
	}
	byCounter[counter] = delta
	return nil
}

// SinceOrigin returns entries for (crdtID, origin) with counter strictly
// greater than counterExclusive, sorted ascending by counter.
func (l *Log) SinceOrigin(crdtID string, origin causal.ReplicaID, counterExclusive causal.Counter) []Entry {
	byOrigin, ok := l.entries[crdtID]
	if !ok {
		return nil
	}
	byCounter, ok := byOrigin[origin]
	if !ok {
		return nil
	}
	out := make([]Entry, 0, len(byCounter))
	for c, d := range byCounter {
		if c > counterExclusive {
			out = append(out, Entry{Counter: c, Delta: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Counter < out[j].Counter })
	return out
}

// Origins returns every origin with at least one recorded entry for crdtID.
func (l *Log) Origins(crdtID string) []causal.ReplicaID {
	byOrigin, ok := l.entries[crdtID]
	if !ok {
		return nil
	}
	out := make([]causal.ReplicaID, 0, len(byOrigin))
	for o := range byOrigin {
		out = append(out, o)
	}
	return out
}

// MaxCounter returns the largest counter recorded for (crdtID, origin), or
// 0 if none is recorded.
func (l *Log) MaxCounter(crdtID string, origin causal.ReplicaID) causal.Counter {
	byOrigin, ok := l.entries[crdtID]
	if !ok {
		return 0
	}
	byCounter, ok := byOrigin[origin]
	if !ok {
		return 0
	}
	var max causal.Counter
	for c := range byCounter {
		if c > max {
			max = c
		}
	}
	return max
}

// Frontier returns, for crdtID, the map from origin to that origin's
// highest recorded counter.
func (l *Log) Frontier(crdtID string) map[causal.ReplicaID]causal.Counter {
	byOrigin, ok := l.entries[crdtID]
	if !ok {
		return map[causal.ReplicaID]causal.Counter{}
	}
	out := make(map[causal.ReplicaID]causal.Counter, len(byOrigin))
	for origin, byCounter := range byOrigin {
		var max causal.Counter
		for c := range byCounter {
			if c > max {
				max = c
			}
		}
		out[origin] = max
	}
	return out
}

// CRDTIDs returns every crdt id with at least one recorded entry.
func (l *Log) CRDTIDs() []string {
	out := make([]string, 0, len(l.entries))
	for id := range l.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Since derives a DeltaBundle-shaped slice of Items from d (spec.md §4.5):
// for each crdt_id known to the log, pick a (origin, counter_exclusive)
// pair — d's entry for that crdt_id if present, otherwise
// (first_origin_seen_in_digest, 0); if d is empty, every entry for every
// known crdt_id is returned (the full-sync path). CRDTs with no resulting
// items are omitted. Item order across origins is unspecified.
func (l *Log) Since(d *digest.Digest) []Item {
	var out []Item
	if d.IsEmpty() {
		for _, crdtID := range l.CRDTIDs() {
			for origin, byCounter := range l.entries[crdtID] {
				for c, delta := range byCounter {
					out = append(out, Item{CRDTID: crdtID, Origin: origin, Counter: c, Delta: delta})
				}
			}
		}
		return out
	}

	firstOrigin, hasFirst := d.FirstOrigin()
	for _, crdtID := range l.CRDTIDs() {
		origin, counter, ok := d.Entry(crdtID)
		if !ok {
			if !hasFirst {
				continue
			}
			origin, counter = firstOrigin, 0
		}
		for _, e := range l.SinceOrigin(crdtID, origin, counter) {
			out = append(out, Item{CRDTID: crdtID, Origin: origin, Counter: e.Counter, Delta: e.Delta})
		}
	}
	return out
}
