package storage

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/rechain/crdtreplica/pkg/causal"
	"github.com/rechain/crdtreplica/pkg/config"
	"github.com/rechain/crdtreplica/pkg/crdt"
	"github.com/rechain/crdtreplica/pkg/digest"
	"github.com/rechain/crdtreplica/pkg/replica"
)

// SnapshotReplica persists r's full state into store: the replica id,
// every bound crdt's type tag, and the components log (keyed by
// crdt/origin/counter, as spec.md §6 suggests a host might lay this
// out — "the log (as a bundle-like structure)"). The current state of
// each binding is not stored directly; it is fully derivable by replaying
// the log, which RestoreReplica does. This is a host-facing convenience,
// not part of the core state machine — the core never calls it (spec.md
// §1, §6: "Persisted state layout: none").
func SnapshotReplica(ctx context.Context, store Store, r *replica.Replica, registry *crdt.Registry) error {
	if err := store.Set(ctx, replicaIDKey(), r.ID().Bytes()); err != nil {
		return fmt.Errorf("snapshot replica id: %w", err)
	}

	log := r.Components()
	for crdtID, binding := range r.ListCRDTs() {
		impl, err := registry.Lookup(binding.Type)
		if err != nil {
			return fmt.Errorf("snapshot lookup type %q: %w", binding.Type, err)
		}
		if err := store.Set(ctx, bindingTypeKey(crdtID), []byte(binding.Type)); err != nil {
			return err
		}

		for _, origin := range log.Origins(crdtID) {
			for _, e := range log.SinceOrigin(crdtID, origin, 0) {
				deltaBytes, err := impl.EncodeDelta(e.Delta)
				if err != nil {
					return fmt.Errorf("snapshot encode delta %q/%s/%d: %w", crdtID, origin, e.Counter, err)
				}
				if err := store.Set(ctx, logEntryKey(crdtID, origin, e.Counter), deltaBytes); err != nil {
					return err
				}
			}
		}
	}

	d := r.Digest()
	digestBytes, err := digest.Encode(d)
	if err != nil {
		return fmt.Errorf("snapshot encode digest: %w", err)
	}
	if err := store.Set(ctx, digestKey(), digestBytes); err != nil {
		return fmt.Errorf("snapshot store digest: %w", err)
	}
	return nil
}

// RestoreReplica rebuilds a Replica from a prior SnapshotReplica call.
// Every binding is recreated at its type's lattice bottom (Zero()) and
// brought up to date by replaying ApplyRemote for every persisted log
// entry, including entries this replica originally authored itself:
// ApplyRemote does not special-case self-origin dots, and ingestion is
// idempotent and order-independent (spec.md §5), so replay reconstructs
// both the final CRDT state and the causal context exactly.
func RestoreReplica(ctx context.Context, store Store, registry *crdt.Registry, policy config.ReplicaPolicy) (*replica.Replica, error) {
	idBytes, err := store.Get(ctx, replicaIDKey())
	if err != nil {
		return nil, fmt.Errorf("restore replica id: %w", err)
	}
	if idBytes == nil {
		return nil, fmt.Errorf("restore: no snapshot found")
	}

	r, err := replica.New(idBytes, registry, policy)
	if err != nil {
		return nil, err
	}

	crdtIDs, err := listCRDTIDs(ctx, store)
	if err != nil {
		return nil, err
	}

	for _, crdtID := range crdtIDs {
		typeBytes, err := store.Get(ctx, bindingTypeKey(crdtID))
		if err != nil || typeBytes == nil {
			return nil, fmt.Errorf("restore binding type %q: %w", crdtID, err)
		}
		typeTag := string(typeBytes)
		impl, err := registry.Lookup(typeTag)
		if err != nil {
			return nil, err
		}
		if err := r.AddCRDT(crdtID, typeTag, replica.AddCRDTOptions{}); err != nil {
			return nil, fmt.Errorf("restore add_crdt %q: %w", crdtID, err)
		}

		entries, err := listLogEntries(ctx, store, crdtID)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			delta, err := impl.DecodeDelta(e.deltaBytes)
			if err != nil {
				return nil, fmt.Errorf("restore decode delta %q/%s/%d: %w", crdtID, e.origin, e.counter, err)
			}
			dot := causal.Dot{Origin: e.origin, Counter: e.counter}
			if err := r.ApplyRemote(crdtID, dot, delta); err != nil {
				return nil, fmt.Errorf("restore apply_remote %q/%s/%d: %w", crdtID, e.origin, e.counter, err)
			}
		}
	}

	return r, nil
}

func replicaIDKey() []byte { return []byte("replica:id") }

func bindingTypeKey(crdtID string) []byte {
	return append([]byte("binding:type:"), []byte(crdtID)...)
}

func digestKey() []byte { return []byte("digest") }

const logPrefix = "log:"

func logEntryKey(crdtID string, origin causal.ReplicaID, counter causal.Counter) []byte {
	key := append([]byte(logPrefix), []byte(crdtID)...)
	key = append(key, ':')
	key = append(key, origin.Bytes()...)
	key = append(key, ':')
	var counterBuf [8]byte
	binary.BigEndian.PutUint64(counterBuf[:], uint64(counter))
	return append(key, counterBuf[:]...)
}

func listCRDTIDs(ctx context.Context, store Store) ([]string, error) {
	ids := make(map[string]struct{})
	err := store.Iterate(ctx, []byte("binding:type:"), func(key, _ []byte) error {
		id := string(key[len("binding:type:"):])
		ids[id] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out, nil
}

type logEntry struct {
	origin     causal.ReplicaID
	counter    causal.Counter
	deltaBytes []byte
}

func listLogEntries(ctx context.Context, store Store, crdtID string) ([]logEntry, error) {
	prefix := append([]byte(logPrefix), []byte(crdtID+":")...)
	var out []logEntry
	err := store.Iterate(ctx, prefix, func(key, value []byte) error {
		rest := key[len(prefix):]
		if len(rest) < 16+1+8 {
			return fmt.Errorf("restore: malformed log key %q", key)
		}
		var origin causal.ReplicaID
		copy(origin[:], rest[:16])
		counterBytes := rest[17:]
		counter := causal.Counter(binary.BigEndian.Uint64(counterBytes))
		out = append(out, logEntry{origin: origin, counter: counter, deltaBytes: append([]byte(nil), value...)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
