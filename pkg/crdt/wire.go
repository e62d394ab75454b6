package crdt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rechain/crdtreplica/pkg/causal"
)

// sortReplicaIDs sorts ids ascending by their raw byte representation,
// matching the lexicographic replica_id ordering required by every
// reference CRDT's wire encoding (spec.md §4.4).
func sortReplicaIDs(ids []causal.ReplicaID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}

// encodeLWWValue/decodeLWWValue serialize the opaque application value
// carried by an LWWRegister. The register's value has no fixed shape, so
// unlike GCounter/PNCounter/ORSet it falls back to JSON rather than a
// hand-rolled binary layout; the wrapping frame (version, dot, timestamp)
// stays the deterministic big-endian format the other CRDTs use.
func encodeLWWValue(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBinary, err)
	}
	return data, nil
}

func decodeLWWValue(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBinary, err)
	}
	return v, nil
}
