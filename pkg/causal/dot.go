// Package causal implements the sparse per-replica causal context used to
// deduplicate events and mint fresh dots for a replica.
package causal

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// ReplicaID is a 16-byte opaque replica identifier. Equality is byte-wise.
type ReplicaID [16]byte

// NewReplicaID mints a fresh random replica identifier.
func NewReplicaID() ReplicaID {
	return ReplicaID(uuid.New())
}

// ReplicaIDFromBytes validates and wraps a 16-byte slice as a ReplicaID.
func ReplicaIDFromBytes(b []byte) (ReplicaID, error) {
	var id ReplicaID
	if len(b) != len(id) {
		return id, fmt.Errorf("%w: replica id must be 16 bytes, got %d", ErrInvalidID, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Bytes returns the 16-byte representation.
func (r ReplicaID) Bytes() []byte {
	b := make([]byte, len(r))
	copy(b, r[:])
	return b
}

// String renders the replica id as lowercase hex, per spec.md §3.
func (r ReplicaID) String() string {
	return hex.EncodeToString(r[:])
}

// IsZero reports whether r is the all-zero replica id.
func (r ReplicaID) IsZero() bool {
	return r == ReplicaID{}
}

// Counter is a strictly-positive 64-bit event counter. 0 means "no event".
type Counter uint64

// Dot names exactly one event produced by Origin at Counter.
type Dot struct {
	Origin  ReplicaID
	Counter Counter
}

// Valid reports whether d is a well-formed dot: Counter must be >= 1.
func (d Dot) Valid() bool {
	return d.Counter >= 1
}

// Equal reports whether two dots name the same event.
func (d Dot) Equal(other Dot) bool {
	return d.Origin == other.Origin && d.Counter == other.Counter
}

func (d Dot) String() string {
	return fmt.Sprintf("%s:%d", d.Origin, d.Counter)
}
