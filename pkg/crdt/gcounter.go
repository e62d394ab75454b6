package crdt

import (
	"encoding/binary"
	"fmt"

	"github.com/rechain/crdtreplica/pkg/causal"
)

// GCounterVersion is the wire-format tag for GCounter (spec.md §4.4).
const GCounterVersion uint16 = 1

// GCounterState maps replica id to a monotonically non-decreasing count.
// Also used as the shape of a GCounter delta: Mutate always produces a
// singleton map, but ApplyDelta/decode accept any map so deltas combined
// by pkg/bundle still decode cleanly.
type GCounterState map[causal.ReplicaID]uint64

// IncOp requests a GCounter increment by N; N must be >= 1.
type IncOp struct {
	N uint64
}

// Inc returns the default increment-by-one operation.
func Inc() IncOp { return IncOp{N: 1} }

// GCounter is the spec-mandated reference CRDT implementation: a
// grow-only counter over replica_id -> non-negative 64-bit count.
// Grounded on the teacher's pointwise-max merge in gcounter.go, adapted
// onto the single-Value()-method capability contract (the teacher's
// version declared both a typed Value() int64 and a Value() interface{}
// on the same receiver, which does not compile).
type GCounter struct{}

func (GCounter) Zero() any { return GCounterState{} }

func (GCounter) Version() uint16 { return GCounterVersion }

func (GCounter) Value(state any) any {
	s, ok := state.(GCounterState)
	if !ok {
		return uint64(0)
	}
	var total uint64
	for _, v := range s {
		total += v
	}
	return total
}

func (GCounter) Mutate(state any, op any, dot causal.Dot) (any, any, error) {
	s, ok := state.(GCounterState)
	if !ok {
		return nil, nil, fmt.Errorf("%w: gcounter.Mutate expects GCounterState", ErrIncompatibleValue)
	}
	inc, ok := op.(IncOp)
	if !ok {
		return nil, nil, fmt.Errorf("%w: gcounter.Mutate expects IncOp", ErrIncompatibleValue)
	}
	if inc.N == 0 {
		return nil, nil, fmt.Errorf("%w: inc(n) requires n > 0", ErrInvalidOp)
	}
	next := cloneGCounter(s)
	next[dot.Origin] = next[dot.Origin] + inc.N
	delta := GCounterState{dot.Origin: next[dot.Origin]}
	return next, delta, nil
}

func (GCounter) ApplyDelta(state any, delta any, _ *causal.Context) (any, error) {
	s, ok := state.(GCounterState)
	if !ok {
		return nil, fmt.Errorf("%w: gcounter.ApplyDelta expects GCounterState", ErrIncompatibleValue)
	}
	d, ok := delta.(GCounterState)
	if !ok {
		return nil, fmt.Errorf("%w: gcounter.ApplyDelta expects GCounterState delta", ErrIncompatibleValue)
	}
	return gcounterMax(s, d), nil
}

func (GCounter) Join(left, right any) (any, error) {
	l, ok := left.(GCounterState)
	if !ok {
		return nil, fmt.Errorf("%w: gcounter.Join expects GCounterState", ErrIncompatibleValue)
	}
	r, ok := right.(GCounterState)
	if !ok {
		return nil, fmt.Errorf("%w: gcounter.Join expects GCounterState", ErrIncompatibleValue)
	}
	return gcounterMax(l, r), nil
}

// StateContext returns the empty context: GCounter is a pure state-based
// CRDT and carries no embedded causal context of its own.
func (GCounter) StateContext(any) *causal.Context {
	return causal.New()
}

func (GCounter) EncodeDelta(delta any) ([]byte, error) {
	d, ok := delta.(GCounterState)
	if !ok {
		return nil, fmt.Errorf("%w: gcounter.EncodeDelta expects GCounterState", ErrIncompatibleValue)
	}
	return EncodeGCounterState(d)
}

func (GCounter) DecodeDelta(data []byte) (any, error) {
	return DecodeGCounterState(data)
}

func cloneGCounter(s GCounterState) GCounterState {
	out := make(GCounterState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func gcounterMax(a, b GCounterState) GCounterState {
	out := make(GCounterState, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if v > out[k] {
			out[k] = v
		}
	}
	return out
}

// EncodeGCounterState serializes a GCounter state or delta per spec.md
// §4.4: u16 version || u32 entry_count || entries, each entry u16 id_len
// || id_bytes || u64 value, sorted ascending by replica_id bytes.
func EncodeGCounterState(s GCounterState) ([]byte, error) {
	ids := make([]causal.ReplicaID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sortReplicaIDs(ids)

	buf := make([]byte, 0, 6+len(ids)*(2+16+8))
	var head [6]byte
	binary.BigEndian.PutUint16(head[0:2], GCounterVersion)
	binary.BigEndian.PutUint32(head[2:6], uint32(len(ids)))
	buf = append(buf, head[:]...)

	for _, id := range ids {
		idBytes := id.Bytes()
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(idBytes)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, idBytes...)
		var valBuf [8]byte
		binary.BigEndian.PutUint64(valBuf[:], s[id])
		buf = append(buf, valBuf[:]...)
	}
	return buf, nil
}

// DecodeGCounterState parses the encoding produced by EncodeGCounterState,
// rejecting unsupported versions, duplicate replica ids and malformed or
// trailing bytes.
func DecodeGCounterState(data []byte) (GCounterState, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("%w: gcounter payload shorter than header", ErrInvalidBinary)
	}
	version := binary.BigEndian.Uint16(data[0:2])
	if version != GCounterVersion {
		return nil, fmt.Errorf("%w: gcounter version %d", ErrUnsupportedVersion, version)
	}
	count := binary.BigEndian.Uint32(data[2:6])
	out := make(GCounterState, count)
	offset := 6
	for i := uint32(0); i < count; i++ {
		if offset+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated entry length", ErrInvalidBinary)
		}
		idLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if offset+idLen+8 > len(data) {
			return nil, fmt.Errorf("%w: truncated entry body", ErrInvalidBinary)
		}
		id, err := causal.ReplicaIDFromBytes(data[offset : offset+idLen])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBinary, err)
		}
		offset += idLen
		value := binary.BigEndian.Uint64(data[offset : offset+8])
		offset += 8
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("%w: duplicate replica id %s", ErrInvalidBinary, id)
		}
		out[id] = value
	}
	if offset != len(data) {
		return nil, fmt.Errorf("%w: trailing bytes", ErrInvalidBinary)
	}
	return out, nil
}
