package crdt

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/rechain/crdtreplica/pkg/causal"
)

// LWWRegisterVersion is the wire-format tag for LWWRegister.
const LWWRegisterVersion uint16 = 1

// LWWRegisterState holds the current winning write. Priority is decided
// by the minting dot's (Counter, Origin) pair rather than a wall-clock
// Timestamp: two replicas can disagree about wall-clock time after a
// network partition, but every replica agrees on dot order once it has
// seen both writes, which keeps conflict resolution deterministic and
// independent of clock skew. Adapted from the teacher's LWWRegister
// (timestamp-compare merge) accordingly; Timestamp is kept only as
// informational metadata about when the winning write was minted.
type LWWRegisterState struct {
	Value     any
	Dot       causal.Dot
	Timestamp Timestamp
	Set       bool
}

// SetOp requests overwriting the register's value.
type SetOp struct {
	Value any
}

type LWWRegister struct{}

func (LWWRegister) Zero() any {
	return LWWRegisterState{}
}

func (LWWRegister) Version() uint16 { return LWWRegisterVersion }

func (LWWRegister) Value(state any) any {
	s, ok := state.(LWWRegisterState)
	if !ok || !s.Set {
		return nil
	}
	return s.Value
}

func (LWWRegister) Mutate(state any, op any, dot causal.Dot) (any, any, error) {
	_, ok := state.(LWWRegisterState)
	if !ok {
		return nil, nil, fmt.Errorf("%w: lwwregister.Mutate expects LWWRegisterState", ErrIncompatibleValue)
	}
	set, ok := op.(SetOp)
	if !ok {
		return nil, nil, fmt.Errorf("%w: lwwregister.Mutate expects SetOp", ErrIncompatibleValue)
	}
	next := LWWRegisterState{Value: set.Value, Dot: dot, Timestamp: NewTimestamp(), Set: true}
	return next, next, nil
}

func (LWWRegister) ApplyDelta(state any, delta any, _ *causal.Context) (any, error) {
	s, ok := state.(LWWRegisterState)
	if !ok {
		return nil, fmt.Errorf("%w: lwwregister.ApplyDelta expects LWWRegisterState", ErrIncompatibleValue)
	}
	d, ok := delta.(LWWRegisterState)
	if !ok {
		return nil, fmt.Errorf("%w: lwwregister.ApplyDelta expects LWWRegisterState delta", ErrIncompatibleValue)
	}
	return lwwWinner(s, d), nil
}

func (LWWRegister) Join(left, right any) (any, error) {
	l, ok := left.(LWWRegisterState)
	if !ok {
		return nil, fmt.Errorf("%w: lwwregister.Join expects LWWRegisterState", ErrIncompatibleValue)
	}
	r, ok := right.(LWWRegisterState)
	if !ok {
		return nil, fmt.Errorf("%w: lwwregister.Join expects LWWRegisterState", ErrIncompatibleValue)
	}
	return lwwWinner(l, r), nil
}

func (LWWRegister) StateContext(any) *causal.Context {
	return causal.New()
}

// lwwWinner picks the state whose dot sorts higher: first by Counter,
// then lexicographically by Origin bytes to break same-counter ties
// between concurrent writes from distinct replicas. An unset state never
// wins against a set one.
func lwwWinner(a, b LWWRegisterState) LWWRegisterState {
	if !a.Set {
		return b
	}
	if !b.Set {
		return a
	}
	if a.Dot.Counter != b.Dot.Counter {
		if a.Dot.Counter > b.Dot.Counter {
			return a
		}
		return b
	}
	if bytes.Compare(a.Dot.Origin[:], b.Dot.Origin[:]) >= 0 {
		return a
	}
	return b
}

func (LWWRegister) EncodeDelta(delta any) ([]byte, error) {
	d, ok := delta.(LWWRegisterState)
	if !ok {
		return nil, fmt.Errorf("%w: lwwregister.EncodeDelta expects LWWRegisterState", ErrIncompatibleValue)
	}
	if !d.Set {
		var head [2]byte
		binary.BigEndian.PutUint16(head[:], LWWRegisterVersion)
		return append(head[:], 0), nil
	}
	payload, err := encodeLWWValue(d.Value)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 2+1+16+8+8+len(payload))
	var head [2]byte
	binary.BigEndian.PutUint16(head[:], LWWRegisterVersion)
	buf = append(buf, head[:]...)
	buf = append(buf, 1)
	buf = append(buf, d.Dot.Origin.Bytes()...)
	var ctrBuf [8]byte
	binary.BigEndian.PutUint64(ctrBuf[:], uint64(d.Dot.Counter))
	buf = append(buf, ctrBuf[:]...)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(d.Timestamp.UnixNano()))
	buf = append(buf, tsBuf[:]...)
	buf = append(buf, payload...)
	return buf, nil
}

func (LWWRegister) DecodeDelta(data []byte) (any, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("%w: lwwregister payload shorter than header", ErrInvalidBinary)
	}
	version := binary.BigEndian.Uint16(data[0:2])
	if version != LWWRegisterVersion {
		return nil, fmt.Errorf("%w: lwwregister version %d", ErrUnsupportedVersion, version)
	}
	if data[2] == 0 {
		if len(data) != 3 {
			return nil, fmt.Errorf("%w: trailing bytes on unset register", ErrInvalidBinary)
		}
		return LWWRegisterState{}, nil
	}
	if len(data) < 3+16+8+8 {
		return nil, fmt.Errorf("%w: truncated lwwregister body", ErrInvalidBinary)
	}
	offset := 3
	origin, err := causal.ReplicaIDFromBytes(data[offset : offset+16])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBinary, err)
	}
	offset += 16
	counter := binary.BigEndian.Uint64(data[offset : offset+8])
	offset += 8
	nanos := binary.BigEndian.Uint64(data[offset : offset+8])
	offset += 8
	value, err := decodeLWWValue(data[offset:])
	if err != nil {
		return nil, err
	}
	ts := Timestamp{}
	if err := ts.UnmarshalJSON([]byte(fmt.Sprintf("%d", int64(nanos)))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBinary, err)
	}
	return LWWRegisterState{
		Value:     value,
		Dot:       causal.Dot{Origin: origin, Counter: causal.Counter(counter)},
		Timestamp: ts,
		Set:       true,
	}, nil
}
