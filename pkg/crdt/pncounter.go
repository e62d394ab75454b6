package crdt

import (
	"encoding/binary"
	"fmt"

	"github.com/rechain/crdtreplica/pkg/causal"
)

// PNCounterVersion is the wire-format tag for PNCounter.
const PNCounterVersion uint16 = 1

// PNCounterState is a pair of grow-only maps: P accumulates increments, N
// accumulates decrements. Value is sum(P) - sum(N). Adapted from the
// teacher's PNCounter (two independent GCounter-shaped maps, pointwise
// max merge per side) onto the capability contract.
type PNCounterState struct {
	P GCounterState
	N GCounterState
}

// PNOp requests a PNCounter adjustment: positive Delta increments,
// negative Delta decrements, zero is invalid.
type PNOp struct {
	Delta int64
}

type PNCounter struct{}

func (PNCounter) Zero() any {
	return PNCounterState{P: GCounterState{}, N: GCounterState{}}
}

func (PNCounter) Version() uint16 { return PNCounterVersion }

func (PNCounter) Value(state any) any {
	s, ok := state.(PNCounterState)
	if !ok {
		return int64(0)
	}
	var sumP, sumN int64
	for _, v := range s.P {
		sumP += int64(v)
	}
	for _, v := range s.N {
		sumN += int64(v)
	}
	return sumP - sumN
}

func (PNCounter) Mutate(state any, op any, dot causal.Dot) (any, any, error) {
	s, ok := state.(PNCounterState)
	if !ok {
		return nil, nil, fmt.Errorf("%w: pncounter.Mutate expects PNCounterState", ErrIncompatibleValue)
	}
	adj, ok := op.(PNOp)
	if !ok {
		return nil, nil, fmt.Errorf("%w: pncounter.Mutate expects PNOp", ErrIncompatibleValue)
	}
	if adj.Delta == 0 {
		return nil, nil, fmt.Errorf("%w: pncounter delta must be non-zero", ErrInvalidOp)
	}
	nextP := cloneGCounter(s.P)
	nextN := cloneGCounter(s.N)
	var delta PNCounterState
	if adj.Delta > 0 {
		nextP[dot.Origin] = nextP[dot.Origin] + uint64(adj.Delta)
		delta = PNCounterState{P: GCounterState{dot.Origin: nextP[dot.Origin]}, N: GCounterState{}}
	} else {
		nextN[dot.Origin] = nextN[dot.Origin] + uint64(-adj.Delta)
		delta = PNCounterState{P: GCounterState{}, N: GCounterState{dot.Origin: nextN[dot.Origin]}}
	}
	return PNCounterState{P: nextP, N: nextN}, delta, nil
}

func (PNCounter) ApplyDelta(state any, delta any, _ *causal.Context) (any, error) {
	s, ok := state.(PNCounterState)
	if !ok {
		return nil, fmt.Errorf("%w: pncounter.ApplyDelta expects PNCounterState", ErrIncompatibleValue)
	}
	d, ok := delta.(PNCounterState)
	if !ok {
		return nil, fmt.Errorf("%w: pncounter.ApplyDelta expects PNCounterState delta", ErrIncompatibleValue)
	}
	return PNCounterState{P: gcounterMax(s.P, d.P), N: gcounterMax(s.N, d.N)}, nil
}

func (PNCounter) Join(left, right any) (any, error) {
	l, ok := left.(PNCounterState)
	if !ok {
		return nil, fmt.Errorf("%w: pncounter.Join expects PNCounterState", ErrIncompatibleValue)
	}
	r, ok := right.(PNCounterState)
	if !ok {
		return nil, fmt.Errorf("%w: pncounter.Join expects PNCounterState", ErrIncompatibleValue)
	}
	return PNCounterState{P: gcounterMax(l.P, r.P), N: gcounterMax(l.N, r.N)}, nil
}

func (PNCounter) StateContext(any) *causal.Context {
	return causal.New()
}

func (PNCounter) EncodeDelta(delta any) ([]byte, error) {
	d, ok := delta.(PNCounterState)
	if !ok {
		return nil, fmt.Errorf("%w: pncounter.EncodeDelta expects PNCounterState", ErrIncompatibleValue)
	}
	pBytes, err := EncodeGCounterState(d.P)
	if err != nil {
		return nil, err
	}
	nBytes, err := EncodeGCounterState(d.N)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 6+len(pBytes)+len(nBytes))
	var head [6]byte
	binary.BigEndian.PutUint16(head[0:2], PNCounterVersion)
	binary.BigEndian.PutUint32(head[2:6], uint32(len(pBytes)))
	buf = append(buf, head[:]...)
	buf = append(buf, pBytes...)
	buf = append(buf, nBytes...)
	return buf, nil
}

func (PNCounter) DecodeDelta(data []byte) (any, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("%w: pncounter payload shorter than header", ErrInvalidBinary)
	}
	version := binary.BigEndian.Uint16(data[0:2])
	if version != PNCounterVersion {
		return nil, fmt.Errorf("%w: pncounter version %d", ErrUnsupportedVersion, version)
	}
	pLen := int(binary.BigEndian.Uint32(data[2:6]))
	if 6+pLen > len(data) {
		return nil, fmt.Errorf("%w: truncated P section", ErrInvalidBinary)
	}
	p, err := DecodeGCounterState(data[6 : 6+pLen])
	if err != nil {
		return nil, err
	}
	n, err := DecodeGCounterState(data[6+pLen:])
	if err != nil {
		return nil, err
	}
	return PNCounterState{P: p, N: n}, nil
}
