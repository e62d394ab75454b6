package crdt

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/rechain/crdtreplica/pkg/causal"
)

// ORSetVersion is the wire-format tag for ORSet.
const ORSetVersion uint16 = 1

// ORSetState is an optimized delta-state observed-remove set (Almeida,
// Shoker & Baquero): Live maps each element to the add-tags (dots) that
// currently witness its membership, and Ctx is every dot this state has
// observed for the set, add or remove, whether minted locally or merged in
// from another state. A dot present in Ctx but absent
// from Live[elem] has been observed-removed and must never be resurrected
// by a late-arriving concurrent delta for the same dot.
//
// Adapted from the teacher's orset.go (per-element add/remove tag sets),
// replacing its string tags (minted via an unimported time.Now() call
// that does not compile) with causal dots, and adding the Ctx field the
// classic add/remove-tag design lacks in order to make ApplyDelta
// order-independent under out-of-order delivery.
type ORSetState struct {
	Live map[string]map[causal.Dot]struct{}
	Ctx  *causal.Context
}

// ORAddOp requests adding Element to the set, tagged with the op's dot.
type ORAddOp struct {
	Element string
}

// ORRemoveOp requests removing Element: every add-tag currently live for
// Element is retracted.
type ORRemoveOp struct {
	Element string
}

type ORSet struct{}

func (ORSet) Zero() any {
	return ORSetState{Live: map[string]map[causal.Dot]struct{}{}, Ctx: causal.New()}
}

func (ORSet) Version() uint16 { return ORSetVersion }

func (ORSet) Value(state any) any {
	s, ok := state.(ORSetState)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(s.Live))
	for elem, dots := range s.Live {
		if len(dots) > 0 {
			out = append(out, elem)
		}
	}
	sort.Strings(out)
	return out
}

func (ORSet) Mutate(state any, op any, dot causal.Dot) (any, any, error) {
	s, ok := state.(ORSetState)
	if !ok {
		return nil, nil, fmt.Errorf("%w: orset.Mutate expects ORSetState", ErrIncompatibleValue)
	}
	switch o := op.(type) {
	case ORAddOp:
		next := cloneORSet(s)
		if next.Live[o.Element] == nil {
			next.Live[o.Element] = map[causal.Dot]struct{}{}
		}
		next.Live[o.Element][dot] = struct{}{}
		next.Ctx = next.Ctx.Add(dot)
		delta := ORSetState{
			Live: map[string]map[causal.Dot]struct{}{o.Element: {dot: {}}},
			Ctx:  causal.New().Add(dot),
		}
		return next, delta, nil
	case ORRemoveOp:
		next := cloneORSet(s)
		removed := next.Live[o.Element]
		delete(next.Live, o.Element)
		next.Ctx = next.Ctx.Add(dot)
		deltaCtx := causal.New().Add(dot)
		for d := range removed {
			deltaCtx = deltaCtx.Add(d)
		}
		delta := ORSetState{
			Live: map[string]map[causal.Dot]struct{}{o.Element: {}},
			Ctx:  deltaCtx,
		}
		return next, delta, nil
	default:
		return nil, nil, fmt.Errorf("%w: orset.Mutate expects ORAddOp or ORRemoveOp", ErrIncompatibleValue)
	}
}

func (ORSet) ApplyDelta(state any, delta any, ctx *causal.Context) (any, error) {
	s, ok := state.(ORSetState)
	if !ok {
		return nil, fmt.Errorf("%w: orset.ApplyDelta expects ORSetState", ErrIncompatibleValue)
	}
	d, ok := delta.(ORSetState)
	if !ok {
		return nil, fmt.Errorf("%w: orset.ApplyDelta expects ORSetState delta", ErrIncompatibleValue)
	}
	deltaCtx := d.Ctx
	if deltaCtx == nil {
		deltaCtx = ctx
	}
	if deltaCtx == nil {
		deltaCtx = causal.New()
	}
	return joinORSet(s, ORSetState{Live: d.Live, Ctx: deltaCtx}), nil
}

func (ORSet) Join(left, right any) (any, error) {
	l, ok := left.(ORSetState)
	if !ok {
		return nil, fmt.Errorf("%w: orset.Join expects ORSetState", ErrIncompatibleValue)
	}
	r, ok := right.(ORSetState)
	if !ok {
		return nil, fmt.Errorf("%w: orset.Join expects ORSetState", ErrIncompatibleValue)
	}
	return joinORSet(l, r), nil
}

func (ORSet) StateContext(state any) *causal.Context {
	s, ok := state.(ORSetState)
	if !ok {
		return causal.New()
	}
	return s.Ctx
}

func cloneORSet(s ORSetState) ORSetState {
	out := ORSetState{Live: make(map[string]map[causal.Dot]struct{}, len(s.Live)), Ctx: s.Ctx}
	for elem, dots := range s.Live {
		cp := make(map[causal.Dot]struct{}, len(dots))
		for d := range dots {
			cp[d] = struct{}{}
		}
		out.Live[elem] = cp
	}
	return out
}

// joinORSet computes the lattice join of two (live-dots, context) pairs:
// a dot survives for an element iff both sides agree it is live, or the
// side missing it simply has never observed it (it's absent from that
// side's own context, rather than having been retracted there).
func joinORSet(a, b ORSetState) ORSetState {
	out := ORSetState{Live: map[string]map[causal.Dot]struct{}{}, Ctx: causal.Join(a.Ctx, b.Ctx)}
	elems := map[string]struct{}{}
	for e := range a.Live {
		elems[e] = struct{}{}
	}
	for e := range b.Live {
		elems[e] = struct{}{}
	}
	for elem := range elems {
		survivors := map[causal.Dot]struct{}{}
		for d := range a.Live[elem] {
			if _, inB := b.Live[elem][d]; inB || !b.Ctx.Contains(d) {
				survivors[d] = struct{}{}
			}
		}
		for d := range b.Live[elem] {
			if _, already := survivors[d]; already {
				continue
			}
			if !a.Ctx.Contains(d) {
				survivors[d] = struct{}{}
			}
		}
		if len(survivors) > 0 {
			out.Live[elem] = survivors
		}
	}
	return out
}

func (ORSet) EncodeDelta(delta any) ([]byte, error) {
	d, ok := delta.(ORSetState)
	if !ok {
		return nil, fmt.Errorf("%w: orset.EncodeDelta expects ORSetState", ErrIncompatibleValue)
	}
	return encodeORSetState(d)
}

func (ORSet) DecodeDelta(data []byte) (any, error) {
	return decodeORSetState(data)
}

func encodeORSetState(s ORSetState) ([]byte, error) {
	elems := make([]string, 0, len(s.Live))
	for e := range s.Live {
		elems = append(elems, e)
	}
	sort.Strings(elems)

	buf := make([]byte, 0, 256)
	var head [6]byte
	binary.BigEndian.PutUint16(head[0:2], ORSetVersion)
	binary.BigEndian.PutUint32(head[2:6], uint32(len(elems)))
	buf = append(buf, head[:]...)

	for _, elem := range elems {
		elemBytes := []byte(elem)
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(elemBytes)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, elemBytes...)

		dots := make([]causal.Dot, 0, len(s.Live[elem]))
		for d := range s.Live[elem] {
			dots = append(dots, d)
		}
		sort.Slice(dots, func(i, j int) bool {
			if dots[i].Origin != dots[j].Origin {
				return string(dots[i].Origin[:]) < string(dots[j].Origin[:])
			}
			return dots[i].Counter < dots[j].Counter
		})
		var countBuf [4]byte
		binary.BigEndian.PutUint32(countBuf[:], uint32(len(dots)))
		buf = append(buf, countBuf[:]...)
		for _, d := range dots {
			buf = append(buf, d.Origin.Bytes()...)
			var ctrBuf [8]byte
			binary.BigEndian.PutUint64(ctrBuf[:], uint64(d.Counter))
			buf = append(buf, ctrBuf[:]...)
		}
	}

	replicas := s.Ctx.Replicas()
	sortReplicaIDs(replicas)
	var replicaCountBuf [4]byte
	binary.BigEndian.PutUint32(replicaCountBuf[:], uint32(len(replicas)))
	buf = append(buf, replicaCountBuf[:]...)
	for _, r := range replicas {
		buf = append(buf, r.Bytes()...)
		var maxBuf [8]byte
		binary.BigEndian.PutUint64(maxBuf[:], uint64(s.Ctx.MaxFor(r)))
		buf = append(buf, maxBuf[:]...)
	}
	return buf, nil
}

func decodeORSetState(data []byte) (ORSetState, error) {
	var out ORSetState
	if len(data) < 6 {
		return out, fmt.Errorf("%w: orset payload shorter than header", ErrInvalidBinary)
	}
	version := binary.BigEndian.Uint16(data[0:2])
	if version != ORSetVersion {
		return out, fmt.Errorf("%w: orset version %d", ErrUnsupportedVersion, version)
	}
	elemCount := binary.BigEndian.Uint32(data[2:6])
	offset := 6
	live := make(map[string]map[causal.Dot]struct{}, elemCount)
	for i := uint32(0); i < elemCount; i++ {
		if offset+2 > len(data) {
			return out, fmt.Errorf("%w: truncated element length", ErrInvalidBinary)
		}
		elemLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if offset+elemLen+4 > len(data) {
			return out, fmt.Errorf("%w: truncated element body", ErrInvalidBinary)
		}
		elem := string(data[offset : offset+elemLen])
		offset += elemLen
		dotCount := binary.BigEndian.Uint32(data[offset : offset+4])
		offset += 4
		dots := make(map[causal.Dot]struct{}, dotCount)
		for j := uint32(0); j < dotCount; j++ {
			if offset+16+8 > len(data) {
				return out, fmt.Errorf("%w: truncated dot", ErrInvalidBinary)
			}
			origin, err := causal.ReplicaIDFromBytes(data[offset : offset+16])
			if err != nil {
				return out, fmt.Errorf("%w: %v", ErrInvalidBinary, err)
			}
			offset += 16
			counter := binary.BigEndian.Uint64(data[offset : offset+8])
			offset += 8
			dots[causal.Dot{Origin: origin, Counter: causal.Counter(counter)}] = struct{}{}
		}
		if _, dup := live[elem]; dup {
			return out, fmt.Errorf("%w: duplicate element %q", ErrInvalidBinary, elem)
		}
		live[elem] = dots
	}

	if offset+4 > len(data) {
		return out, fmt.Errorf("%w: truncated context header", ErrInvalidBinary)
	}
	replicaCount := binary.BigEndian.Uint32(data[offset : offset+4])
	offset += 4
	ctx := causal.New()
	for i := uint32(0); i < replicaCount; i++ {
		if offset+16+8 > len(data) {
			return out, fmt.Errorf("%w: truncated context entry", ErrInvalidBinary)
		}
		origin, err := causal.ReplicaIDFromBytes(data[offset : offset+16])
		if err != nil {
			return out, fmt.Errorf("%w: %v", ErrInvalidBinary, err)
		}
		offset += 16
		max := binary.BigEndian.Uint64(data[offset : offset+8])
		offset += 8
		for c := uint64(1); c <= max; c++ {
			ctx = ctx.Add(causal.Dot{Origin: origin, Counter: causal.Counter(c)})
		}
	}
	if offset != len(data) {
		return out, fmt.Errorf("%w: trailing bytes", ErrInvalidBinary)
	}
	out.Live = live
	out.Ctx = ctx
	return out, nil
}
