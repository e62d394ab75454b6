// Package crdt defines the capability contract every hosted CRDT
// implementation must honor (spec.md §4.3) and ships a small reference
// zoo: GCounter (the spec-mandated reference implementation), plus
// PNCounter, ORSet and LWWRegister adapted from the teacher's CRDT suite
// to exercise the polymorphic dispatch path with more than one shape.
package crdt

import "github.com/rechain/crdtreplica/pkg/causal"

// Zeroer produces the lattice bottom for a CRDT state.
type Zeroer interface {
	Zero() any
}

// Valuer projects a state to its external value.
type Valuer interface {
	Value(state any) any
}

// Versioner reports the wire-format version tag for a CRDT.
type Versioner interface {
	Version() uint16
}

// Mutator applies a local operation at dot, returning the new state and a
// delta sufficient to reproduce the new information.
type Mutator interface {
	Mutate(state any, op any, dot causal.Dot) (newState any, delta any, err error)
}

// DeltaApplier monotonically merges a remote delta into state.
type DeltaApplier interface {
	ApplyDelta(state any, delta any, ctx *causal.Context) (newState any, err error)
}

// Joiner computes the lattice least-upper-bound of two states.
type Joiner interface {
	Join(left, right any) (any, error)
}

// ContextProvider returns the causal context embedded in a state (may be
// empty for state-based CRDTs like counters).
type ContextProvider interface {
	StateContext(state any) *causal.Context
}

// DeltaEncoder serializes a delta to bytes for the wire protocol.
type DeltaEncoder interface {
	EncodeDelta(delta any) ([]byte, error)
}

// DeltaDecoder deserializes wire bytes back into a delta value.
type DeltaDecoder interface {
	DecodeDelta(data []byte) (any, error)
}

// Impl is the full capability contract (spec.md §4.3) plus the codec
// boundary operations consumed by the protocol layer (spec.md §6).
type Impl interface {
	Zeroer
	Valuer
	Versioner
	Mutator
	DeltaApplier
	Joiner
	ContextProvider
	DeltaEncoder
	DeltaDecoder
}

// opNames lists every operation a complete implementation must supply, in
// the order implementation_missing should report them.
var opNames = []string{
	"zero", "value", "version", "mutate", "apply_delta", "join", "context",
	"encode_delta", "decode_delta",
}

// Describe reports which capability-contract operations impl is missing.
// Because Impl is an ordinary Go interface, any value that already
// satisfies it at compile time trivially has zero missing operations;
// Describe exists so that dynamically-registered implementations built
// from a partial set of the narrower single-method interfaces above (the
// situation spec.md §9 calls out for a "dynamic target") can be validated
// at registration time instead of only at compile time.
func Describe(impl any) []string {
	var missing []string
	if _, ok := impl.(Zeroer); !ok {
		missing = append(missing, opNames[0])
	}
	if _, ok := impl.(Valuer); !ok {
		missing = append(missing, opNames[1])
	}
	if _, ok := impl.(Versioner); !ok {
		missing = append(missing, opNames[2])
	}
	if _, ok := impl.(Mutator); !ok {
		missing = append(missing, opNames[3])
	}
	if _, ok := impl.(DeltaApplier); !ok {
		missing = append(missing, opNames[4])
	}
	if _, ok := impl.(Joiner); !ok {
		missing = append(missing, opNames[5])
	}
	if _, ok := impl.(ContextProvider); !ok {
		missing = append(missing, opNames[6])
	}
	if _, ok := impl.(DeltaEncoder); !ok {
		missing = append(missing, opNames[7])
	}
	if _, ok := impl.(DeltaDecoder); !ok {
		missing = append(missing, opNames[8])
	}
	return missing
}
