package crdt

import (
	"errors"
	"fmt"
)

// ErrUnknownType is returned by a Registry lookup for an unregistered type tag.
var ErrUnknownType = errors.New("unknown_crdt_type")

// ErrIncompatibleValue is returned when a state, op or delta value handed to
// an implementation method does not have the shape that implementation
// expects (e.g. a PNCounter state passed to GCounter.Mutate).
var ErrIncompatibleValue = errors.New("incompatible_value")

// ErrInvalidOp is returned when an operation argument violates a CRDT's
// precondition (e.g. inc(0) or inc(negative)).
var ErrInvalidOp = errors.New("invalid_operation")

// ErrInvalidBinary is returned by a decoder on truncated frames, trailing
// bytes, or duplicate keys.
var ErrInvalidBinary = errors.New("invalid_binary")

// ErrUnsupportedVersion is returned by a decoder when the wire version tag
// does not match the implementation's Version().
var ErrUnsupportedVersion = errors.New("unsupported_version")

// MissingError reports that a value registered as a CRDT implementation
// does not satisfy the full capability contract (spec.md §9,
// implementation_missing). Missing is always non-empty and ordered by the
// contract's own operation ordering.
type MissingError struct {
	Type    string
	Missing []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("crdt type %q is missing operations: %v", e.Type, e.Missing)
}
