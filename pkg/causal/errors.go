package causal

import "errors"

// ErrInvalidID is returned when a replica id is not exactly 16 bytes.
var ErrInvalidID = errors.New("invalid_id")

// ErrInvalidDot is returned when a dot fails validation (non-positive counter).
var ErrInvalidDot = errors.New("invalid_dot")
