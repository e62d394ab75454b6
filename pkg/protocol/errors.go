package protocol

import "errors"

// ErrInvalidVersion is returned when a header's protocol_version is 0.
var ErrInvalidVersion = errors.New("invalid_version")

// ErrUnsupportedVersion is returned when a header's protocol_version is
// well-formed but not one this codec understands.
var ErrUnsupportedVersion = errors.New("unsupported_version")

// ErrInvalidFlags is returned when a header carries any non-zero flag bit
// (spec.md §4.9, §9 — only the all-zero flagset is currently valid).
var ErrInvalidFlags = errors.New("invalid_flags")

// ErrInvalidMessageType is returned for a header message_type_id outside
// {1, 2, 3, 4}.
var ErrInvalidMessageType = errors.New("invalid_message_type")

// ErrTruncated is returned when fewer bytes are available than a length
// field promises.
var ErrTruncated = errors.New("truncated")

// ErrTrailingBytes is returned when more bytes remain than a length
// field accounts for.
var ErrTrailingBytes = errors.New("trailing_bytes")

// ErrInvalidLength is returned when a length field exceeds its declared
// bound (a crdt id longer than u16, a payload longer than u32). A length
// that runs past the available buffer is reported as ErrTruncated.
var ErrInvalidLength = errors.New("invalid_length")

// ErrInvalidPayload is returned when a payload's fixed fields (sync_type,
// include_digest, digest_flag) carry an out-of-range value.
var ErrInvalidPayload = errors.New("invalid_payload")

// ErrDuplicateKey is returned when a decoded binary structure repeats a
// key that must be unique (e.g. two bundle entries for the same crdt id).
var ErrDuplicateKey = errors.New("duplicate_key")
