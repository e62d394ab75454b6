package digest

import "errors"

// ErrInvalidBinary is returned by Decode on truncated frames, trailing
// bytes, or duplicate crdt ids.
var ErrInvalidBinary = errors.New("invalid_binary")

// ErrUnsupportedVersion is returned by Decode when the wire version tag is
// not the one this package produces.
var ErrUnsupportedVersion = errors.New("unsupported_version")
