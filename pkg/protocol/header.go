// Package protocol implements the length-prefixed binary wire protocol
// used for anti-entropy sync (spec.md §4.9): a fixed 12-byte header, four
// message payload types, and deterministic big-endian codecs. No teacher
// file implements a raw framed binary protocol (the teacher's gossip/grpc
// layers are out of this spec's scope), so this package is written fresh
// to spec, following the pack's existing manual-binary-encoding
// convention (encoding/binary big-endian helpers, as used for block
// hashing in the teacher's consensus package), appending into plain byte
// slices.
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MessageType identifies one of the four protocol payload shapes.
type MessageType uint16

const (
	MessageDigestRequest  MessageType = 1
	MessageDigestResponse MessageType = 2
	MessageSyncRequest    MessageType = 3
	MessageSyncResponse   MessageType = 4
)

func (t MessageType) valid() bool {
	switch t {
	case MessageDigestRequest, MessageDigestResponse, MessageSyncRequest, MessageSyncResponse:
		return true
	default:
		return false
	}
}

func (t MessageType) String() string {
	switch t {
	case MessageDigestRequest:
		return "DigestRequest"
	case MessageDigestResponse:
		return "DigestResponse"
	case MessageSyncRequest:
		return "SyncRequest"
	case MessageSyncResponse:
		return "SyncResponse"
	default:
		return fmt.Sprintf("MessageType(%d)", uint16(t))
	}
}

// Version is the protocol version this codec produces and accepts.
const Version uint16 = 1

// HeaderSize is the fixed on-wire size of a Header, in bytes.
const HeaderSize = 12

// Header is the fixed 12-byte frame prefix (spec.md §4.9): protocol
// version, message type, reserved flags (must be all-zero), and the
// exact byte length of the payload that follows.
type Header struct {
	Version       uint16
	Type          MessageType
	Flags         uint32
	PayloadLength uint32
}

// EncodeHeader serializes h. Version must be non-zero, Flags must be
// zero, and Type must be one of the four known message types.
func EncodeHeader(h Header) ([]byte, error) {
	if h.Version == 0 {
		return nil, fmt.Errorf("%w: header version must be non-zero", ErrInvalidVersion)
	}
	if h.Flags != 0 {
		return nil, fmt.Errorf("%w: header flags 0x%08x", ErrInvalidFlags, h.Flags)
	}
	if !h.Type.valid() {
		return nil, fmt.Errorf("%w: message_type_id %d", ErrInvalidMessageType, uint16(h.Type))
	}

	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], h.Version)
	binary.BigEndian.PutUint16(buf[2:4], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[4:8], h.Flags)
	binary.BigEndian.PutUint32(buf[8:12], h.PayloadLength)
	return buf, nil
}

// DecodeHeader parses exactly HeaderSize bytes of data into a Header,
// rejecting a zero version, any version other than Version, any non-zero
// flag bits, and unknown message type ids.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header requires %d bytes, got %d", ErrTruncated, HeaderSize, len(data))
	}
	h := Header{
		Version:       binary.BigEndian.Uint16(data[0:2]),
		Type:          MessageType(binary.BigEndian.Uint16(data[2:4])),
		Flags:         binary.BigEndian.Uint32(data[4:8]),
		PayloadLength: binary.BigEndian.Uint32(data[8:12]),
	}
	if h.Version == 0 {
		return Header{}, fmt.Errorf("%w: header version must be non-zero", ErrInvalidVersion)
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: header version %d", ErrUnsupportedVersion, h.Version)
	}
	if h.Flags != 0 {
		return Header{}, fmt.Errorf("%w: header flags 0x%08x", ErrInvalidFlags, h.Flags)
	}
	if !h.Type.valid() {
		return Header{}, fmt.Errorf("%w: message_type_id %d", ErrInvalidMessageType, uint16(h.Type))
	}
	return h, nil
}

// EncodeEnvelope computes payload's length, stamps it into h (h.Type and
// h.Version must already be set), and concatenates the encoded header
// with payload.
func EncodeEnvelope(h Header, payload []byte) ([]byte, error) {
	if len(payload) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: payload length %d overflows u32", ErrInvalidLength, len(payload))
	}
	h.PayloadLength = uint32(len(payload))
	headerBytes, err := EncodeHeader(h)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(headerBytes)+len(payload))
	out = append(out, headerBytes...)
	out = append(out, payload...)
	return out, nil
}

// DecodeEnvelope reads the fixed header from the front of data, verifies
// that PayloadLength matches the number of remaining bytes exactly, and
// returns the header and the raw payload slice (still undecoded: callers
// dispatch on Header.Type to pick the payload codec).
func DecodeEnvelope(data []byte) (Header, []byte, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return Header{}, nil, err
	}
	remaining := data[HeaderSize:]
	switch {
	case uint64(len(remaining)) < uint64(h.PayloadLength):
		return Header{}, nil, fmt.Errorf("%w: declared payload length %d, got %d bytes", ErrTruncated, h.PayloadLength, len(remaining))
	case uint64(len(remaining)) > uint64(h.PayloadLength):
		return Header{}, nil, fmt.Errorf("%w: declared payload length %d, got %d bytes", ErrTrailingBytes, h.PayloadLength, len(remaining))
	}
	return h, remaining, nil
}
