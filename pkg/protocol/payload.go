package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/rechain/crdtreplica/pkg/digest"
)

// EncodeDigestRequest returns the full envelope for an empty DigestRequest.
func EncodeDigestRequest() ([]byte, error) {
	return EncodeEnvelope(Header{Version: Version, Type: MessageDigestRequest}, nil)
}

// DecodeDigestRequestPayload validates that a DigestRequest payload is
// empty, per spec.md §4.9.
func DecodeDigestRequestPayload(payload []byte) error {
	if len(payload) != 0 {
		return fmt.Errorf("%w: DigestRequest payload must be empty", ErrTrailingBytes)
	}
	return nil
}

// EncodeDigestResponse returns the full envelope for a DigestResponse
// carrying d (spec.md §4.9: the payload is exactly digest's own codec).
func EncodeDigestResponse(d *digest.Digest) ([]byte, error) {
	payload, err := digest.Encode(d)
	if err != nil {
		return nil, err
	}
	return EncodeEnvelope(Header{Version: Version, Type: MessageDigestResponse}, payload)
}

// DecodeDigestResponsePayload decodes a DigestResponse payload.
func DecodeDigestResponsePayload(payload []byte) (*digest.Digest, error) {
	return digest.Decode(payload)
}

// SyncType distinguishes a full-resync request from a delta-since-digest
// request (spec.md §4.9).
type SyncType uint8

const (
	SyncFull  SyncType = 0
	SyncDelta SyncType = 1
)

func (s SyncType) valid() bool { return s == SyncFull || s == SyncDelta }

// SyncRequest is the decoded form of a SyncRequest payload. Digest is nil
// when the sender did not include one (IncludeDigest=false).
type SyncRequest struct {
	Type   SyncType
	Digest *digest.Digest
}

// EncodeSyncRequest returns the full envelope for r: u8 sync_type || u8
// include_digest || u32 digest_len || digest_bytes.
func EncodeSyncRequest(r SyncRequest) ([]byte, error) {
	if !r.Type.valid() {
		return nil, fmt.Errorf("%w: sync_type %d", ErrInvalidPayload, r.Type)
	}
	payload, err := encodeOptionalDigest(r.Digest)
	if err != nil {
		return nil, err
	}
	payload = append([]byte{byte(r.Type)}, payload...)
	return EncodeEnvelope(Header{Version: Version, Type: MessageSyncRequest}, payload)
}

// DecodeSyncRequestPayload decodes a SyncRequest payload.
func DecodeSyncRequestPayload(payload []byte) (SyncRequest, error) {
	if len(payload) < 1 {
		return SyncRequest{}, fmt.Errorf("%w: SyncRequest payload missing sync_type", ErrTruncated)
	}
	syncType := SyncType(payload[0])
	if !syncType.valid() {
		return SyncRequest{}, fmt.Errorf("%w: sync_type %d", ErrInvalidPayload, syncType)
	}
	d, rest, err := decodeOptionalDigest(payload[1:])
	if err != nil {
		return SyncRequest{}, err
	}
	if len(rest) != 0 {
		return SyncRequest{}, fmt.Errorf("%w: SyncRequest payload", ErrTrailingBytes)
	}
	return SyncRequest{Type: syncType, Digest: d}, nil
}

// SyncResponse is the decoded form of a SyncResponse payload.
type SyncResponse struct {
	Digest *digest.Digest
	Bundle WireBundle
}

// EncodeSyncResponse returns the full envelope for r: u8 digest_flag ||
// u32 digest_len || [digest_bytes if flag=1] || bundle.
func EncodeSyncResponse(r SyncResponse) ([]byte, error) {
	digestPart, err := encodeOptionalDigest(r.Digest)
	if err != nil {
		return nil, err
	}
	bundlePart, err := EncodeBundle(r.Bundle)
	if err != nil {
		return nil, err
	}
	payload := append(digestPart, bundlePart...)
	return EncodeEnvelope(Header{Version: Version, Type: MessageSyncResponse}, payload)
}

// DecodeSyncResponsePayload decodes a SyncResponse payload.
func DecodeSyncResponsePayload(payload []byte) (SyncResponse, error) {
	d, rest, err := decodeOptionalDigest(payload)
	if err != nil {
		return SyncResponse{}, err
	}
	b, err := DecodeBundle(rest)
	if err != nil {
		return SyncResponse{}, err
	}
	return SyncResponse{Digest: d, Bundle: b}, nil
}

// encodeOptionalDigest writes u8 flag || u32 digest_len || digest_bytes.
// flag is 1 and digest_bytes non-empty iff d is non-nil.
func encodeOptionalDigest(d *digest.Digest) ([]byte, error) {
	var flag byte
	var digestBytes []byte
	if d != nil {
		flag = 1
		enc, err := digest.Encode(d)
		if err != nil {
			return nil, err
		}
		digestBytes = enc
	}
	buf := make([]byte, 0, 1+4+len(digestBytes))
	buf = append(buf, flag)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(digestBytes)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, digestBytes...)
	return buf, nil
}

// decodeOptionalDigest reads the flag/len/bytes triple written by
// encodeOptionalDigest, returning the decoded digest (nil if flag=0) and
// the remaining unconsumed bytes.
func decodeOptionalDigest(data []byte) (*digest.Digest, []byte, error) {
	if len(data) < 5 {
		return nil, nil, fmt.Errorf("%w: missing digest flag/length", ErrTruncated)
	}
	flag := data[0]
	if flag != 0 && flag != 1 {
		return nil, nil, fmt.Errorf("%w: digest flag %d", ErrInvalidPayload, flag)
	}
	digestLen := binary.BigEndian.Uint32(data[1:5])
	if uint64(5)+uint64(digestLen) > uint64(len(data)) {
		return nil, nil, fmt.Errorf("%w: declared digest length %d", ErrTruncated, digestLen)
	}
	digestBytes := data[5 : 5+digestLen]
	rest := data[5+digestLen:]

	if flag == 0 {
		return nil, rest, nil
	}
	d, err := digest.Decode(digestBytes)
	if err != nil {
		return nil, nil, err
	}
	return d, rest, nil
}
