package digest

import (
	"encoding/binary"
	"fmt"

	"github.com/rechain/crdtreplica/pkg/causal"
)

// Version is the wire-format tag for the digest codec (spec.md §4.6).
const Version uint16 = 1

// Encode serializes d per spec.md §4.6: u16 version=1 || u32 entry_count ||
// entries, each entry u16 crdt_id_len || crdt_id_bytes || u16 origin_len ||
// origin_bytes || u64 counter, sorted ascending by (crdt_id, origin).
func Encode(d *Digest) ([]byte, error) {
	ids := d.CRDTIDs()

	buf := make([]byte, 0, 6+len(ids)*(2+2+16+8))
	var head [6]byte
	binary.BigEndian.PutUint16(head[0:2], Version)
	binary.BigEndian.PutUint32(head[2:6], uint32(len(ids)))
	buf = append(buf, head[:]...)

	for _, id := range ids {
		e := d.entries[id]
		idBytes := []byte(id)
		if len(idBytes) > 0xFFFF {
			return nil, fmt.Errorf("%w: crdt id length %d exceeds u16", ErrInvalidBinary, len(idBytes))
		}
		var idLenBuf [2]byte
		binary.BigEndian.PutUint16(idLenBuf[:], uint16(len(idBytes)))
		buf = append(buf, idLenBuf[:]...)
		buf = append(buf, idBytes...)

		originBytes := e.Origin.Bytes()
		var originLenBuf [2]byte
		binary.BigEndian.PutUint16(originLenBuf[:], uint16(len(originBytes)))
		buf = append(buf, originLenBuf[:]...)
		buf = append(buf, originBytes...)

		var counterBuf [8]byte
		binary.BigEndian.PutUint64(counterBuf[:], uint64(e.Counter))
		buf = append(buf, counterBuf[:]...)
	}
	return buf, nil
}

// Decode parses the encoding produced by Encode, rejecting unsupported
// versions, duplicate crdt ids, and malformed or trailing bytes.
func Decode(data []byte) (*Digest, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("%w: digest payload shorter than header", ErrInvalidBinary)
	}
	version := binary.BigEndian.Uint16(data[0:2])
	if version != Version {
		return nil, fmt.Errorf("%w: digest version %d", ErrUnsupportedVersion, version)
	}
	count := binary.BigEndian.Uint32(data[2:6])
	out := New()
	offset := 6
	for i := uint32(0); i < count; i++ {
		if offset+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated crdt id length", ErrInvalidBinary)
		}
		idLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if offset+idLen > len(data) {
			return nil, fmt.Errorf("%w: truncated crdt id", ErrInvalidBinary)
		}
		crdtID := string(data[offset : offset+idLen])
		offset += idLen

		if offset+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated origin length", ErrInvalidBinary)
		}
		originLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if offset+originLen > len(data) {
			return nil, fmt.Errorf("%w: truncated origin", ErrInvalidBinary)
		}
		origin, err := causal.ReplicaIDFromBytes(data[offset : offset+originLen])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBinary, err)
		}
		offset += originLen

		if offset+8 > len(data) {
			return nil, fmt.Errorf("%w: truncated counter", ErrInvalidBinary)
		}
		counter := causal.Counter(binary.BigEndian.Uint64(data[offset : offset+8]))
		offset += 8

		if _, dup := out.entries[crdtID]; dup {
			return nil, fmt.Errorf("%w: duplicate crdt id %q", ErrInvalidBinary, crdtID)
		}
		out.entries[crdtID] = Entry{Origin: origin, Counter: counter}
	}
	if offset != len(data) {
		return nil, fmt.Errorf("%w: trailing bytes", ErrInvalidBinary)
	}
	return out, nil
}
