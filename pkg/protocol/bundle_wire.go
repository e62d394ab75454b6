package protocol

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/rechain/crdtreplica/pkg/causal"
)

// WireItem is a single on-wire (dot, encoded delta) pair. Delta is opaque
// to the protocol layer: it is produced and consumed by the owning
// CRDT's own codec (spec.md §6, "CRDT codec boundary").
type WireItem struct {
	Origin  causal.ReplicaID
	Counter causal.Counter
	Delta   []byte
}

// WireBundle is the on-wire shape of a DeltaBundle (spec.md §4.9's
// SyncResponse "bundle" field): crdt_id -> ordered WireItems, each
// delta already encoded by its owning CRDT.
type WireBundle map[string][]WireItem

func (b WireBundle) sortedIDs() []string {
	ids := make([]string, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func lessOriginCounter(a, b WireItem) bool {
	for i := range a.Origin {
		if a.Origin[i] != b.Origin[i] {
			return a.Origin[i] < b.Origin[i]
		}
	}
	return a.Counter < b.Counter
}

// EncodeBundle serializes b per spec.md §4.9: u32 crdt_count || entries;
// entry: u16 crdt_id_len || crdt_id_bytes || u32 item_count || items;
// item: 16-byte origin || u64 counter || u32 delta_len || delta_bytes.
// CRDT entries are sorted by crdt_id; items within an entry are sorted by
// (origin, counter).
func EncodeBundle(b WireBundle) ([]byte, error) {
	ids := b.sortedIDs()

	var buf []byte
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(ids)))
	buf = append(buf, countBuf[:]...)

	for _, id := range ids {
		idBytes := []byte(id)
		if len(idBytes) > 0xFFFF {
			return nil, fmt.Errorf("%w: crdt id length %d exceeds u16", ErrInvalidLength, len(idBytes))
		}
		var idLenBuf [2]byte
		binary.BigEndian.PutUint16(idLenBuf[:], uint16(len(idBytes)))
		buf = append(buf, idLenBuf[:]...)
		buf = append(buf, idBytes...)

		items := append([]WireItem(nil), b[id]...)
		sort.SliceStable(items, func(i, j int) bool { return lessOriginCounter(items[i], items[j]) })

		var itemCountBuf [4]byte
		binary.BigEndian.PutUint32(itemCountBuf[:], uint32(len(items)))
		buf = append(buf, itemCountBuf[:]...)

		for _, it := range items {
			buf = append(buf, it.Origin.Bytes()...)
			var counterBuf [8]byte
			binary.BigEndian.PutUint64(counterBuf[:], uint64(it.Counter))
			buf = append(buf, counterBuf[:]...)
			var deltaLenBuf [4]byte
			binary.BigEndian.PutUint32(deltaLenBuf[:], uint32(len(it.Delta)))
			buf = append(buf, deltaLenBuf[:]...)
			buf = append(buf, it.Delta...)
		}
	}
	return buf, nil
}

// DecodeBundle parses the encoding produced by EncodeBundle.
func DecodeBundle(data []byte) (WireBundle, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: bundle payload shorter than crdt_count", ErrTruncated)
	}
	crdtCount := binary.BigEndian.Uint32(data[0:4])
	offset := 4

	out := make(WireBundle, crdtCount)
	for i := uint32(0); i < crdtCount; i++ {
		if offset+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated crdt id length", ErrTruncated)
		}
		idLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if offset+idLen > len(data) {
			return nil, fmt.Errorf("%w: truncated crdt id", ErrTruncated)
		}
		crdtID := string(data[offset : offset+idLen])
		offset += idLen

		if offset+4 > len(data) {
			return nil, fmt.Errorf("%w: truncated item count", ErrTruncated)
		}
		itemCount := binary.BigEndian.Uint32(data[offset : offset+4])
		offset += 4

		items := make([]WireItem, 0, itemCount)
		for j := uint32(0); j < itemCount; j++ {
			if offset+16+8+4 > len(data) {
				return nil, fmt.Errorf("%w: truncated item header", ErrTruncated)
			}
			origin, err := causal.ReplicaIDFromBytes(data[offset : offset+16])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
			}
			offset += 16
			counter := causal.Counter(binary.BigEndian.Uint64(data[offset : offset+8]))
			offset += 8
			deltaLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
			offset += 4
			if offset+deltaLen > len(data) {
				return nil, fmt.Errorf("%w: truncated delta", ErrTruncated)
			}
			delta := append([]byte(nil), data[offset:offset+deltaLen]...)
			offset += deltaLen
			items = append(items, WireItem{Origin: origin, Counter: counter, Delta: delta})
		}
		if _, dup := out[crdtID]; dup {
			return nil, fmt.Errorf("%w: duplicate crdt id %q", ErrDuplicateKey, crdtID)
		}
		out[crdtID] = items
	}
	if offset != len(data) {
		return nil, fmt.Errorf("%w: bundle payload", ErrTrailingBytes)
	}
	return out, nil
}
