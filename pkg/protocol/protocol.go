package protocol

import "fmt"

// DecodeMessage decodes a full envelope (header + payload) and dispatches
// to the payload codec selected by the header's message type. The
// returned payload value's concrete type depends on Header.Type:
//
//	MessageDigestRequest  -> nil (empty payload)
//	MessageDigestResponse -> *digest.Digest
//	MessageSyncRequest    -> SyncRequest
//	MessageSyncResponse   -> SyncResponse
func DecodeMessage(data []byte) (Header, any, error) {
	h, payload, err := DecodeEnvelope(data)
	if err != nil {
		return Header{}, nil, err
	}

	switch h.Type {
	case MessageDigestRequest:
		if err := DecodeDigestRequestPayload(payload); err != nil {
			return Header{}, nil, err
		}
		return h, nil, nil
	case MessageDigestResponse:
		d, err := DecodeDigestResponsePayload(payload)
		if err != nil {
			return Header{}, nil, err
		}
		return h, d, nil
	case MessageSyncRequest:
		r, err := DecodeSyncRequestPayload(payload)
		if err != nil {
			return Header{}, nil, err
		}
		return h, r, nil
	case MessageSyncResponse:
		r, err := DecodeSyncResponsePayload(payload)
		if err != nil {
			return Header{}, nil, err
		}
		return h, r, nil
	default:
		return Header{}, nil, fmt.Errorf("%w: message_type_id %d", ErrInvalidMessageType, uint16(h.Type))
	}
}
