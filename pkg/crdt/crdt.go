package crdt

import (
	"encoding/json"
	"time"
)

// Timestamp wraps time.Time with nanosecond-precision JSON marshaling and a
// total order. LWWRegister records it as informational metadata on the
// winning write; it plays no part in LWWRegister's merge or tie-break.
// Grounded on the teacher's crdt.go Timestamp type.
type Timestamp struct {
	time.Time
}

// NewTimestamp returns the current time as a Timestamp.
func NewTimestamp() Timestamp {
	return Timestamp{Time: time.Now().UTC()}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UnixNano())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var nano int64
	if err := json.Unmarshal(data, &nano); err != nil {
		return err
	}
	t.Time = time.Unix(0, nano).UTC()
	return nil
}

// Compare returns -1, 0 or 1 as t is before, equal to, or after other.
func (t Timestamp) Compare(other Timestamp) int {
	switch {
	case t.Before(other.Time):
		return -1
	case t.After(other.Time):
		return 1
	default:
		return 0
	}
}
