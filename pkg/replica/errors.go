package replica

import (
	"errors"
	"fmt"
)

// ErrInvalidMeta is returned by UpdateCRDTMeta when the supplied value (or
// the result of a meta callback) is not a map[string]any.
var ErrInvalidMeta = errors.New("invalid_meta")

// AlreadyExistsError is returned by AddCRDT when crdtID is already bound
// and Overwrite was not requested.
type AlreadyExistsError struct {
	CRDTID string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("crdt %q already exists", e.CRDTID)
}

// NotFoundError is returned by operations addressing an unbound crdt id.
type NotFoundError struct {
	CRDTID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("crdt %q not found", e.CRDTID)
}
