package audit

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownResourceType is returned when a draft carries a resource
	// tag outside the known set.
	ErrUnknownResourceType = errors.New("unknown resource type")
	// ErrResourceNotFound is returned when the referenced resource does not
	// exist at validation time.
	ErrResourceNotFound = errors.New("referenced resource not found")
	// ErrChainConflict is returned by a store when a concurrent append
	// advanced the tail between hash computation and commit.
	ErrChainConflict = errors.New("audit chain tail moved")
	// ErrStorageUnavailable is returned once bounded retries are exhausted
	// or the store cannot be reached. Callers must block the action they
	// were about to record.
	ErrStorageUnavailable = errors.New("audit storage unavailable")
)

// BrokenLinkError reports the first entry at which chain verification
// failed. It is an integrity-audit finding, never auto-corrected.
type BrokenLinkError struct {
	Seq     int64
	EntryID string
	Reason  string
}

func (e *BrokenLinkError) Error() string {
	return fmt.Sprintf("broken audit chain at seq %d (entry %s): %s", e.Seq, e.EntryID, e.Reason)
}
