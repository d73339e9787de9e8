package domain

import "time"

// ChangeRecord is one field-level change derived from an audit entry's
// ChangeDetails. Records are recomputed on every projection and never
// persisted.
type ChangeRecord struct {
	EntryID        string
	EntrySeq       int64
	EntityType     ResourceType
	EntityID       string
	FieldName      string
	OldValue       any
	NewValue       any
	ChangedAt      time.Time
	ChangedByEmail string
	Source         string
}
