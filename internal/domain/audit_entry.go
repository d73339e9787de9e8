package domain

import (
	"fmt"
	"strings"
	"time"
)

// ResourceType tags which entity an audit entry refers to. The set is
// closed: new resource kinds require an explicit constant and an existence
// check registered with the validator.
type ResourceType string

const (
	ResourceTypeUser       ResourceType = "USER"
	ResourceTypePatient    ResourceType = "PATIENT"
	ResourceTypeTriageCase ResourceType = "TRIAGE_CASE"
)

// ParseResourceType matches a tag case-insensitively against the known set.
func ParseResourceType(raw string) (ResourceType, error) {
	switch ResourceType(strings.ToUpper(strings.TrimSpace(raw))) {
	case ResourceTypeUser:
		return ResourceTypeUser, nil
	case ResourceTypePatient:
		return ResourceTypePatient, nil
	case ResourceTypeTriageCase:
		return ResourceTypeTriageCase, nil
	default:
		return "", fmt.Errorf("unknown resource type %q", raw)
	}
}

// FieldChange records one field's before/after values.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// ChangeDetails maps field name to its change for one audit entry.
type ChangeDetails map[string]FieldChange

// AuditEntry is one immutable row of the hash-chained audit ledger.
// Seq is the global chain position assigned at append time; PreviousHash is
// the hash of the entry at Seq-1 (genesis constant for the first entry).
type AuditEntry struct {
	ID            string
	Seq           int64
	ActorID       *string
	ActorType     *string
	ResourceID    *string
	ResourceType  *ResourceType
	Action        string
	Status        string
	Timestamp     time.Time
	ChangeDetails ChangeDetails
	IPAddress     *string
	Hash          string
	PreviousHash  string
}

// AuditDraft is the collaborator-supplied payload for a new entry. The
// appender assigns everything else (ID, Seq, Timestamp, hashes).
type AuditDraft struct {
	ActorID       *string
	ActorType     *string
	ResourceID    *string
	ResourceType  *string
	Action        string
	Status        string
	ChangeDetails ChangeDetails
	IPAddress     *string
}
