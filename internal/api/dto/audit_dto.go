package dto

import (
	"time"

	"github.com/spec-kit/triage-service/internal/audit"
	"github.com/spec-kit/triage-service/internal/domain"
)

// AuditEntryResponse exposes one ledger entry.
type AuditEntryResponse struct {
	ID            string               `json:"id"`
	Seq           int64                `json:"seq"`
	ActorID       *string              `json:"actor_id"`
	ActorType     *string              `json:"actor_type"`
	ResourceID    *string              `json:"resource_id"`
	ResourceType  *domain.ResourceType `json:"resource_type"`
	Action        string               `json:"action"`
	Status        string               `json:"status"`
	Timestamp     time.Time            `json:"timestamp"`
	ChangeDetails domain.ChangeDetails `json:"change_details,omitempty"`
	IPAddress     *string              `json:"ip_address"`
	Hash          string               `json:"hash"`
	PreviousHash  string               `json:"previous_hash"`
}

// AuditEntriesResponse wraps a page of entries with a count.
type AuditEntriesResponse struct {
	Logs  []AuditEntryResponse `json:"logs"`
	Count int                  `json:"count"`
}

// BrokenLinkResponse reports where an integrity walk failed.
type BrokenLinkResponse struct {
	Seq     int64  `json:"seq"`
	EntryID string `json:"entry_id"`
	Reason  string `json:"reason"`
}

// VerifyChainResponse is the outcome of an integrity walk.
type VerifyChainResponse struct {
	Valid  bool                `json:"valid"`
	Broken *BrokenLinkResponse `json:"broken,omitempty"`
}

// AuditEntryFromDomain maps one entry.
func AuditEntryFromDomain(entry *domain.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:            entry.ID,
		Seq:           entry.Seq,
		ActorID:       entry.ActorID,
		ActorType:     entry.ActorType,
		ResourceID:    entry.ResourceID,
		ResourceType:  entry.ResourceType,
		Action:        entry.Action,
		Status:        entry.Status,
		Timestamp:     entry.Timestamp,
		ChangeDetails: entry.ChangeDetails,
		IPAddress:     entry.IPAddress,
		Hash:          entry.Hash,
		PreviousHash:  entry.PreviousHash,
	}
}

// AuditEntriesFromDomain maps a slice of entries.
func AuditEntriesFromDomain(entries []domain.AuditEntry) AuditEntriesResponse {
	logs := make([]AuditEntryResponse, 0, len(entries))
	for i := range entries {
		logs = append(logs, AuditEntryFromDomain(&entries[i]))
	}
	return AuditEntriesResponse{Logs: logs, Count: len(logs)}
}

// VerifyChainFromResult maps a verification outcome.
func VerifyChainFromResult(valid bool, broken *audit.BrokenLinkError) VerifyChainResponse {
	resp := VerifyChainResponse{Valid: valid}
	if broken != nil {
		resp.Broken = &BrokenLinkResponse{Seq: broken.Seq, EntryID: broken.EntryID, Reason: broken.Reason}
	}
	return resp
}
