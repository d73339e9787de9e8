package audit

import (
	"testing"
	"time"

	"github.com/spec-kit/triage-service/internal/domain"
)

func sampleEntry() *domain.AuditEntry {
	actorID := "user-1"
	actorType := "admin"
	resourceID := "patient-9"
	rt := domain.ResourceTypePatient
	ip := "10.0.0.1"
	return &domain.AuditEntry{
		ID:           "entry-1",
		Seq:          1,
		ActorID:      &actorID,
		ActorType:    &actorType,
		ResourceID:   &resourceID,
		ResourceType: &rt,
		Action:       "UPDATE_PATIENT",
		Status:       "SUCCESS",
		Timestamp:    time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC),
		ChangeDetails: domain.ChangeDetails{
			"firstName": {Old: "Ann", New: "Anne"},
		},
		IPAddress:    &ip,
		PreviousHash: GenesisHash,
	}
}

func TestComputeHashDeterministic(t *testing.T) {
	entry := sampleEntry()
	first := ComputeHash(entry)
	for i := 0; i < 5; i++ {
		if got := ComputeHash(entry); got != first {
			t.Fatalf("hash not deterministic: %s != %s", got, first)
		}
	}
	if len(first) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", first)
	}
}

func TestComputeHashCoversEveryField(t *testing.T) {
	base := ComputeHash(sampleEntry())

	mutations := map[string]func(*domain.AuditEntry){
		"id":            func(e *domain.AuditEntry) { e.ID = "entry-2" },
		"seq":           func(e *domain.AuditEntry) { e.Seq = 2 },
		"actorId":       func(e *domain.AuditEntry) { e.ActorID = nil },
		"actorType":     func(e *domain.AuditEntry) { e.ActorType = nil },
		"resourceId":    func(e *domain.AuditEntry) { e.ResourceID = nil },
		"resourceType":  func(e *domain.AuditEntry) { e.ResourceType = nil },
		"action":        func(e *domain.AuditEntry) { e.Action = "DELETE_PATIENT" },
		"status":        func(e *domain.AuditEntry) { e.Status = "FAIL" },
		"timestamp":     func(e *domain.AuditEntry) { e.Timestamp = e.Timestamp.Add(time.Nanosecond) },
		"changeDetails": func(e *domain.AuditEntry) { e.ChangeDetails = nil },
		"ipAddress":     func(e *domain.AuditEntry) { e.IPAddress = nil },
		"previousHash":  func(e *domain.AuditEntry) { e.PreviousHash = "abc" },
	}
	for field, mutate := range mutations {
		entry := sampleEntry()
		mutate(entry)
		if got := ComputeHash(entry); got == base {
			t.Errorf("mutating %s did not change hash", field)
		}
	}
}

func TestComputeHashTimezoneInsensitive(t *testing.T) {
	entry := sampleEntry()
	base := ComputeHash(entry)

	entry.Timestamp = entry.Timestamp.In(time.FixedZone("PST", -8*3600))
	if got := ComputeHash(entry); got != base {
		t.Fatalf("hash changed with timezone rendering: %s != %s", got, base)
	}
}
