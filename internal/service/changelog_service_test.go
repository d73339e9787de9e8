package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-service/internal/audit"
	"github.com/spec-kit/triage-service/internal/changelog"
	"github.com/spec-kit/triage-service/internal/domain"
)

// seedChangelogLedger appends case and patient mutations to an in-memory
// ledger so the projector has something to derive.
func seedChangelogLedger(t *testing.T) audit.Store {
	t.Helper()
	store := audit.NewMemoryStore()
	validator := audit.NewValidator()
	validator.Register(domain.ResourceTypeTriageCase, func(_ context.Context, _ string) (bool, error) { return true, nil })
	validator.Register(domain.ResourceTypePatient, func(_ context.Context, _ string) (bool, error) { return true, nil })

	base := time.Date(2026, time.August, 29, 10, 0, 0, 0, time.UTC)
	step := 0
	appender := audit.NewAppender(store, validator, zap.NewNop(), audit.WithClock(func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}))

	drafts := []domain.AuditDraft{
		{
			ActorID: strPtr("u-1"), ActorType: strPtr("clinician"),
			ResourceType: strPtr("TRIAGE_CASE"), ResourceID: strPtr("case-1"),
			Action: "UPDATE_CASE", Status: "SUCCESS",
			ChangeDetails: domain.ChangeDetails{"urgency": {Old: "medium", New: "high"}},
		},
		{
			ActorID: strPtr("u-2"), ActorType: strPtr("clinician"),
			ResourceType: strPtr("PATIENT"), ResourceID: strPtr("p-1"),
			Action: "UPDATE_PATIENT", Status: "SUCCESS",
			ChangeDetails: domain.ChangeDetails{"firstName": {Old: "Ann", New: "Anne"}},
		},
		{
			ActorID: strPtr("u-1"), ActorType: strPtr("clinician"),
			ResourceType: strPtr("PATIENT"), ResourceID: strPtr("p-2"),
			Action: "VERIFY_PATIENT", Status: "SUCCESS",
			ChangeDetails: domain.ChangeDetails{"verified": {Old: false, New: true}},
		},
	}
	for _, draft := range drafts {
		if _, err := appender.Append(context.Background(), draft); err != nil {
			t.Fatalf("seeding ledger: %v", err)
		}
	}
	return store
}

func testChangelogService(t *testing.T) (*ChangelogService, *fakeCaseRepo) {
	t.Helper()
	store := seedChangelogLedger(t)
	projector := changelog.NewProjector(store, func(_ context.Context, actorID string) string {
		return actorID + "@clinic.example"
	})
	cases := newFakeCaseRepo()
	// nil Redis client exercises the degraded, cache-free path.
	return NewChangelogService(projector, cases, nil, time.Minute, zap.NewNop()), cases
}

func TestForCaseMergesPatientTimeline(t *testing.T) {
	svc, cases := testChangelogService(t)
	if err := cases.Create(context.Background(), &domain.TriageCase{PatientID: "p-1"}); err != nil {
		t.Fatal(err)
	}

	records, err := svc.ForCase(context.Background(), "case-1", ChangelogQuery{})
	if err != nil {
		t.Fatalf("ForCase() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want case and patient changes merged", len(records))
	}
	// Newest first: the patient edit landed after the case edit.
	if records[0].FieldName != "firstName" || records[1].FieldName != "urgency" {
		t.Errorf("order = %s, %s; want firstName, urgency", records[0].FieldName, records[1].FieldName)
	}
	if records[1].ChangedByEmail != "u-1@clinic.example" {
		t.Errorf("ChangedByEmail = %s, want resolved address", records[1].ChangedByEmail)
	}
}

func TestForCaseUnknownCase(t *testing.T) {
	svc, _ := testChangelogService(t)
	if _, err := svc.ForCase(context.Background(), "missing", ChangelogQuery{}); err == nil {
		t.Fatal("unknown case must fail before projecting")
	}
}

func TestForPatientScopedToRef(t *testing.T) {
	svc, _ := testChangelogService(t)

	records, err := svc.ForPatient(context.Background(), "p-2", ChangelogQuery{})
	if err != nil {
		t.Fatalf("ForPatient() error = %v", err)
	}
	if len(records) != 1 || records[0].FieldName != "verified" {
		t.Fatalf("records = %+v, want only the p-2 verification", records)
	}
}

func TestChangelogQueryFilters(t *testing.T) {
	svc, cases := testChangelogService(t)
	if err := cases.Create(context.Background(), &domain.TriageCase{PatientID: "p-1"}); err != nil {
		t.Fatal(err)
	}

	byActor, err := svc.ForCase(context.Background(), "case-1", ChangelogQuery{ActorEmail: "u-2@clinic.example"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byActor) != 1 || byActor[0].FieldName != "firstName" {
		t.Fatalf("actor filter returned %+v, want the u-2 edit only", byActor)
	}

	byField, err := svc.ForCase(context.Background(), "case-1", ChangelogQuery{FieldName: "urgency"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byField) != 1 || byField[0].FieldName != "urgency" {
		t.Fatalf("field filter returned %+v, want the urgency edit only", byField)
	}
}

func TestInvalidateWithoutRedis(t *testing.T) {
	svc, _ := testChangelogService(t)
	// Must be a no-op rather than a panic.
	svc.Invalidate(context.Background(), changelog.Ref{Type: domain.ResourceTypePatient, ID: "p-1"})
}
