package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-service/internal/audit"
)

func testPatientService(t *testing.T) (*PatientService, *fakePatientRepo, *fakeRecorder) {
	t.Helper()
	patients := newFakePatientRepo()
	recorder := &fakeRecorder{}
	return NewPatientService(patients, recorder, nil, zap.NewNop()), patients, recorder
}

func TestCreatePatientAudited(t *testing.T) {
	svc, _, recorder := testPatientService(t)

	patient, err := svc.CreatePatient(context.Background(), testActor(), PatientCreateInput{
		FirstName: "Ann",
		LastName:  "Lee",
	})
	if err != nil {
		t.Fatalf("CreatePatient() error = %v", err)
	}
	if patient.ID == "" {
		t.Fatal("patient must get an ID from the repository")
	}
	if recorder.lastAction() != "CREATE_PATIENT" {
		t.Errorf("last audit action = %s, want CREATE_PATIENT", recorder.lastAction())
	}
	if change := recorder.drafts[0].ChangeDetails["firstName"]; change.New != "Ann" {
		t.Errorf("firstName change = %+v, want New=Ann", change)
	}
}

func TestCreatePatientFailsWhenAuditFails(t *testing.T) {
	svc, _, recorder := testPatientService(t)
	recorder.fail = audit.ErrStorageUnavailable

	if _, err := svc.CreatePatient(context.Background(), testActor(), PatientCreateInput{
		FirstName: "Ann",
		LastName:  "Lee",
	}); !errors.Is(err, audit.ErrStorageUnavailable) {
		t.Fatalf("CreatePatient() error = %v, want ErrStorageUnavailable", err)
	}
}

func TestVerifyPatient(t *testing.T) {
	svc, patients, recorder := testPatientService(t)
	seedPatient(t, patients)

	patient, err := svc.VerifyPatient(context.Background(), testActor(), "p-1")
	if err != nil {
		t.Fatalf("VerifyPatient() error = %v", err)
	}
	if !patient.Verified {
		t.Error("patient must be marked verified")
	}
	if recorder.lastAction() != "VERIFY_PATIENT" {
		t.Errorf("last audit action = %s, want VERIFY_PATIENT", recorder.lastAction())
	}

	// Verifying again is a no-op, not a second ledger entry.
	before := len(recorder.drafts)
	if _, err := svc.VerifyPatient(context.Background(), testActor(), "p-1"); err != nil {
		t.Fatalf("repeat VerifyPatient() error = %v", err)
	}
	if len(recorder.drafts) != before {
		t.Error("already-verified patient must not produce another entry")
	}
}

func TestVerifyPatientRollsBackWhenAuditFails(t *testing.T) {
	svc, patients, recorder := testPatientService(t)
	seedPatient(t, patients)
	recorder.fail = audit.ErrStorageUnavailable

	if _, err := svc.VerifyPatient(context.Background(), testActor(), "p-1"); !errors.Is(err, audit.ErrStorageUnavailable) {
		t.Fatalf("VerifyPatient() error = %v, want ErrStorageUnavailable", err)
	}
	stored, err := patients.GetByID(context.Background(), "p-1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Verified {
		t.Error("unaudited verification must be rolled back")
	}
}

func TestGetPatientSurvivesAuditFailure(t *testing.T) {
	svc, patients, recorder := testPatientService(t)
	seedPatient(t, patients)
	recorder.fail = audit.ErrStorageUnavailable

	patient, err := svc.GetPatient(context.Background(), testActor(), "p-1")
	if err != nil {
		t.Fatalf("GetPatient() error = %v, reads must not fail closed", err)
	}
	if patient.FirstName != "Ann" {
		t.Errorf("FirstName = %s, want Ann", patient.FirstName)
	}
}

func TestListPatientsAudited(t *testing.T) {
	svc, patients, recorder := testPatientService(t)
	seedPatient(t, patients)

	listed, err := svc.ListPatients(context.Background(), testActor(), 50, 0)
	if err != nil {
		t.Fatalf("ListPatients() error = %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("len = %d, want 1", len(listed))
	}
	if recorder.lastAction() != "LIST_PATIENTS" {
		t.Errorf("last audit action = %s, want LIST_PATIENTS", recorder.lastAction())
	}
	if change := recorder.drafts[len(recorder.drafts)-1].ChangeDetails["returned_count"]; change.New != 1 {
		t.Errorf("returned_count = %v, want 1", change.New)
	}
}
