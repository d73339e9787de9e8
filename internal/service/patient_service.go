package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-service/internal/changelog"
	"github.com/spec-kit/triage-service/internal/domain"
	"github.com/spec-kit/triage-service/internal/repository"
)

// PatientService manages patient intake records.
type PatientService struct {
	patients repository.PatientRepository
	recorder AuditRecorder
	cache    ChangelogInvalidator
	logger   *zap.Logger
}

// NewPatientService constructs the service.
func NewPatientService(patients repository.PatientRepository, recorder AuditRecorder, cache ChangelogInvalidator, logger *zap.Logger) *PatientService {
	return &PatientService{patients: patients, recorder: recorder, cache: cache, logger: logger}
}

// PatientCreateInput describes patient registration payload.
type PatientCreateInput struct {
	FirstName          string
	LastName           string
	DOB                *time.Time
	ContactInfo        *string
	InsuranceInfo      *string
	LanguagePreference *string
	ReturningPatient   bool
}

// CreatePatient registers a new patient.
func (s *PatientService) CreatePatient(ctx context.Context, actor ActorContext, input PatientCreateInput) (*domain.Patient, error) {
	patient := &domain.Patient{
		FirstName:          input.FirstName,
		LastName:           input.LastName,
		DOB:                input.DOB,
		ContactInfo:        input.ContactInfo,
		InsuranceInfo:      input.InsuranceInfo,
		LanguagePreference: input.LanguagePreference,
		ReturningPatient:   input.ReturningPatient,
	}
	if err := s.patients.Create(ctx, patient); err != nil {
		return nil, err
	}

	draft := actor.draft("CREATE_PATIENT", statusSuccess, resourceRef(domain.ResourceTypePatient, patient.ID))
	draft.ChangeDetails = domain.ChangeDetails{
		"firstName": {Old: nil, New: patient.FirstName},
		"lastName":  {Old: nil, New: patient.LastName},
	}
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		s.logger.Error("failed to audit patient creation, patient kept unverified",
			zap.String("patient_id", patient.ID), zap.Error(err))
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, changelog.Ref{Type: domain.ResourceTypePatient, ID: patient.ID})
	}
	return patient, nil
}

// GetPatient fetches one patient record, recording the view best-effort.
func (s *PatientService) GetPatient(ctx context.Context, actor ActorContext, patientID string) (*domain.Patient, error) {
	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	draft := actor.draft("VIEW_PATIENT", statusSuccess, resourceRef(domain.ResourceTypePatient, patient.ID))
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		s.logger.Warn("failed to audit patient view", zap.String("patient_id", patient.ID), zap.Error(err))
	}
	return patient, nil
}

// ListPatients pages through patient records.
func (s *PatientService) ListPatients(ctx context.Context, actor ActorContext, limit, offset int) ([]domain.Patient, error) {
	patients, err := s.patients.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	draft := actor.draft("LIST_PATIENTS", statusSuccess, nil)
	draft.ChangeDetails = domain.ChangeDetails{
		"returned_count": {Old: nil, New: len(patients)},
	}
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		s.logger.Warn("failed to audit patient listing", zap.Error(err))
	}
	return patients, nil
}

// VerifyPatient marks a patient record identity-verified.
func (s *PatientService) VerifyPatient(ctx context.Context, actor ActorContext, patientID string) (*domain.Patient, error) {
	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.Verified {
		return patient, nil
	}
	snapshot := *patient

	patient.Verified = true
	if err := s.patients.Update(ctx, patient); err != nil {
		return nil, err
	}

	draft := actor.draft("VERIFY_PATIENT", statusSuccess, resourceRef(domain.ResourceTypePatient, patient.ID))
	draft.ChangeDetails = domain.ChangeDetails{
		"verified": {Old: false, New: true},
	}
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		if restoreErr := s.patients.Update(ctx, &snapshot); restoreErr != nil {
			s.logger.Error("failed to roll back unaudited verification",
				zap.String("patient_id", patient.ID), zap.Error(restoreErr))
		}
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, changelog.Ref{Type: domain.ResourceTypePatient, ID: patient.ID})
	}
	return patient, nil
}
