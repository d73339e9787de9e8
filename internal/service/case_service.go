package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-service/internal/changelog"
	"github.com/spec-kit/triage-service/internal/domain"
	"github.com/spec-kit/triage-service/internal/events"
	"github.com/spec-kit/triage-service/internal/repository"
	apperrors "github.com/spec-kit/triage-service/pkg/util"
)

// ChangelogInvalidator drops cached changelog projections for entities
// whose ledger just grew.
type ChangelogInvalidator interface {
	Invalidate(ctx context.Context, refs ...changelog.Ref)
}

// CaseService coordinates triage case workflows. Mutations are fail-closed
// against the audit ledger: if the append is rejected the mutation is
// rolled back and the audit error surfaces to the caller.
type CaseService struct {
	cases      repository.TriageCaseRepository
	patients   repository.PatientRepository
	recorder   AuditRecorder
	dispatcher events.Dispatcher
	cache      ChangelogInvalidator
	logger     *zap.Logger
}

// CaseDependencies bundles requirements for the case service.
type CaseDependencies struct {
	CaseRepo    repository.TriageCaseRepository
	PatientRepo repository.PatientRepository
	Recorder    AuditRecorder
	Dispatcher  events.Dispatcher
	Cache       ChangelogInvalidator
	Logger      *zap.Logger
}

// NewCaseService constructs the service.
func NewCaseService(deps CaseDependencies) *CaseService {
	return &CaseService{
		cases:      deps.CaseRepo,
		patients:   deps.PatientRepo,
		recorder:   deps.Recorder,
		dispatcher: deps.Dispatcher,
		cache:      deps.Cache,
		logger:     deps.Logger,
	}
}

// CaseCreateInput describes case creation payload.
type CaseCreateInput struct {
	PatientID string
	Symptoms  *string
	AISummary *string
	Urgency   domain.CaseUrgency
}

// CaseUpdateInput carries a combined case/patient update. Nil fields are
// untouched. The original intake form edits patient demographics and case
// fields together, so the service splits them and audits each against its
// own resource.
type CaseUpdateInput struct {
	Symptoms        *string
	AISummary       *string
	Urgency         *domain.CaseUrgency
	OverrideSummary *string
	OverrideUrgency *domain.CaseUrgency
	ScheduledDate   *time.Time
	Status          *domain.CaseStatus

	FirstName          *string
	LastName           *string
	DOB                *time.Time
	ContactInfo        *string
	InsuranceInfo      *string
	LanguagePreference *string
	ReturningPatient   *bool
	Verified           *bool
}

// CreateCase registers a new triage case for an existing patient.
func (s *CaseService) CreateCase(ctx context.Context, actor ActorContext, input CaseCreateInput) (*domain.TriageCase, error) {
	exists, err := s.patients.Exists(ctx, input.PatientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NewNotFound("patient", map[string]any{"patient_id": input.PatientID})
	}

	tc := &domain.TriageCase{
		PatientID: input.PatientID,
		Status:    domain.CaseStatusNew,
		Symptoms:  input.Symptoms,
		AISummary: input.AISummary,
		Urgency:   input.Urgency,
	}
	if tc.Urgency == "" {
		tc.Urgency = domain.CaseUrgencyMedium
	}
	if err := s.cases.Create(ctx, tc); err != nil {
		return nil, err
	}

	draft := actor.draft("CREATE_CASE", statusSuccess, resourceRef(domain.ResourceTypeTriageCase, tc.ID))
	draft.ChangeDetails = domain.ChangeDetails{
		"patientID": {Old: nil, New: tc.PatientID},
		"status":    {Old: nil, New: string(tc.Status)},
		"urgency":   {Old: nil, New: string(tc.Urgency)},
	}
	if tc.Symptoms != nil {
		draft.ChangeDetails["symptoms"] = domain.FieldChange{Old: nil, New: *tc.Symptoms}
	}
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		if delErr := s.cases.Delete(ctx, tc.ID); delErr != nil {
			s.logger.Error("failed to remove unaudited case", zap.String("case_id", tc.ID), zap.Error(delErr))
		}
		return nil, err
	}

	s.invalidateCase(ctx, tc)
	s.publishEvent(ctx, events.Event{
		Type:      events.EventCaseCreated,
		CaseID:    tc.ID,
		PatientID: tc.PatientID,
		Actor:     eventActor(actor),
		Payload:   events.CaseCreatedPayload{PatientID: tc.PatientID, Urgency: tc.Urgency},
	})
	return tc, nil
}

// ListCases returns cases matching the filter. List access is recorded
// best-effort: a failed audit append is logged but does not hide data the
// caller is authorized to read.
func (s *CaseService) ListCases(ctx context.Context, actor ActorContext, filter repository.CaseFilter) ([]domain.TriageCase, error) {
	cases, err := s.cases.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, err
	}

	draft := actor.draft("LIST_CASES", statusSuccess, nil)
	draft.ChangeDetails = domain.ChangeDetails{
		"returned_count": {Old: nil, New: len(cases)},
	}
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		s.logger.Warn("failed to audit case listing", zap.Error(err))
	}
	return cases, nil
}

// StatusCounts reports how many cases sit in each workflow state, for the
// intake dashboard. Recorded best-effort like other reads.
func (s *CaseService) StatusCounts(ctx context.Context, actor ActorContext) (map[domain.CaseStatus]int64, error) {
	counts := make(map[domain.CaseStatus]int64, 3)
	for _, status := range []domain.CaseStatus{domain.CaseStatusNew, domain.CaseStatusReviewed, domain.CaseStatusResolved} {
		n, err := s.cases.CountByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		counts[status] = n
	}

	draft := actor.draft("LIST_CASES", statusSuccess, nil)
	draft.ChangeDetails = domain.ChangeDetails{
		"view": {Old: nil, New: "status_counts"},
	}
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		s.logger.Warn("failed to audit case stats view", zap.Error(err))
	}
	return counts, nil
}

// GetCase fetches one case, recording the view best-effort.
func (s *CaseService) GetCase(ctx context.Context, actor ActorContext, caseID string) (*domain.TriageCase, error) {
	tc, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	draft := actor.draft("VIEW_CASE", statusSuccess, resourceRef(domain.ResourceTypeTriageCase, tc.ID))
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		s.logger.Warn("failed to audit case view", zap.String("case_id", tc.ID), zap.Error(err))
	}
	return tc, nil
}

// UpdateCase applies a combined case/patient update. The review transition
// is not reachable here; callers must use ReviewCase.
func (s *CaseService) UpdateCase(ctx context.Context, actor ActorContext, caseID string, input CaseUpdateInput) (*domain.TriageCase, error) {
	if input.Status != nil && *input.Status == domain.CaseStatusReviewed {
		return nil, apperrors.NewForbidden("cases cannot be reviewed through generic update")
	}

	tc, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	snapshot := *tc

	caseChanges := s.applyCaseFields(tc, actor, input)
	if len(caseChanges) > 0 {
		if err := s.cases.Update(ctx, tc); err != nil {
			return nil, err
		}
		draft := actor.draft("UPDATE_CASE", statusSuccess, resourceRef(domain.ResourceTypeTriageCase, tc.ID))
		draft.ChangeDetails = caseChanges
		if _, err := s.recorder.Append(ctx, draft); err != nil {
			if restoreErr := s.cases.Update(ctx, &snapshot); restoreErr != nil {
				s.logger.Error("failed to roll back unaudited case update",
					zap.String("case_id", tc.ID), zap.Error(restoreErr))
			}
			return nil, err
		}
		s.invalidateCase(ctx, tc)
	}

	if patientChanges := collectPatientFields(input); len(patientChanges) > 0 {
		if err := s.updatePatientFields(ctx, actor, tc.PatientID, input); err != nil {
			return nil, err
		}
	}

	fields := make([]string, 0, len(caseChanges))
	for field := range caseChanges {
		fields = append(fields, field)
	}
	if len(fields) > 0 {
		s.publishEvent(ctx, events.Event{
			Type:      events.EventCaseUpdated,
			CaseID:    tc.ID,
			PatientID: tc.PatientID,
			Actor:     eventActor(actor),
			Payload:   events.CaseUpdatedPayload{FieldsModified: fields},
		})
	}
	return tc, nil
}

// ReviewCase transitions a case from new to reviewed. A non-empty reason is
// required and double review is rejected.
func (s *CaseService) ReviewCase(ctx context.Context, actor ActorContext, caseID, reason string, scheduledDate *time.Time) (*domain.TriageCase, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("review reason is required", nil)
	}

	tc, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if tc.Status == domain.CaseStatusReviewed {
		return nil, apperrors.NewConflict("case is already reviewed", nil)
	}
	snapshot := *tc

	now := time.Now().UTC()
	oldStatus := tc.Status
	tc.Status = domain.CaseStatusReviewed
	tc.ReviewReason = &reason
	tc.ReviewedBy = &actor.UserID
	tc.ReviewTimestamp = &now
	if scheduledDate != nil {
		tc.ScheduledDate = scheduledDate
	}
	if err := s.cases.Update(ctx, tc); err != nil {
		return nil, err
	}

	draft := actor.draft("REVIEW_CASE", statusSuccess, resourceRef(domain.ResourceTypeTriageCase, tc.ID))
	draft.ChangeDetails = domain.ChangeDetails{
		"status":          {Old: string(oldStatus), New: string(tc.Status)},
		"reviewReason":    {Old: snapshot.ReviewReason, New: reason},
		"reviewedBy":      {Old: snapshot.ReviewedBy, New: actor.UserID},
		"reviewTimestamp": {Old: snapshot.ReviewTimestamp, New: now},
	}
	if scheduledDate != nil {
		draft.ChangeDetails["scheduledDate"] = domain.FieldChange{Old: snapshot.ScheduledDate, New: *scheduledDate}
	}
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		if restoreErr := s.cases.Update(ctx, &snapshot); restoreErr != nil {
			s.logger.Error("failed to roll back unaudited review",
				zap.String("case_id", tc.ID), zap.Error(restoreErr))
		}
		return nil, err
	}

	s.invalidateCase(ctx, tc)
	s.publishEvent(ctx, events.Event{
		Type:      events.EventCaseReviewed,
		CaseID:    tc.ID,
		PatientID: tc.PatientID,
		Actor:     eventActor(actor),
		Payload:   events.CaseReviewedPayload{ReviewReason: reason, ScheduledDate: scheduledDate},
	})
	return tc, nil
}

// ResolveCase transitions a reviewed case to resolved.
func (s *CaseService) ResolveCase(ctx context.Context, actor ActorContext, caseID string) (*domain.TriageCase, error) {
	tc, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if tc.Status != domain.CaseStatusReviewed {
		return nil, apperrors.NewConflict("only reviewed cases can be resolved", nil)
	}
	snapshot := *tc

	oldStatus := tc.Status
	tc.Status = domain.CaseStatusResolved
	if err := s.cases.Update(ctx, tc); err != nil {
		return nil, err
	}

	draft := actor.draft("RESOLVE_CASE", statusSuccess, resourceRef(domain.ResourceTypeTriageCase, tc.ID))
	draft.ChangeDetails = domain.ChangeDetails{
		"status": {Old: string(oldStatus), New: string(tc.Status)},
	}
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		if restoreErr := s.cases.Update(ctx, &snapshot); restoreErr != nil {
			s.logger.Error("failed to roll back unaudited resolve",
				zap.String("case_id", tc.ID), zap.Error(restoreErr))
		}
		return nil, err
	}
	s.invalidateCase(ctx, tc)
	return tc, nil
}

// DeleteCase removes a case. The entry is appended before the row goes
// away so the resource reference still validates; if the delete itself
// then fails, a FAIL entry marks the aborted attempt.
func (s *CaseService) DeleteCase(ctx context.Context, actor ActorContext, caseID string) error {
	tc, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return err
	}

	draft := actor.draft("DELETE_CASE", statusSuccess, resourceRef(domain.ResourceTypeTriageCase, tc.ID))
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		return err
	}

	if err := s.cases.Delete(ctx, caseID); err != nil {
		failed := actor.draft("DELETE_CASE", statusFail, nil)
		failed.ChangeDetails = domain.ChangeDetails{
			"caseID": {Old: caseID, New: nil},
		}
		if _, auditErr := s.recorder.Append(ctx, failed); auditErr != nil {
			s.logger.Error("failed to record aborted delete", zap.String("case_id", caseID), zap.Error(auditErr))
		}
		return err
	}

	s.invalidateCase(ctx, tc)
	s.publishEvent(ctx, events.Event{
		Type:      events.EventCaseDeleted,
		CaseID:    tc.ID,
		PatientID: tc.PatientID,
		Actor:     eventActor(actor),
	})
	return nil
}

func (s *CaseService) applyCaseFields(tc *domain.TriageCase, actor ActorContext, input CaseUpdateInput) domain.ChangeDetails {
	changes := domain.ChangeDetails{}

	if input.Symptoms != nil && !strPtrEq(tc.Symptoms, input.Symptoms) {
		changes["symptoms"] = domain.FieldChange{Old: strPtrVal(tc.Symptoms), New: *input.Symptoms}
		tc.Symptoms = input.Symptoms
	}
	if input.AISummary != nil && !strPtrEq(tc.AISummary, input.AISummary) {
		changes["aiSummary"] = domain.FieldChange{Old: strPtrVal(tc.AISummary), New: *input.AISummary}
		tc.AISummary = input.AISummary
	}
	if input.Urgency != nil && tc.Urgency != *input.Urgency {
		changes["urgency"] = domain.FieldChange{Old: string(tc.Urgency), New: string(*input.Urgency)}
		tc.Urgency = *input.Urgency
	}
	if input.Status != nil && tc.Status != *input.Status {
		changes["status"] = domain.FieldChange{Old: string(tc.Status), New: string(*input.Status)}
		tc.Status = *input.Status
	}
	if input.OverrideSummary != nil && !strPtrEq(tc.OverrideSummary, input.OverrideSummary) {
		changes["overrideSummary"] = domain.FieldChange{Old: strPtrVal(tc.OverrideSummary), New: *input.OverrideSummary}
		tc.OverrideSummary = input.OverrideSummary
		tc.OverrideSummaryBy = &actor.UserID
		changes["overrideSummaryBy"] = domain.FieldChange{Old: nil, New: actor.UserID}
	}
	if input.OverrideUrgency != nil && (tc.OverrideUrgency == nil || *tc.OverrideUrgency != *input.OverrideUrgency) {
		var old any
		if tc.OverrideUrgency != nil {
			old = string(*tc.OverrideUrgency)
		}
		changes["overrideUrgency"] = domain.FieldChange{Old: old, New: string(*input.OverrideUrgency)}
		tc.OverrideUrgency = input.OverrideUrgency
		tc.OverrideUrgencyBy = &actor.UserID
		changes["overrideUrgencyBy"] = domain.FieldChange{Old: nil, New: actor.UserID}
	}
	if input.ScheduledDate != nil && (tc.ScheduledDate == nil || !tc.ScheduledDate.Equal(*input.ScheduledDate)) {
		changes["scheduledDate"] = domain.FieldChange{Old: tc.ScheduledDate, New: *input.ScheduledDate}
		tc.ScheduledDate = input.ScheduledDate
	}
	return changes
}

func (s *CaseService) updatePatientFields(ctx context.Context, actor ActorContext, patientID string, input CaseUpdateInput) error {
	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return err
	}
	snapshot := *patient

	changes := domain.ChangeDetails{}
	if input.FirstName != nil && patient.FirstName != *input.FirstName {
		changes["firstName"] = domain.FieldChange{Old: patient.FirstName, New: *input.FirstName}
		patient.FirstName = *input.FirstName
	}
	if input.LastName != nil && patient.LastName != *input.LastName {
		changes["lastName"] = domain.FieldChange{Old: patient.LastName, New: *input.LastName}
		patient.LastName = *input.LastName
	}
	if input.DOB != nil && (patient.DOB == nil || !patient.DOB.Equal(*input.DOB)) {
		changes["DOB"] = domain.FieldChange{Old: patient.DOB, New: *input.DOB}
		patient.DOB = input.DOB
	}
	if input.ContactInfo != nil && !strPtrEq(patient.ContactInfo, input.ContactInfo) {
		changes["contactInfo"] = domain.FieldChange{Old: strPtrVal(patient.ContactInfo), New: *input.ContactInfo}
		patient.ContactInfo = input.ContactInfo
	}
	if input.InsuranceInfo != nil && !strPtrEq(patient.InsuranceInfo, input.InsuranceInfo) {
		changes["insuranceInfo"] = domain.FieldChange{Old: strPtrVal(patient.InsuranceInfo), New: *input.InsuranceInfo}
		patient.InsuranceInfo = input.InsuranceInfo
	}
	if input.LanguagePreference != nil && !strPtrEq(patient.LanguagePreference, input.LanguagePreference) {
		changes["languagePreference"] = domain.FieldChange{Old: strPtrVal(patient.LanguagePreference), New: *input.LanguagePreference}
		patient.LanguagePreference = input.LanguagePreference
	}
	if input.ReturningPatient != nil && patient.ReturningPatient != *input.ReturningPatient {
		changes["returningPatient"] = domain.FieldChange{Old: patient.ReturningPatient, New: *input.ReturningPatient}
		patient.ReturningPatient = *input.ReturningPatient
	}
	if input.Verified != nil && patient.Verified != *input.Verified {
		changes["verified"] = domain.FieldChange{Old: patient.Verified, New: *input.Verified}
		patient.Verified = *input.Verified
	}
	if len(changes) == 0 {
		return nil
	}

	if err := s.patients.Update(ctx, patient); err != nil {
		return err
	}
	draft := actor.draft("UPDATE_PATIENT", statusSuccess, resourceRef(domain.ResourceTypePatient, patient.ID))
	draft.ChangeDetails = changes
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		if restoreErr := s.patients.Update(ctx, &snapshot); restoreErr != nil {
			s.logger.Error("failed to roll back unaudited patient update",
				zap.String("patient_id", patient.ID), zap.Error(restoreErr))
		}
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, changelog.Ref{Type: domain.ResourceTypePatient, ID: patient.ID})
	}

	fields := make([]string, 0, len(changes))
	for field := range changes {
		fields = append(fields, field)
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventPatientUpdated,
		PatientID: patient.ID,
		Actor:     eventActor(actor),
		Payload:   events.PatientUpdatedPayload{FieldsModified: fields},
	})
	return nil
}

func collectPatientFields(input CaseUpdateInput) []string {
	var fields []string
	if input.FirstName != nil {
		fields = append(fields, "firstName")
	}
	if input.LastName != nil {
		fields = append(fields, "lastName")
	}
	if input.DOB != nil {
		fields = append(fields, "DOB")
	}
	if input.ContactInfo != nil {
		fields = append(fields, "contactInfo")
	}
	if input.InsuranceInfo != nil {
		fields = append(fields, "insuranceInfo")
	}
	if input.LanguagePreference != nil {
		fields = append(fields, "languagePreference")
	}
	if input.ReturningPatient != nil {
		fields = append(fields, "returningPatient")
	}
	if input.Verified != nil {
		fields = append(fields, "verified")
	}
	return fields
}

func (s *CaseService) invalidateCase(ctx context.Context, tc *domain.TriageCase) {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(ctx,
		changelog.Ref{Type: domain.ResourceTypeTriageCase, ID: tc.ID},
		changelog.Ref{Type: domain.ResourceTypePatient, ID: tc.PatientID},
	)
}

func (s *CaseService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func eventActor(actor ActorContext) events.Actor {
	return events.Actor{UserID: actor.UserID, Role: actor.Role}
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strPtrVal(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
