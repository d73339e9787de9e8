package dto

import (
	"time"

	"github.com/spec-kit/triage-service/internal/domain"
)

// CreateCaseRequest payload.
type CreateCaseRequest struct {
	PatientID string             `json:"patient_id"`
	Symptoms  *string            `json:"symptoms"`
	AISummary *string            `json:"ai_summary"`
	Urgency   domain.CaseUrgency `json:"urgency"`
}

// UpdateCaseRequest carries a combined case/patient edit. Absent fields are
// untouched.
type UpdateCaseRequest struct {
	Symptoms        *string             `json:"symptoms"`
	AISummary       *string             `json:"ai_summary"`
	Urgency         *domain.CaseUrgency `json:"urgency"`
	OverrideSummary *string             `json:"override_summary"`
	OverrideUrgency *domain.CaseUrgency `json:"override_urgency"`
	ScheduledDate   *time.Time          `json:"scheduled_date"`
	Status          *domain.CaseStatus  `json:"status"`

	FirstName          *string    `json:"first_name"`
	LastName           *string    `json:"last_name"`
	DOB                *time.Time `json:"dob"`
	ContactInfo        *string    `json:"contact_info"`
	InsuranceInfo      *string    `json:"insurance_info"`
	LanguagePreference *string    `json:"language_preference"`
	ReturningPatient   *bool      `json:"returning_patient"`
	Verified           *bool      `json:"verified"`
}

// ReviewCaseRequest payload.
type ReviewCaseRequest struct {
	Reason        string     `json:"reason"`
	ScheduledDate *time.Time `json:"scheduled_date"`
}

// CaseStatsResponse summarizes workflow-state counts.
type CaseStatsResponse struct {
	New      int64 `json:"new"`
	Reviewed int64 `json:"reviewed"`
	Resolved int64 `json:"resolved"`
}

// CaseResponse represents a triage case.
type CaseResponse struct {
	ID                string              `json:"id"`
	PatientID         string              `json:"patient_id"`
	Status            domain.CaseStatus   `json:"status"`
	Symptoms          *string             `json:"symptoms"`
	AISummary         *string             `json:"ai_summary"`
	Urgency           domain.CaseUrgency  `json:"urgency"`
	OverrideSummary   *string             `json:"override_summary"`
	OverrideSummaryBy *string             `json:"override_summary_by"`
	OverrideUrgency   *domain.CaseUrgency `json:"override_urgency"`
	OverrideUrgencyBy *string             `json:"override_urgency_by"`
	ReviewReason      *string             `json:"review_reason"`
	ReviewedBy        *string             `json:"reviewed_by"`
	ReviewTimestamp   *time.Time          `json:"review_timestamp"`
	ScheduledDate     *time.Time          `json:"scheduled_date"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// CaseFromDomain maps a domain triage case.
func CaseFromDomain(tc *domain.TriageCase) CaseResponse {
	return CaseResponse{
		ID:                tc.ID,
		PatientID:         tc.PatientID,
		Status:            tc.Status,
		Symptoms:          tc.Symptoms,
		AISummary:         tc.AISummary,
		Urgency:           tc.Urgency,
		OverrideSummary:   tc.OverrideSummary,
		OverrideSummaryBy: tc.OverrideSummaryBy,
		OverrideUrgency:   tc.OverrideUrgency,
		OverrideUrgencyBy: tc.OverrideUrgencyBy,
		ReviewReason:      tc.ReviewReason,
		ReviewedBy:        tc.ReviewedBy,
		ReviewTimestamp:   tc.ReviewTimestamp,
		ScheduledDate:     tc.ScheduledDate,
		CreatedAt:         tc.CreatedAt,
		UpdatedAt:         tc.UpdatedAt,
	}
}
