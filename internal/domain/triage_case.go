package domain

import "time"

// CaseStatus enumerates the review lifecycle for a triage case.
type CaseStatus string

const (
	CaseStatusNew      CaseStatus = "new"
	CaseStatusReviewed CaseStatus = "reviewed"
	CaseStatusResolved CaseStatus = "resolved"
)

// CaseUrgency is the AI-inferred (or clinician-overridden) urgency level.
type CaseUrgency string

const (
	CaseUrgencyLow      CaseUrgency = "low"
	CaseUrgencyMedium   CaseUrgency = "medium"
	CaseUrgencyHigh     CaseUrgency = "high"
	CaseUrgencyCritical CaseUrgency = "critical"
)

// TriageCase is the aggregate for one patient intake awaiting review.
// AISummary and Urgency hold inference output written by an external
// collaborator; OverrideSummary/OverrideUrgency carry clinician corrections
// with attribution.
type TriageCase struct {
	ID                string
	PatientID         string
	Status            CaseStatus
	Symptoms          *string
	AISummary         *string
	Urgency           CaseUrgency
	OverrideSummary   *string
	OverrideSummaryBy *string
	OverrideUrgency   *CaseUrgency
	OverrideUrgencyBy *string
	ReviewReason      *string
	ReviewedBy        *string
	ReviewTimestamp   *time.Time
	ScheduledDate     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
