package events

import (
	"time"

	"github.com/spec-kit/triage-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCaseCreated    EventType = "case_created"
	EventCaseUpdated    EventType = "case_updated"
	EventCaseReviewed   EventType = "case_reviewed"
	EventCaseDeleted    EventType = "case_deleted"
	EventPatientUpdated EventType = "patient_updated"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID string          `json:"user_id"`
	Role   domain.UserRole `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	CaseID    string      `json:"case_id,omitempty"`
	PatientID string      `json:"patient_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CaseCreatedPayload payload.
type CaseCreatedPayload struct {
	PatientID string             `json:"patient_id"`
	Urgency   domain.CaseUrgency `json:"urgency"`
}

// CaseUpdatedPayload payload.
type CaseUpdatedPayload struct {
	FieldsModified []string `json:"fields_modified"`
}

// CaseReviewedPayload payload.
type CaseReviewedPayload struct {
	ReviewReason  string     `json:"review_reason"`
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`
}

// PatientUpdatedPayload payload.
type PatientUpdatedPayload struct {
	FieldsModified []string `json:"fields_modified"`
}
