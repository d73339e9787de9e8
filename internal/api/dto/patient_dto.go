package dto

import (
	"time"

	"github.com/spec-kit/triage-service/internal/domain"
)

// CreatePatientRequest payload.
type CreatePatientRequest struct {
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	DOB                *time.Time `json:"dob"`
	ContactInfo        *string    `json:"contact_info"`
	InsuranceInfo      *string    `json:"insurance_info"`
	LanguagePreference *string    `json:"language_preference"`
	ReturningPatient   bool       `json:"returning_patient"`
}

// PatientResponse represents a patient record.
type PatientResponse struct {
	ID                 string     `json:"id"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	DOB                *time.Time `json:"dob"`
	ContactInfo        *string    `json:"contact_info"`
	InsuranceInfo      *string    `json:"insurance_info"`
	LanguagePreference *string    `json:"language_preference"`
	ReturningPatient   bool       `json:"returning_patient"`
	Verified           bool       `json:"verified"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// PatientFromDomain maps a domain patient.
func PatientFromDomain(patient *domain.Patient) PatientResponse {
	return PatientResponse{
		ID:                 patient.ID,
		FirstName:          patient.FirstName,
		LastName:           patient.LastName,
		DOB:                patient.DOB,
		ContactInfo:        patient.ContactInfo,
		InsuranceInfo:      patient.InsuranceInfo,
		LanguagePreference: patient.LanguagePreference,
		ReturningPatient:   patient.ReturningPatient,
		Verified:           patient.Verified,
		CreatedAt:          patient.CreatedAt,
		UpdatedAt:          patient.UpdatedAt,
	}
}
