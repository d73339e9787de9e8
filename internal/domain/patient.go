package domain

import "time"

// Patient holds intake demographics collected before triage.
type Patient struct {
	ID                 string
	FirstName          string
	LastName           string
	DOB                *time.Time
	ContactInfo        *string
	InsuranceInfo      *string
	ReturningPatient   bool
	LanguagePreference *string
	Verified           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
