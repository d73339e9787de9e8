package domain

import "time"

// UserRole determines what a clinic user may do.
type UserRole string

const (
	UserRoleAdmin     UserRole = "admin"
	UserRoleClinician UserRole = "clinician"
)

// UserStatus represents lifecycle states for a clinic user account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is the domain model for clinic staff who review triage cases.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
