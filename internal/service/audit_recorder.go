package service

import (
	"context"

	"github.com/spec-kit/triage-service/internal/domain"
)

const (
	statusSuccess = "SUCCESS"
	statusFail    = "FAIL"
)

// AuditRecorder is the appender surface services depend on. Satisfied by
// *audit.Appender; tests substitute fakes.
type AuditRecorder interface {
	Append(ctx context.Context, draft domain.AuditDraft) (*domain.AuditEntry, error)
}

// RequestMeta carries request-scoped metadata captured by middleware.
type RequestMeta struct {
	IP *string
}

// ActorContext identifies who is performing an audited action.
type ActorContext struct {
	UserID string
	Role   domain.UserRole
	IP     *string
}

type resource struct {
	Type domain.ResourceType
	ID   string
}

func resourceRef(rt domain.ResourceType, id string) *resource {
	return &resource{Type: rt, ID: id}
}

// draft builds an AuditDraft for this actor. A nil ref produces a
// system-level entry with no resource binding.
func (a ActorContext) draft(action, status string, ref *resource) domain.AuditDraft {
	actorID := a.UserID
	actorType := string(a.Role)
	d := domain.AuditDraft{
		ActorID:   &actorID,
		ActorType: &actorType,
		Action:    action,
		Status:    status,
		IPAddress: a.IP,
	}
	if ref != nil {
		rt := string(ref.Type)
		id := ref.ID
		d.ResourceType = &rt
		d.ResourceID = &id
	}
	return d
}
