package audit

import (
	"context"
	"fmt"

	"github.com/spec-kit/triage-service/internal/domain"
)

// ExistenceCheck reports whether the resource with the given ID currently
// exists in its authoritative store.
type ExistenceCheck func(ctx context.Context, id string) (bool, error)

// Validator confirms a draft's resource reference before it is chained.
// Dispatch is over the closed ResourceType set; each type needs an
// explicitly registered check.
type Validator struct {
	checks map[domain.ResourceType]ExistenceCheck
}

// NewValidator builds an empty validator.
func NewValidator() *Validator {
	return &Validator{checks: make(map[domain.ResourceType]ExistenceCheck)}
}

// Register installs the existence check for one resource type.
func (v *Validator) Register(rt domain.ResourceType, check ExistenceCheck) {
	v.checks[rt] = check
}

// Validate checks the draft's resource reference. Drafts without both a
// resource type and ID are system-level entries and pass unvalidated.
// The existence check races benignly with concurrent deletes: passing just
// before a delete is acceptable.
func (v *Validator) Validate(ctx context.Context, draft domain.AuditDraft) (*domain.ResourceType, error) {
	if draft.ResourceType == nil || *draft.ResourceType == "" || draft.ResourceID == nil || *draft.ResourceID == "" {
		return nil, nil
	}

	rt, err := domain.ParseResourceType(*draft.ResourceType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResourceType, *draft.ResourceType)
	}

	check, ok := v.checks[rt]
	if !ok {
		return nil, fmt.Errorf("%w: no existence check for %s", ErrUnknownResourceType, rt)
	}

	exists, err := check(ctx, *draft.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: existence check for %s/%s: %v", ErrStorageUnavailable, rt, *draft.ResourceID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s/%s", ErrResourceNotFound, rt, *draft.ResourceID)
	}
	return &rt, nil
}
