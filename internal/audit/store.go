package audit

import (
	"context"
	"time"

	"github.com/spec-kit/triage-service/internal/domain"
)

// TimeRange bounds a query; nil endpoints are unbounded.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether ts falls inside the range.
func (r TimeRange) Contains(ts time.Time) bool {
	if r.From != nil && ts.Before(*r.From) {
		return false
	}
	if r.To != nil && ts.After(*r.To) {
		return false
	}
	return true
}

// Store is the append-only persistence for audit entries. Appended entries
// are never updated or removed; reads never block appends and must never
// observe a partially written entry.
type Store interface {
	// Append persists one validated, hashed entry. It returns
	// ErrChainConflict when the chain tail no longer matches the entry's
	// PreviousHash (a concurrent append won).
	Append(ctx context.Context, entry *domain.AuditEntry) error

	// Tail returns the latest chain entry, or nil when the store is empty.
	Tail(ctx context.Context) (*domain.AuditEntry, error)

	// Range returns entries with fromSeq <= Seq <= toSeq ascending.
	// toSeq <= 0 means "through the tail".
	Range(ctx context.Context, fromSeq, toSeq int64) ([]domain.AuditEntry, error)

	// ByResource returns entries for one resource ordered by timestamp
	// ascending (seq ascending on ties).
	ByResource(ctx context.Context, rt domain.ResourceType, resourceID string, tr TimeRange) ([]domain.AuditEntry, error)

	// ByActor returns entries recorded for one actor, same ordering.
	ByActor(ctx context.Context, actorID string, tr TimeRange) ([]domain.AuditEntry, error)

	// ByTimeRange returns all entries inside the range, same ordering.
	ByTimeRange(ctx context.Context, tr TimeRange) ([]domain.AuditEntry, error)

	// Recent returns the newest entries first, at most limit.
	Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}
