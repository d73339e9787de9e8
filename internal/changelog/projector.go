package changelog

import (
	"context"
	"sort"

	"github.com/spec-kit/triage-service/internal/audit"
	"github.com/spec-kit/triage-service/internal/domain"
)

// Ref identifies one entity whose changelog should be projected.
type Ref struct {
	Type domain.ResourceType
	ID   string
}

// EmailResolver maps an actor ID to a display email. Unresolvable actors
// yield an empty string; system entries have no actor at all.
type EmailResolver func(ctx context.Context, actorID string) string

// Projector derives field-level change timelines from the audit store. It
// holds no state of its own; every call recomputes from the ledger.
type Projector struct {
	store   audit.Store
	resolve EmailResolver
}

// NewProjector builds a projector over the given store.
func NewProjector(store audit.Store, resolve EmailResolver) *Projector {
	if resolve == nil {
		resolve = func(context.Context, string) string { return "" }
	}
	return &Projector{store: store, resolve: resolve}
}

// Project expands the ChangeDetails of every audit entry touching the given
// refs into ChangeRecords, merges across refs, and returns them newest
// first (ChangedAt descending, entry append order descending on ties).
// Filters are applied after projection and never re-query the store.
func (p *Projector) Project(ctx context.Context, refs []Ref, filters ...Filter) ([]domain.ChangeRecord, error) {
	var records []domain.ChangeRecord
	emails := map[string]string{}

	for _, ref := range refs {
		entries, err := p.store.ByResource(ctx, ref.Type, ref.ID, audit.TimeRange{})
		if err != nil {
			return nil, err
		}
		for i := range entries {
			records = append(records, p.expand(ctx, &entries[i], ref, emails)...)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].ChangedAt.Equal(records[j].ChangedAt) {
			return records[i].EntrySeq > records[j].EntrySeq
		}
		return records[i].ChangedAt.After(records[j].ChangedAt)
	})

	return Apply(records, filters...), nil
}

func (p *Projector) expand(ctx context.Context, entry *domain.AuditEntry, ref Ref, emails map[string]string) []domain.ChangeRecord {
	if len(entry.ChangeDetails) == 0 {
		return nil
	}

	email := ""
	if entry.ActorID != nil {
		var ok bool
		if email, ok = emails[*entry.ActorID]; !ok {
			email = p.resolve(ctx, *entry.ActorID)
			emails[*entry.ActorID] = email
		}
	}

	records := make([]domain.ChangeRecord, 0, len(entry.ChangeDetails))
	for field, change := range entry.ChangeDetails {
		records = append(records, domain.ChangeRecord{
			EntryID:        entry.ID,
			EntrySeq:       entry.Seq,
			EntityType:     ref.Type,
			EntityID:       ref.ID,
			FieldName:      field,
			OldValue:       change.Old,
			NewValue:       change.New,
			ChangedAt:      entry.Timestamp,
			ChangedByEmail: email,
			Source:         entry.Action,
		})
	}
	return records
}
