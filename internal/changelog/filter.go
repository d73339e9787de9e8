package changelog

import (
	"strings"

	"github.com/spec-kit/triage-service/internal/domain"
)

// Filter decides whether a projected record stays in the timeline. Filters
// are pure: they see only the record, never the store.
type Filter func(domain.ChangeRecord) bool

// ByActorEmail keeps records changed by the given email (case-insensitive).
func ByActorEmail(email string) Filter {
	return func(r domain.ChangeRecord) bool {
		return strings.EqualFold(r.ChangedByEmail, email)
	}
}

// ByField keeps records for one field name.
func ByField(name string) Filter {
	return func(r domain.ChangeRecord) bool {
		return r.FieldName == name
	}
}

// Apply runs every filter over the records, keeping records that pass all.
func Apply(records []domain.ChangeRecord, filters ...Filter) []domain.ChangeRecord {
	if len(filters) == 0 {
		return records
	}
	kept := make([]domain.ChangeRecord, 0, len(records))
outer:
	for _, record := range records {
		for _, filter := range filters {
			if !filter(record) {
				continue outer
			}
		}
		kept = append(kept, record)
	}
	return kept
}
