package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/triage-service/internal/domain"
)

// ChangeRecordResponse is one row of a rendered change timeline. OldDisplay
// and NewDisplay carry the human-readable rendering; raw values stay
// available for clients that format themselves.
type ChangeRecordResponse struct {
	EntryID        string              `json:"entry_id"`
	EntityType     domain.ResourceType `json:"entity_type"`
	EntityID       string              `json:"entity_id"`
	FieldName      string              `json:"field_name"`
	OldValue       any                 `json:"old_value"`
	NewValue       any                 `json:"new_value"`
	OldDisplay     string              `json:"old_display"`
	NewDisplay     string              `json:"new_display"`
	ChangedAt      time.Time           `json:"changed_at"`
	ChangedByEmail string              `json:"changed_by_email"`
	Source         string              `json:"source"`
}

// ChangelogResponse wraps a timeline.
type ChangelogResponse struct {
	Records []ChangeRecordResponse `json:"records"`
	Count   int                    `json:"count"`
}

// ChangelogFromDomain maps and formats projected records.
func ChangelogFromDomain(records []domain.ChangeRecord) ChangelogResponse {
	out := make([]ChangeRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, ChangeRecordResponse{
			EntryID:        r.EntryID,
			EntityType:     r.EntityType,
			EntityID:       r.EntityID,
			FieldName:      r.FieldName,
			OldValue:       r.OldValue,
			NewValue:       r.NewValue,
			OldDisplay:     FormatFieldValue(r.FieldName, r.OldValue),
			NewDisplay:     FormatFieldValue(r.FieldName, r.NewValue),
			ChangedAt:      r.ChangedAt,
			ChangedByEmail: r.ChangedByEmail,
			Source:         r.Source,
		})
	}
	return ChangelogResponse{Records: out, Count: len(out)}
}

var urgencyLabels = map[string]string{
	"low":      "Low",
	"medium":   "Medium",
	"high":     "High",
	"critical": "Critical",
}

var statusLabels = map[string]string{
	"new":      "New",
	"reviewed": "Reviewed",
	"resolved": "Resolved",
}

// FormatFieldValue renders one raw changelog value for display. Pure; the
// projector itself never formats.
func FormatFieldValue(fieldName string, raw any) string {
	if raw == nil {
		return "(empty)"
	}
	switch v := raw.(type) {
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	case time.Time:
		return formatFieldTime(fieldName, v)
	case string:
		switch fieldName {
		case "urgency", "overrideUrgency":
			if label, ok := urgencyLabels[strings.ToLower(v)]; ok {
				return label
			}
		case "status":
			if label, ok := statusLabels[strings.ToLower(v)]; ok {
				return label
			}
		case "DOB", "scheduledDate", "reviewTimestamp":
			// Values round-tripped through JSON arrive as strings.
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				return formatFieldTime(fieldName, ts)
			}
		}
		if v == "" {
			return "(empty)"
		}
		return v
	case float64:
		// JSON numbers decode as float64; render integers without a
		// trailing fraction.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatFieldTime(fieldName string, ts time.Time) string {
	switch fieldName {
	case "DOB", "scheduledDate":
		return ts.Format("Jan 2, 2006")
	default:
		return ts.Format("Jan 2, 2006 15:04 MST")
	}
}
