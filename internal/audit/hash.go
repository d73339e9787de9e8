package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/spec-kit/triage-service/internal/domain"
)

// GenesisHash is the previousHash of the first chain entry. The value and
// the canonical serialization below are part of the ledger contract: change
// either and every stored hash stops verifying.
const GenesisHash = "GENESIS"

// ComputeHash digests every field of the entry except Hash itself:
// sorted-key JSON, timestamps rendered RFC3339Nano in UTC, SHA-256 hex.
// Entry timestamps carry at most microsecond precision, matching what a
// TIMESTAMPTZ column preserves, so a hash recomputed after a database
// round-trip stays identical.
func ComputeHash(entry *domain.AuditEntry) string {
	payload := map[string]any{
		"id":            entry.ID,
		"seq":           entry.Seq,
		"actorId":       entry.ActorID,
		"actorType":     entry.ActorType,
		"resourceType":  entry.ResourceType,
		"resourceId":    entry.ResourceID,
		"action":        entry.Action,
		"status":        entry.Status,
		"timestamp":     entry.Timestamp.UTC().Format(time.RFC3339Nano),
		"changeDetails": entry.ChangeDetails,
		"ipAddress":     entry.IPAddress,
		"previousHash":  entry.PreviousHash,
	}
	// encoding/json writes map keys in sorted order, which makes the
	// serialization canonical.
	raw, err := json.Marshal(payload)
	if err != nil {
		// Only unreachable values (channels, funcs) fail here; entry fields
		// are all plain data.
		panic(err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
