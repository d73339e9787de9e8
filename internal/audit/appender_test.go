package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-service/internal/domain"
)

func strPtr(s string) *string { return &s }

func testValidator(existing map[string]bool) *Validator {
	v := NewValidator()
	check := func(_ context.Context, id string) (bool, error) {
		return existing[id], nil
	}
	v.Register(domain.ResourceTypeUser, check)
	v.Register(domain.ResourceTypePatient, check)
	v.Register(domain.ResourceTypeTriageCase, check)
	return v
}

func testDraft(action string) domain.AuditDraft {
	return domain.AuditDraft{
		ActorID:   strPtr("user-1"),
		ActorType: strPtr("clinician"),
		Action:    action,
		Status:    "SUCCESS",
	}
}

func TestAppendAssignsChainFields(t *testing.T) {
	store := NewMemoryStore()
	appender := NewAppender(store, testValidator(map[string]bool{"p-1": true}), zap.NewNop())

	draft := testDraft("UPDATE_PATIENT")
	draft.ResourceType = strPtr("patient")
	draft.ResourceID = strPtr("p-1")
	draft.ChangeDetails = domain.ChangeDetails{"verified": {Old: false, New: true}}

	entry, err := appender.Append(context.Background(), draft)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if entry.ID == "" {
		t.Error("Append() should assign an ID")
	}
	if entry.Seq != 1 {
		t.Errorf("Seq = %d, want 1", entry.Seq)
	}
	if entry.PreviousHash != GenesisHash {
		t.Errorf("PreviousHash = %q, want genesis", entry.PreviousHash)
	}
	if entry.ResourceType == nil || *entry.ResourceType != domain.ResourceTypePatient {
		t.Errorf("ResourceType = %v, want PATIENT", entry.ResourceType)
	}
	if got := ComputeHash(entry); got != entry.Hash {
		t.Errorf("stored hash does not recompute: %s != %s", entry.Hash, got)
	}

	second, err := appender.Append(context.Background(), testDraft("LOGIN_SUCCESS"))
	if err != nil {
		t.Fatalf("Append() second error = %v", err)
	}
	if second.Seq != 2 {
		t.Errorf("second Seq = %d, want 2", second.Seq)
	}
	if second.PreviousHash != entry.Hash {
		t.Error("second entry does not chain onto first")
	}
}

func TestAppendCaseInsensitiveResourceType(t *testing.T) {
	store := NewMemoryStore()
	appender := NewAppender(store, testValidator(map[string]bool{"c-1": true}), zap.NewNop())

	for _, raw := range []string{"TRIAGE_CASE", "triage_case", " Triage_Case "} {
		draft := testDraft("VIEW_CASE")
		draft.ResourceType = strPtr(raw)
		draft.ResourceID = strPtr("c-1")
		if _, err := appender.Append(context.Background(), draft); err != nil {
			t.Errorf("Append(%q) error = %v", raw, err)
		}
	}
}

func TestAppendUnknownResourceType(t *testing.T) {
	store := NewMemoryStore()
	appender := NewAppender(store, testValidator(nil), zap.NewNop())

	draft := testDraft("UPDATE_THING")
	draft.ResourceType = strPtr("INVOICE")
	draft.ResourceID = strPtr("i-1")

	if _, err := appender.Append(context.Background(), draft); !errors.Is(err, ErrUnknownResourceType) {
		t.Fatalf("Append() error = %v, want ErrUnknownResourceType", err)
	}
	if tail, _ := store.Tail(context.Background()); tail != nil {
		t.Error("rejected draft must not be persisted")
	}
}

func TestAppendResourceNotFound(t *testing.T) {
	store := NewMemoryStore()
	appender := NewAppender(store, testValidator(map[string]bool{}), zap.NewNop())

	draft := testDraft("UPDATE_PATIENT")
	draft.ResourceType = strPtr("PATIENT")
	draft.ResourceID = strPtr("missing")

	if _, err := appender.Append(context.Background(), draft); !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("Append() error = %v, want ErrResourceNotFound", err)
	}
	if tail, _ := store.Tail(context.Background()); tail != nil {
		t.Error("rejected draft must not be persisted")
	}
}

func TestAppendSkipsValidationWithoutResource(t *testing.T) {
	store := NewMemoryStore()
	// No checks registered at all; a system-level draft must still land.
	appender := NewAppender(store, NewValidator(), zap.NewNop())

	entry, err := appender.Append(context.Background(), testDraft("LIST_CASES"))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if entry.ResourceType != nil || entry.ResourceID != nil {
		t.Error("system entry should carry no resource binding")
	}
}

func TestAppendTimestampsNeverRegress(t *testing.T) {
	store := NewMemoryStore()
	times := []time.Time{
		time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC),
		time.Date(2026, 1, 1, 12, 0, 5, 0, time.UTC), // clock stepped back
		time.Date(2026, 1, 1, 12, 0, 20, 0, time.UTC),
	}
	idx := 0
	appender := NewAppender(store, NewValidator(), zap.NewNop(), WithClock(func() time.Time {
		ts := times[idx]
		idx++
		return ts
	}))

	var prev time.Time
	for i := 0; i < len(times); i++ {
		entry, err := appender.Append(context.Background(), testDraft("LOGIN_SUCCESS"))
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if entry.Timestamp.Before(prev) {
			t.Fatalf("timestamp regressed at seq %d", entry.Seq)
		}
		prev = entry.Timestamp
	}
}

func TestAppendTimestampsSurviveStorageRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	// Nanosecond-grade wall clock; TIMESTAMPTZ keeps only microseconds.
	base := time.Date(2026, 1, 1, 12, 0, 0, 123456789, time.UTC)
	step := 0
	appender := NewAppender(store, NewValidator(), zap.NewNop(), WithClock(func() time.Time {
		step++
		return base.Add(time.Duration(step)*time.Second + 789*time.Nanosecond)
	}))

	for i := 0; i < 4; i++ {
		entry, err := appender.Append(context.Background(), testDraft("LOGIN_SUCCESS"))
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if entry.Timestamp.Nanosecond()%1000 != 0 {
			t.Fatalf("seq %d carries sub-microsecond precision: %v", entry.Seq, entry.Timestamp)
		}
	}

	// Reading entries back through a microsecond-precision column must not
	// change what the hashes recompute to.
	for seq := int64(1); seq <= 4; seq++ {
		store.Tamper(seq, func(e *domain.AuditEntry) {
			e.Timestamp = e.Timestamp.Truncate(time.Microsecond)
		})
	}
	if err := VerifyChain(context.Background(), store, 0, 0); err != nil {
		t.Fatalf("VerifyChain() after round-trip = %v, want intact chain", err)
	}
}

func TestConcurrentAppendsKeepChainLinear(t *testing.T) {
	store := NewMemoryStore()
	appender := NewAppender(store, NewValidator(), zap.NewNop())

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				draft := testDraft(fmt.Sprintf("ACTION_%d_%d", w, i))
				if _, err := appender.Append(context.Background(), draft); err != nil {
					t.Errorf("Append() error = %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	entries, err := store.Range(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(entries) != writers*perWriter {
		t.Fatalf("got %d entries, want %d", len(entries), writers*perWriter)
	}
	seen := map[string]bool{}
	for i := range entries {
		if entries[i].Seq != int64(i+1) {
			t.Fatalf("seq gap at index %d: %d", i, entries[i].Seq)
		}
		if seen[entries[i].PreviousHash] {
			t.Fatalf("two entries share previousHash %s", entries[i].PreviousHash)
		}
		seen[entries[i].PreviousHash] = true
		if i > 0 && entries[i].PreviousHash != entries[i-1].Hash {
			t.Fatalf("chain broken between seq %d and %d", entries[i-1].Seq, entries[i].Seq)
		}
	}
	if err := VerifyChain(context.Background(), store, 0, 0); err != nil {
		t.Fatalf("VerifyChain() after concurrent appends = %v", err)
	}
}

// conflictStore rejects the first n appends with ErrChainConflict.
type conflictStore struct {
	*MemoryStore
	rejections int
}

func (s *conflictStore) Append(ctx context.Context, entry *domain.AuditEntry) error {
	if s.rejections > 0 {
		s.rejections--
		return ErrChainConflict
	}
	return s.MemoryStore.Append(ctx, entry)
}

func TestAppendRetriesChainConflict(t *testing.T) {
	store := &conflictStore{MemoryStore: NewMemoryStore(), rejections: 2}
	appender := NewAppender(store, NewValidator(), zap.NewNop(), WithMaxAttempts(3))

	if _, err := appender.Append(context.Background(), testDraft("LOGIN_SUCCESS")); err != nil {
		t.Fatalf("Append() should survive transient conflicts, got %v", err)
	}
}

func TestAppendConflictExhaustionSurfacesStorageUnavailable(t *testing.T) {
	store := &conflictStore{MemoryStore: NewMemoryStore(), rejections: 10}
	appender := NewAppender(store, NewValidator(), zap.NewNop(), WithMaxAttempts(3))

	_, err := appender.Append(context.Background(), testDraft("LOGIN_SUCCESS"))
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("Append() error = %v, want ErrStorageUnavailable", err)
	}
	if tail, _ := store.Tail(context.Background()); tail != nil {
		t.Error("no entry may be persisted after retry exhaustion")
	}
}
