package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/triage-service/internal/domain"
)

// MemoryStore keeps the chain in process memory. It backs tests and lets
// the service run without a Postgres DSN the same way the rest of the
// persistence layer degrades.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append persists the entry if its PreviousHash still matches the tail.
func (s *MemoryStore) Append(_ context.Context, entry *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tailHash := GenesisHash
	var nextSeq int64 = 1
	if n := len(s.entries); n > 0 {
		tailHash = s.entries[n-1].Hash
		nextSeq = s.entries[n-1].Seq + 1
	}
	if entry.PreviousHash != tailHash || entry.Seq != nextSeq {
		return ErrChainConflict
	}
	s.entries = append(s.entries, *entry)
	return nil
}

// Tail returns a copy of the latest entry, or nil when empty.
func (s *MemoryStore) Tail(_ context.Context) (*domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	tail := s.entries[len(s.entries)-1]
	return &tail, nil
}

// Range returns entries with fromSeq <= Seq <= toSeq ascending.
func (s *MemoryStore) Range(_ context.Context, fromSeq, toSeq int64) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.AuditEntry
	for _, entry := range s.entries {
		if entry.Seq < fromSeq {
			continue
		}
		if toSeq > 0 && entry.Seq > toSeq {
			break
		}
		result = append(result, entry)
	}
	return result, nil
}

// ByResource filters entries for one resource.
func (s *MemoryStore) ByResource(_ context.Context, rt domain.ResourceType, resourceID string, tr TimeRange) ([]domain.AuditEntry, error) {
	return s.filter(func(e domain.AuditEntry) bool {
		return e.ResourceType != nil && *e.ResourceType == rt &&
			e.ResourceID != nil && *e.ResourceID == resourceID &&
			tr.Contains(e.Timestamp)
	}), nil
}

// ByActor filters entries recorded for one actor.
func (s *MemoryStore) ByActor(_ context.Context, actorID string, tr TimeRange) ([]domain.AuditEntry, error) {
	return s.filter(func(e domain.AuditEntry) bool {
		return e.ActorID != nil && *e.ActorID == actorID && tr.Contains(e.Timestamp)
	}), nil
}

// ByTimeRange returns all entries inside the range.
func (s *MemoryStore) ByTimeRange(_ context.Context, tr TimeRange) ([]domain.AuditEntry, error) {
	return s.filter(func(e domain.AuditEntry) bool {
		return tr.Contains(e.Timestamp)
	}), nil
}

// Recent returns the newest entries first, at most limit.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	result := make([]domain.AuditEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		result = append(result, s.entries[i])
	}
	return result, nil
}

func (s *MemoryStore) filter(keep func(domain.AuditEntry) bool) []domain.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.AuditEntry
	for _, entry := range s.entries {
		if keep(entry) {
			result = append(result, entry)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Seq < result[j].Seq
		}
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result
}

// Tamper overwrites a stored entry in place. Test hook only: it simulates
// the corruption VerifyChain must detect.
func (s *MemoryStore) Tamper(seq int64, mutate func(*domain.AuditEntry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].Seq == seq {
			mutate(&s.entries[i])
			return
		}
	}
}
