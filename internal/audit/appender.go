package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-service/internal/domain"
)

const defaultMaxAttempts = 3

// Appender validates drafts and chains them onto the ledger. Appends are
// serialized per Appender so at most one writer computes against the tail
// at a time; the store's own conflict check covers other writers of the
// same store.
type Appender struct {
	store     Store
	validator *Validator
	logger    *zap.Logger

	mu          sync.Mutex
	maxAttempts int
	now         func() time.Time
}

// AppenderOption tunes appender construction.
type AppenderOption func(*Appender)

// WithMaxAttempts bounds chain-conflict retries.
func WithMaxAttempts(n int) AppenderOption {
	return func(a *Appender) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) AppenderOption {
	return func(a *Appender) { a.now = now }
}

// NewAppender builds an appender over the given store and validator.
func NewAppender(store Store, validator *Validator, logger *zap.Logger, opts ...AppenderOption) *Appender {
	a := &Appender{
		store:       store,
		validator:   validator,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Append validates the draft, assigns chain position, timestamp and hashes,
// and persists the finished entry. A draft that fails validation is never
// persisted. Chain conflicts are retried with a freshly read tail up to the
// configured bound before surfacing ErrStorageUnavailable.
func (a *Appender) Append(ctx context.Context, draft domain.AuditDraft) (*domain.AuditEntry, error) {
	rt, err := a.validator.Validate(ctx, draft)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		tail, err := a.store.Tail(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: read tail: %v", ErrStorageUnavailable, err)
		}

		entry := a.buildEntry(draft, rt, tail)
		err = a.store.Append(ctx, entry)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, ErrChainConflict) {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		a.logger.Warn("audit chain conflict, retrying",
			zap.Int("attempt", attempt),
			zap.String("action", draft.Action))
	}
	return nil, fmt.Errorf("%w: chain conflict persisted after %d attempts", ErrStorageUnavailable, a.maxAttempts)
}

func (a *Appender) buildEntry(draft domain.AuditDraft, rt *domain.ResourceType, tail *domain.AuditEntry) *domain.AuditEntry {
	prevHash := GenesisHash
	var seq int64 = 1
	ts := a.now().UTC()
	if tail != nil {
		prevHash = tail.Hash
		seq = tail.Seq + 1
		// Timestamps are monotonically non-decreasing across the chain even
		// if the wall clock steps backwards.
		if ts.Before(tail.Timestamp) {
			ts = tail.Timestamp
		}
	}
	// TIMESTAMPTZ keeps microseconds; hashing finer precision than storage
	// round-trips would break recomputation on read-back.
	ts = ts.Truncate(time.Microsecond)

	entry := &domain.AuditEntry{
		ID:            uuid.NewString(),
		Seq:           seq,
		ActorID:       draft.ActorID,
		ActorType:     draft.ActorType,
		ResourceType:  rt,
		Action:        draft.Action,
		Status:        draft.Status,
		Timestamp:     ts,
		ChangeDetails: draft.ChangeDetails,
		IPAddress:     draft.IPAddress,
		PreviousHash:  prevHash,
	}
	if rt != nil {
		entry.ResourceID = draft.ResourceID
	}
	entry.Hash = ComputeHash(entry)
	return entry
}
