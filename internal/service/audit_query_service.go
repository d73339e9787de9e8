package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-service/internal/audit"
	"github.com/spec-kit/triage-service/internal/domain"
)

// AuditQueryService exposes read and verification access to the ledger.
// Reads of the log are themselves recorded best-effort under the
// querying admin's identity.
type AuditQueryService struct {
	store    audit.Store
	recorder AuditRecorder
	logger   *zap.Logger
}

// NewAuditQueryService constructs the service.
func NewAuditQueryService(store audit.Store, recorder AuditRecorder, logger *zap.Logger) *AuditQueryService {
	return &AuditQueryService{store: store, recorder: recorder, logger: logger}
}

// ChainVerification is the outcome of one integrity walk. Broken is set
// when the chain failed at some entry; a broken chain is an operator
// finding, not a request error.
type ChainVerification struct {
	Valid  bool
	Broken *audit.BrokenLinkError
}

// Recent returns the newest entries, newest first.
func (s *AuditQueryService) Recent(ctx context.Context, actor ActorContext, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	entries, err := s.store.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	s.recordQuery(ctx, actor, domain.ChangeDetails{
		"returned_count": {Old: nil, New: len(entries)},
	})
	return entries, nil
}

// ByResource returns every entry touching one resource, oldest first.
func (s *AuditQueryService) ByResource(ctx context.Context, actor ActorContext, resourceType domain.ResourceType, resourceID string) ([]domain.AuditEntry, error) {
	entries, err := s.store.ByResource(ctx, resourceType, resourceID, audit.TimeRange{})
	if err != nil {
		return nil, err
	}
	s.recordQuery(ctx, actor, domain.ChangeDetails{
		"resourceType":   {Old: nil, New: string(resourceType)},
		"resourceID":     {Old: nil, New: resourceID},
		"returned_count": {Old: nil, New: len(entries)},
	})
	return entries, nil
}

// ByActor returns every entry recorded for one actor, oldest first.
func (s *AuditQueryService) ByActor(ctx context.Context, actor ActorContext, actorID string) ([]domain.AuditEntry, error) {
	entries, err := s.store.ByActor(ctx, actorID, audit.TimeRange{})
	if err != nil {
		return nil, err
	}
	s.recordQuery(ctx, actor, domain.ChangeDetails{
		"actorID":        {Old: nil, New: actorID},
		"returned_count": {Old: nil, New: len(entries)},
	})
	return entries, nil
}

// ByTimeRange returns entries whose timestamp falls within the range.
func (s *AuditQueryService) ByTimeRange(ctx context.Context, actor ActorContext, from, to *time.Time) ([]domain.AuditEntry, error) {
	entries, err := s.store.ByTimeRange(ctx, audit.TimeRange{From: from, To: to})
	if err != nil {
		return nil, err
	}
	s.recordQuery(ctx, actor, domain.ChangeDetails{
		"returned_count": {Old: nil, New: len(entries)},
	})
	return entries, nil
}

// Verify walks the chain over the given seq range (zero bounds cover the
// whole chain) and reports the first broken link. The verification run is
// itself recorded, including the outcome.
func (s *AuditQueryService) Verify(ctx context.Context, actor ActorContext, fromSeq, toSeq int64) (*ChainVerification, error) {
	result := &ChainVerification{Valid: true}
	if err := audit.VerifyChain(ctx, s.store, fromSeq, toSeq); err != nil {
		var broken *audit.BrokenLinkError
		if !errors.As(err, &broken) {
			return nil, err
		}
		result.Valid = false
		result.Broken = broken
	}

	status := statusSuccess
	if !result.Valid {
		status = statusFail
	}
	draft := actor.draft("VERIFY_AUDIT_CHAIN", status, nil)
	draft.ChangeDetails = domain.ChangeDetails{
		"valid": {Old: nil, New: result.Valid},
	}
	if result.Broken != nil {
		draft.ChangeDetails["brokenSeq"] = domain.FieldChange{Old: nil, New: result.Broken.Seq}
		draft.ChangeDetails["brokenEntryID"] = domain.FieldChange{Old: nil, New: result.Broken.EntryID}
	}
	if _, appendErr := s.recorder.Append(ctx, draft); appendErr != nil {
		s.logger.Warn("failed to record chain verification", zap.Error(appendErr))
	}
	return result, nil
}

func (s *AuditQueryService) recordQuery(ctx context.Context, actor ActorContext, details domain.ChangeDetails) {
	draft := actor.draft("VIEW_AUDIT_LOG", statusSuccess, nil)
	draft.ChangeDetails = details
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		s.logger.Warn("failed to audit ledger query", zap.Error(err))
	}
}
