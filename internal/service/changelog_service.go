package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-service/internal/changelog"
	"github.com/spec-kit/triage-service/internal/domain"
	"github.com/spec-kit/triage-service/internal/repository"
)

const (
	changelogCachePrefix = "changelog:"
	changelogIndexPrefix = "changelog-index:"
)

// ChangelogService serves derived change timelines. Unfiltered projections
// are cached in Redis for a short TTL; filters run on the cached result so
// a filter change never re-queries the ledger. A missing or unreachable
// Redis degrades to projecting on every call.
type ChangelogService struct {
	projector *changelog.Projector
	cases     repository.TriageCaseRepository
	redis     *redis.Client
	ttl       time.Duration
	logger    *zap.Logger
}

// NewChangelogService constructs the service. redisClient may be nil.
func NewChangelogService(projector *changelog.Projector, cases repository.TriageCaseRepository, redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *ChangelogService {
	return &ChangelogService{projector: projector, cases: cases, redis: redisClient, ttl: ttl, logger: logger}
}

// ChangelogQuery narrows a projected timeline.
type ChangelogQuery struct {
	ActorEmail string
	FieldName  string
}

func (q ChangelogQuery) filters() []changelog.Filter {
	var filters []changelog.Filter
	if q.ActorEmail != "" {
		filters = append(filters, changelog.ByActorEmail(q.ActorEmail))
	}
	if q.FieldName != "" {
		filters = append(filters, changelog.ByField(q.FieldName))
	}
	return filters
}

// ForCase returns the merged timeline for a case and its patient, so edits
// made through the combined intake form read as one history.
func (s *ChangelogService) ForCase(ctx context.Context, caseID string, query ChangelogQuery) ([]domain.ChangeRecord, error) {
	tc, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	refs := []changelog.Ref{
		{Type: domain.ResourceTypeTriageCase, ID: tc.ID},
		{Type: domain.ResourceTypePatient, ID: tc.PatientID},
	}
	return s.project(ctx, refs, query)
}

// ForPatient returns the timeline for one patient record.
func (s *ChangelogService) ForPatient(ctx context.Context, patientID string, query ChangelogQuery) ([]domain.ChangeRecord, error) {
	refs := []changelog.Ref{{Type: domain.ResourceTypePatient, ID: patientID}}
	return s.project(ctx, refs, query)
}

// Invalidate drops every cached projection touching each ref, including
// merged case+patient timelines. Safe to call with a nil client; cache
// errors are logged and swallowed because the entries expire on TTL anyway.
func (s *ChangelogService) Invalidate(ctx context.Context, refs ...changelog.Ref) {
	if s.redis == nil {
		return
	}
	for _, ref := range refs {
		index := indexKey(ref)
		keys, err := s.redis.SMembers(ctx, index).Result()
		if err != nil {
			s.logger.Warn("failed to read changelog cache index", zap.String("key", index), zap.Error(err))
			continue
		}
		keys = append(keys, index)
		if err := s.redis.Del(ctx, keys...).Err(); err != nil {
			s.logger.Warn("failed to invalidate changelog cache", zap.Strings("keys", keys), zap.Error(err))
		}
	}
}

func (s *ChangelogService) project(ctx context.Context, refs []changelog.Ref, query ChangelogQuery) ([]domain.ChangeRecord, error) {
	if cached, ok := s.fromCache(ctx, refs); ok {
		return changelog.Apply(cached, query.filters()...), nil
	}

	records, err := s.projector.Project(ctx, refs)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, refs, records)
	return changelog.Apply(records, query.filters()...), nil
}

func (s *ChangelogService) fromCache(ctx context.Context, refs []changelog.Ref) ([]domain.ChangeRecord, bool) {
	if s.redis == nil {
		return nil, false
	}
	raw, err := s.redis.Get(ctx, cacheKey(refs)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("changelog cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var records []domain.ChangeRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		s.logger.Warn("discarding malformed changelog cache entry", zap.Error(err))
		return nil, false
	}
	return records, true
}

func (s *ChangelogService) toCache(ctx context.Context, refs []changelog.Ref, records []domain.ChangeRecord) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return
	}
	key := cacheKey(refs)
	pipe := s.redis.Pipeline()
	pipe.Set(ctx, key, raw, s.ttl)
	for _, ref := range refs {
		// Index membership outlives the entry slightly so invalidation
		// still finds keys that already expired; Del tolerates that.
		index := indexKey(ref)
		pipe.SAdd(ctx, index, key)
		pipe.Expire(ctx, index, 2*s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("changelog cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func indexKey(ref changelog.Ref) string {
	return changelogIndexPrefix + string(ref.Type) + ":" + ref.ID
}

// cacheKey is order-insensitive over refs so the case+patient merge hits
// the same key regardless of ref ordering.
func cacheKey(refs []changelog.Ref) string {
	parts := make([]string, 0, len(refs))
	for _, ref := range refs {
		parts = append(parts, fmt.Sprintf("%s:%s", ref.Type, ref.ID))
	}
	sort.Strings(parts)
	return changelogCachePrefix + strings.Join(parts, "|")
}
