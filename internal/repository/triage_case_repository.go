package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/triage-service/internal/domain"
)

// CaseFilter captures listing parameters for triage cases.
type CaseFilter struct {
	PatientID   *string
	Statuses    []domain.CaseStatus
	Urgencies   []domain.CaseUrgency
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TriageCaseRepository encapsulates triage case persistence.
type TriageCaseRepository interface {
	Create(ctx context.Context, tc *domain.TriageCase) error
	Update(ctx context.Context, tc *domain.TriageCase) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.TriageCase, error)
	ListWithFilter(ctx context.Context, filter CaseFilter) ([]domain.TriageCase, error)
	CountByStatus(ctx context.Context, status domain.CaseStatus) (int64, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type triageCaseRepository struct {
	pool *pgxpool.Pool
}

// NewTriageCaseRepository instantiates repository.
func NewTriageCaseRepository(pool *pgxpool.Pool) TriageCaseRepository {
	return &triageCaseRepository{pool: pool}
}

const caseColumns = `id, patient_id, status, symptoms, ai_summary, urgency,
        override_summary, override_summary_by, override_urgency, override_urgency_by,
        review_reason, reviewed_by, review_timestamp, scheduled_date, created_at, updated_at`

func (r *triageCaseRepository) Create(ctx context.Context, tc *domain.TriageCase) error {
	const query = `
        INSERT INTO triage_cases (patient_id, status, symptoms, ai_summary, urgency)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		tc.PatientID,
		tc.Status,
		tc.Symptoms,
		tc.AISummary,
		tc.Urgency,
	).Scan(&tc.ID, &tc.CreatedAt, &tc.UpdatedAt)
}

func (r *triageCaseRepository) Update(ctx context.Context, tc *domain.TriageCase) error {
	const query = `
        UPDATE triage_cases SET status=$1, symptoms=$2, ai_summary=$3, urgency=$4,
            override_summary=$5, override_summary_by=$6, override_urgency=$7, override_urgency_by=$8,
            review_reason=$9, reviewed_by=$10, review_timestamp=$11, scheduled_date=$12, updated_at=NOW()
        WHERE id=$13`
	cmd, err := r.pool.Exec(ctx, query,
		tc.Status,
		tc.Symptoms,
		tc.AISummary,
		tc.Urgency,
		tc.OverrideSummary,
		tc.OverrideSummaryBy,
		tc.OverrideUrgency,
		tc.OverrideUrgencyBy,
		tc.ReviewReason,
		tc.ReviewedBy,
		tc.ReviewTimestamp,
		tc.ScheduledDate,
		tc.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *triageCaseRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM triage_cases WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *triageCaseRepository) GetByID(ctx context.Context, id string) (*domain.TriageCase, error) {
	query := `SELECT ` + caseColumns + ` FROM triage_cases WHERE id=$1`
	var tc domain.TriageCase
	if err := r.pool.QueryRow(ctx, query, id).Scan(caseFields(&tc)...); err != nil {
		return nil, err
	}
	return &tc, nil
}

func (r *triageCaseRepository) ListWithFilter(ctx context.Context, filter CaseFilter) ([]domain.TriageCase, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		clauses = append(clauses, fmt.Sprintf("patient_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Urgencies) > 0 {
		placeholders := make([]string, len(filter.Urgencies))
		for i, urgency := range filter.Urgencies {
			args = append(args, urgency)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("urgency IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM triage_cases WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		caseColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TriageCase
	for rows.Next() {
		var tc domain.TriageCase
		if err := rows.Scan(caseFields(&tc)...); err != nil {
			return nil, err
		}
		result = append(result, tc)
	}
	return result, rows.Err()
}

func (r *triageCaseRepository) CountByStatus(ctx context.Context, status domain.CaseStatus) (int64, error) {
	const query = `SELECT COUNT(*) FROM triage_cases WHERE status=$1`
	var count int64
	if err := r.pool.QueryRow(ctx, query, status).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *triageCaseRepository) Exists(ctx context.Context, id string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM triage_cases WHERE id=$1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func caseFields(tc *domain.TriageCase) []any {
	return []any{
		&tc.ID,
		&tc.PatientID,
		&tc.Status,
		&tc.Symptoms,
		&tc.AISummary,
		&tc.Urgency,
		&tc.OverrideSummary,
		&tc.OverrideSummaryBy,
		&tc.OverrideUrgency,
		&tc.OverrideUrgencyBy,
		&tc.ReviewReason,
		&tc.ReviewedBy,
		&tc.ReviewTimestamp,
		&tc.ScheduledDate,
		&tc.CreatedAt,
		&tc.UpdatedAt,
	}
}
