package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/triage-service/internal/audit"
	"github.com/spec-kit/triage-service/internal/domain"
)

const uniqueViolation = "23505"

// auditLogRepository is the Postgres implementation of audit.Store. Rows
// are insert-only; there is no update or delete path.
type auditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository builds the store over a pgx pool.
func NewAuditLogRepository(pool *pgxpool.Pool) audit.Store {
	return &auditLogRepository{pool: pool}
}

const auditColumns = `id, seq, actor_id, actor_type, resource_id, resource_type,
        action, status, ts, change_details, ip_address, hash, previous_hash`

// Append commits the entry inside a transaction that locks the current tail
// row, so two writers cannot both chain onto the same predecessor. The seq
// unique index backs this up for the empty-table case, where there is no
// row to lock.
func (r *auditLogRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var tailSeq int64
	tailHash := audit.GenesisHash
	err = tx.QueryRow(ctx, `SELECT seq, hash FROM audit_log ORDER BY seq DESC LIMIT 1 FOR UPDATE`).
		Scan(&tailSeq, &tailHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if entry.PreviousHash != tailHash || entry.Seq != tailSeq+1 {
		return audit.ErrChainConflict
	}

	details, err := marshalChangeDetails(entry.ChangeDetails)
	if err != nil {
		return err
	}

	const query = `
        INSERT INTO audit_log (id, seq, actor_id, actor_type, resource_id, resource_type, action, status, ts, change_details, ip_address, hash, previous_hash)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err = tx.Exec(ctx, query,
		entry.ID,
		entry.Seq,
		entry.ActorID,
		entry.ActorType,
		entry.ResourceID,
		entry.ResourceType,
		entry.Action,
		entry.Status,
		entry.Timestamp,
		details,
		entry.IPAddress,
		entry.Hash,
		entry.PreviousHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return audit.ErrChainConflict
		}
		return err
	}
	return tx.Commit(ctx)
}

func (r *auditLogRepository) Tail(ctx context.Context) (*domain.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_log ORDER BY seq DESC LIMIT 1`
	entries, err := r.fetch(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (r *auditLogRepository) Range(ctx context.Context, fromSeq, toSeq int64) ([]domain.AuditEntry, error) {
	if toSeq > 0 {
		query := `SELECT ` + auditColumns + ` FROM audit_log WHERE seq >= $1 AND seq <= $2 ORDER BY seq ASC`
		return r.fetch(ctx, query, fromSeq, toSeq)
	}
	query := `SELECT ` + auditColumns + ` FROM audit_log WHERE seq >= $1 ORDER BY seq ASC`
	return r.fetch(ctx, query, fromSeq)
}

func (r *auditLogRepository) ByResource(ctx context.Context, rt domain.ResourceType, resourceID string, tr audit.TimeRange) ([]domain.AuditEntry, error) {
	clauses := []string{"resource_type=$1", "resource_id=$2"}
	args := []any{rt, resourceID}
	clauses, args = appendRangeClauses(clauses, args, tr)
	query := fmt.Sprintf(`SELECT %s FROM audit_log WHERE %s ORDER BY ts ASC, seq ASC`,
		auditColumns, strings.Join(clauses, " AND "))
	return r.fetch(ctx, query, args...)
}

func (r *auditLogRepository) ByActor(ctx context.Context, actorID string, tr audit.TimeRange) ([]domain.AuditEntry, error) {
	clauses := []string{"actor_id=$1"}
	args := []any{actorID}
	clauses, args = appendRangeClauses(clauses, args, tr)
	query := fmt.Sprintf(`SELECT %s FROM audit_log WHERE %s ORDER BY ts ASC, seq ASC`,
		auditColumns, strings.Join(clauses, " AND "))
	return r.fetch(ctx, query, args...)
}

func (r *auditLogRepository) ByTimeRange(ctx context.Context, tr audit.TimeRange) ([]domain.AuditEntry, error) {
	clauses := []string{"1=1"}
	args := []any{}
	clauses, args = appendRangeClauses(clauses, args, tr)
	query := fmt.Sprintf(`SELECT %s FROM audit_log WHERE %s ORDER BY ts ASC, seq ASC`,
		auditColumns, strings.Join(clauses, " AND "))
	return r.fetch(ctx, query, args...)
}

func (r *auditLogRepository) Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + auditColumns + ` FROM audit_log ORDER BY seq DESC LIMIT $1`
	return r.fetch(ctx, query, limit)
}

func appendRangeClauses(clauses []string, args []any, tr audit.TimeRange) ([]string, []any) {
	if tr.From != nil {
		args = append(args, *tr.From)
		clauses = append(clauses, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if tr.To != nil {
		args = append(args, *tr.To)
		clauses = append(clauses, fmt.Sprintf("ts <= $%d", len(args)))
	}
	return clauses, args
}

func (r *auditLogRepository) fetch(ctx context.Context, query string, args ...any) ([]domain.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var details []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.Seq,
			&entry.ActorID,
			&entry.ActorType,
			&entry.ResourceID,
			&entry.ResourceType,
			&entry.Action,
			&entry.Status,
			&entry.Timestamp,
			&details,
			&entry.IPAddress,
			&entry.Hash,
			&entry.PreviousHash,
		); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.ChangeDetails); err != nil {
				return nil, fmt.Errorf("decode change_details for %s: %w", entry.ID, err)
			}
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func marshalChangeDetails(details domain.ChangeDetails) ([]byte, error) {
	if len(details) == 0 {
		return nil, nil
	}
	return json.Marshal(details)
}
