package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/hra-case-service/internal/domain"
)

// CaseHistoryRepository persists the append-only audit trail.
type CaseHistoryRepository interface {
	Create(ctx context.Context, entry *domain.CaseHistory) error
	ListByCase(ctx context.Context, caseID string, limit, offset int) ([]domain.CaseHistory, error)
}

type caseHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewCaseHistoryRepository instantiates the repository.
func NewCaseHistoryRepository(pool *pgxpool.Pool) CaseHistoryRepository {
	return &caseHistoryRepository{pool: pool}
}

func (r *caseHistoryRepository) Create(ctx context.Context, entry *domain.CaseHistory) error {
	const query = `
        INSERT INTO case_history (case_id, actor_id, actor_role, tag, from_status, to_status,
                                  old_assignee_id, new_assignee_id, reason)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.CaseID,
		entry.ActorID,
		entry.ActorRole,
		entry.Tag,
		entry.FromStatus,
		entry.ToStatus,
		entry.OldAssigneeID,
		entry.NewAssigneeID,
		entry.Reason,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *caseHistoryRepository) ListByCase(ctx context.Context, caseID string, limit, offset int) ([]domain.CaseHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, case_id, actor_id, actor_role, tag, from_status, to_status,
               old_assignee_id, new_assignee_id, reason, created_at
        FROM case_history WHERE case_id=$1
        ORDER BY created_at ASC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, caseID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CaseHistory
	for rows.Next() {
		var entry domain.CaseHistory
		if err := rows.Scan(
			&entry.ID,
			&entry.CaseID,
			&entry.ActorID,
			&entry.ActorRole,
			&entry.Tag,
			&entry.FromStatus,
			&entry.ToStatus,
			&entry.OldAssigneeID,
			&entry.NewAssigneeID,
			&entry.Reason,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
