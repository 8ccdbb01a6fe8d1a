package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/hra-case-service/internal/domain"
	apperrors "github.com/spec-kit/hra-case-service/pkg/util"
)

// CaseFilter captures the query surface reporting views consume.
type CaseFilter struct {
	Statuses    []domain.CaseStatus
	Priorities  []domain.CasePriority
	LOB         *string
	AssigneeID  *string
	ClientRef   *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// CaseRepository encapsulates case persistence. Mutations go through
// UpdateVersioned so concurrent writers against one case surface as
// conflicts instead of overwriting each other.
type CaseRepository interface {
	Create(ctx context.Context, c *domain.Case) error
	GetByID(ctx context.Context, id string) (*domain.Case, error)
	UpdateVersioned(ctx context.Context, c *domain.Case, expectedVersion int64) error
	ListWithFilter(ctx context.Context, filter CaseFilter) ([]domain.Case, error)
	NextCaseID(ctx context.Context, year int) (string, error)
}

type caseRepository struct {
	pool *pgxpool.Pool
}

// NewCaseRepository instantiates repository.
func NewCaseRepository(pool *pgxpool.Pool) CaseRepository {
	return &caseRepository{pool: pool}
}

func (r *caseRepository) Create(ctx context.Context, c *domain.Case) error {
	const query = `
        INSERT INTO cases (id, client_ref, client_name, lob, priority, risk_rating, indicators,
                           review_reasons, status, assignee_id, prior_assignee_id, outcome, completed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING version, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		c.ID,
		c.ClientRef,
		c.ClientName,
		c.LOB,
		c.Priority,
		c.RiskRating,
		c.Indicators,
		c.ReviewReasons,
		c.Status,
		c.AssigneeID,
		c.PriorAssigneeID,
		c.Outcome,
		c.CompletedAt,
	).Scan(&c.Version, &c.CreatedAt, &c.UpdatedAt)
}

func (r *caseRepository) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	const query = `
        SELECT id, client_ref, client_name, lob, priority, risk_rating, indicators, review_reasons,
               status, assignee_id, prior_assignee_id, outcome, version, created_at, updated_at, completed_at
        FROM cases WHERE id=$1`
	var c domain.Case
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.ClientRef,
		&c.ClientName,
		&c.LOB,
		&c.Priority,
		&c.RiskRating,
		&c.Indicators,
		&c.ReviewReasons,
		&c.Status,
		&c.AssigneeID,
		&c.PriorAssigneeID,
		&c.Outcome,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateVersioned persists the case only when its stored version still
// matches expectedVersion. On success the case carries the bumped version.
func (r *caseRepository) UpdateVersioned(ctx context.Context, c *domain.Case, expectedVersion int64) error {
	const query = `
        UPDATE cases SET status=$1, assignee_id=$2, prior_assignee_id=$3, outcome=$4,
            priority=$5, review_reasons=$6, completed_at=$7, version=version+1, updated_at=NOW()
        WHERE id=$8 AND version=$9`
	cmd, err := r.pool.Exec(ctx, query,
		c.Status,
		c.AssigneeID,
		c.PriorAssigneeID,
		c.Outcome,
		c.Priority,
		c.ReviewReasons,
		c.CompletedAt,
		c.ID,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM cases WHERE id=$1)`, c.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return apperrors.NewConflict("case modified concurrently", map[string]any{
				"case_id":          c.ID,
				"expected_version": expectedVersion,
			})
		}
		return pgx.ErrNoRows
	}
	c.Version = expectedVersion + 1
	return nil
}

func (r *caseRepository) ListWithFilter(ctx context.Context, filter CaseFilter) ([]domain.Case, error) {
	base := `SELECT id, client_ref, client_name, lob, priority, risk_rating, indicators, review_reasons,
                    status, assignee_id, prior_assignee_id, outcome, version, created_at, updated_at, completed_at
             FROM cases`
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.LOB != nil {
		args = append(args, *filter.LOB)
		clauses = append(clauses, fmt.Sprintf("lob=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if filter.ClientRef != nil {
		args = append(args, *filter.ClientRef)
		clauses = append(clauses, fmt.Sprintf("client_ref=$%d", len(args)))
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
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCases(rows)
}

// NextCaseID allocates the next year-scoped sequential identifier,
// e.g. HRA-2026-0042.
func (r *caseRepository) NextCaseID(ctx context.Context, year int) (string, error) {
	const query = `
        INSERT INTO case_id_sequences (year, last_value) VALUES ($1, 1)
        ON CONFLICT (year) DO UPDATE SET last_value = case_id_sequences.last_value + 1
        RETURNING last_value`
	var seq int
	if err := r.pool.QueryRow(ctx, query, year).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("HRA-%d-%04d", year, seq), nil
}

func scanCases(rows pgx.Rows) ([]domain.Case, error) {
	var result []domain.Case
	for rows.Next() {
		var c domain.Case
		if err := rows.Scan(
			&c.ID,
			&c.ClientRef,
			&c.ClientName,
			&c.LOB,
			&c.Priority,
			&c.RiskRating,
			&c.Indicators,
			&c.ReviewReasons,
			&c.Status,
			&c.AssigneeID,
			&c.PriorAssigneeID,
			&c.Outcome,
			&c.Version,
			&c.CreatedAt,
			&c.UpdatedAt,
			&c.CompletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
