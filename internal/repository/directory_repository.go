package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/hra-case-service/internal/domain"
)

// DirectoryFilter defines query params for reviewer listing.
type DirectoryFilter struct {
	Role   *domain.Role
	LOB    *string
	Active *bool
	Limit  int
	Offset int
}

// DirectoryRepository reads reviewer records and maintains their active
// case counts. The external directory service owns every other field.
type DirectoryRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context, filter DirectoryFilter) ([]domain.User, error)
	// AcquireCase atomically increments the active case count. With
	// enforceCapacity it refuses once the count reaches capacity and
	// reports false, letting callers re-select from a fresh snapshot.
	AcquireCase(ctx context.Context, userID string, enforceCapacity bool) (bool, error)
	// ReleaseCase decrements the active case count, never below zero.
	ReleaseCase(ctx context.Context, userID string) error
}

type directoryRepository struct {
	pool *pgxpool.Pool
}

// NewDirectoryRepository instantiates the repository.
func NewDirectoryRepository(pool *pgxpool.Pool) DirectoryRepository {
	return &directoryRepository{pool: pool}
}

func (r *directoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
        SELECT id, name, role, lob, active_case_count, capacity, active_flag, created_at, updated_at
        FROM directory_users WHERE id=$1`

	var user domain.User
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Role,
		&user.LOB,
		&user.ActiveCaseCount,
		&user.Capacity,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *directoryRepository) List(ctx context.Context, filter DirectoryFilter) ([]domain.User, error) {
	query := `
        SELECT id, name, role, lob, active_case_count, capacity, active_flag, created_at, updated_at
        FROM directory_users`
	args := []any{}
	clauses := []string{}

	if filter.Role != nil {
		args = append(args, *filter.Role)
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if filter.LOB != nil {
		args = append(args, *filter.LOB)
		clauses = append(clauses, fmt.Sprintf("(lob=$%d OR lob='%s')", len(args), domain.AllLOBs))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active_flag=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY created_at ASC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Role,
			&user.LOB,
			&user.ActiveCaseCount,
			&user.Capacity,
			&user.Active,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

func (r *directoryRepository) AcquireCase(ctx context.Context, userID string, enforceCapacity bool) (bool, error) {
	query := `
        UPDATE directory_users SET active_case_count = active_case_count + 1, updated_at=NOW()
        WHERE id=$1 AND active_flag`
	if enforceCapacity {
		query += " AND active_case_count < capacity"
	}
	cmd, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *directoryRepository) ReleaseCase(ctx context.Context, userID string) error {
	const query = `
        UPDATE directory_users
        SET active_case_count = GREATEST(active_case_count - 1, 0), updated_at=NOW()
        WHERE id=$1`
	_, err := r.pool.Exec(ctx, query, userID)
	return err
}
