package service

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/hra-case-service/internal/domain"
	"github.com/spec-kit/hra-case-service/internal/repository"
	apperrors "github.com/spec-kit/hra-case-service/pkg/util"
)

// AssignmentService picks a case holder from the directory by load and
// commits the binding against the directory's active case counts.
type AssignmentService struct {
	directory  repository.DirectoryRepository
	maxRetries int
}

// NewAssignmentService creates the service.
func NewAssignmentService(directory repository.DirectoryRepository, maxRetries int) *AssignmentService {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &AssignmentService{directory: directory, maxRetries: maxRetries}
}

// SelectAssignee ranks eligible candidates and returns the least loaded.
// Candidates outside the case's line of business are dropped unless they
// hold the all-LOBs scope. With an override the named candidate is bound
// regardless of load; the override must still be role/lob eligible. When
// every eligible candidate is at or over capacity the selection fails with
// NO_CAPACITY and no binding happens.
func (s *AssignmentService) SelectAssignee(candidates []domain.User, lob string, overrideUserID *string) (*domain.User, error) {
	eligible := make([]domain.User, 0, len(candidates))
	for _, candidate := range candidates {
		if !candidate.Active || !candidate.CoversLOB(lob) {
			continue
		}
		eligible = append(eligible, candidate)
	}

	if overrideUserID != nil {
		for i := range eligible {
			if eligible[i].ID == *overrideUserID {
				return &eligible[i], nil
			}
		}
		return nil, apperrors.NewForbidden("override target not eligible for case")
	}

	ranked := make([]domain.User, 0, len(eligible))
	for _, candidate := range eligible {
		if candidate.AtCapacity() {
			continue
		}
		ranked = append(ranked, candidate)
	}
	if len(ranked) == 0 {
		return nil, apperrors.NewNoCapacity(lob)
	}

	// Ascending load ratio; ties by absolute count, then stable input order.
	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := ranked[i].LoadRatio(), ranked[j].LoadRatio()
		if ri != rj {
			return ri < rj
		}
		return ranked[i].ActiveCaseCount < ranked[j].ActiveCaseCount
	})
	return &ranked[0], nil
}

// Bind selects an assignee among directory users with one of the given
// roles and commits the binding. The active case count can move between
// snapshot and commit, so the capacity check is re-validated at commit and
// the selection retried on a fresh snapshot when the bind loses the race.
// Overrides skip the capacity guard but not eligibility.
func (s *AssignmentService) Bind(ctx context.Context, lob string, roles []domain.Role, overrideUserID *string) (*domain.User, error) {
	if overrideUserID != nil {
		return s.bindOverride(ctx, lob, roles, *overrideUserID)
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		candidates, err := s.snapshot(ctx, lob, roles)
		if err != nil {
			return nil, err
		}
		choice, err := s.SelectAssignee(candidates, lob, nil)
		if err != nil {
			return nil, err
		}
		acquired, err := s.directory.AcquireCase(ctx, choice.ID, true)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if acquired {
			choice.ActiveCaseCount++
			return choice, nil
		}
		// Lost the race; re-rank from a fresh snapshot.
	}
	return nil, apperrors.NewNoCapacity(lob)
}

// Release undoes one binding against the directory count.
func (s *AssignmentService) Release(ctx context.Context, userID string) error {
	return apperrors.MapError(s.directory.ReleaseCase(ctx, userID))
}

func (s *AssignmentService) bindOverride(ctx context.Context, lob string, roles []domain.Role, overrideUserID string) (*domain.User, error) {
	target, err := s.directory.GetByID(ctx, overrideUserID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("directory user", map[string]any{"user_id": overrideUserID})
		}
		return nil, apperrors.MapError(err)
	}
	if !target.Active || !target.CoversLOB(lob) || !roleAllowed(target.Role, roles) {
		return nil, apperrors.NewForbidden("override target not eligible for case")
	}
	acquired, err := s.directory.AcquireCase(ctx, target.ID, false)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !acquired {
		return nil, apperrors.NewConflict("override target inactive", map[string]any{"user_id": overrideUserID})
	}
	target.ActiveCaseCount++
	return target, nil
}

func (s *AssignmentService) snapshot(ctx context.Context, lob string, roles []domain.Role) ([]domain.User, error) {
	active := true
	var candidates []domain.User
	for _, role := range roles {
		r := role
		users, err := s.directory.List(ctx, repository.DirectoryFilter{
			Role:   &r,
			LOB:    &lob,
			Active: &active,
		})
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		candidates = append(candidates, users...)
	}
	return candidates, nil
}

func roleAllowed(role domain.Role, allowed []domain.Role) bool {
	for _, candidate := range allowed {
		if candidate == role {
			return true
		}
	}
	return false
}
