package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/hra-case-service/internal/domain"
	apperrors "github.com/spec-kit/hra-case-service/pkg/util"
)

func TestSelectAssigneePicksLowestLoadRatio(t *testing.T) {
	svc := NewAssignmentService(newFakeDirectoryRepo(), 3)
	candidates := []domain.User{
		*reviewer("an-a", domain.RoleAnalyst, "Retail", 9, 10), // 0.90
		*reviewer("an-b", domain.RoleAnalyst, "Retail", 1, 5),  // 0.20
		*reviewer("an-c", domain.RoleAnalyst, "Retail", 3, 5),  // 0.60
	}

	choice, err := svc.SelectAssignee(candidates, "Retail", nil)
	require.NoError(t, err)
	assert.Equal(t, "an-b", choice.ID)
}

func TestSelectAssigneeTieBreaksOnAbsoluteCount(t *testing.T) {
	svc := NewAssignmentService(newFakeDirectoryRepo(), 3)
	candidates := []domain.User{
		*reviewer("an-a", domain.RoleAnalyst, "Retail", 4, 8), // 0.50
		*reviewer("an-b", domain.RoleAnalyst, "Retail", 2, 4), // 0.50
	}

	choice, err := svc.SelectAssignee(candidates, "Retail", nil)
	require.NoError(t, err)
	assert.Equal(t, "an-b", choice.ID)
}

func TestSelectAssigneeStableOnFullTie(t *testing.T) {
	svc := NewAssignmentService(newFakeDirectoryRepo(), 3)
	candidates := []domain.User{
		*reviewer("an-first", domain.RoleAnalyst, "Retail", 2, 4),
		*reviewer("an-second", domain.RoleAnalyst, "Retail", 2, 4),
	}

	choice, err := svc.SelectAssignee(candidates, "Retail", nil)
	require.NoError(t, err)
	assert.Equal(t, "an-first", choice.ID)
}

func TestSelectAssigneeFiltersLOB(t *testing.T) {
	svc := NewAssignmentService(newFakeDirectoryRepo(), 3)
	candidates := []domain.User{
		*reviewer("an-other", domain.RoleAnalyst, "Commercial", 0, 5),
		*reviewer("an-global", domain.RoleAnalyst, domain.AllLOBs, 3, 5),
		*reviewer("an-local", domain.RoleAnalyst, "Retail", 4, 5),
	}

	choice, err := svc.SelectAssignee(candidates, "Retail", nil)
	require.NoError(t, err)
	assert.Equal(t, "an-global", choice.ID)
}

func TestSelectAssigneeSkipsInactiveAndFull(t *testing.T) {
	svc := NewAssignmentService(newFakeDirectoryRepo(), 3)
	inactive := reviewer("an-off", domain.RoleAnalyst, "Retail", 0, 5)
	inactive.Active = false
	candidates := []domain.User{
		*inactive,
		*reviewer("an-full", domain.RoleAnalyst, "Retail", 5, 5),
		*reviewer("an-zero", domain.RoleAnalyst, "Retail", 0, 0),
	}

	_, err := svc.SelectAssignee(candidates, "Retail", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNoCapacity))
}

func TestSelectAssigneeOverrideIgnoresLoad(t *testing.T) {
	svc := NewAssignmentService(newFakeDirectoryRepo(), 3)
	candidates := []domain.User{
		*reviewer("an-idle", domain.RoleAnalyst, "Retail", 0, 5),
		*reviewer("an-full", domain.RoleAnalyst, "Retail", 5, 5),
	}

	target := "an-full"
	choice, err := svc.SelectAssignee(candidates, "Retail", &target)
	require.NoError(t, err)
	assert.Equal(t, "an-full", choice.ID)
}

func TestSelectAssigneeOverrideMustBeEligible(t *testing.T) {
	svc := NewAssignmentService(newFakeDirectoryRepo(), 3)
	candidates := []domain.User{
		*reviewer("an-other", domain.RoleAnalyst, "Commercial", 0, 5),
	}

	target := "an-other"
	_, err := svc.SelectAssignee(candidates, "Retail", &target)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
}

func TestBindCommitsAgainstDirectory(t *testing.T) {
	directory := newFakeDirectoryRepo(
		reviewer("an-a", domain.RoleAnalyst, "Retail", 2, 5),
		reviewer("an-b", domain.RoleAnalyst, "Retail", 0, 5),
	)
	svc := NewAssignmentService(directory, 3)

	bound, err := svc.Bind(context.Background(), "Retail", []domain.Role{domain.RoleAnalyst}, nil)
	require.NoError(t, err)
	assert.Equal(t, "an-b", bound.ID)
	assert.Equal(t, 1, bound.ActiveCaseCount)
	assert.Equal(t, 1, directory.load("an-b"))
}

func TestBindExhaustsPool(t *testing.T) {
	directory := newFakeDirectoryRepo(
		reviewer("an-only", domain.RoleAnalyst, "Retail", 0, 2),
	)
	svc := NewAssignmentService(directory, 3)

	for i := 0; i < 2; i++ {
		_, err := svc.Bind(context.Background(), "Retail", []domain.Role{domain.RoleAnalyst}, nil)
		require.NoError(t, err)
	}
	_, err := svc.Bind(context.Background(), "Retail", []domain.Role{domain.RoleAnalyst}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNoCapacity))
	assert.Equal(t, 2, directory.load("an-only"))
}

func TestBindRetriesAfterLostRace(t *testing.T) {
	directory := &racingDirectory{
		fakeDirectoryRepo: newFakeDirectoryRepo(
			reviewer("an-target", domain.RoleAnalyst, "Retail", 0, 1),
			reviewer("an-backup", domain.RoleAnalyst, "Retail", 0, 5),
		),
		stealFrom: "an-target",
	}
	svc := NewAssignmentService(directory, 3)

	bound, err := svc.Bind(context.Background(), "Retail", []domain.Role{domain.RoleAnalyst}, nil)
	require.NoError(t, err)
	assert.Equal(t, "an-backup", bound.ID)
}

func TestBindOverrideChecksRole(t *testing.T) {
	directory := newFakeDirectoryRepo(
		reviewer("flu-1", domain.RoleFluAml, domain.AllLOBs, 0, 5),
	)
	svc := NewAssignmentService(directory, 3)

	target := "flu-1"
	_, err := svc.Bind(context.Background(), "Retail", []domain.Role{domain.RoleAnalyst, domain.RoleManager}, &target)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	directory := newFakeDirectoryRepo(
		reviewer("an-a", domain.RoleAnalyst, "Retail", 0, 5),
	)
	svc := NewAssignmentService(directory, 3)

	require.NoError(t, svc.Release(context.Background(), "an-a"))
	assert.Equal(t, 0, directory.load("an-a"))
}

// racingDirectory fills the preferred target between the selection
// snapshot and the capacity-checked commit, forcing one lost race.
type racingDirectory struct {
	*fakeDirectoryRepo
	stealFrom string
	stolen    bool
}

func (d *racingDirectory) AcquireCase(ctx context.Context, userID string, enforceCapacity bool) (bool, error) {
	if userID == d.stealFrom && !d.stolen {
		d.stolen = true
		// A competing bind takes the last slot first.
		if ok, err := d.fakeDirectoryRepo.AcquireCase(ctx, userID, false); err != nil || !ok {
			return ok, err
		}
	}
	return d.fakeDirectoryRepo.AcquireCase(ctx, userID, enforceCapacity)
}
