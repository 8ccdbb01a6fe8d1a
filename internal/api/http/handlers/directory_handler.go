package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/hra-case-service/internal/api/dto"
	"github.com/spec-kit/hra-case-service/internal/auth"
	"github.com/spec-kit/hra-case-service/internal/domain"
	"github.com/spec-kit/hra-case-service/internal/repository"
)

// DirectoryHandler exposes reviewer load for capacity dashboards.
type DirectoryHandler struct {
	directory repository.DirectoryRepository
}

// NewDirectoryHandler constructs handler.
func NewDirectoryHandler(directory repository.DirectoryRepository) *DirectoryHandler {
	return &DirectoryHandler{directory: directory}
}

// ListReviewers GET /directory/reviewers.
func (h *DirectoryHandler) ListReviewers(c *fiber.Ctx) error {
	if _, err := auth.CurrentUser(c); err != nil {
		return err
	}
	filter := repository.DirectoryFilter{}
	if raw := c.Query("role"); raw != "" {
		role := domain.Role(raw)
		filter.Role = &role
	}
	if lob := c.Query("lob"); lob != "" {
		filter.LOB = &lob
	}
	active := true
	filter.Active = &active
	filter.Limit, filter.Offset = parsePagination(c)

	users, err := h.directory.List(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.DirectoryUserResponse, 0, len(users))
	for i := range users {
		items = append(items, reviewerResponse(&users[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// TeamCapacity GET /directory/capacity.
func (h *DirectoryHandler) TeamCapacity(c *fiber.Ctx) error {
	if _, err := auth.CurrentUser(c); err != nil {
		return err
	}
	filter := repository.DirectoryFilter{}
	var lob string
	if lob = c.Query("lob"); lob != "" {
		filter.LOB = &lob
	}
	active := true
	filter.Active = &active

	users, err := h.directory.List(c.Context(), filter)
	if err != nil {
		return err
	}

	byRole := make(map[domain.Role]*dto.TeamCapacityResponse)
	for i := range users {
		user := &users[i]
		agg, ok := byRole[user.Role]
		if !ok {
			agg = &dto.TeamCapacityResponse{Role: user.Role, LOB: lob}
			byRole[user.Role] = agg
		}
		agg.Members++
		agg.ActiveCaseCount += user.ActiveCaseCount
		agg.Capacity += user.Capacity
		if user.AtCapacity() {
			agg.AtCapacity++
		}
	}

	items := make([]dto.TeamCapacityResponse, 0, len(byRole))
	for _, role := range []domain.Role{domain.RoleAnalyst, domain.RoleManager, domain.RoleFluAml, domain.RoleGfc} {
		if agg, ok := byRole[role]; ok {
			items = append(items, *agg)
		}
	}
	return c.JSON(fiber.Map{"data": items})
}

func reviewerResponse(u *domain.User) dto.DirectoryUserResponse {
	return dto.DirectoryUserResponse{
		ID:              u.ID,
		Name:            u.Name,
		Role:            u.Role,
		LOB:             u.LOB,
		ActiveCaseCount: u.ActiveCaseCount,
		Capacity:        u.Capacity,
		LoadRatio:       u.LoadRatio(),
		Active:          u.Active,
		CreatedAt:       u.CreatedAt,
	}
}
