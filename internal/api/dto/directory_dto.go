package dto

import (
	"time"

	"github.com/spec-kit/hra-case-service/internal/domain"
)

// DirectoryUserResponse is one reviewer with their live load.
type DirectoryUserResponse struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Role            domain.Role `json:"role"`
	LOB             string      `json:"lob"`
	ActiveCaseCount int         `json:"active_case_count"`
	Capacity        int         `json:"capacity"`
	LoadRatio       float64     `json:"load_ratio"`
	Active          bool        `json:"active"`
	CreatedAt       time.Time   `json:"created_at"`
}

// TeamCapacityResponse aggregates load for one role within a line of
// business.
type TeamCapacityResponse struct {
	Role            domain.Role `json:"role"`
	LOB             string      `json:"lob,omitempty"`
	Members         int         `json:"members"`
	ActiveCaseCount int         `json:"active_case_count"`
	Capacity        int         `json:"capacity"`
	AtCapacity      int         `json:"at_capacity"`
}
