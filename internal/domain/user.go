package domain

import "time"

// Role enumerates review tiers, lowest to highest.
type Role string

const (
	RoleAnalyst Role = "ANALYST"
	RoleManager Role = "MANAGER"
	RoleFluAml  Role = "FLU_AML"
	RoleGfc     Role = "GFC"
)

var roleTiers = map[Role]int{
	RoleAnalyst: 0,
	RoleManager: 1,
	RoleFluAml:  2,
	RoleGfc:     3,
}

// Tier returns the numeric escalation tier for a role; unknown roles are
// below Analyst.
func (r Role) Tier() int {
	if tier, ok := roleTiers[r]; ok {
		return tier
	}
	return -1
}

// NextTier returns the role one escalation tier above, and false at the top.
func (r Role) NextTier() (Role, bool) {
	switch r {
	case RoleAnalyst:
		return RoleManager, true
	case RoleManager:
		return RoleFluAml, true
	case RoleFluAml:
		return RoleGfc, true
	}
	return "", false
}

// AtLeast reports whether the role sits at or above the given tier.
func (r Role) AtLeast(other Role) bool {
	return r.Tier() >= other.Tier()
}

// AllLOBs is the scope marker for users eligible across every line of business.
const AllLOBs = "All LOBs"

// User is a directory record for a reviewer. The directory service owns
// these records; the core only reads them and maintains ActiveCaseCount as
// assignments bind and release.
type User struct {
	ID              string
	Name            string
	Role            Role
	LOB             string
	ActiveCaseCount int
	Capacity        int
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LoadRatio returns ActiveCaseCount relative to Capacity. A zero capacity
// reads as fully loaded.
func (u *User) LoadRatio() float64 {
	if u.Capacity <= 0 {
		return 1.0
	}
	return float64(u.ActiveCaseCount) / float64(u.Capacity)
}

// AtCapacity reports whether the user cannot take another case.
func (u *User) AtCapacity() bool {
	return u.LoadRatio() >= 1.0
}

// CoversLOB reports whether the user may hold cases for the given line of
// business.
func (u *User) CoversLOB(lob string) bool {
	return u.LOB == AllLOBs || u.LOB == lob
}
