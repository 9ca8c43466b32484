package models

import "strings"

type UserRole string

const (
	RoleUser       UserRole = "USER"
	RoleAdmin      UserRole = "ADMIN"
	RoleSuperAdmin UserRole = "SUPER_ADMIN"
)

var roleRank = map[UserRole]int{
	RoleUser:       1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

// IsValidRole reports whether the role is one of the known tiers.
func IsValidRole(role UserRole) bool {
	_, ok := roleRank[role]
	return ok
}

// HasAtLeast reports whether role sits at or above the required tier.
func HasAtLeast(role, required UserRole) bool {
	return roleRank[role] >= roleRank[required] && IsValidRole(role)
}

// User is the read-only directory view of an account. Users and departments are
// administered elsewhere; this service only reads them.
type User struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	Role         UserRole `json:"role"`
	DepartmentID string   `json:"departmentId"`
	IsActive     bool     `json:"isActive"`
}

func (u User) IsSuperAdmin() bool {
	return u.Role == RoleSuperAdmin
}

// IsAdminOf reports whether the user administers the given department. A nil
// department is administered by super-admins only.
func (u User) IsAdminOf(departmentID *string) bool {
	if u.IsSuperAdmin() {
		return true
	}
	if departmentID == nil || u.Role != RoleAdmin {
		return false
	}
	return strings.TrimSpace(*departmentID) != "" && u.DepartmentID == *departmentID
}

// MatchesEmail compares emails case-insensitively.
func (u User) MatchesEmail(email string) bool {
	email = strings.TrimSpace(email)
	return email != "" && strings.EqualFold(strings.TrimSpace(u.Email), email)
}
