package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin       UserRole = "ADMIN"
	RoleCoordinator UserRole = "COORDINATOR"
	RoleTeacher     UserRole = "TEACHER"
	RoleStudent     UserRole = "STUDENT"
)

// StaffRoles may read and work cases.
var StaffRoles = []UserRole{RoleAdmin, RoleCoordinator, RoleTeacher}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// AuthContext is the caller identity handed explicitly to every service operation.
type AuthContext struct {
	UserID string
	Role   UserRole
}

// AuthContext extracts the caller identity from validated claims.
func (c *JWTClaims) AuthContext() AuthContext {
	if c == nil {
		return AuthContext{}
	}
	return AuthContext{UserID: c.UserID, Role: c.Role}
}

// Authenticated reports whether the context carries an identity.
func (a AuthContext) Authenticated() bool {
	return a.UserID != "" && a.Role != ""
}

// HasRole reports whether the caller holds any of roles.
func (a AuthContext) HasRole(roles ...UserRole) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// CanRunAlerts reports whether the caller may trigger the alert engine.
func (a AuthContext) CanRunAlerts() bool {
	return a.Authenticated() && a.HasRole(RoleCoordinator, RoleAdmin)
}
