package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles recognised by the exam scheduling API.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleRegistrar UserRole = "REGISTRAR"
	RoleViewer    UserRole = "VIEWER"
)

// JWTClaims represents the JWT payload for access tokens issued by the identity provider.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// KnownRole reports whether role is one of the recognised roles.
func KnownRole(role UserRole) bool {
	switch role {
	case RoleAdmin, RoleRegistrar, RoleViewer:
		return true
	default:
		return false
	}
}
