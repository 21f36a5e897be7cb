package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles carried by admin panel tokens.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleEditor     UserRole = "EDITOR"
)

// CanManageInquiries reports whether the role may read and answer inquiries.
func (r UserRole) CanManageInquiries() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// JWTClaims is the authentication context passed into every admin operation.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Identity returns the operator identity recorded on replies.
func (c *JWTClaims) Identity() string {
	if c == nil {
		return ""
	}
	if c.Email != "" {
		return c.Email
	}
	return c.UserID
}
