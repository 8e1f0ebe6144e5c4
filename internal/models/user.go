package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents user roles in the system
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleDriver     Role = "driver"
)

// Permission actions checked by HasPermission.
const (
	ActionManageUsers           = "manage_users"
	ActionManageCredentialTypes = "manage_credential_types"
	ActionViewCredentialTypes   = "view_credential_types"
	ActionReviewCredentials     = "review_credentials"
	ActionViewCredentials       = "view_credentials"
	ActionSubmitCredentials     = "submit_credentials"
	ActionManageFleet           = "manage_fleet"
)

// User represents a user in the system
type User struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	TenantID     primitive.ObjectID  `bson:"tenant_id" json:"tenant_id"`
	DriverID     *primitive.ObjectID `bson:"driver_id,omitempty" json:"driver_id,omitempty"`
	Username     string              `bson:"username" json:"username"`
	Email        string              `bson:"email" json:"email"`
	PasswordHash string              `bson:"password_hash" json:"-"`
	Role         Role                `bson:"role" json:"role"`
	FirstName    string              `bson:"first_name" json:"first_name"`
	LastName     string              `bson:"last_name" json:"last_name"`
	IsActive     bool                `bson:"is_active" json:"is_active"`
	LastLogin    *time.Time          `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt    time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `bson:"updated_at" json:"updated_at"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
	TenantID  string `json:"tenant_id"`
	DriverID  string `json:"driver_id,omitempty"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	DriverID string `json:"driver_id,omitempty"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleDriver:
		return true
	default:
		return false
	}
}

// HasPermission checks if a user has permission for a specific action
func (u *User) HasPermission(action string) bool {
	return u.Role.Allows(action)
}

// Allows reports whether the role may perform action.
func (r Role) Allows(action string) bool {
	switch r {
	case RoleSuperAdmin:
		return true
	case RoleAdmin:
		return action != ActionManageUsers
	case RoleDriver:
		return action == ActionViewCredentials || action == ActionSubmitCredentials ||
			action == ActionViewCredentialTypes
	default:
		return false
	}
}
