package domain

import (
	"regexp"
	"time"
)

// Role is the coarse authorisation label carried by an account and its tokens.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// DefaultRole is assigned when a caller does not specify one.
const DefaultRole = RoleUser

// Bootstrap account seeded into an empty store. The password is well known
// and must be changed after first login.
const (
	BootstrapUsername = "admin"
	BootstrapPassword = "Admin12345"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleUser
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidUsername checks the username format: 1-64 characters of
// letters, digits, dots, hyphens and underscores.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Account is the full persisted record, including the password hash.
// It never leaves the core; handlers only ever see AccountView.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
	IsActive     bool
}

// View strips the password hash.
func (a *Account) View() *AccountView {
	return &AccountView{
		ID:          a.ID,
		Username:    a.Username,
		Role:        a.Role,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		LastLoginAt: a.LastLoginAt,
		IsActive:    a.IsActive,
	}
}

// AccountView is the externally visible shape of an account.
type AccountView struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Role        Role       `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	IsActive    bool       `json:"is_active"`
}

// AccountUpdate is a partial update; nil fields are left untouched.
type AccountUpdate struct {
	Username *string
	Role     *Role
	IsActive *bool
}

// Empty reports whether no field is set.
func (u AccountUpdate) Empty() bool {
	return u.Username == nil && u.Role == nil && u.IsActive == nil
}
