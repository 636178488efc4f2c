package handler

import (
	"time"

	"github.com/99minutos/authgate/internal/core/domain"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// --- Request / Response types ---

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password"     validate:"required"`
}

type createAccountRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role"     validate:"omitempty,oneof=admin user"`
}

type updateAccountRequest struct {
	Username *string `json:"username,omitempty"  validate:"omitempty,min=1,max=64"`
	Role     *string `json:"role,omitempty"      validate:"omitempty,oneof=admin user"`
	IsActive *bool   `json:"is_active,omitempty"`
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin user"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

type enforcementRequest struct {
	AuthenticationEnabled *bool `json:"authentication_enabled" validate:"required"`
}

type enforcementResponse struct {
	AuthenticationEnabled bool      `json:"authentication_enabled"`
	UpdatedAt             time.Time `json:"updated_at"`
	UpdatedBy             string    `json:"updated_by"`
}

type accountListResponse struct {
	Accounts []domain.AccountView `json:"accounts"`
	Total    int                  `json:"total"`
}

func toEnforcementResponse(s domain.EnforcementSetting) enforcementResponse {
	return enforcementResponse{
		AuthenticationEnabled: s.Enabled,
		UpdatedAt:             s.UpdatedAt,
		UpdatedBy:             s.UpdatedBy,
	}
}
