package domain

import "time"

// EnforcementSetting is the process-wide switch for the access control checks.
type EnforcementSetting struct {
	Enabled   bool      `json:"authentication_enabled"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

// SystemActor is recorded as UpdatedBy when the service writes a setting itself.
const SystemActor = "system"

// DefaultEnforcement is the fail-open setting: checks are on.
func DefaultEnforcement() EnforcementSetting {
	return EnforcementSetting{Enabled: true, UpdatedBy: SystemActor}
}
