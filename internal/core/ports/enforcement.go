package ports

import (
	"context"

	"github.com/99minutos/authgate/internal/core/domain"
)

// EnforcementRepository persists the enforcement setting.
//
// Load returns domain.ErrSettingNotFound when nothing has been stored yet and
// an error wrapping domain.ErrSettingCorrupt when a record exists but cannot
// be decoded.
type EnforcementRepository interface {
	Load(ctx context.Context) (domain.EnforcementSetting, error)
	Save(ctx context.Context, setting domain.EnforcementSetting) error
}

// EnforcementReader is what the request path needs from the toggle.
type EnforcementReader interface {
	Read(ctx context.Context) domain.EnforcementSetting
}

// EnforcementToggle adds the administrative write.
type EnforcementToggle interface {
	EnforcementReader
	Write(ctx context.Context, enabled bool, updatedBy string) (domain.EnforcementSetting, error)
}
