package ports

import (
	"context"

	"github.com/99minutos/authgate/internal/core/domain"
)

// UserStore owns the persistent account table.
//
// Every operation other than Initialize fails with domain.ErrNotInitialized
// until Initialize has completed. Lookups by id or username only see active
// accounts; ListAll includes inactive ones for audit.
type UserStore interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error

	CreateAccount(ctx context.Context, username, passwordHash string, role domain.Role) (int64, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	GetByID(ctx context.Context, id int64) (*domain.AccountView, error)
	ListAll(ctx context.Context) ([]domain.AccountView, error)

	UpdateRole(ctx context.Context, id int64, role domain.Role) error
	UpdateFields(ctx context.Context, id int64, update domain.AccountUpdate) error
	RecordLogin(ctx context.Context, id int64) error
	SetPassword(ctx context.Context, id int64, passwordHash string) error
	Deactivate(ctx context.Context, id int64) error
	DeleteHard(ctx context.Context, id int64) error

	Ping(ctx context.Context) error
}
