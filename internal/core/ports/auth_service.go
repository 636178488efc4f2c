package ports

import (
	"context"
	"time"

	"github.com/99minutos/authgate/internal/core/domain"
)

// LoginResult is returned on a successful login. Warnings carries
// non-fatal problems, such as a failed last-login write.
type LoginResult struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
	Account   *domain.AccountView `json:"user"`
	Warnings  []string            `json:"warnings,omitempty"`
}

type AuthService interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	Me(ctx context.Context, userID int64) (*domain.AccountView, error)
	ChangePassword(ctx context.Context, userID int64, current, next string) error
}

// AccountService is the administrative account surface. actorID is the id of
// the calling admin, or zero when enforcement is bypassed.
type AccountService interface {
	Create(ctx context.Context, username, password string, role domain.Role) (*domain.AccountView, error)
	List(ctx context.Context) ([]domain.AccountView, error)
	UpdateRole(ctx context.Context, actorID, id int64, role domain.Role) (*domain.AccountView, error)
	Update(ctx context.Context, actorID, id int64, update domain.AccountUpdate) (*domain.AccountView, error)
	ResetPassword(ctx context.Context, id int64, password string) error
	Deactivate(ctx context.Context, actorID, id int64) error
	HardDelete(ctx context.Context, actorID, id int64, confirmUsername string) error
}
