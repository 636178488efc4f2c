package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/99minutos/authgate/internal/core/domain"
	"github.com/99minutos/authgate/internal/core/ports"
)

// AccountService implements the administrative account operations on top of
// a UserStore. Passwords always pass the strength policy and the hasher
// before reaching the store.
type AccountService struct {
	store  ports.UserStore
	hasher ports.CredentialHasher
	log    zerolog.Logger
}

func NewAccountService(store ports.UserStore, hasher ports.CredentialHasher, log zerolog.Logger) *AccountService {
	return &AccountService{store: store, hasher: hasher, log: log}
}

func (s *AccountService) Create(ctx context.Context, username, password string, role domain.Role) (*domain.AccountView, error) {
	if !domain.IsValidUsername(username) {
		return nil, domain.ErrInvalidUsername
	}
	if role == "" {
		role = domain.DefaultRole
	}
	if !role.IsValid() {
		return nil, domain.ErrInvalidRole
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}

	id, err := s.store.CreateAccount(ctx, username, hash, role)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("audit", "account_change").
		Int64("user_id", id).
		Str("username", username).
		Str("role", string(role)).
		Msg("account created")

	return s.store.GetByID(ctx, id)
}

func (s *AccountService) List(ctx context.Context) ([]domain.AccountView, error) {
	return s.store.ListAll(ctx)
}

// UpdateRole changes an account's role. Admins cannot demote themselves.
func (s *AccountService) UpdateRole(ctx context.Context, actorID, id int64, role domain.Role) (*domain.AccountView, error) {
	if !role.IsValid() {
		return nil, domain.ErrInvalidRole
	}
	if actorID != 0 && actorID == id && role != domain.RoleAdmin {
		return nil, domain.ErrSelfModification
	}

	if err := s.store.UpdateRole(ctx, id, role); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("audit", "account_change").
		Int64("user_id", id).
		Int64("actor_id", actorID).
		Str("role", string(role)).
		Msg("role updated")

	return s.find(ctx, id)
}

// Update applies a partial update: rename, role change, activation.
func (s *AccountService) Update(ctx context.Context, actorID, id int64, update domain.AccountUpdate) (*domain.AccountView, error) {
	if update.Username != nil && !domain.IsValidUsername(*update.Username) {
		return nil, domain.ErrInvalidUsername
	}
	if update.Role != nil && !update.Role.IsValid() {
		return nil, domain.ErrInvalidRole
	}
	if actorID != 0 && actorID == id {
		if update.Role != nil && *update.Role != domain.RoleAdmin {
			return nil, domain.ErrSelfModification
		}
		if update.IsActive != nil && !*update.IsActive {
			return nil, domain.ErrSelfModification
		}
	}

	if err := s.store.UpdateFields(ctx, id, update); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("audit", "account_change").
		Int64("user_id", id).
		Int64("actor_id", actorID).
		Msg("account updated")

	return s.find(ctx, id)
}

// ResetPassword sets a new password chosen by an administrator.
func (s *AccountService) ResetPassword(ctx context.Context, id int64, password string) error {
	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	if err := s.store.SetPassword(ctx, id, hash); err != nil {
		return err
	}
	s.log.Info().Str("audit", "account_change").Int64("user_id", id).Msg("password reset")
	return nil
}

// Deactivate soft-deletes an account.
func (s *AccountService) Deactivate(ctx context.Context, actorID, id int64) error {
	if actorID != 0 && actorID == id {
		return domain.ErrSelfModification
	}
	if err := s.store.Deactivate(ctx, id); err != nil {
		return err
	}
	s.log.Info().
		Str("audit", "account_change").
		Int64("user_id", id).
		Int64("actor_id", actorID).
		Msg("account deactivated")
	return nil
}

// HardDelete irreversibly removes an account. confirmUsername must equal the
// account's current username.
func (s *AccountService) HardDelete(ctx context.Context, actorID, id int64, confirmUsername string) error {
	if actorID != 0 && actorID == id {
		return domain.ErrSelfModification
	}

	account, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if confirmUsername == "" || confirmUsername != account.Username {
		return domain.ErrConfirmationMismatch
	}

	if err := s.store.DeleteHard(ctx, id); err != nil {
		return err
	}

	s.log.Warn().
		Str("audit", "account_change").
		Int64("user_id", id).
		Int64("actor_id", actorID).
		Str("username", account.Username).
		Msg("account permanently deleted")
	return nil
}

func (s *AccountService) hashPassword(password string) (string, error) {
	if report := s.hasher.AssessStrength(password); !report.Valid {
		return "", &domain.WeakPasswordError{Violations: report.Violations}
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// find looks an account up by id regardless of its active state.
func (s *AccountService) find(ctx context.Context, id int64) (*domain.AccountView, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, domain.ErrNotFound
}
