package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/99minutos/authgate/internal/core/domain"
	"github.com/99minutos/authgate/internal/core/ports"
	"github.com/99minutos/authgate/internal/pkg/metrics"
)

// AuthService implements login and self-service account operations.
type AuthService struct {
	store  ports.UserStore
	hasher ports.CredentialHasher
	tokens ports.TokenService
	log    zerolog.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(store ports.UserStore, hasher ports.CredentialHasher, tokens ports.TokenService, log zerolog.Logger) *AuthService {
	return &AuthService{store: store, hasher: hasher, tokens: tokens, log: log}
}

// Login verifies a username/password pair and issues a session token.
// Unknown, inactive and wrong-password cases all return
// domain.ErrInvalidCredential.
func (s *AuthService) Login(ctx context.Context, username, password string) (*ports.LoginResult, error) {
	if username == "" || password == "" {
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, domain.ErrInvalidCredential
	}

	account, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Burn a comparison so unknown users cost the same as bad passwords.
			s.hasher.Verify(password, s.timingHash())
			metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
			s.log.Info().Str("audit", "login").Str("username", username).Msg("login rejected")
			return nil, domain.ErrInvalidCredential
		}
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("login: %w", err)
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		s.log.Info().Str("audit", "login").Str("username", username).Msg("login rejected")
		return nil, domain.ErrInvalidCredential
	}

	token, claim, err := s.tokens.Issue(account.ID, account.Username, account.Role)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("login: %w", err)
	}

	result := &ports.LoginResult{
		Token:     token,
		ExpiresAt: claim.ExpiresAt,
		Account:   account.View(),
	}

	if err := s.store.RecordLogin(ctx, account.ID); err != nil {
		s.log.Warn().Err(err).Int64("user_id", account.ID).Msg("failed to record last login")
		result.Warnings = append(result.Warnings, "last login time could not be recorded")
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	s.log.Info().
		Str("audit", "login").
		Int64("user_id", account.ID).
		Str("username", account.Username).
		Str("role", string(account.Role)).
		Msg("login succeeded")

	return result, nil
}

// Me returns the caller's own account.
func (s *AuthService) Me(ctx context.Context, userID int64) (*domain.AccountView, error) {
	return s.store.GetByID(ctx, userID)
}

// ChangePassword replaces the caller's password after re-verifying the
// current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	view, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	account, err := s.store.GetByUsername(ctx, view.Username)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, account.PasswordHash) {
		return domain.ErrInvalidCredential
	}

	if report := s.hasher.AssessStrength(next); !report.Valid {
		return &domain.WeakPasswordError{Violations: report.Violations}
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if err := s.store.SetPassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	s.log.Info().Str("audit", "account_change").Int64("user_id", userID).Msg("password changed")
	return nil
}

// timingHash lazily computes a throwaway hash at the configured cost.
func (s *AuthService) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("timing-equaliser-not-a-password")
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to prepare timing hash")
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
