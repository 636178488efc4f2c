package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotInitialized         = errors.New("store not initialized")
	ErrDuplicateUsername      = errors.New("username already exists")
	ErrNotFound               = errors.New("account not found")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInvalidCredential      = errors.New("invalid credentials")
	ErrForbidden              = errors.New("access forbidden")
	ErrHashingFailure         = errors.New("password hashing failed")
	ErrPersistenceFailure     = errors.New("failed to persist setting")
	ErrWeakPassword           = errors.New("password does not meet policy")
	ErrInvalidRole            = errors.New("invalid role")
	ErrInvalidUsername        = errors.New("invalid username")
	ErrSettingNotFound        = errors.New("enforcement setting not found")
	ErrSettingCorrupt         = errors.New("enforcement setting unreadable")
	ErrSelfModification       = errors.New("cannot modify own account in this way")
	ErrConfirmationMismatch   = errors.New("confirmation does not match username")
	ErrInvalidClaim           = errors.New("invalid session claim")
)

// ForbiddenError carries the roles an operation required.
type ForbiddenError struct {
	Required []Role
}

func (e *ForbiddenError) Error() string {
	roles := make([]string, len(e.Required))
	for i, r := range e.Required {
		roles[i] = string(r)
	}
	return "access forbidden: requires role " + strings.Join(roles, " or ")
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// WeakPasswordError lists every policy rule a candidate password broke.
type WeakPasswordError struct {
	Violations []string
}

func (e *WeakPasswordError) Error() string {
	return "password does not meet policy: " + strings.Join(e.Violations, "; ")
}

func (e *WeakPasswordError) Unwrap() error { return ErrWeakPassword }
