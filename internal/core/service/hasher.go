package service

import (
	"fmt"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/authgate/internal/core/domain"
	"github.com/99minutos/authgate/internal/pkg/metrics"
)

// DefaultHashCost puts a single hash in the tens-of-milliseconds range on
// commodity hardware.
const DefaultHashCost = 12

const (
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes and newer versions reject it.
	maxPasswordBytes = 72
)

// BcryptHasher implements ports.CredentialHasher with an adaptive,
// salted bcrypt hash.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher with the given work factor. Costs outside
// bcrypt's accepted range fall back to DefaultHashCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultHashCost
	}
	return &BcryptHasher{cost: cost}
}

// Cost returns the configured work factor.
func (h *BcryptHasher) Cost() int { return h.cost }

// Hash returns a fresh salted hash of plaintext. Any failure is reported as
// domain.ErrHashingFailure and no hash is returned.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	start := time.Now()
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrHashingFailure, err)
	}
	metrics.PasswordHashDuration.Observe(time.Since(start).Seconds())
	return string(hash), nil
}

// Verify compares plaintext against a stored hash using the salt and cost
// embedded in it. Malformed hashes never verify.
func (h *BcryptHasher) Verify(plaintext, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext)) == nil
}

// AssessStrength checks plaintext against the password policy. It has no
// side effects and does not depend on the hasher's state.
func (h *BcryptHasher) AssessStrength(plaintext string) domain.StrengthReport {
	return AssessStrength(plaintext)
}

// AssessStrength requires at least 8 characters with one uppercase letter,
// one lowercase letter and one digit.
func AssessStrength(plaintext string) domain.StrengthReport {
	var upper, lower, digit bool
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}

	var violations []string
	if len([]rune(plaintext)) < minPasswordLength {
		violations = append(violations, fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if len(plaintext) > maxPasswordBytes {
		violations = append(violations, fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}
	if !upper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if !lower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if !digit {
		violations = append(violations, "must contain a digit")
	}

	return domain.StrengthReport{Valid: len(violations) == 0, Violations: violations}
}
