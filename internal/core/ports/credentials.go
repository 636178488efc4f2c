package ports

import "github.com/99minutos/authgate/internal/core/domain"

// CredentialHasher turns plaintext passwords into salted one-way hashes.
type CredentialHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hashed string) bool
	AssessStrength(plaintext string) domain.StrengthReport
}
