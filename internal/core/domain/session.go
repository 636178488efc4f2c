package domain

import "time"

// SessionClaim is the identity embedded in a signed token. It is rebuilt on
// every request and never stored.
type SessionClaim struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenOutcomeKind classifies the result of inspecting a token.
type TokenOutcomeKind string

const (
	TokenValid        TokenOutcomeKind = "valid"
	TokenExpired      TokenOutcomeKind = "expired"
	TokenMalformed    TokenOutcomeKind = "malformed"
	TokenBadSignature TokenOutcomeKind = "bad_signature"
)

// TokenOutcome is the diagnostic result of token inspection. Claim is only
// set when Kind is TokenValid.
type TokenOutcome struct {
	Kind  TokenOutcomeKind
	Claim *SessionClaim
}

// StrengthReport is the result of a password policy check.
type StrengthReport struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
}
