package ports

import "github.com/99minutos/authgate/internal/core/domain"

// TokenValidator is the read side of the token service, used by middleware.
type TokenValidator interface {
	Validate(token string) (*domain.SessionClaim, error)
	ExtractFromHeader(headerValue string) (string, bool)
}

// TokenService issues and validates stateless session tokens.
type TokenService interface {
	TokenValidator
	Issue(userID int64, username string, role domain.Role) (string, *domain.SessionClaim, error)
	Inspect(token string) domain.TokenOutcome
}
