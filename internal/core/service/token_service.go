package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/99minutos/authgate/internal/core/domain"
	"github.com/99minutos/authgate/internal/pkg/metrics"
)

const (
	DefaultTokenTTL = 24 * time.Hour
	DefaultIssuer   = "authgate"

	fallbackKeyBytes     = 32
	insecureWarnInterval = time.Minute
)

// sessionClaims is the JWT payload: registered iss/sub/iat/exp plus the
// session identity.
type sessionClaims struct {
	jwt.RegisteredClaims
	UserID   int64       `json:"uid"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

// TokenOption customises a JWTService.
type TokenOption func(*JWTService)

// WithTTL overrides the validity window.
func WithTTL(ttl time.Duration) TokenOption {
	return func(s *JWTService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithIssuer overrides the issuer identifier.
func WithIssuer(issuer string) TokenOption {
	return func(s *JWTService) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithClock replaces time.Now for issuance and validation.
func WithClock(now func() time.Time) TokenOption {
	return func(s *JWTService) { s.now = now }
}

// JWTService issues and validates HS256 session tokens. It holds no mutable
// state besides the insecure-key warning timestamp and is safe for
// concurrent use.
type JWTService struct {
	secret   []byte
	issuer   string
	ttl      time.Duration
	now      func() time.Time
	insecure bool
	lastWarn atomic.Int64
	log      zerolog.Logger
}

// NewJWTService builds the token service. An empty secret makes the service
// generate a random process-local key and warn about it repeatedly; tokens
// signed with it do not survive a restart.
func NewJWTService(secret string, log zerolog.Logger, opts ...TokenOption) (*JWTService, error) {
	s := &JWTService{
		secret: []byte(secret),
		issuer: DefaultIssuer,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}

	if secret == "" {
		key := make([]byte, fallbackKeyBytes)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating fallback signing key: %w", err)
		}
		s.secret = key
		s.insecure = true
		s.warnInsecure()
	}

	return s, nil
}

// Issue signs a token for the given identity, valid for the configured TTL.
// A non-positive id, empty username or unknown role is domain.ErrInvalidClaim.
func (s *JWTService) Issue(userID int64, username string, role domain.Role) (string, *domain.SessionClaim, error) {
	// Refuse identities that Validate would reject.
	if userID <= 0 || username == "" || !role.IsValid() {
		return "", nil, fmt.Errorf("%w: uid=%d username=%q role=%q", domain.ErrInvalidClaim, userID, username, role)
	}

	if s.insecure {
		s.warnInsecure()
	}

	now := s.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UserID:   userID,
		Username: username,
		Role:     role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing session token: %w", err)
	}
	return signed, toSessionClaim(&claims), nil
}

// Validate checks signature, issuer and expiry together. Every failure is
// reported as domain.ErrInvalidCredential; use Inspect to tell them apart.
func (s *JWTService) Validate(token string) (*domain.SessionClaim, error) {
	out := s.Inspect(token)
	if out.Kind != domain.TokenValid {
		return nil, domain.ErrInvalidCredential
	}
	return out.Claim, nil
}

// Inspect classifies a token without collapsing the failure reason.
func (s *JWTService) Inspect(token string) domain.TokenOutcome {
	out := s.inspect(token)
	metrics.TokenOutcomesTotal.WithLabelValues(string(out.Kind)).Inc()
	return out
}

func (s *JWTService) inspect(token string) domain.TokenOutcome {
	claims := &sessionClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)

	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case err == nil && parsed.Valid:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return domain.TokenOutcome{Kind: domain.TokenBadSignature}
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.TokenOutcome{Kind: domain.TokenExpired}
	default:
		return domain.TokenOutcome{Kind: domain.TokenMalformed}
	}

	if claims.UserID <= 0 || claims.Username == "" || !claims.Role.IsValid() {
		return domain.TokenOutcome{Kind: domain.TokenMalformed}
	}

	return domain.TokenOutcome{Kind: domain.TokenValid, Claim: toSessionClaim(claims)}
}

// ExtractFromHeader returns the token from an "Authorization: Bearer <token>"
// value. Any other scheme, or an empty value, is reported as absent.
func (s *JWTService) ExtractFromHeader(headerValue string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(headerValue), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *JWTService) warnInsecure() {
	now := time.Now().UnixNano()
	last := s.lastWarn.Load()
	if last != 0 && now-last < int64(insecureWarnInterval) {
		return
	}
	if !s.lastWarn.CompareAndSwap(last, now) {
		return
	}
	s.log.Warn().
		Str("audit", "insecure_config").
		Str("action_required", "set JWT_SECRET to a strong random value").
		Msg("JWT_SECRET is not set: tokens are signed with a generated key and this deployment is insecure")
}

func toSessionClaim(c *sessionClaims) *domain.SessionClaim {
	claim := &domain.SessionClaim{
		UserID:   c.UserID,
		Username: c.Username,
		Role:     c.Role,
	}
	if c.IssuedAt != nil {
		claim.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		claim.ExpiresAt = c.ExpiresAt.Time
	}
	return claim
}
