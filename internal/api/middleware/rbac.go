package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/authgate/internal/core/domain"
	"github.com/99minutos/authgate/internal/pkg/metrics"
)

// RequireRoles enforces role-based access control. It must run after
// Authenticate. Bypassed requests pass through untouched.
func RequireRoles(roles ...domain.Role) echo.MiddlewareFunc {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	forbidden := &domain.ForbiddenError{Required: roles}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if Bypassed(c) {
				return next(c)
			}

			id, ok := IdentityFrom(c)
			if !ok {
				metrics.AuthDecisionsTotal.WithLabelValues("authentication_required").Inc()
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required").
					SetInternal(domain.ErrAuthenticationRequired)
			}
			if _, ok := allowed[id.Role]; !ok {
				metrics.AuthDecisionsTotal.WithLabelValues("forbidden").Inc()
				return echo.NewHTTPError(http.StatusForbidden, forbidden.Error()).SetInternal(forbidden)
			}

			metrics.AuthDecisionsTotal.WithLabelValues("authorized").Inc()
			return next(c)
		}
	}
}

// RequireIdentity rejects requests that carry no identity, including
// bypassed ones. Self-service routes use it since they act on the caller.
func RequireIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := IdentityFrom(c); !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required").
					SetInternal(domain.ErrAuthenticationRequired)
			}
			return next(c)
		}
	}
}
