package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/authgate/internal/core/domain"
	"github.com/99minutos/authgate/internal/core/ports"
	"github.com/99minutos/authgate/internal/pkg/metrics"
)

// Authenticate validates the bearer token and attaches the caller identity.
//
// When enforcement is disabled the request goes straight to next with no
// identity and the bypass flag set. Rejections carry the domain error as the
// internal cause so the error handler and logs can tell them apart, while the
// client sees a uniform 401.
func Authenticate(tokens ports.TokenValidator, toggle ports.EnforcementReader, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			if !toggle.Read(req.Context()).Enabled {
				c.Set(KeyBypass, true)
				metrics.EnforcementBypassTotal.Inc()
				log.Info().
					Str("audit", "bypass").
					Str("method", req.Method).
					Str("path", c.Path()).
					Str("remote_ip", c.RealIP()).
					Msg("authentication bypassed, enforcement disabled")
				return next(c)
			}

			token, ok := tokens.ExtractFromHeader(req.Header.Get(echo.HeaderAuthorization))
			if !ok {
				metrics.AuthDecisionsTotal.WithLabelValues("authentication_required").Inc()
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required").
					SetInternal(domain.ErrAuthenticationRequired)
			}

			claim, err := tokens.Validate(token)
			if err != nil {
				metrics.AuthDecisionsTotal.WithLabelValues("invalid_credential").Inc()
				log.Debug().Str("path", c.Path()).Str("remote_ip", c.RealIP()).Msg("rejected invalid token")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid credential").
					SetInternal(domain.ErrInvalidCredential)
			}

			attach(c, claim)
			metrics.AuthDecisionsTotal.WithLabelValues("authenticated").Inc()
			return next(c)
		}
	}
}
