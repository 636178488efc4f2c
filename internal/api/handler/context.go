package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/authgate/internal/api/middleware"
	"github.com/99minutos/authgate/internal/core/domain"
)

// bypassActor is recorded as the author of changes made while enforcement
// is disabled and no caller identity exists.
const bypassActor = "anonymous"

// callerIdentity returns the identity attached by the Authenticate
// middleware, or a 401 when the request carries none.
func callerIdentity(c echo.Context) (middleware.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return middleware.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required").
			SetInternal(domain.ErrAuthenticationRequired)
	}
	return id, nil
}

// actor returns the caller's id and name for audit purposes. Bypassed
// requests yield zero and bypassActor.
func actor(c echo.Context) (int64, string) {
	if id, ok := middleware.IdentityFrom(c); ok {
		return id.UserID, id.Username
	}
	return 0, bypassActor
}

// accountID parses the :id path parameter.
func accountID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid account id")
	}
	return id, nil
}

// bindAndValidate decodes the body into req and runs struct validation.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	return c.Validate(req)
}
