package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/99minutos/authgate/internal/core/domain"
)

// Context keys written by Authenticate.
const (
	KeyUserID   = "user_id"
	KeyUsername = "username"
	KeyRole     = "role"
	KeyBypass   = "auth_bypass"
)

// Identity is the caller identity attached to an authenticated request.
type Identity struct {
	UserID   int64
	Username string
	Role     domain.Role
}

// IdentityFrom returns the identity attached by Authenticate. ok is false on
// bypassed and unauthenticated requests.
func IdentityFrom(c echo.Context) (Identity, bool) {
	id, ok := c.Get(KeyUserID).(int64)
	if !ok || id == 0 {
		return Identity{}, false
	}
	username, _ := c.Get(KeyUsername).(string)
	role, _ := c.Get(KeyRole).(domain.Role)
	return Identity{UserID: id, Username: username, Role: role}, true
}

// Bypassed reports whether the request skipped authentication because
// enforcement is disabled.
func Bypassed(c echo.Context) bool {
	b, _ := c.Get(KeyBypass).(bool)
	return b
}

func attach(c echo.Context, claim *domain.SessionClaim) {
	c.Set(KeyUserID, claim.UserID)
	c.Set(KeyUsername, claim.Username)
	c.Set(KeyRole, claim.Role)
}
