package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRole aborts with 403 unless the caller stored by JWTAuth has one
// of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a, ok := ActorFrom(c)
			if !ok || !allowed[a.Role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "code": "UNAUTHORIZED"})
			}
			return next(c)
		}
	}
}
