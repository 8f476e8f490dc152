package middleware

// identity.go holds the authenticated caller in the Echo context.  JWTAuth
// stores it; handlers, RequireRole and the rate limiter read it back.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/model"
)

const actorKey = "actor"

// SetActor stores the caller in c.
func SetActor(c echo.Context, a model.Actor) {
	c.Set(actorKey, a)
}

// ActorFrom returns the caller stored by JWTAuth.  ok is false on
// unauthenticated routes.
func ActorFrom(c echo.Context) (model.Actor, bool) {
	a, ok := c.Get(actorKey).(model.Actor)
	return a, ok
}

// userID renders the caller id for keys and logs, "anon" when no one is
// authenticated.
func userID(c echo.Context) string {
	if a, ok := ActorFrom(c); ok && a.UserID != 0 {
		return strconv.FormatUint(a.UserID, 10)
	}
	return "anon"
}
