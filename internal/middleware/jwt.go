package middleware // reusable HTTP middleware for the booking API

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

// JWTAuth validates the Bearer access token and stores the caller as a
// model.Actor in the request context.  Tokens are HS256 signed with
// secret and must carry a numeric subject and a role.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return unauthenticated(c, "missing bearer token")
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return unauthenticated(c, "invalid token")
			}
			// SYSTEM is never issued to clients.
			if claims.Role == model.RoleSystem {
				return unauthenticated(c, "invalid token")
			}
			SetActor(c, model.Actor{UserID: claims.UserID, Role: claims.Role})
			return next(c)
		}
	}
}

func unauthenticated(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg, "code": "UNAUTHENTICATED"})
}
