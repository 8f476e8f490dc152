package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/model"
)

// RegisterPayments registers the payment gateway callback.  Only tokens
// issued to the PAYMENT_GATEWAY role may post verdicts.
func RegisterPayments(e *echo.Echo, d Deps) {
	g := e.Group(
		"/v1/payments",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RolePaymentGateway),
	)
	g.POST("/events", d.Bookings.PaymentEvent)
}
