package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/model"
)

// RegisterBookings registers the booking routes for customers and staff.
// Booking creation is rate limited per caller; the limiter runs after
// JWTAuth so it can key on the user id.
func RegisterBookings(e *echo.Echo, d Deps) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleStaff),
	)
	create := []echo.MiddlewareFunc{}
	if d.RateLimit != nil {
		create = append(create, d.RateLimit)
	}
	g.POST("/showtimes/:id/bookings", d.Bookings.Create, create...)

	// /pending is registered before /:id; Echo prefers static segments
	// either way.
	g.GET("/bookings/pending", d.Bookings.GetPending)
	g.GET("/bookings/:id", d.Bookings.Get)
	g.POST("/bookings/:id/confirm", d.Bookings.Confirm)
	g.POST("/bookings/:id/cancel", d.Bookings.Cancel)
}
