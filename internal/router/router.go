// Package router wires the HTTP routes of the booking API onto Echo.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/middleware"
)

// Deps carries what the routes need.  RateLimit and SeatMapCache may be
// nil; the routes then run without them.
type Deps struct {
	Bookings     *handler.BookingHandler
	Health       echo.HandlerFunc
	JWTSecret    string
	RateLimit    echo.MiddlewareFunc
	SeatMapCache *middleware.SeatMapCache
	Logger       *zap.Logger
}

// New returns an Echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(d.Logger))
	e.Use(echomw.Recover())

	RegisterRoutes(e, d)
	RegisterBookings(e, d)
	RegisterPayments(e, d)
	return e
}

// RegisterRoutes registers the unauthenticated routes: the health check and
// the seat map of a showtime.
func RegisterRoutes(e *echo.Echo, d Deps) {
	if d.Health != nil {
		e.GET("/healthz", d.Health)
	}
	e.GET("/v1/showtimes/:id/seats", d.Bookings.SeatMap, d.SeatMapCache.Middleware())
}
