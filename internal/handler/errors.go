package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/logging"
	"github.com/iliyamo/cinema-booking/internal/service"
)

// Error codes returned in the "code" field of error bodies.
const (
	codeInvalidID              = "invalid_id"
	codeInvalidRequestBody     = "invalid_request_body"
	codePendingBookingExists   = "pending_booking_exists"
	codeSeatUnavailable        = "seat_unavailable"
	codeInvalidSeatSelection   = "invalid_seat_selection"
	codeShowtimeNotFound       = "showtime_not_found"
	codeShowtimeNotBookable    = "showtime_not_bookable"
	codeInsufficientPoints     = "insufficient_points"
	codeInvalidBookingState    = "invalid_booking_state"
	codeUnauthorized           = "unauthorized"
	codeAlreadyFinalized       = "already_finalized"
	codePricingNotFound        = "pricing_not_found"
	codeBookingNotFound        = "booking_not_found"
	codePromotionNotApplicable = "promotion_not_applicable"
	codeInternalError          = "internal_error"
)

func writeError(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

// writeServiceError maps booking engine errors to status codes and bodies.
// Typed errors add their context fields to the body.
func writeServiceError(c echo.Context, err error) error {
	var (
		pending   *service.PendingBookingError
		taken     *service.SeatUnavailableError
		selection *service.InvalidSeatSelectionError
		points    *service.InsufficientPointsError
		state     *service.InvalidBookingStateError
	)
	switch {
	case errors.As(err, &pending):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":             "a pending booking awaits payment",
			"code":              codePendingBookingExists,
			"booking_id":        pending.BookingID,
			"remaining_minutes": pending.RemainingMinutes,
			"seats":             pending.Seats,
			"movie_title":       pending.MovieTitle,
			"room_name":         pending.RoomName,
			"showtime_id":       pending.ShowtimeID,
			"starts_at":         pending.StartsAt,
		})
	case errors.Is(err, service.ErrPendingBookingExists):
		return writeError(c, http.StatusConflict, codePendingBookingExists, "a pending booking awaits payment")
	case errors.As(err, &taken):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "seats are no longer available",
			"code":      codeSeatUnavailable,
			"positions": taken.Positions,
		})
	case errors.As(err, &selection):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": selection.Reason,
			"code":  codeInvalidSeatSelection,
			"seats": selection.Selectors,
		})
	case errors.Is(err, service.ErrShowtimeNotFound):
		return writeError(c, http.StatusNotFound, codeShowtimeNotFound, "showtime not found")
	case errors.Is(err, service.ErrShowtimeNotBookable):
		return writeError(c, http.StatusBadRequest, codeShowtimeNotBookable, "showtime is not open for booking")
	case errors.As(err, &points):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":     "not enough loyalty points",
			"code":      codeInsufficientPoints,
			"requested": points.Requested,
			"available": points.Available,
		})
	case errors.As(err, &state):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":  "booking is not in the required state",
			"code":   codeInvalidBookingState,
			"status": state.Status,
			"want":   state.Want,
		})
	case errors.Is(err, service.ErrUnauthorized):
		return writeError(c, http.StatusForbidden, codeUnauthorized, "not allowed for this booking")
	case errors.Is(err, service.ErrAlreadyFinalized):
		return writeError(c, http.StatusConflict, codeAlreadyFinalized, "booking is already finalized")
	case errors.Is(err, service.ErrBookingNotFound):
		return writeError(c, http.StatusNotFound, codeBookingNotFound, "booking not found")
	case errors.Is(err, service.ErrPromotionNotApplicable):
		return writeError(c, http.StatusBadRequest, codePromotionNotApplicable, "promotion cannot be applied")
	case errors.Is(err, service.ErrPricingNotFound):
		logging.FromContext(c.Request().Context()).Error("pricing gap", zap.Error(err))
		return writeError(c, http.StatusInternalServerError, codePricingNotFound, "no price configured for this seat")
	}
	logging.FromContext(c.Request().Context()).Error("booking request failed", zap.Error(err))
	return writeError(c, http.StatusInternalServerError, codeInternalError, "internal error")
}
