package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/logging"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/service"
)

// PaymentEvent handles POST /v1/payments/events, the gateway callback.
// Gateways retry until they get a 2xx, so verdicts that can no longer
// apply (the booking was already confirmed, cancelled or expired) are
// acknowledged with 202 instead of an error.
func (h *BookingHandler) PaymentEvent(c echo.Context) error {
	var body model.PaymentResult
	if err := c.Bind(&body); err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
	}
	if body.BookingID == 0 {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "booking_id is required")
	}

	ctx := c.Request().Context()
	err := h.Engine.HandlePaymentResult(ctx, body)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"booking_id": body.BookingID, "status": "applied"})
	case errors.Is(err, service.ErrInvalidBookingState), errors.Is(err, service.ErrAlreadyFinalized):
		logging.FromContext(ctx).Info("stale payment result ignored",
			zap.Uint64("booking_id", body.BookingID),
			zap.Bool("succeeded", body.Succeeded),
			zap.Error(err))
		return c.JSON(http.StatusAccepted, echo.Map{"booking_id": body.BookingID, "status": "ignored"})
	}
	return writeServiceError(c, err)
}
