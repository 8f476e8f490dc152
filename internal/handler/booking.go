package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/logging"
	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/service"
)

// BookingEngine is the part of service.BookingService the HTTP layer uses.
type BookingEngine interface {
	Create(ctx context.Context, in service.CreateInput) (*service.CreateResult, error)
	Confirm(ctx context.Context, in service.ConfirmInput) (*service.ConfirmResult, error)
	Cancel(ctx context.Context, in service.CancelInput) (*service.CancelResult, error)
	Get(ctx context.Context, actor model.Actor, id uint64) (*service.BookingDetails, error)
	GetPending(ctx context.Context, actor model.Actor) (*model.PendingBooking, error)
	SeatMap(ctx context.Context, showtimeID uint64) ([]model.SeatStatus, error)
	HandlePaymentResult(ctx context.Context, r model.PaymentResult) error
}

// SeatMapInvalidator drops a cached seat map.
type SeatMapInvalidator interface {
	Invalidate(ctx context.Context, showtimeID uint64) error
}

// BookingHandler serves the booking routes.  All methods except the seat
// map expect JWTAuth to have stored the caller.
type BookingHandler struct {
	Engine BookingEngine
	Cache  SeatMapInvalidator // optional
}

// NewBookingHandler panics on a nil engine.
func NewBookingHandler(engine BookingEngine, cache SeatMapInvalidator) *BookingHandler {
	if engine == nil {
		panic("nil engine passed to NewBookingHandler")
	}
	return &BookingHandler{Engine: engine, Cache: cache}
}

type createBookingRequest struct {
	CustomerID  *uint64              `json:"customer_id"`
	Seats       []model.SeatSelector `json:"seats"`
	PromotionID *uint64              `json:"promotion_id"`
	PointsToUse int64                `json:"points_to_use"`
}

type confirmBookingRequest struct {
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

// Create handles POST /v1/showtimes/:id/bookings.  It returns 201 with the
// booking and its tickets.
func (h *BookingHandler) Create(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "unauthorized")
	}
	showtimeID, ok := pathID(c)
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid showtime id")
	}
	var body createBookingRequest
	if err := c.Bind(&body); err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
	}
	if len(body.Seats) == 0 {
		return writeError(c, http.StatusBadRequest, codeInvalidSeatSelection, "seats is required")
	}
	if body.PointsToUse < 0 {
		return writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "points_to_use must not be negative")
	}

	ctx := c.Request().Context()
	res, err := h.Engine.Create(ctx, service.CreateInput{
		Actor:       actor,
		ShowtimeID:  showtimeID,
		CustomerID:  body.CustomerID,
		Seats:       body.Seats,
		PromotionID: body.PromotionID,
		PointsToUse: body.PointsToUse,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	h.invalidate(c, showtimeID)
	return c.JSON(http.StatusCreated, res)
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "unauthorized")
	}
	id, ok := pathID(c)
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid booking id")
	}
	details, err := h.Engine.Get(c.Request().Context(), actor, id)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, details)
}

// GetPending handles GET /v1/bookings/pending.  It answers 404 when the
// caller has nothing awaiting payment.
func (h *BookingHandler) GetPending(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "unauthorized")
	}
	p, err := h.Engine.GetPending(c.Request().Context(), actor)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Confirm handles POST /v1/bookings/:id/confirm.  The body is optional;
// without an amount the booking total is recorded.
func (h *BookingHandler) Confirm(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "unauthorized")
	}
	id, ok := pathID(c)
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid booking id")
	}
	var body confirmBookingRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		}
	}
	res, err := h.Engine.Confirm(c.Request().Context(), service.ConfirmInput{
		Actor:     actor,
		BookingID: id,
		Amount:    body.Amount,
		Method:    body.Method,
		Reference: body.Reference,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Cancel handles POST /v1/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "unauthorized")
	}
	id, ok := pathID(c)
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid booking id")
	}
	var body cancelBookingRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		}
	}
	res, err := h.Engine.Cancel(c.Request().Context(), service.CancelInput{
		Actor:     actor,
		BookingID: id,
		Reason:    body.Reason,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	h.invalidate(c, res.Booking.ShowtimeID)
	return c.JSON(http.StatusOK, res)
}

// invalidate drops the cached seat map right away so the caller sees its
// own change.  The seatmap-invalidate consumer covers bookings changed
// outside HTTP.
func (h *BookingHandler) invalidate(c echo.Context, showtimeID uint64) {
	if h.Cache == nil {
		return
	}
	ctx := c.Request().Context()
	if err := h.Cache.Invalidate(ctx, showtimeID); err != nil {
		logging.FromContext(ctx).Warn("seat map invalidation failed",
			zap.Uint64("showtime_id", showtimeID), zap.Error(err))
	}
}

func pathID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
