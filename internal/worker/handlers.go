package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

// LoyaltyCrediter credits points idempotently per (booking, kind).
type LoyaltyCrediter interface {
	Credit(ctx context.Context, userID, bookingID uint64, kind string, points int64) (bool, error)
}

// PromotionReleaser releases a booking's promotion usage.
type PromotionReleaser interface {
	Release(ctx context.Context, promotionID, bookingID uint64) error
}

// PaymentEnsurer writes a payment row unless one exists.
type PaymentEnsurer interface {
	Ensure(ctx context.Context, p *model.Payment) (bool, error)
}

// HistoryAppender appends audit entries outside a booking transaction.
type HistoryAppender interface {
	Append(ctx context.Context, h *model.BookingHistory) error
}

// Notifier delivers customer notifications.
type Notifier interface {
	SendBookingConfirmation(ctx context.Context, ev queue.BookingConfirmedEvent) error
	SendCancellationNotice(ctx context.Context, ev queue.BookingCancelledEvent) error
}

// SeatMapInvalidator drops cached seat maps.
type SeatMapInvalidator interface {
	Invalidate(ctx context.Context, showtimeID uint64) error
}

// Handlers are the side effects that follow a booking transition.  Each
// method handles one concern so a failure in one does not redeliver the
// others.
type Handlers struct {
	Loyalty    LoyaltyCrediter
	Promotions PromotionReleaser
	Payments   PaymentEnsurer
	History    HistoryAppender
	Notifier   Notifier
	Cache      SeatMapInvalidator
	Log        *zap.Logger
}

// Consumer names a handler for deduplication and logging.
type Consumer struct {
	Name      string
	EventType string
	Handle    queue.Handler
}

// Consumers lists every handler with the event type it consumes.
func (h *Handlers) Consumers() []Consumer {
	out := []Consumer{
		{Name: "loyalty-earn", EventType: queue.TypeBookingConfirmed, Handle: h.AwardPoints},
		{Name: "payment-reconcile", EventType: queue.TypeBookingConfirmed, Handle: h.ReconcilePayment},
		{Name: "loyalty-refund", EventType: queue.TypeBookingCancelled, Handle: h.RefundPoints},
		{Name: "promotion-release", EventType: queue.TypeBookingCancelled, Handle: h.ReleasePromotion},
	}
	if h.Notifier != nil {
		out = append(out,
			Consumer{Name: "notify-confirmed", EventType: queue.TypeBookingConfirmed, Handle: h.NotifyConfirmed},
			Consumer{Name: "notify-cancelled", EventType: queue.TypeBookingCancelled, Handle: h.NotifyCancelled},
		)
	}
	if h.Cache != nil {
		for _, t := range queue.Types {
			out = append(out, Consumer{Name: "seatmap-invalidate", EventType: t, Handle: h.InvalidateSeatMap})
		}
	}
	return out
}

func (h *Handlers) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func malformed(err error) error { return fmt.Errorf("%w: %v", queue.ErrMalformed, err) }

// AwardPoints credits the points earned by a confirmed booking and notes
// it in the booking history.  Walk-in bookings earn nothing.
func (h *Handlers) AwardPoints(ctx context.Context, evt queue.Event) error {
	var ev queue.BookingConfirmedEvent
	if err := evt.Decode(&ev); err != nil {
		return malformed(err)
	}
	if ev.CustomerID == nil || ev.PointsEarned <= 0 {
		return nil
	}
	credited, err := h.Loyalty.Credit(ctx, *ev.CustomerID, ev.BookingID, model.LoyaltyEarn, ev.PointsEarned)
	if err != nil {
		return fmt.Errorf("credit points for booking %d: %w", ev.BookingID, err)
	}
	if !credited {
		return nil
	}
	h.log().Info("loyalty points credited",
		zap.Uint64("booking_id", ev.BookingID),
		zap.Uint64("customer_id", *ev.CustomerID),
		zap.Int64("points", ev.PointsEarned))
	return h.note(ctx, ev.BookingID, model.BookingConfirmed, "loyalty points credited", ev.PointsEarned)
}

// RefundPoints returns the points redeemed by a cancelled booking.
func (h *Handlers) RefundPoints(ctx context.Context, evt queue.Event) error {
	var ev queue.BookingCancelledEvent
	if err := evt.Decode(&ev); err != nil {
		return malformed(err)
	}
	if ev.CustomerID == nil || ev.PointsUsed <= 0 {
		return nil
	}
	credited, err := h.Loyalty.Credit(ctx, *ev.CustomerID, ev.BookingID, model.LoyaltyRefund, ev.PointsUsed)
	if err != nil {
		return fmt.Errorf("refund points for booking %d: %w", ev.BookingID, err)
	}
	if !credited {
		return nil
	}
	h.log().Info("loyalty points refunded",
		zap.Uint64("booking_id", ev.BookingID),
		zap.Uint64("customer_id", *ev.CustomerID),
		zap.Int64("points", ev.PointsUsed))
	return h.note(ctx, ev.BookingID, model.BookingCancelled, "loyalty points refunded", ev.PointsUsed)
}

// ReleasePromotion releases the promotion usage when the cancellation
// transaction could not.  An already released usage is fine.
func (h *Handlers) ReleasePromotion(ctx context.Context, evt queue.Event) error {
	var ev queue.BookingCancelledEvent
	if err := evt.Decode(&ev); err != nil {
		return malformed(err)
	}
	if ev.PromotionID == nil {
		return nil
	}
	err := h.Promotions.Release(ctx, *ev.PromotionID, ev.BookingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release promotion %d for booking %d: %w", *ev.PromotionID, ev.BookingID, err)
	}
	h.log().Info("promotion usage released",
		zap.Uint64("booking_id", ev.BookingID), zap.Uint64("promotion_id", *ev.PromotionID))
	return nil
}

// ReconcilePayment writes the payment row a confirmation could not.
func (h *Handlers) ReconcilePayment(ctx context.Context, evt queue.Event) error {
	var ev queue.BookingConfirmedEvent
	if err := evt.Decode(&ev); err != nil {
		return malformed(err)
	}
	if ev.Payment.Recorded {
		return nil
	}
	written, err := h.Payments.Ensure(ctx, &model.Payment{
		BookingID: ev.BookingID,
		Amount:    ev.Payment.Amount,
		Method:    ev.Payment.Method,
		Reference: ev.Payment.Reference,
		Status:    model.PaymentSucceeded,
	})
	if err != nil {
		return fmt.Errorf("reconcile payment for booking %d: %w", ev.BookingID, err)
	}
	if written {
		h.log().Info("payment record backfilled", zap.Uint64("booking_id", ev.BookingID), zap.Int64("amount", ev.Payment.Amount))
	}
	return nil
}

// NotifyConfirmed sends the tickets of a confirmed booking.
func (h *Handlers) NotifyConfirmed(ctx context.Context, evt queue.Event) error {
	var ev queue.BookingConfirmedEvent
	if err := evt.Decode(&ev); err != nil {
		return malformed(err)
	}
	return h.Notifier.SendBookingConfirmation(ctx, ev)
}

// NotifyCancelled sends a cancellation notice.
func (h *Handlers) NotifyCancelled(ctx context.Context, evt queue.Event) error {
	var ev queue.BookingCancelledEvent
	if err := evt.Decode(&ev); err != nil {
		return malformed(err)
	}
	return h.Notifier.SendCancellationNotice(ctx, ev)
}

// InvalidateSeatMap drops the cached seat map of the event's showtime.
// Every booking event carries showtime_id at the top of its payload.
func (h *Handlers) InvalidateSeatMap(ctx context.Context, evt queue.Event) error {
	var ev struct {
		ShowtimeID uint64 `json:"showtime_id"`
	}
	if err := evt.Decode(&ev); err != nil {
		return malformed(err)
	}
	if ev.ShowtimeID == 0 {
		return nil
	}
	return h.Cache.Invalidate(ctx, ev.ShowtimeID)
}

func (h *Handlers) note(ctx context.Context, bookingID uint64, status, notes string, points int64) error {
	if h.History == nil {
		return nil
	}
	err := h.History.Append(ctx, &model.BookingHistory{
		BookingID: bookingID,
		Status:    status,
		Notes:     notes,
		Payload:   []byte(fmt.Sprintf(`{"points":%d}`, points)),
	})
	if err != nil {
		// The credit itself is already committed.
		h.log().Warn("history append failed", zap.Uint64("booking_id", bookingID), zap.Error(err))
	}
	return nil
}
