package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

// defaultPaymentMethod is recorded when the caller does not name one.
const defaultPaymentMethod = "MANUAL"

// ConfirmInput marks a booking paid.  A zero Amount records the booking
// total.
type ConfirmInput struct {
	Actor     model.Actor
	BookingID uint64
	Amount    int64
	Method    string
	Reference string
}

// ConfirmResult is the confirmed booking.  PaymentRecorded is false when
// the payment row could not be written; the reconciler backfills it.
type ConfirmResult struct {
	Booking         model.Booking  `json:"booking"`
	Tickets         []model.Ticket `json:"tickets"`
	PaymentRecorded bool           `json:"payment_recorded"`
}

// Confirm moves a PENDING booking to CONFIRMED, activates its tickets and
// records the payment.  Points are awarded and tickets delivered by the
// booking.confirmed consumers.
func (s *BookingService) Confirm(ctx context.Context, in ConfirmInput) (*ConfirmResult, error) {
	b, err := s.loadBooking(ctx, in.BookingID)
	if err != nil {
		return nil, err
	}
	if err := authorizeConfirm(b, in.Actor); err != nil {
		return nil, err
	}
	if b.Status != model.BookingPending {
		return nil, &InvalidBookingStateError{BookingID: b.ID, Status: b.Status, Want: model.BookingPending}
	}
	st, err := s.loadShowtime(ctx, b.ShowtimeID)
	if err != nil {
		return nil, err
	}

	pay := model.Payment{
		BookingID: b.ID,
		Amount:    in.Amount,
		Method:    in.Method,
		Reference: in.Reference,
		Status:    model.PaymentSucceeded,
	}
	if pay.Method == "" {
		pay.Method = defaultPaymentMethod
	}

	var res ConfirmResult
	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		locked, err := s.bookings.GetForUpdateTx(ctx, tx, b.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBookingNotFound
		}
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}
		if locked.Status != model.BookingPending {
			return &InvalidBookingStateError{BookingID: locked.ID, Status: locked.Status, Want: model.BookingPending}
		}
		if pay.Amount == 0 {
			pay.Amount = locked.TotalAmount
		}

		if err := s.bookings.TransitionTx(ctx, tx, locked.ID, model.BookingPending, model.BookingConfirmed); err != nil {
			return fmt.Errorf("confirm booking: %w", err)
		}
		if err := s.tickets.SetStatusByBookingTx(ctx, tx, locked.ID, model.TicketActive); err != nil {
			return fmt.Errorf("activate tickets: %w", err)
		}

		payErr := s.tx.SavepointTx(ctx, tx, "payment_record", func() error {
			return s.payments.InsertTx(ctx, tx, &pay)
		})
		res.PaymentRecorded = payErr == nil
		if payErr != nil {
			s.log.Warn("payment record deferred to reconciler",
				zap.Uint64("booking_id", locked.ID),
				zap.Int64("amount", pay.Amount),
				zap.Error(payErr))
		}

		tickets, err := s.tickets.ListByBookingTx(ctx, tx, locked.ID)
		if err != nil {
			return fmt.Errorf("list tickets: %w", err)
		}

		if err := s.history.AppendTx(ctx, tx, &model.BookingHistory{
			BookingID: locked.ID,
			Status:    model.BookingConfirmed,
			Notes:     "payment confirmed",
			Payload: marshalPayload(map[string]any{
				"amount":           pay.Amount,
				"method":           pay.Method,
				"reference":        pay.Reference,
				"payment_recorded": res.PaymentRecorded,
				"confirmed_by":     in.Actor.UserID,
			}),
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		codes := make([]string, len(tickets))
		for i, t := range tickets {
			codes[i] = t.Code
		}
		confirmedAt := s.clock.Now()
		evt, err := queue.NewEvent(queue.TypeBookingConfirmed, locked.ID, queue.BookingConfirmedEvent{
			BookingID:    locked.ID,
			CreatorID:    locked.CreatorID,
			CustomerID:   locked.CustomerID,
			ShowtimeID:   locked.ShowtimeID,
			MovieTitle:   st.MovieTitle,
			RoomName:     st.RoomName,
			StartsAt:     st.StartsAt,
			Seats:        seatLabels(tickets),
			TicketCodes:  codes,
			TotalAmount:  locked.TotalAmount,
			PointsEarned: locked.PointsEarned,
			Payment: queue.Payment{
				Amount:    pay.Amount,
				Method:    pay.Method,
				Reference: pay.Reference,
				Recorded:  res.PaymentRecorded,
			},
			ConfirmedAt: confirmedAt,
		})
		if err != nil {
			return err
		}
		if err := s.outbox.EnqueueTx(ctx, tx, evt); err != nil {
			return err
		}

		locked.Status = model.BookingConfirmed
		res.Booking = *locked
		res.Tickets = tickets
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking confirmed",
		zap.Uint64("booking_id", res.Booking.ID),
		zap.Int64("amount", pay.Amount),
		zap.Bool("payment_recorded", res.PaymentRecorded))
	return &res, nil
}

// HandlePaymentResult applies a payment gateway verdict.  Success confirms
// the booking as the engine; failure cancels it.  A success for an amount
// other than the booking total is logged and still confirmed.
func (s *BookingService) HandlePaymentResult(ctx context.Context, r model.PaymentResult) error {
	if !r.Succeeded {
		_, err := s.Cancel(ctx, CancelInput{
			Actor:        model.SystemActor,
			BookingID:    r.BookingID,
			Reason:       ReasonPaymentFailed,
			OnlyIfStatus: model.BookingPending,
		})
		if err != nil {
			return fmt.Errorf("payment failed for booking %d: %w", r.BookingID, err)
		}
		s.log.Info("booking cancelled after failed payment",
			zap.Uint64("booking_id", r.BookingID), zap.String("gateway_reason", r.Reason))
		return nil
	}

	b, err := s.loadBooking(ctx, r.BookingID)
	if err != nil {
		return err
	}
	if r.Amount != 0 && r.Amount != b.TotalAmount {
		s.log.Warn("payment amount differs from booking total",
			zap.Uint64("booking_id", b.ID),
			zap.Int64("paid", r.Amount),
			zap.Int64("total", b.TotalAmount),
			zap.String("reference", r.Reference))
	}
	_, err = s.Confirm(ctx, ConfirmInput{
		Actor:     model.SystemActor,
		BookingID: r.BookingID,
		Amount:    r.Amount,
		Method:    r.Method,
		Reference: r.Reference,
	})
	if err != nil {
		return fmt.Errorf("payment succeeded for booking %d: %w", r.BookingID, err)
	}
	return nil
}
