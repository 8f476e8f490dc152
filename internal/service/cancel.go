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

// CancelInput cancels a booking.  OnlyIfStatus, when set, makes the call
// fail with ErrInvalidBookingState unless the booking is in that status;
// the engine uses it so that expiry and failed payments never cancel a
// booking that was confirmed in the meantime.
type CancelInput struct {
	Actor        model.Actor
	BookingID    uint64
	Reason       string
	OnlyIfStatus string
}

// CancelResult is the cancelled booking and the recorded compensation.
type CancelResult struct {
	Booking model.Booking            `json:"booking"`
	Record  model.CancellationRecord `json:"cancellation"`
}

// Cancel reverses a PENDING or CONFIRMED booking.  Tickets and seat
// instances are deleted, capacity restored and the promotion usage released
// in one transaction.  Refunding points and notifying the customer follow
// from the booking.cancelled event.  Cancelling a CANCELLED or COMPLETED
// booking fails with ErrAlreadyFinalized and changes nothing.
func (s *BookingService) Cancel(ctx context.Context, in CancelInput) (*CancelResult, error) {
	b, err := s.loadBooking(ctx, in.BookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(b, in.Actor); err != nil {
		return nil, err
	}
	if b.IsTerminal() {
		return nil, fmt.Errorf("%w: booking %d is %s", ErrAlreadyFinalized, b.ID, b.Status)
	}
	reason := in.Reason
	if reason == "" {
		reason = ReasonCustomer
		if in.Actor.IsStaff() {
			reason = ReasonStaff
		}
	}

	var res CancelResult
	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		locked, err := s.bookings.GetForUpdateTx(ctx, tx, b.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBookingNotFound
		}
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}
		if locked.IsTerminal() {
			return fmt.Errorf("%w: booking %d is %s", ErrAlreadyFinalized, locked.ID, locked.Status)
		}
		if in.OnlyIfStatus != "" && locked.Status != in.OnlyIfStatus {
			return &InvalidBookingStateError{BookingID: locked.ID, Status: locked.Status, Want: in.OnlyIfStatus}
		}

		tickets, err := s.tickets.ListByBookingTx(ctx, tx, locked.ID)
		if err != nil {
			return fmt.Errorf("list tickets: %w", err)
		}
		freed, err := s.tickets.DeleteByBookingTx(ctx, tx, locked.ID)
		if err != nil {
			return fmt.Errorf("delete tickets: %w", err)
		}
		instanceIDs := make([]uint64, 0, len(tickets))
		for _, t := range tickets {
			instanceIDs = append(instanceIDs, t.SeatInstanceID)
		}
		if err := s.seats.DeleteInstancesTx(ctx, tx, instanceIDs); err != nil {
			return fmt.Errorf("delete seat instances: %w", err)
		}
		if freed > 0 {
			if err := s.showtimes.AdjustCapacityTx(ctx, tx, locked.ShowtimeID, freed); err != nil {
				return fmt.Errorf("restore capacity: %w", err)
			}
		}

		if locked.PromotionID != nil {
			promotionID := *locked.PromotionID
			relErr := s.tx.SavepointTx(ctx, tx, "promotion_release", func() error {
				return s.promotions.ReleaseTx(ctx, tx, promotionID, locked.ID)
			})
			if relErr != nil && !errors.Is(relErr, repository.ErrNotFound) {
				s.log.Warn("promotion release deferred to worker",
					zap.Uint64("booking_id", locked.ID),
					zap.Uint64("promotion_id", promotionID),
					zap.Error(relErr))
			}
		}

		if err := s.bookings.MarkCancelledTx(ctx, tx, locked.ID); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%w: booking %d", ErrAlreadyFinalized, locked.ID)
			}
			return fmt.Errorf("cancel booking: %w", err)
		}

		rec := model.CancellationRecord{
			Reason:        reason,
			PreviousState: locked.Status,
			Tickets:       make([]model.CancelledTicket, 0, len(tickets)),
			SeatsFreed:    freed,
			PromotionID:   locked.PromotionID,
			CancelledBy:   in.Actor.UserID,
		}
		for _, t := range tickets {
			rec.Tickets = append(rec.Tickets, model.CancelledTicket{Code: t.Code, Seat: t.SeatLabel, FinalPrice: t.FinalPrice})
		}
		if locked.CustomerID != nil {
			rec.PointsRefund = locked.PointsUsed
		}
		if locked.Status == model.BookingConfirmed {
			rec.RefundAmount = locked.TotalAmount
		}

		if err := s.history.AppendTx(ctx, tx, &model.BookingHistory{
			BookingID: locked.ID,
			Status:    model.BookingCancelled,
			Notes:     reason,
			Payload:   marshalPayload(rec),
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		evt, err := queue.NewEvent(queue.TypeBookingCancelled, locked.ID, queue.BookingCancelledEvent{
			BookingID:      locked.ID,
			CreatorID:      locked.CreatorID,
			CustomerID:     locked.CustomerID,
			ShowtimeID:     locked.ShowtimeID,
			PromotionID:    locked.PromotionID,
			PointsUsed:     rec.PointsRefund,
			RefundAmount:   rec.RefundAmount,
			PreviousStatus: locked.Status,
			Reason:         reason,
			Seats:          seatLabels(tickets),
			CancelledAt:    s.clock.Now(),
		})
		if err != nil {
			return err
		}
		if err := s.outbox.EnqueueTx(ctx, tx, evt); err != nil {
			return err
		}

		cancelled := *locked
		cancelled.Status = model.BookingCancelled
		cancelled.PromotionID = nil
		res.Booking = cancelled
		res.Record = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking cancelled",
		zap.Uint64("booking_id", res.Booking.ID),
		zap.String("reason", reason),
		zap.String("previous_status", res.Record.PreviousState),
		zap.Int("seats_freed", res.Record.SeatsFreed))
	return &res, nil
}

// ExpireOverdue cancels up to limit PENDING bookings whose payment deadline
// has passed.  It backs the optional expiry sweeper; the guard in Create
// expires bookings lazily without it.  It returns how many were cancelled.
func (s *BookingService) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	ids, err := s.bookings.ListExpiredPending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list expired bookings: %w", err)
	}
	expired := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		_, err := s.Cancel(ctx, CancelInput{
			Actor:        model.SystemActor,
			BookingID:    id,
			Reason:       ReasonPaymentTimeout,
			OnlyIfStatus: model.BookingPending,
		})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, ErrAlreadyFinalized), errors.Is(err, ErrInvalidBookingState), errors.Is(err, ErrBookingNotFound):
		default:
			s.log.Warn("expire booking failed", zap.Uint64("booking_id", id), zap.Error(err))
		}
	}
	return expired, nil
}
