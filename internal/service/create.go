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

// CreateInput describes a booking request.
type CreateInput struct {
	Actor      model.Actor
	ShowtimeID uint64
	// CustomerID attaches a customer to a staff booking.  It is ignored for
	// customers, who always book for themselves.
	CustomerID  *uint64
	Seats       []model.SeatSelector
	PromotionID *uint64
	PointsToUse int64
}

// CreateResult is the persisted booking.  PointsClamped is set when the
// requested points exceeded half the pre-discount total and were reduced.
type CreateResult struct {
	Booking       model.Booking  `json:"booking"`
	Tickets       []model.Ticket `json:"tickets"`
	PointsClamped bool           `json:"points_clamped"`
}

// Create books seats for a showtime.  It runs the pending-booking guard,
// validates the showtime, promotion and points, then allocates, prices and
// persists everything in one transaction.  Any failure leaves no trace.
func (s *BookingService) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	var customerID *uint64
	switch in.Actor.Role {
	case model.RoleCustomer:
		if in.Actor.UserID == 0 {
			return nil, ErrUnauthorized
		}
		uid := in.Actor.UserID
		customerID = &uid
	case model.RoleStaff:
		customerID = in.CustomerID
	default:
		return nil, ErrUnauthorized
	}
	if in.PointsToUse < 0 {
		return nil, &InsufficientPointsError{Requested: in.PointsToUse}
	}

	if err := s.checkPending(ctx, in.Actor.UserID); err != nil {
		return nil, err
	}

	st, err := s.loadShowtime(ctx, in.ShowtimeID)
	if err != nil {
		return nil, err
	}
	if !st.Bookable() {
		return nil, fmt.Errorf("%w: showtime %d is %s", ErrShowtimeNotBookable, st.ID, st.Status)
	}

	var promo *model.Promotion
	if in.PromotionID != nil {
		promo, err = s.promotions.Get(ctx, *in.PromotionID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPromotionNotApplicable
		}
		if err != nil {
			return nil, fmt.Errorf("create booking: load promotion: %w", err)
		}
		if !promo.ApplicableAt(s.clock.Now()) {
			return nil, ErrPromotionNotApplicable
		}
	}

	var balance int64
	if in.PointsToUse > 0 {
		if customerID == nil {
			return nil, &InsufficientPointsError{Requested: in.PointsToUse}
		}
		balance, err = s.loyalty.GetBalance(ctx, *customerID)
		if err != nil {
			return nil, fmt.Errorf("create booking: loyalty balance: %w", err)
		}
		if balance < in.PointsToUse {
			return nil, &InsufficientPointsError{Requested: in.PointsToUse, Available: balance}
		}
	}

	var (
		res       CreateResult
		requested []model.SeatLayout
	)
	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		locked, err := s.showtimes.LockTx(ctx, tx, st.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrShowtimeNotFound
		}
		if err != nil {
			return fmt.Errorf("lock showtime: %w", err)
		}
		if !locked.Bookable() {
			return fmt.Errorf("%w: showtime %d is %s", ErrShowtimeNotBookable, locked.ID, locked.Status)
		}

		seats, err := s.allocateSeats(ctx, tx, locked, in.Seats)
		if err != nil {
			return err
		}
		requested = make([]model.SeatLayout, len(seats))
		for i, a := range seats {
			requested[i] = a.Layout
		}

		tickets, preDiscount, err := s.priceTickets(locked, seats, promo)
		if err != nil {
			return err
		}

		points := in.PointsToUse
		if limit := preDiscount / maxPointsShare; points > limit {
			s.log.Warn("loyalty points clamped",
				zap.Uint64("creator_id", in.Actor.UserID),
				zap.Int64("requested", points),
				zap.Int64("applied", limit),
				zap.Int64("pre_discount_total", preDiscount))
			points = limit
			res.PointsClamped = true
		}
		total := preDiscount - points

		b := &model.Booking{
			CreatorID:      in.Actor.UserID,
			CustomerID:     customerID,
			ShowtimeID:     locked.ID,
			TotalAmount:    total,
			DiscountAmount: points,
			PointsUsed:     points,
			PointsEarned:   pointsEarned(total),
			Status:         model.BookingPending,
		}
		if promo != nil {
			id := promo.ID
			b.PromotionID = &id
		}
		if err := s.bookings.InsertTx(ctx, tx, b, s.grace); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}

		if points > 0 {
			if err := s.loyalty.DebitTx(ctx, tx, *customerID, b.ID, points); err != nil {
				if errors.Is(err, repository.ErrInsufficientBalance) {
					return &InsufficientPointsError{Requested: points, Available: balance}
				}
				return fmt.Errorf("debit points: %w", err)
			}
		}
		if promo != nil {
			if err := s.promotions.ApplyTx(ctx, tx, promo.ID, b.ID); err != nil {
				if errors.Is(err, repository.ErrPromotionNotApplicable) {
					return ErrPromotionNotApplicable
				}
				return fmt.Errorf("apply promotion: %w", err)
			}
		}

		for _, t := range tickets {
			t.BookingID = b.ID
		}
		if err := s.tickets.InsertTx(ctx, tx, tickets); err != nil {
			return fmt.Errorf("insert tickets: %w", err)
		}
		if err := s.showtimes.AdjustCapacityTx(ctx, tx, locked.ID, -len(tickets)); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return &SeatUnavailableError{Positions: ticketLabels(tickets)}
			}
			return err
		}

		labels := ticketLabels(tickets)
		if err := s.history.AppendTx(ctx, tx, &model.BookingHistory{
			BookingID: b.ID,
			Status:    model.BookingPending,
			Notes:     "booking created",
			Payload: marshalPayload(map[string]any{
				"seats":              labels,
				"pre_discount_total": preDiscount,
				"points_used":        points,
				"promotion_id":       b.PromotionID,
			}),
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		evt, err := queue.NewEvent(queue.TypeBookingCreated, b.ID, queue.BookingCreatedEvent{
			BookingID:       b.ID,
			CreatorID:       b.CreatorID,
			CustomerID:      b.CustomerID,
			ShowtimeID:      b.ShowtimeID,
			Seats:           labels,
			TotalAmount:     b.TotalAmount,
			PaymentDeadline: b.PaymentDeadline,
		})
		if err != nil {
			return err
		}
		if err := s.outbox.EnqueueTx(ctx, tx, evt); err != nil {
			return err
		}

		res.Booking = *b
		res.Tickets = make([]model.Ticket, len(tickets))
		for i, t := range tickets {
			res.Tickets[i] = *t
		}
		return nil
	})
	if err != nil {
		return nil, s.mapCreateError(ctx, err, in.Actor.UserID, st.ID, requested, in.Seats)
	}

	s.log.Info("booking created",
		zap.Uint64("booking_id", res.Booking.ID),
		zap.Uint64("creator_id", res.Booking.CreatorID),
		zap.Uint64("showtime_id", res.Booking.ShowtimeID),
		zap.Int("seats", len(res.Tickets)),
		zap.Int64("total", res.Booking.TotalAmount))
	return &res, nil
}

// priceTickets prices every allocated seat and applies the promotion's
// per-ticket discount.  It returns the tickets and their summed final
// prices.
func (s *BookingService) priceTickets(st *model.Showtime, seats []model.AllocatedSeat, promo *model.Promotion) ([]*model.Ticket, int64, error) {
	tickets := make([]*model.Ticket, 0, len(seats))
	var sum int64
	for _, seat := range seats {
		base, err := s.pricer.Price(st.RoomType, seat.Layout.SeatType, st.StartsAt)
		if err != nil {
			return nil, 0, fmt.Errorf("price seat %s: %w", seat.Layout.Label(), err)
		}
		var discount int64
		if promo != nil {
			discount = promo.DiscountFor(base)
		}
		code, err := s.ticketCode()
		if err != nil {
			return nil, 0, fmt.Errorf("ticket code: %w", err)
		}
		t := &model.Ticket{
			SeatInstanceID: seat.Instance.ID,
			SeatLayoutID:   seat.Layout.ID,
			ShowtimeID:     st.ID,
			BasePrice:      base,
			Discount:       discount,
			FinalPrice:     base - discount,
			Code:           code,
			Status:         model.TicketPending,
			SeatLabel:      seat.Layout.Label(),
		}
		sum += t.FinalPrice
		tickets = append(tickets, t)
	}
	return tickets, sum, nil
}

// checkPending enforces one unresolved booking per creator.  An expired
// booking is cancelled on the spot so the new request can proceed.
func (s *BookingService) checkPending(ctx context.Context, creatorID uint64) error {
	p, err := s.bookings.FindPendingByCreator(ctx, creatorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pending booking guard: %w", err)
	}
	if !p.Expired() {
		return pendingError(p)
	}

	_, err = s.Cancel(ctx, CancelInput{
		Actor:        model.SystemActor,
		BookingID:    p.ID,
		Reason:       ReasonPaymentTimeout,
		OnlyIfStatus: model.BookingPending,
	})
	switch {
	case err == nil:
		s.log.Info("pending booking expired",
			zap.Uint64("booking_id", p.ID),
			zap.Uint64("creator_id", creatorID),
			zap.Int64("overdue_seconds", -p.RemainingSeconds))
		return nil
	case errors.Is(err, ErrAlreadyFinalized), errors.Is(err, ErrInvalidBookingState), errors.Is(err, ErrBookingNotFound):
		// Resolved concurrently.
		return nil
	default:
		return fmt.Errorf("expire booking %d: %w", p.ID, err)
	}
}

func pendingError(p *model.PendingBooking) *PendingBookingError {
	return &PendingBookingError{
		BookingID:        p.ID,
		RemainingMinutes: (p.RemainingSeconds + 59) / 60,
		Seats:            p.Seats,
		MovieTitle:       p.MovieTitle,
		RoomName:         p.RoomName,
		ShowtimeID:       p.ShowtimeID,
		StartsAt:         p.StartsAt,
	}
}

// mapCreateError translates store-level uniqueness violations that slipped
// past the application checks into engine errors.  The transaction has
// rolled back, so the winning row is read again to describe the conflict.
func (s *BookingService) mapCreateError(ctx context.Context, err error, creatorID, showtimeID uint64, requested []model.SeatLayout, selectors []model.SeatSelector) error {
	switch {
	case errors.Is(err, repository.ErrSeatTaken):
		return &SeatUnavailableError{Positions: s.takenPositions(ctx, showtimeID, requested, selectors)}
	case errors.Is(err, repository.ErrPendingExists):
		p, ferr := s.bookings.FindPendingByCreator(ctx, creatorID)
		if ferr != nil {
			s.log.Warn("pending booking vanished after insert conflict",
				zap.Uint64("creator_id", creatorID), zap.Error(ferr))
			return ErrPendingBookingExists
		}
		return pendingError(p)
	}
	return err
}

// takenPositions labels the requested seats that are now occupied.  When
// they cannot be determined every requested seat is reported.
func (s *BookingService) takenPositions(ctx context.Context, showtimeID uint64, requested []model.SeatLayout, selectors []model.SeatSelector) []string {
	if len(requested) == 0 {
		out := make([]string, len(selectors))
		for i, sel := range selectors {
			out[i] = sel.String()
		}
		return out
	}
	ids := make([]uint64, len(requested))
	for i, l := range requested {
		ids[i] = l.ID
	}
	var taken []uint64
	err := s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		var err error
		taken, err = s.tickets.OccupiedLayoutsTx(ctx, tx, showtimeID, ids)
		return err
	})
	if err != nil || len(taken) == 0 {
		if err != nil {
			s.log.Warn("seat conflict lookup failed", zap.Uint64("showtime_id", showtimeID), zap.Error(err))
		}
		taken = ids
	}
	return labelsOf(requested, taken)
}

func ticketLabels(tickets []*model.Ticket) []string {
	out := make([]string, len(tickets))
	for i, t := range tickets {
		out[i] = t.SeatLabel
	}
	return out
}
