// Package service implements the booking engine: creation with seat
// allocation and pricing, the pending-booking guard, payment confirmation
// and compensating cancellation.  Side effects that must not block a
// commit (loyalty awards and refunds, promotion release, notifications,
// payment backfill) are written to the outbox and applied by the workers.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/clock"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

// Cancellation reasons written by the engine itself.
const (
	ReasonPaymentTimeout = "payment timeout"
	ReasonPaymentFailed  = "payment failed"
	ReasonCustomer       = "cancelled by customer"
	ReasonStaff          = "cancelled by staff"
)

const (
	// DefaultPaymentGrace is the window a PENDING booking has to be paid.
	DefaultPaymentGrace = 5 * time.Minute

	// maxPointsShare caps redeemed points at half the pre-discount total.
	maxPointsShare = 2
	// earnRate awards one point per ten units paid.
	earnRate = 10
)

// Deps bundles the collaborators of BookingService.
type Deps struct {
	Tx         TxRunner
	Bookings   BookingStore
	Showtimes  ShowtimeStore
	Seats      SeatStore
	Tickets    TicketStore
	History    HistoryStore
	Payments   PaymentStore
	Loyalty    LoyaltyLedger
	Promotions PromotionRegistry
	Outbox     Outbox
	Pricer     Pricer

	Clock        clock.Clock
	Logger       *zap.Logger
	PaymentGrace time.Duration

	// TicketCode overrides ticket code generation in tests.
	TicketCode func() (string, error)
}

// BookingService is the booking engine.  It is safe for concurrent use;
// consistency between concurrent calls is provided by the store's row
// locks and unique keys.
type BookingService struct {
	tx         TxRunner
	bookings   BookingStore
	showtimes  ShowtimeStore
	seats      SeatStore
	tickets    TicketStore
	history    HistoryStore
	payments   PaymentStore
	loyalty    LoyaltyLedger
	promotions PromotionRegistry
	outbox     Outbox
	pricer     Pricer

	clock      clock.Clock
	log        *zap.Logger
	grace      time.Duration
	ticketCode func() (string, error)
}

// NewBookingService validates deps and returns the engine.
func NewBookingService(d Deps) (*BookingService, error) {
	switch {
	case d.Tx == nil:
		return nil, errors.New("booking service: tx runner is required")
	case d.Bookings == nil, d.Showtimes == nil, d.Seats == nil, d.Tickets == nil:
		return nil, errors.New("booking service: booking, showtime, seat and ticket stores are required")
	case d.History == nil, d.Payments == nil, d.Outbox == nil:
		return nil, errors.New("booking service: history, payment and outbox stores are required")
	case d.Loyalty == nil, d.Promotions == nil:
		return nil, errors.New("booking service: loyalty ledger and promotion registry are required")
	case d.Pricer == nil:
		return nil, errors.New("booking service: pricer is required")
	}
	s := &BookingService{
		tx:         d.Tx,
		bookings:   d.Bookings,
		showtimes:  d.Showtimes,
		seats:      d.Seats,
		tickets:    d.Tickets,
		history:    d.History,
		payments:   d.Payments,
		loyalty:    d.Loyalty,
		promotions: d.Promotions,
		outbox:     d.Outbox,
		pricer:     d.Pricer,
		clock:      d.Clock,
		log:        d.Logger,
		grace:      d.PaymentGrace,
		ticketCode: d.TicketCode,
	}
	if s.clock == nil {
		s.clock = clock.NewSystem()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.grace <= 0 {
		s.grace = DefaultPaymentGrace
	}
	if s.ticketCode == nil {
		s.ticketCode = utils.NewTicketCode
	}
	return s, nil
}

// BookingDetails is a booking with its tickets and audit trail.
type BookingDetails struct {
	Booking model.Booking          `json:"booking"`
	Tickets []model.Ticket         `json:"tickets"`
	History []model.BookingHistory `json:"history"`
}

// Get returns the booking if actor may see it.
func (s *BookingService) Get(ctx context.Context, actor model.Actor, id uint64) (*BookingDetails, error) {
	b, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(b, actor); err != nil {
		return nil, err
	}
	tickets, err := s.tickets.ListByBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: list tickets: %w", err)
	}
	history, err := s.history.ListByBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: list history: %w", err)
	}
	return &BookingDetails{Booking: *b, Tickets: tickets, History: history}, nil
}

// GetPending returns the actor's unresolved booking, or ErrBookingNotFound.
// Unlike the guard it never expires anything; RemainingSeconds may be
// negative for a booking awaiting cleanup.
func (s *BookingService) GetPending(ctx context.Context, actor model.Actor) (*model.PendingBooking, error) {
	p, err := s.bookings.FindPendingByCreator(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pending booking: %w", err)
	}
	return p, nil
}

// SeatMap returns the showtime's seats with their occupancy.
func (s *BookingService) SeatMap(ctx context.Context, showtimeID uint64) ([]model.SeatStatus, error) {
	if _, err := s.loadShowtime(ctx, showtimeID); err != nil {
		return nil, err
	}
	seats, err := s.showtimes.SeatMap(ctx, showtimeID)
	if err != nil {
		return nil, fmt.Errorf("seat map: %w", err)
	}
	return seats, nil
}

func (s *BookingService) loadBooking(ctx context.Context, id uint64) (*model.Booking, error) {
	b, err := s.bookings.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load booking %d: %w", id, err)
	}
	return b, nil
}

func (s *BookingService) loadShowtime(ctx context.Context, id uint64) (*model.Showtime, error) {
	st, err := s.showtimes.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrShowtimeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load showtime %d: %w", id, err)
	}
	return st, nil
}

// authorize allows the engine, staff, and the booking's customer or
// creator.
func authorize(b *model.Booking, actor model.Actor) error {
	if actor.IsSystem() || actor.IsStaff() {
		return nil
	}
	if actor.UserID != 0 && b.OwnedBy(actor.UserID) {
		return nil
	}
	return ErrUnauthorized
}

// authorizeConfirm is stricter than authorize: staff may only confirm the
// bookings they created.
func authorizeConfirm(b *model.Booking, actor model.Actor) error {
	if actor.IsSystem() {
		return nil
	}
	if actor.UserID != 0 && b.OwnedBy(actor.UserID) {
		return nil
	}
	return ErrUnauthorized
}

func marshalPayload(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func seatLabels(tickets []model.Ticket) []string {
	out := make([]string, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.SeatLabel)
	}
	return out
}

// pointsEarned is floor(total/10), never more than half the invoice.
func pointsEarned(total int64) int64 {
	if total <= 0 {
		return 0
	}
	earned := total / earnRate
	if limit := total / 2; earned > limit {
		earned = limit
	}
	return earned
}
