package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/cinema-booking/internal/pricing"
)

// Booking engine errors.  Handlers compare against these with errors.Is;
// the typed errors below unwrap to them and carry the context a caller
// needs to resolve the conflict.
var (
	ErrPendingBookingExists   = errors.New("booking: pending booking exists")
	ErrSeatUnavailable        = errors.New("booking: seat unavailable")
	ErrInvalidSeatSelection   = errors.New("booking: invalid seat selection")
	ErrShowtimeNotBookable    = errors.New("booking: showtime not bookable")
	ErrShowtimeNotFound       = fmt.Errorf("%w: showtime not found", ErrShowtimeNotBookable)
	ErrInsufficientPoints     = errors.New("booking: insufficient points")
	ErrInvalidBookingState    = errors.New("booking: invalid booking state")
	ErrUnauthorized           = errors.New("booking: unauthorized")
	ErrAlreadyFinalized       = errors.New("booking: already finalized")
	ErrPricingNotFound        = pricing.ErrPricingNotFound
	ErrPromotionNotApplicable = errors.New("booking: promotion not applicable")
	ErrBookingNotFound        = errors.New("booking: not found")
)

// PendingBookingError reports the creator's unresolved booking.
type PendingBookingError struct {
	BookingID        uint64
	RemainingMinutes int64
	Seats            []string
	MovieTitle       string
	RoomName         string
	ShowtimeID       uint64
	StartsAt         time.Time
}

func (e *PendingBookingError) Error() string {
	return fmt.Sprintf("booking %d is awaiting payment for another %d minute(s)", e.BookingID, e.RemainingMinutes)
}

func (e *PendingBookingError) Unwrap() error { return ErrPendingBookingExists }

// SeatUnavailableError lists the requested positions already ticketed.
type SeatUnavailableError struct {
	Positions []string
}

func (e *SeatUnavailableError) Error() string {
	return "seats already taken: " + strings.Join(e.Positions, ", ")
}

func (e *SeatUnavailableError) Unwrap() error { return ErrSeatUnavailable }

// InvalidSeatSelectionError lists selectors that did not resolve to an
// active seat of the showtime's room.
type InvalidSeatSelectionError struct {
	Selectors []string
	Reason    string
}

func (e *InvalidSeatSelectionError) Error() string {
	if len(e.Selectors) == 0 {
		return "invalid seat selection: " + e.Reason
	}
	return fmt.Sprintf("invalid seat selection (%s): %s", e.Reason, strings.Join(e.Selectors, ", "))
}

func (e *InvalidSeatSelectionError) Unwrap() error { return ErrInvalidSeatSelection }

// InsufficientPointsError reports the balance available to the customer.
type InsufficientPointsError struct {
	Requested int64
	Available int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("requested %d points, %d available", e.Requested, e.Available)
}

func (e *InsufficientPointsError) Unwrap() error { return ErrInsufficientPoints }

// InvalidBookingStateError reports a transition attempted from the wrong
// status.
type InvalidBookingStateError struct {
	BookingID uint64
	Status    string
	Want      string
}

func (e *InvalidBookingStateError) Error() string {
	return fmt.Sprintf("booking %d is %s, expected %s", e.BookingID, e.Status, e.Want)
}

func (e *InvalidBookingStateError) Unwrap() error { return ErrInvalidBookingState }
