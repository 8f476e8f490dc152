package model

import "time"

// Booking statuses.  COMPLETED is written by processes outside the
// booking engine (e.g. after the screening) and is terminal.
const (
	BookingPending   = "PENDING"
	BookingConfirmed = "CONFIRMED"
	BookingCancelled = "CANCELLED"
	BookingCompleted = "COMPLETED"
)

// Booking records a reservation of one or more seats for a showtime.
// The engine owns the row exclusively: it is created by the booking
// orchestrator and only mutated by confirmation and cancellation.
//
// Fields:
//  ID              – primary key identifier.
//  CreatorID       – user that placed the booking (customer or staff).
//  CustomerID      – customer the booking belongs to; nil for staff
//                    walk-in bookings without an attached customer.
//  ShowtimeID      – showtime being booked.
//  PromotionID     – applied promotion, cleared on cancellation.
//  TotalAmount     – amount due, Σ ticket.final_price − DiscountAmount.
//  DiscountAmount  – discount granted by redeemed loyalty points.
//  PointsUsed      – loyalty points debited at creation.
//  PointsEarned    – loyalty points credited on confirmation.
//  Status          – PENDING, CONFIRMED, CANCELLED or COMPLETED.
//  BookedAt        – when the booking was created.
//  PaymentDeadline – database time after which a PENDING booking expires.
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – last update timestamp.
type Booking struct {
	ID              uint64    `json:"id"`
	CreatorID       uint64    `json:"creator_id"`
	CustomerID      *uint64   `json:"customer_id,omitempty"`
	ShowtimeID      uint64    `json:"showtime_id"`
	PromotionID     *uint64   `json:"promotion_id,omitempty"`
	TotalAmount     int64     `json:"total_amount"`
	DiscountAmount  int64     `json:"discount_amount"`
	PointsUsed      int64     `json:"points_used"`
	PointsEarned    int64     `json:"points_earned"`
	Status          string    `json:"status"`
	BookedAt        time.Time `json:"booked_at"`
	PaymentDeadline time.Time `json:"payment_deadline"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsTerminal reports whether no further transition is possible.
func (b *Booking) IsTerminal() bool {
	return b.Status == BookingCancelled || b.Status == BookingCompleted
}

// OwnedBy reports whether userID is the booking's customer or creator.
func (b *Booking) OwnedBy(userID uint64) bool {
	if b.CreatorID == userID {
		return true
	}
	return b.CustomerID != nil && *b.CustomerID == userID
}

// PendingBooking is the guard's view of a creator's unresolved booking.
// RemainingSeconds is computed by the database clock; a value <= 0 means
// the payment deadline has passed.
type PendingBooking struct {
	Booking
	RemainingSeconds int64     `json:"remaining_seconds"`
	MovieTitle       string    `json:"movie_title"`
	RoomName         string    `json:"room_name"`
	StartsAt         time.Time `json:"starts_at"`
	Seats            []string  `json:"seats"`
}

// Expired reports whether the payment deadline has passed.
func (p *PendingBooking) Expired() bool { return p.RemainingSeconds <= 0 }
