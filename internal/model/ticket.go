package model

import "time"

// Ticket statuses.  PENDING tickets belong to an unpaid booking and still
// occupy their seat; CANCELLED and EXPIRED are terminal and free it.
const (
	TicketPending   = "PENDING"
	TicketActive    = "ACTIVE"
	TicketCancelled = "CANCELLED"
	TicketExpired   = "EXPIRED"
)

// Ticket is the per-seat unit of a booking.  There is one ticket for
// every seat instance allocated to the booking.
//
// Fields:
//  ID             – primary key identifier.
//  BookingID      – owning booking.
//  SeatInstanceID – seat instance allocated for this ticket.
//  SeatLayoutID   – layout position, used for the seat uniqueness rule.
//  ShowtimeID     – showtime of the booking.
//  BasePrice      – price computed by the pricing engine.
//  Discount       – per-ticket promotion discount.
//  FinalPrice     – BasePrice − Discount.
//  Code           – printable ticket code.
//  CheckedIn      – set by the venue at the door.
//  Status         – PENDING, ACTIVE, CANCELLED or EXPIRED.
//  SeatLabel      – row and column, e.g. "B7" (read models only).
//  CreatedAt      – creation timestamp.
type Ticket struct {
	ID             uint64    `json:"id"`
	BookingID      uint64    `json:"booking_id"`
	SeatInstanceID uint64    `json:"seat_instance_id"`
	SeatLayoutID   uint64    `json:"seat_layout_id"`
	ShowtimeID     uint64    `json:"showtime_id"`
	BasePrice      int64     `json:"base_price"`
	Discount       int64     `json:"discount"`
	FinalPrice     int64     `json:"final_price"`
	Code           string    `json:"code"`
	CheckedIn      bool      `json:"checked_in"`
	Status         string    `json:"status"`
	SeatLabel      string    `json:"seat"`
	CreatedAt      time.Time `json:"created_at"`
}
