// Package queue defines the booking events exchanged over the message
// broker together with the RabbitMQ and Kafka transports that carry them.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types.  Each type is published to a queue (RabbitMQ) or topic
// (Kafka) of the same name.
const (
	TypeBookingCreated   = "booking.created"
	TypeBookingConfirmed = "booking.confirmed"
	TypeBookingCancelled = "booking.cancelled"
)

// Types lists every event type the engine emits.
var Types = []string{TypeBookingCreated, TypeBookingConfirmed, TypeBookingCancelled}

// Event is the envelope written to the outbox and published to the broker.
// ID is unique per event and is what consumers deduplicate on.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	BookingID  uint64          `json:"booking_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEvent wraps payload in an envelope with a fresh id.
func NewEvent(eventType string, bookingID uint64, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		BookingID:  bookingID,
		OccurredAt: time.Now().UTC(),
		Payload:    body,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// BookingCreatedEvent is emitted when a PENDING booking is persisted.
type BookingCreatedEvent struct {
	BookingID       uint64    `json:"booking_id"`
	CreatorID       uint64    `json:"creator_id"`
	CustomerID      *uint64   `json:"customer_id,omitempty"`
	ShowtimeID      uint64    `json:"showtime_id"`
	Seats           []string  `json:"seats"`
	TotalAmount     int64     `json:"total_amount"`
	PaymentDeadline time.Time `json:"payment_deadline"`
}

// BookingConfirmedEvent is emitted when a booking is paid.  It carries
// enough information for downstream consumers to award points, deliver
// tickets and backfill the payment record without querying the primary
// database.
type BookingConfirmedEvent struct {
	BookingID    uint64    `json:"booking_id"`
	CreatorID    uint64    `json:"creator_id"`
	CustomerID   *uint64   `json:"customer_id,omitempty"`
	ShowtimeID   uint64    `json:"showtime_id"`
	MovieTitle   string    `json:"movie_title"`
	RoomName     string    `json:"room_name"`
	StartsAt     time.Time `json:"starts_at"`
	Seats        []string  `json:"seats"`
	TicketCodes  []string  `json:"ticket_codes"`
	TotalAmount  int64     `json:"total_amount"`
	PointsEarned int64     `json:"points_earned"`
	Payment      Payment   `json:"payment"`
	ConfirmedAt  time.Time `json:"confirmed_at"`
}

// Payment is the payment detail carried by BookingConfirmedEvent.
// Recorded is false when the in-transaction insert failed and the
// reconciler must write the record.
type Payment struct {
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
	Recorded  bool   `json:"recorded"`
}

// BookingCancelledEvent is emitted when a booking is cancelled, manually or
// by auto-expiry.  PointsUsed and PromotionID drive the compensating steps.
type BookingCancelledEvent struct {
	BookingID      uint64    `json:"booking_id"`
	CreatorID      uint64    `json:"creator_id"`
	CustomerID     *uint64   `json:"customer_id,omitempty"`
	ShowtimeID     uint64    `json:"showtime_id"`
	PromotionID    *uint64   `json:"promotion_id,omitempty"`
	PointsUsed     int64     `json:"points_used"`
	RefundAmount   int64     `json:"refund_amount"`
	PreviousStatus string    `json:"previous_status"`
	Reason         string    `json:"reason"`
	Seats          []string  `json:"seats"`
	CancelledAt    time.Time `json:"cancelled_at"`
}
