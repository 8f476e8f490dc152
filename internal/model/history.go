package model

import (
	"encoding/json"
	"time"
)

// BookingHistory is an append-only audit entry.  Rows are never updated.
//
// Fields:
//  ID        – primary key identifier.
//  BookingID – booking the entry belongs to.
//  Status    – booking status at the time of the entry.
//  Notes     – free-text description of the transition.
//  Payload   – optional structured detail (JSON).
//  CreatedAt – when the entry was appended.
type BookingHistory struct {
	ID        uint64          `json:"id"`
	BookingID uint64          `json:"booking_id"`
	Status    string          `json:"status"`
	Notes     string          `json:"notes"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// CancelledTicket is the snapshot of a deleted ticket kept in the
// cancellation history payload.
type CancelledTicket struct {
	Code       string `json:"code"`
	Seat       string `json:"seat"`
	FinalPrice int64  `json:"final_price"`
}

// CancellationRecord is the structured payload of a cancellation entry.
type CancellationRecord struct {
	Reason        string            `json:"reason"`
	PreviousState string            `json:"previous_status"`
	Tickets       []CancelledTicket `json:"tickets"`
	SeatsFreed    int               `json:"seats_freed"`
	PointsRefund  int64             `json:"points_refund"`
	RefundAmount  int64             `json:"refund_amount"`
	PromotionID   *uint64           `json:"promotion_id,omitempty"`
	CancelledBy   uint64            `json:"cancelled_by"`
}
