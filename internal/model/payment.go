package model

import "time"

// PaymentSucceeded is the only status the engine writes.
const PaymentSucceeded = "SUCCEEDED"

// Payment records money received for a booking.  There is at most one
// payment per booking.
type Payment struct {
	ID        uint64    `json:"id"`
	BookingID uint64    `json:"booking_id"`
	Amount    int64     `json:"amount"`
	Method    string    `json:"method"`
	Reference string    `json:"reference"`
	Status    string    `json:"status"`
	PaidAt    time.Time `json:"paid_at"`
}

// PaymentResult is the gateway's verdict for a booking.
type PaymentResult struct {
	BookingID uint64 `json:"booking_id"`
	Succeeded bool   `json:"succeeded"`
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}
