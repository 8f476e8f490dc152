package model

import "time"

// Promotion discount types.
const (
	DiscountPercentage = "PERCENTAGE"
	DiscountFixed      = "FIXED"
)

// PromotionActive is the only status under which a promotion applies.
const PromotionActive = "ACTIVE"

// Promotion is a discount that can be attached to a booking.  The discount
// is granted per ticket.
//
// Fields:
//  ID           – primary key identifier.
//  Code         – customer facing code.
//  DiscountType – PERCENTAGE or FIXED.
//  Value        – percent (0-100) or a fixed amount per ticket.
//  ValidFrom    – first instant the promotion applies.
//  ValidTo      – last instant the promotion applies.
//  MaxUsage     – maximum number of bookings; 0 means unlimited.
//  UsageCount   – bookings currently holding the promotion.
//  Status       – ACTIVE or INACTIVE.
type Promotion struct {
	ID           uint64    `json:"id"`
	Code         string    `json:"code"`
	DiscountType string    `json:"discount_type"`
	Value        int64     `json:"value"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidTo      time.Time `json:"valid_to"`
	MaxUsage     int       `json:"max_usage"`
	UsageCount   int       `json:"usage_count"`
	Status       string    `json:"status"`
}

// DiscountFor returns the per-ticket discount for a ticket priced at base.
// The discount never exceeds the base price.
func (p *Promotion) DiscountFor(base int64) int64 {
	var d int64
	switch p.DiscountType {
	case DiscountPercentage:
		d = base * p.Value / 100
	case DiscountFixed:
		d = p.Value
	}
	if d < 0 {
		return 0
	}
	if d > base {
		return base
	}
	return d
}

// ApplicableAt reports whether the promotion can be used at time t.
func (p *Promotion) ApplicableAt(t time.Time) bool {
	if p.Status != PromotionActive {
		return false
	}
	if t.Before(p.ValidFrom) || t.After(p.ValidTo) {
		return false
	}
	return p.MaxUsage == 0 || p.UsageCount < p.MaxUsage
}

// PromotionUsage records that a promotion was consumed by a booking.
//
// Fields:
//  PromotionID – promotion applied.
//  BookingID   – booking it was applied to.
//  Used        – cleared when the booking is cancelled.
type PromotionUsage struct {
	PromotionID uint64    `json:"promotion_id"`
	BookingID   uint64    `json:"booking_id"`
	Used        bool      `json:"used"`
	CreatedAt   time.Time `json:"created_at"`
}
