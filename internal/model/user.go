package model

// Roles carried in the access token's "role" claim.  SYSTEM is never
// issued to clients; it identifies the engine itself (auto-expiry,
// payment callbacks).
const (
	RoleCustomer       = "CUSTOMER"
	RoleStaff          = "STAFF"
	RolePaymentGateway = "PAYMENT_GATEWAY"
	RoleSystem         = "SYSTEM"
)

// Actor is the authenticated caller of a booking operation.
type Actor struct {
	UserID uint64
	Role   string
}

// SystemActor is used for transitions triggered by the engine.
var SystemActor = Actor{Role: RoleSystem}

// IsStaff reports whether the actor may act on other users' bookings.
func (a Actor) IsStaff() bool { return a.Role == RoleStaff }

// IsSystem reports whether the actor is the engine itself.
func (a Actor) IsSystem() bool { return a.Role == RoleSystem }

// Loyalty movement kinds.  A (booking, kind) pair is recorded at most once.
const (
	LoyaltyRedeem = "REDEEM"
	LoyaltyEarn   = "EARN"
	LoyaltyRefund = "REFUND"
)
