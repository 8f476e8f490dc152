package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/queue"
)

// Collaborators of the booking engine.  Methods suffixed with Tx take the
// transaction opened by TxRunner.WithinTx; the engine never starts a
// transaction below that call.  The repository package provides the MySQL
// implementations and reports failures with its sentinel errors.

// TxRunner opens transactions and savepoints.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
	SavepointTx(ctx context.Context, tx *sql.Tx, name string, fn func() error) error
}

// BookingStore persists bookings.
type BookingStore interface {
	InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking, grace time.Duration) error
	Get(ctx context.Context, id uint64) (*model.Booking, error)
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error)
	FindPendingByCreator(ctx context.Context, creatorID uint64) (*model.PendingBooking, error)
	TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string) error
	MarkCancelledTx(ctx context.Context, tx *sql.Tx, id uint64) error
	ListExpiredPending(ctx context.Context, limit int) ([]uint64, error)
}

// ShowtimeStore is the catalog port.
type ShowtimeStore interface {
	Get(ctx context.Context, id uint64) (*model.Showtime, error)
	LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Showtime, error)
	AdjustCapacityTx(ctx context.Context, tx *sql.Tx, id uint64, delta int) error
	SeatMap(ctx context.Context, showtimeID uint64) ([]model.SeatStatus, error)
}

// SeatStore reads seat layouts and manages seat instances.
type SeatStore interface {
	ListLayoutsByRoomTx(ctx context.Context, tx *sql.Tx, roomID uint64) ([]model.SeatLayout, error)
	InsertInstancesTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, layouts []model.SeatLayout) ([]model.SeatInstance, error)
	DeleteInstancesTx(ctx context.Context, tx *sql.Tx, ids []uint64) error
}

// TicketStore manages tickets.
type TicketStore interface {
	OccupiedLayoutsTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, layoutIDs []uint64) ([]uint64, error)
	InsertTx(ctx context.Context, tx *sql.Tx, tickets []*model.Ticket) error
	ListByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) ([]model.Ticket, error)
	ListByBooking(ctx context.Context, bookingID uint64) ([]model.Ticket, error)
	SetStatusByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64, status string) error
	DeleteByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (int, error)
}

// HistoryStore appends audit entries.
type HistoryStore interface {
	AppendTx(ctx context.Context, tx *sql.Tx, h *model.BookingHistory) error
	ListByBooking(ctx context.Context, bookingID uint64) ([]model.BookingHistory, error)
}

// PaymentStore records payments.
type PaymentStore interface {
	InsertTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error
}

// LoyaltyLedger is the part of the loyalty port used while booking.
// Awards and refunds are applied by the event workers.
type LoyaltyLedger interface {
	GetBalance(ctx context.Context, userID uint64) (int64, error)
	DebitTx(ctx context.Context, tx *sql.Tx, userID, bookingID uint64, points int64) error
}

// PromotionRegistry is the promotion port.
type PromotionRegistry interface {
	Get(ctx context.Context, id uint64) (*model.Promotion, error)
	ApplyTx(ctx context.Context, tx *sql.Tx, promotionID, bookingID uint64) error
	ReleaseTx(ctx context.Context, tx *sql.Tx, promotionID, bookingID uint64) error
}

// Outbox stores events for publication after commit.
type Outbox interface {
	EnqueueTx(ctx context.Context, tx *sql.Tx, evt queue.Event) error
}

// Pricer prices one seat of a showtime.
type Pricer interface {
	Price(roomType, seatType string, startsAt time.Time) (int64, error)
}
