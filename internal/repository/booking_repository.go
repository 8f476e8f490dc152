package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// BookingRepo persists bookings.  Payment deadlines are computed and
// compared with the database clock (UTC_TIMESTAMP()) so that expiry never
// depends on the application server's wall clock.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `b.id, b.creator_id, b.customer_id, b.showtime_id, b.promotion_id,
       b.total_amount, b.discount_amount, b.points_used, b.points_earned, b.status,
       b.booked_at, b.payment_deadline, b.created_at, b.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner, extra ...any) (*model.Booking, error) {
	var b model.Booking
	var customerID, promotionID sql.NullInt64
	dest := []any{&b.ID, &b.CreatorID, &customerID, &b.ShowtimeID, &promotionID,
		&b.TotalAmount, &b.DiscountAmount, &b.PointsUsed, &b.PointsEarned, &b.Status,
		&b.BookedAt, &b.PaymentDeadline, &b.CreatedAt, &b.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	b.CustomerID = nullUint64(customerID)
	b.PromotionID = nullUint64(promotionID)
	return &b, nil
}

func nullUint64(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	v := uint64(n.Int64)
	return &v
}

func uint64OrNil(p *uint64) any {
	if p == nil {
		return nil
	}
	return *p
}

// InsertTx inserts a PENDING booking.  BookedAt and PaymentDeadline are set
// by the database: the deadline is UTC_TIMESTAMP() plus grace.  The
// generated ID and timestamps are populated on b.  A collision with the
// creator's existing PENDING booking returns ErrPendingExists.
func (r *BookingRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking, grace time.Duration) error {
	const q = `INSERT INTO bookings (creator_id, customer_id, showtime_id, promotion_id,
	                                 total_amount, discount_amount, points_used, points_earned,
	                                 status, booked_at, payment_deadline)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, UTC_TIMESTAMP(), DATE_ADD(UTC_TIMESTAMP(), INTERVAL ? SECOND))`
	res, err := tx.ExecContext(ctx, q,
		b.CreatorID, uint64OrNil(b.CustomerID), b.ShowtimeID, uint64OrNil(b.PromotionID),
		b.TotalAmount, b.DiscountAmount, b.PointsUsed, b.PointsEarned,
		b.Status, int64(grace/time.Second))
	if err != nil {
		if key, dup := duplicateKey(err); dup {
			if key == "uq_bookings_pending_creator" {
				return ErrPendingExists
			}
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	stored, err := getBooking(ctx, tx, uint64(id), false)
	if err != nil {
		return err
	}
	*b = *stored
	return nil
}

func getBooking(ctx context.Context, q querier, id uint64, forUpdate bool) (*model.Booking, error) {
	sel := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = ?`
	if forUpdate {
		sel += ` FOR UPDATE`
	}
	return scanBooking(q.QueryRowContext(ctx, sel, id))
}

// Get retrieves a booking by ID.  It returns ErrNotFound if there is no
// matching row.
func (r *BookingRepo) Get(ctx context.Context, id uint64) (*model.Booking, error) {
	return getBooking(ctx, r.db, id, false)
}

// GetForUpdateTx reads a booking and locks its row until the transaction
// ends.  Confirmation and cancellation take this lock first so they never
// interleave on the same booking.
func (r *BookingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error) {
	return getBooking(ctx, tx, id, true)
}

// FindPendingByCreator returns the creator's most recent PENDING booking
// with the context a client needs to resume it.  RemainingSeconds is
// measured against the database clock.  It returns ErrNotFound when the
// creator has no PENDING booking.
func (r *BookingRepo) FindPendingByCreator(ctx context.Context, creatorID uint64) (*model.PendingBooking, error) {
	const q = `SELECT ` + bookingColumns + `,
	                  TIMESTAMPDIFF(SECOND, UTC_TIMESTAMP(), b.payment_deadline),
	                  s.movie_title, r.name, s.starts_at
	           FROM bookings b
	           JOIN showtimes s ON s.id = b.showtime_id
	           JOIN rooms r ON r.id = s.room_id
	           WHERE b.creator_id = ? AND b.status = 'PENDING'
	           ORDER BY b.booked_at DESC, b.id DESC
	           LIMIT 1`
	var p model.PendingBooking
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, creatorID),
		&p.RemainingSeconds, &p.MovieTitle, &p.RoomName, &p.StartsAt)
	if err != nil {
		return nil, err
	}
	p.Booking = *b

	tickets, err := listTickets(ctx, r.db, b.ID)
	if err != nil {
		return nil, fmt.Errorf("load pending booking seats: %w", err)
	}
	p.Seats = make([]string, 0, len(tickets))
	for _, t := range tickets {
		p.Seats = append(p.Seats, t.SeatLabel)
	}
	return &p, nil
}

// TransitionTx moves a booking from one status to another.  It returns
// ErrConflict when the booking is no longer in the from status.
func (r *BookingRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string) error {
	const q = `UPDATE bookings SET status = ? WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, to, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("booking %d %s -> %s: %w", id, from, to, ErrConflict)
	}
	return nil
}

// MarkCancelledTx sets the booking to CANCELLED and clears its promotion
// reference.  Bookings already CANCELLED or COMPLETED are left untouched
// and ErrConflict is returned.
func (r *BookingRepo) MarkCancelledTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	const q = `UPDATE bookings SET status = 'CANCELLED', promotion_id = NULL
	           WHERE id = ? AND status NOT IN ('CANCELLED', 'COMPLETED')`
	res, err := tx.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("cancel booking %d: %w", id, ErrConflict)
	}
	return nil
}

// ListExpiredPending returns up to limit PENDING bookings whose payment
// deadline has passed by the database clock, oldest deadline first.
func (r *BookingRepo) ListExpiredPending(ctx context.Context, limit int) ([]uint64, error) {
	const q = `SELECT id FROM bookings
	           WHERE status = 'PENDING' AND payment_deadline <= UTC_TIMESTAMP()
	           ORDER BY payment_deadline
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
