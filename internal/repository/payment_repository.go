package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// PaymentRepo records payments.  uq_payments_booking keeps at most one
// payment per booking, which makes the backup insertion path idempotent.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// InsertTx records the payment inside the caller's transaction.  A second
// payment for the same booking returns ErrDuplicate.
func (r *PaymentRepo) InsertTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	const q = `INSERT INTO payments (booking_id, amount, method, reference, status, paid_at)
	           VALUES (?, ?, ?, ?, ?, UTC_TIMESTAMP())`
	res, err := tx.ExecContext(ctx, q, p.BookingID, p.Amount, p.Method, p.Reference, p.Status)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("payment for booking %d: %w", p.BookingID, ErrDuplicate)
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// Ensure inserts the payment unless one already exists for the booking.
// It reports whether a row was written.
func (r *PaymentRepo) Ensure(ctx context.Context, p *model.Payment) (bool, error) {
	const q = `INSERT IGNORE INTO payments (booking_id, amount, method, reference, status, paid_at)
	           VALUES (?, ?, ?, ?, ?, UTC_TIMESTAMP())`
	res, err := r.db.ExecContext(ctx, q, p.BookingID, p.Amount, p.Method, p.Reference, p.Status)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetByBooking returns the booking's payment or ErrNotFound.
func (r *PaymentRepo) GetByBooking(ctx context.Context, bookingID uint64) (*model.Payment, error) {
	const q = `SELECT id, booking_id, amount, method, reference, status, paid_at
	           FROM payments WHERE booking_id = ?`
	var p model.Payment
	err := r.db.QueryRowContext(ctx, q, bookingID).Scan(&p.ID, &p.BookingID, &p.Amount, &p.Method, &p.Reference, &p.Status, &p.PaidAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
