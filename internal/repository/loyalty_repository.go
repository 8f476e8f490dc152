package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// LoyaltyRepo is the MySQL loyalty ledger.  Every movement is recorded in
// loyalty_transactions under a unique (booking, kind) key; a repeated
// award or refund for the same booking is detected there and skipped.
type LoyaltyRepo struct {
	db *sql.DB
}

// NewLoyaltyRepo returns a new LoyaltyRepo bound to the given database.
func NewLoyaltyRepo(db *sql.DB) *LoyaltyRepo { return &LoyaltyRepo{db: db} }

// GetBalance returns the user's point balance.  Users without an account
// have a zero balance.
func (r *LoyaltyRepo) GetBalance(ctx context.Context, userID uint64) (int64, error) {
	var balance int64
	err := r.db.QueryRowContext(ctx, `SELECT balance FROM loyalty_accounts WHERE user_id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

// DebitTx redeems points for a booking inside the caller's transaction.
// The balance check and the decrement are one conditional update, so two
// concurrent debits can never overdraw the account.
func (r *LoyaltyRepo) DebitTx(ctx context.Context, tx *sql.Tx, userID, bookingID uint64, points int64) error {
	if points <= 0 {
		return nil
	}
	const upd = `UPDATE loyalty_accounts SET balance = balance - ? WHERE user_id = ? AND balance >= ?`
	res, err := tx.ExecContext(ctx, upd, points, userID, points)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientBalance
	}
	return r.recordTx(ctx, tx, userID, bookingID, model.LoyaltyRedeem, -points)
}

// Credit adds points for a booking (kind EARN or REFUND) in its own
// transaction.  It reports false without changing the balance when the
// same (booking, kind) movement was already applied.
func (r *LoyaltyRepo) Credit(ctx context.Context, userID, bookingID uint64, kind string, points int64) (bool, error) {
	if points <= 0 {
		return false, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := r.recordTx(ctx, tx, userID, bookingID, kind, points); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	const upsert = `INSERT INTO loyalty_accounts (user_id, balance) VALUES (?, ?)
	                ON DUPLICATE KEY UPDATE balance = balance + ?`
	if _, err := tx.ExecContext(ctx, upsert, userID, points, points); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	committed = true
	return true, nil
}

func (r *LoyaltyRepo) recordTx(ctx context.Context, tx *sql.Tx, userID, bookingID uint64, kind string, points int64) error {
	const ins = `INSERT INTO loyalty_transactions (user_id, booking_id, kind, points) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, ins, userID, bookingID, kind, points); err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("loyalty %s for booking %d: %w", kind, bookingID, ErrDuplicate)
		}
		return err
	}
	return nil
}
