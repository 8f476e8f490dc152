package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// PromotionRepo is the MySQL promotion registry.  usage_count tracks the
// bookings currently holding a promotion; promotion_usages keeps one row
// per (promotion, booking).
type PromotionRepo struct {
	db *sql.DB
}

// NewPromotionRepo returns a new PromotionRepo bound to the given database.
func NewPromotionRepo(db *sql.DB) *PromotionRepo { return &PromotionRepo{db: db} }

// Get retrieves a promotion by ID or returns ErrNotFound.
func (r *PromotionRepo) Get(ctx context.Context, id uint64) (*model.Promotion, error) {
	const q = `SELECT id, code, discount_type, value, valid_from, valid_to, max_usage, usage_count, status
	           FROM promotions WHERE id = ?`
	var p model.Promotion
	err := r.db.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.Code, &p.DiscountType, &p.Value,
		&p.ValidFrom, &p.ValidTo, &p.MaxUsage, &p.UsageCount, &p.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ApplyTx records that the booking uses the promotion and increments its
// usage counter.  Validity, status and the usage limit are checked by the
// same conditional update against the database clock; when any fails
// ErrPromotionNotApplicable is returned.
func (r *PromotionRepo) ApplyTx(ctx context.Context, tx *sql.Tx, promotionID, bookingID uint64) error {
	const upd = `UPDATE promotions SET usage_count = usage_count + 1
	             WHERE id = ? AND status = 'ACTIVE'
	               AND UTC_TIMESTAMP() BETWEEN valid_from AND valid_to
	               AND (max_usage = 0 OR usage_count < max_usage)`
	res, err := tx.ExecContext(ctx, upd, promotionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPromotionNotApplicable
	}
	const ins = `INSERT INTO promotion_usages (promotion_id, booking_id, used) VALUES (?, ?, 1)`
	if _, err := tx.ExecContext(ctx, ins, promotionID, bookingID); err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ReleaseTx marks the booking's usage unused and decrements the counter.
// It is idempotent: when no used row exists it returns ErrNotFound and
// changes nothing.
func (r *PromotionRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, promotionID, bookingID uint64) error {
	return releasePromotion(ctx, tx, promotionID, bookingID)
}

// Release is ReleaseTx in its own transaction.
func (r *PromotionRepo) Release(ctx context.Context, promotionID, bookingID uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := releasePromotion(ctx, tx, promotionID, bookingID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func releasePromotion(ctx context.Context, tx *sql.Tx, promotionID, bookingID uint64) error {
	const upd = `UPDATE promotion_usages SET used = 0 WHERE promotion_id = ? AND booking_id = ? AND used = 1`
	res, err := tx.ExecContext(ctx, upd, promotionID, bookingID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	const dec = `UPDATE promotions SET usage_count = GREATEST(usage_count, 1) - 1 WHERE id = ?`
	_, err = tx.ExecContext(ctx, dec, promotionID)
	return err
}
