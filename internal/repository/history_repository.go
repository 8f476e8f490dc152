package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// HistoryRepo appends booking audit entries.  Entries are never updated
// or deleted.
type HistoryRepo struct {
	db *sql.DB
}

// NewHistoryRepo returns a new HistoryRepo bound to the given database.
func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{db: db} }

// AppendTx appends an entry inside the caller's transaction.
func (r *HistoryRepo) AppendTx(ctx context.Context, tx *sql.Tx, h *model.BookingHistory) error {
	return appendHistory(ctx, tx, h)
}

// Append appends an entry in its own statement.  It is used by post-commit
// steps such as the points refund follow-up.
func (r *HistoryRepo) Append(ctx context.Context, h *model.BookingHistory) error {
	return appendHistory(ctx, r.db, h)
}

func appendHistory(ctx context.Context, q querier, h *model.BookingHistory) error {
	const ins = `INSERT INTO booking_history (booking_id, status, notes, payload) VALUES (?, ?, ?, ?)`
	var payload any
	if len(h.Payload) > 0 {
		payload = []byte(h.Payload)
	}
	res, err := q.ExecContext(ctx, ins, h.BookingID, h.Status, h.Notes, payload)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	h.ID = uint64(id)
	return nil
}

// ListByBooking returns the booking's entries in the order they were
// appended.
func (r *HistoryRepo) ListByBooking(ctx context.Context, bookingID uint64) ([]model.BookingHistory, error) {
	const q = `SELECT id, booking_id, status, notes, payload, created_at
	           FROM booking_history WHERE booking_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BookingHistory
	for rows.Next() {
		var h model.BookingHistory
		var payload []byte
		if err := rows.Scan(&h.ID, &h.BookingID, &h.Status, &h.Notes, &payload, &h.CreatedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			h.Payload = payload
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
