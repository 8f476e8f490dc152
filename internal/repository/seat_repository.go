package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// SeatRepo reads seat layouts and manages the per-booking seat instances
// allocated from them.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

// ListLayoutsByRoomTx retrieves all seat positions of a room ordered by
// row then column.  Inactive positions are included so callers can tell
// them apart from unknown ones.
func (r *SeatRepo) ListLayoutsByRoomTx(ctx context.Context, tx *sql.Tx, roomID uint64) ([]model.SeatLayout, error) {
	return listLayouts(ctx, tx, roomID)
}

// ListLayoutsByRoom is ListLayoutsByRoomTx outside a transaction.
func (r *SeatRepo) ListLayoutsByRoom(ctx context.Context, roomID uint64) ([]model.SeatLayout, error) {
	return listLayouts(ctx, r.db, roomID)
}

func listLayouts(ctx context.Context, q querier, roomID uint64) ([]model.SeatLayout, error) {
	const sel = `SELECT id, room_id, row_label, column_no, seat_type, is_active
	             FROM seat_layouts
	             WHERE room_id = ?
	             ORDER BY row_label, column_no`
	rows, err := q.QueryContext(ctx, sel, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SeatLayout
	for rows.Next() {
		var l model.SeatLayout
		if err := rows.Scan(&l.ID, &l.RoomID, &l.RowLabel, &l.Column, &l.SeatType, &l.IsActive); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// InsertInstancesTx creates one fresh seat instance per layout for the
// showtime and returns them in the same order.  Rows are inserted one at a
// time so every generated ID is known.
func (r *SeatRepo) InsertInstancesTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, layouts []model.SeatLayout) ([]model.SeatInstance, error) {
	const q = `INSERT INTO seat_instances (seat_layout_id, showtime_id, is_active) VALUES (?, ?, ?)`
	out := make([]model.SeatInstance, 0, len(layouts))
	for _, l := range layouts {
		res, err := tx.ExecContext(ctx, q, l.ID, showtimeID, l.IsActive)
		if err != nil {
			return nil, fmt.Errorf("insert seat instance for layout %d: %w", l.ID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		out = append(out, model.SeatInstance{
			ID:           uint64(id),
			SeatLayoutID: l.ID,
			ShowtimeID:   showtimeID,
			IsActive:     l.IsActive,
		})
	}
	return out, nil
}

// DeleteInstancesTx removes seat instances by ID.  Passing an empty slice
// has no effect.
func (r *SeatRepo) DeleteInstancesTx(ctx context.Context, tx *sql.Tx, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	q := `DELETE FROM seat_instances WHERE id IN (` + inPlaceholders(len(ids)) + `)`
	_, err := tx.ExecContext(ctx, q, uint64Args(ids)...)
	return err
}
