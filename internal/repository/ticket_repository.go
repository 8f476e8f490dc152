package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// TicketRepo manages tickets.  The uq_tickets_active_seat key guarantees
// at most one non-terminal ticket per (showtime, seat position) even when
// two transactions pass the application-level conflict check.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// OccupiedLayoutsTx returns the subset of layoutIDs that already carry a
// non-terminal ticket for the showtime.
func (r *TicketRepo) OccupiedLayoutsTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, layoutIDs []uint64) ([]uint64, error) {
	if len(layoutIDs) == 0 {
		return nil, nil
	}
	q := `SELECT DISTINCT seat_layout_id FROM tickets
	      WHERE showtime_id = ? AND status NOT IN ('CANCELLED', 'EXPIRED')
	        AND seat_layout_id IN (` + inPlaceholders(len(layoutIDs)) + `)`
	args := append([]any{showtimeID}, uint64Args(layoutIDs)...)
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var taken []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		taken = append(taken, id)
	}
	return taken, rows.Err()
}

// InsertTx inserts the tickets and populates their generated IDs.  A
// collision on the active seat key returns ErrSeatTaken.
func (r *TicketRepo) InsertTx(ctx context.Context, tx *sql.Tx, tickets []*model.Ticket) error {
	const q = `INSERT INTO tickets (booking_id, seat_instance_id, seat_layout_id, showtime_id,
	                                base_price, discount, final_price, code, status)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, t := range tickets {
		res, err := tx.ExecContext(ctx, q, t.BookingID, t.SeatInstanceID, t.SeatLayoutID, t.ShowtimeID,
			t.BasePrice, t.Discount, t.FinalPrice, t.Code, t.Status)
		if err != nil {
			if key, dup := duplicateKey(err); dup {
				if key == "uq_tickets_active_seat" {
					return fmt.Errorf("ticket for layout %d: %w", t.SeatLayoutID, ErrSeatTaken)
				}
				return fmt.Errorf("ticket %s: %w", t.Code, ErrDuplicate)
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		t.ID = uint64(id)
	}
	return nil
}

// ListByBookingTx returns the booking's tickets with their seat labels,
// ordered by seat position.
func (r *TicketRepo) ListByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) ([]model.Ticket, error) {
	return listTickets(ctx, tx, bookingID)
}

// ListByBooking is ListByBookingTx outside a transaction.
func (r *TicketRepo) ListByBooking(ctx context.Context, bookingID uint64) ([]model.Ticket, error) {
	return listTickets(ctx, r.db, bookingID)
}

func listTickets(ctx context.Context, q querier, bookingID uint64) ([]model.Ticket, error) {
	const sel = `SELECT t.id, t.booking_id, t.seat_instance_id, t.seat_layout_id, t.showtime_id,
	                    t.base_price, t.discount, t.final_price, t.code, t.checked_in, t.status,
	                    l.row_label, l.column_no, t.created_at
	             FROM tickets t
	             JOIN seat_layouts l ON l.id = t.seat_layout_id
	             WHERE t.booking_id = ?
	             ORDER BY l.row_label, l.column_no`
	rows, err := q.QueryContext(ctx, sel, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Ticket
	for rows.Next() {
		var t model.Ticket
		var layout model.SeatLayout
		if err := rows.Scan(&t.ID, &t.BookingID, &t.SeatInstanceID, &t.SeatLayoutID, &t.ShowtimeID,
			&t.BasePrice, &t.Discount, &t.FinalPrice, &t.Code, &t.CheckedIn, &t.Status,
			&layout.RowLabel, &layout.Column, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.SeatLabel = layout.Label()
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetStatusByBookingTx moves every ticket of the booking to status.
func (r *TicketRepo) SetStatusByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64, status string) error {
	const q = `UPDATE tickets SET status = ? WHERE booking_id = ?`
	_, err := tx.ExecContext(ctx, q, status, bookingID)
	return err
}

// DeleteByBookingTx removes every ticket of the booking and returns how
// many rows were deleted.
func (r *TicketRepo) DeleteByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (int, error) {
	const q = `DELETE FROM tickets WHERE booking_id = ?`
	res, err := tx.ExecContext(ctx, q, bookingID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
