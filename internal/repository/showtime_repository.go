package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// ShowtimeRepo reads showtimes together with their room and maintains the
// available seat counter.  Showtime scheduling itself belongs to the
// catalog; this repository never inserts showtimes.
type ShowtimeRepo struct {
	db *sql.DB
}

// NewShowtimeRepo constructs a ShowtimeRepo with the given DB handle.
func NewShowtimeRepo(db *sql.DB) *ShowtimeRepo { return &ShowtimeRepo{db: db} }

const showtimeColumns = `s.id, s.room_id, r.name, r.room_type, s.movie_title, s.starts_at,
       s.status, s.capacity, s.available_seats`

func scanShowtime(row *sql.Row) (*model.Showtime, error) {
	var s model.Showtime
	err := row.Scan(&s.ID, &s.RoomID, &s.RoomName, &s.RoomType, &s.MovieTitle, &s.StartsAt,
		&s.Status, &s.Capacity, &s.AvailableSeats)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get retrieves a showtime by ID.  It returns ErrNotFound if there is no
// matching row.
func (r *ShowtimeRepo) Get(ctx context.Context, id uint64) (*model.Showtime, error) {
	const q = `SELECT ` + showtimeColumns + `
               FROM showtimes s JOIN rooms r ON r.id = s.room_id
               WHERE s.id = ?`
	return scanShowtime(r.db.QueryRowContext(ctx, q, id))
}

// LockTx reads the showtime and takes a row lock on it.  Every booking
// creation for the same showtime serializes on this lock, so the seat
// conflict check and the ticket insert see a consistent set of tickets.
func (r *ShowtimeRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Showtime, error) {
	const q = `SELECT ` + showtimeColumns + `
               FROM showtimes s JOIN rooms r ON r.id = s.room_id
               WHERE s.id = ?
               FOR UPDATE`
	return scanShowtime(tx.QueryRowContext(ctx, q, id))
}

// AdjustCapacityTx adds delta (negative when seats are taken) to the
// showtime's available seats.  The counter never leaves [0, capacity];
// an adjustment that would do so matches no row and returns ErrConflict.
func (r *ShowtimeRepo) AdjustCapacityTx(ctx context.Context, tx *sql.Tx, id uint64, delta int) error {
	const q = `UPDATE showtimes
               SET available_seats = available_seats + ?
               WHERE id = ? AND available_seats + ? BETWEEN 0 AND capacity`
	res, err := tx.ExecContext(ctx, q, delta, id, delta)
	if err != nil {
		return fmt.Errorf("adjust capacity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("adjust capacity of showtime %d by %d: %w", id, delta, ErrConflict)
	}
	return nil
}

// SeatMap returns every seat position of the showtime's room with its
// occupancy.  A position is occupied while a non-terminal ticket holds it.
func (r *ShowtimeRepo) SeatMap(ctx context.Context, showtimeID uint64) ([]model.SeatStatus, error) {
	const q = `SELECT l.id, l.room_id, l.row_label, l.column_no, l.seat_type, l.is_active,
                      EXISTS (SELECT 1 FROM tickets t
                              WHERE t.showtime_id = s.id AND t.seat_layout_id = l.id
                                AND t.status NOT IN ('CANCELLED', 'EXPIRED'))
               FROM showtimes s
               JOIN seat_layouts l ON l.room_id = s.room_id
               WHERE s.id = ?
               ORDER BY l.row_label, l.column_no`
	rows, err := r.db.QueryContext(ctx, q, showtimeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SeatStatus
	for rows.Next() {
		var st model.SeatStatus
		if err := rows.Scan(&st.ID, &st.RoomID, &st.RowLabel, &st.Column, &st.SeatType, &st.IsActive, &st.Occupied); err != nil {
			return nil, err
		}
		st.Label = st.SeatLayout.Label()
		out = append(out, st)
	}
	return out, rows.Err()
}
