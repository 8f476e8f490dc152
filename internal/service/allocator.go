package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iliyamo/cinema-booking/internal/model"
)

type position struct {
	row    string
	column uint32
}

// allocateSeats resolves selectors against the showtime's room, inserts a
// fresh seat instance per resolved layout and verifies that none of the
// positions already carries a non-terminal ticket.  It either allocates
// every requested seat or fails; the caller's transaction rolls back the
// instances on failure.
func (s *BookingService) allocateSeats(ctx context.Context, tx *sql.Tx, st *model.Showtime, selectors []model.SeatSelector) ([]model.AllocatedSeat, error) {
	if len(selectors) == 0 {
		return nil, &InvalidSeatSelectionError{Reason: "no seats requested"}
	}

	layouts, err := s.seats.ListLayoutsByRoomTx(ctx, tx, st.RoomID)
	if err != nil {
		return nil, fmt.Errorf("allocate seats: list layouts: %w", err)
	}
	byID := make(map[uint64]model.SeatLayout, len(layouts))
	byPos := make(map[position]model.SeatLayout, len(layouts))
	for _, l := range layouts {
		byID[l.ID] = l
		byPos[position{row: strings.ToUpper(l.RowLabel), column: l.Column}] = l
	}

	resolved := make([]model.SeatLayout, 0, len(selectors))
	seen := make(map[uint64]bool, len(selectors))
	var unknown, inactive, duplicate []string
	for _, sel := range selectors {
		var (
			l  model.SeatLayout
			ok bool
		)
		if sel.ByID() {
			l, ok = byID[sel.SeatLayoutID]
		} else if sel.Row != "" && sel.Column > 0 {
			l, ok = byPos[position{row: strings.ToUpper(strings.TrimSpace(sel.Row)), column: sel.Column}]
		}
		switch {
		case !ok:
			unknown = append(unknown, sel.String())
		case !l.IsActive:
			inactive = append(inactive, l.Label())
		case seen[l.ID]:
			duplicate = append(duplicate, l.Label())
		default:
			seen[l.ID] = true
			resolved = append(resolved, l)
		}
	}
	switch {
	case len(unknown) > 0:
		return nil, &InvalidSeatSelectionError{Selectors: unknown, Reason: "unknown seat"}
	case len(inactive) > 0:
		return nil, &InvalidSeatSelectionError{Selectors: inactive, Reason: "seat not in service"}
	case len(duplicate) > 0:
		return nil, &InvalidSeatSelectionError{Selectors: duplicate, Reason: "seat requested twice"}
	}

	instances, err := s.seats.InsertInstancesTx(ctx, tx, st.ID, resolved)
	if err != nil {
		return nil, fmt.Errorf("allocate seats: %w", err)
	}

	ids := make([]uint64, len(resolved))
	for i, l := range resolved {
		ids[i] = l.ID
	}
	taken, err := s.tickets.OccupiedLayoutsTx(ctx, tx, st.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("allocate seats: check conflicts: %w", err)
	}
	if len(taken) > 0 {
		return nil, &SeatUnavailableError{Positions: labelsOf(resolved, taken)}
	}

	out := make([]model.AllocatedSeat, len(resolved))
	for i := range resolved {
		out[i] = model.AllocatedSeat{Instance: instances[i], Layout: resolved[i]}
	}
	return out, nil
}

// labelsOf returns the labels of the layouts whose id is in ids, in the
// order the layouts were requested.
func labelsOf(layouts []model.SeatLayout, ids []uint64) []string {
	want := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []string
	for _, l := range layouts {
		if want[l.ID] {
			out = append(out, l.Label())
		}
	}
	return out
}
