package model

import (
	"strconv"
	"time"
)

// Seat types known to the price table.  SeatTypeStandard is the fallback
// when a layout carries a type with no pricing entry.
const (
	SeatTypeStandard = "STANDARD"
	SeatTypeVIP      = "VIP"
	SeatTypeCouple   = "COUPLE"
)

// SeatLayout describes a physical seat position in a room.  Positions are
// uniquely identified by their room, row label and column number.
//
// Fields:
//  ID        – primary key identifier.
//  RoomID    – room to which this seat belongs.
//  RowLabel  – letter designating the row.
//  Column    – number of the seat within the row (1-based).
//  SeatType  – STANDARD, VIP, COUPLE, ...
//  IsActive  – inactive positions cannot be booked.
type SeatLayout struct {
	ID       uint64 `json:"id"`
	RoomID   uint64 `json:"room_id"`
	RowLabel string `json:"row"`
	Column   uint32 `json:"column"`
	SeatType string `json:"seat_type"`
	IsActive bool   `json:"is_active"`
}

// Label renders the position the way customers read it, e.g. "B7".
func (l SeatLayout) Label() string {
	return l.RowLabel + strconv.FormatUint(uint64(l.Column), 10)
}

// SeatInstance is the per-booking allocation record of a layout position.
// A fresh instance is inserted for every booking attempt and deleted when
// the booking is cancelled.
//
// Fields:
//  ID           – primary key identifier.
//  SeatLayoutID – layout position this instance occupies.
//  ShowtimeID   – showtime it was allocated for.
//  IsActive     – mirrors the layout's flag at allocation time.
//  CreatedAt    – creation timestamp.
type SeatInstance struct {
	ID           uint64    `json:"id"`
	SeatLayoutID uint64    `json:"seat_layout_id"`
	ShowtimeID   uint64    `json:"showtime_id"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AllocatedSeat pairs a seat instance with the layout it was created for.
type AllocatedSeat struct {
	Instance SeatInstance
	Layout   SeatLayout
}

// SeatSelector identifies a requested seat either by layout id or by row
// and column.  Exactly one form must be set.
type SeatSelector struct {
	SeatLayoutID uint64 `json:"seat_id,omitempty"`
	Row          string `json:"row,omitempty"`
	Column       uint32 `json:"column,omitempty"`
}

// ByID reports whether the selector names a layout id directly.
func (s SeatSelector) ByID() bool { return s.SeatLayoutID != 0 }

// String renders the selector for error messages.
func (s SeatSelector) String() string {
	if s.ByID() {
		return "#" + strconv.FormatUint(s.SeatLayoutID, 10)
	}
	return s.Row + strconv.FormatUint(uint64(s.Column), 10)
}

// SeatStatus is one cell of a showtime's seat map.
type SeatStatus struct {
	SeatLayout
	Label    string `json:"label"`
	Occupied bool   `json:"occupied"`
}
