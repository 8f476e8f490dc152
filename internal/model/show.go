package model

import "time"

// Showtime statuses.  Only SCHEDULED and ACTIVE showtimes accept bookings.
const (
	ShowtimeScheduled = "SCHEDULED"
	ShowtimeActive    = "ACTIVE"
	ShowtimeCancelled = "CANCELLED"
	ShowtimeFinished  = "FINISHED"
)

// Room types known to the price table.
const (
	Room2D   = "2D"
	Room3D   = "3D"
	RoomIMAX = "IMAX"
	Room4DX  = "4DX"
)

// Showtime represents a scheduled screening of a movie in a room.  The
// room fields are joined in from the rooms table so that pricing and
// pending-booking context do not need a second lookup.
//
// Fields:
//  ID             – primary key identifier.
//  RoomID         – room where the showtime takes place.
//  RoomName       – display name of the room.
//  RoomType       – 2D, 3D, IMAX, 4DX; selects the price table row.
//  MovieTitle     – title shown to customers.
//  StartsAt       – when the screening begins (UTC).
//  Status         – SCHEDULED, ACTIVE, CANCELLED or FINISHED.
//  Capacity       – total seats in the room.
//  AvailableSeats – seats not held by a non-terminal booking.
type Showtime struct {
	ID             uint64    `json:"id"`
	RoomID         uint64    `json:"room_id"`
	RoomName       string    `json:"room_name"`
	RoomType       string    `json:"room_type"`
	MovieTitle     string    `json:"movie_title"`
	StartsAt       time.Time `json:"starts_at"`
	Status         string    `json:"status"`
	Capacity       int       `json:"capacity"`
	AvailableSeats int       `json:"available_seats"`
}

// Bookable reports whether new bookings may be placed on the showtime.
func (s *Showtime) Bookable() bool {
	return s.Status == ShowtimeScheduled || s.Status == ShowtimeActive
}
