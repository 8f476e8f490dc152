package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// SeatMapResponse is the public view of a showtime's seats.  It is cached
// by middleware.SeatMapCache, so it carries no caller-specific fields.
type SeatMapResponse struct {
	ShowtimeID uint64             `json:"showtime_id"`
	Available  int                `json:"available"`
	Seats      []model.SeatStatus `json:"seats"`
}

// SeatMap handles GET /v1/showtimes/:id/seats.  It needs no
// authentication.
func (h *BookingHandler) SeatMap(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid showtime id")
	}
	seats, err := h.Engine.SeatMap(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, err)
	}
	free := 0
	for _, s := range seats {
		if s.IsActive && !s.Occupied {
			free++
		}
	}
	return c.JSON(http.StatusOK, SeatMapResponse{ShowtimeID: id, Available: free, Seats: seats})
}
