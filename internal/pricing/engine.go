// Package pricing computes ticket prices from a room type, a seat type and
// the show's start time.  The engine is pure: identical inputs always give
// identical prices and nothing outside the table is consulted.
package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPricingNotFound means the table has no entry for the room type.  It
// is a configuration gap, not a caller error.
var ErrPricingNotFound = errors.New("pricing: no price entry")

// Quote is a priced seat together with the factors that produced it.
type Quote struct {
	RoomType       string
	SeatType       string // seat type actually priced, after fallback
	BasePrice      int64
	DayType        DayType
	DayMultiplier  decimal.Decimal
	TimeBand       string // empty when no band matched
	TimeMultiplier decimal.Decimal
	FinalPrice     int64
}

// Engine prices seats from a Table.  Show times are converted to loc
// before the day type and time band are decided.
type Engine struct {
	table Table
	loc   *time.Location
}

// NewEngine validates the table and returns an engine bound to loc.
func NewEngine(table Table, loc *time.Location) (*Engine, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("pricing: invalid table: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{table: table, loc: loc}, nil
}

// Price returns the final unit price for a seat.
func (e *Engine) Price(roomType, seatType string, startsAt time.Time) (int64, error) {
	q, err := e.Quote(roomType, seatType, startsAt)
	if err != nil {
		return 0, err
	}
	return q.FinalPrice, nil
}

// Quote computes base × day multiplier × time multiplier, rounded half up
// to a whole currency unit.  An unknown seat type is priced as the default
// seat type; an unknown room type fails with ErrPricingNotFound.
func (e *Engine) Quote(roomType, seatType string, startsAt time.Time) (Quote, error) {
	roomType = strings.ToUpper(strings.TrimSpace(roomType))
	seatType = strings.ToUpper(strings.TrimSpace(seatType))

	seats, ok := e.table.BasePrices[roomType]
	if !ok {
		return Quote{}, fmt.Errorf("%w: room type %q", ErrPricingNotFound, roomType)
	}
	base, ok := seats[seatType]
	if !ok {
		seatType = e.table.DefaultSeatType
		if base, ok = seats[seatType]; !ok {
			return Quote{}, fmt.Errorf("%w: room type %q has no %s seats", ErrPricingNotFound, roomType, seatType)
		}
	}

	local := startsAt.In(e.loc)
	day := e.dayType(local)
	dayMul := e.table.DayMultipliers[day]
	band, timeMul := e.timeBand(local)

	final := decimal.NewFromInt(base).Mul(dayMul).Mul(timeMul).Round(0)
	return Quote{
		RoomType:       roomType,
		SeatType:       seatType,
		BasePrice:      base,
		DayType:        day,
		DayMultiplier:  dayMul,
		TimeBand:       band,
		TimeMultiplier: timeMul,
		FinalPrice:     final.IntPart(),
	}, nil
}

func (e *Engine) dayType(t time.Time) DayType {
	if e.table.Holidays[t.Format(time.DateOnly)] {
		return Holiday
	}
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return Weekend
	}
	return Weekday
}

// timeBand returns the first band containing t's clock time.
func (e *Engine) timeBand(t time.Time) (string, decimal.Decimal) {
	clock := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	for _, b := range e.table.TimeBands {
		if b.contains(clock) {
			return b.Name, b.Multiplier
		}
	}
	return "", decimal.NewFromInt(1)
}
