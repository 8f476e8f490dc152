package pricing

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DayType classifies a show date for the day multiplier.
type DayType string

const (
	Weekday DayType = "WEEKDAY"
	Weekend DayType = "WEEKEND"
	Holiday DayType = "HOLIDAY"
)

// TimeBand applies a multiplier to shows starting in [From, To).  A band
// whose To is not after From wraps past midnight.
type TimeBand struct {
	Name       string
	From       time.Duration // offset from midnight
	To         time.Duration
	Multiplier decimal.Decimal
}

func (b TimeBand) contains(clock time.Duration) bool {
	if b.To > b.From {
		return clock >= b.From && clock < b.To
	}
	return clock >= b.From || clock < b.To
}

// Table is the full price configuration.  BasePrices is keyed by room type
// then seat type.
type Table struct {
	DefaultSeatType string
	BasePrices      map[string]map[string]int64
	DayMultipliers  map[DayType]decimal.Decimal
	TimeBands       []TimeBand
	Holidays        map[string]bool // dates as 2006-01-02
}

// DefaultTable is used when no price file is configured.
func DefaultTable() Table {
	return Table{
		DefaultSeatType: "STANDARD",
		BasePrices: map[string]map[string]int64{
			"2D":   {"STANDARD": 100, "VIP": 120, "COUPLE": 220},
			"3D":   {"STANDARD": 130, "VIP": 150, "COUPLE": 280},
			"IMAX": {"STANDARD": 180, "VIP": 210},
			"4DX":  {"STANDARD": 200, "VIP": 240},
		},
		DayMultipliers: map[DayType]decimal.Decimal{
			Weekday: decimal.NewFromInt(1),
			Weekend: decimal.RequireFromString("1.2"),
			Holiday: decimal.RequireFromString("1.5"),
		},
		TimeBands: []TimeBand{
			{Name: "MORNING", From: 0, To: 12 * time.Hour, Multiplier: decimal.RequireFromString("0.8")},
			{Name: "PEAK", From: 18 * time.Hour, To: 23 * time.Hour, Multiplier: decimal.RequireFromString("1.15")},
		},
		Holidays: map[string]bool{},
	}
}

// Validate reports configuration errors that would make pricing ambiguous.
func (t Table) Validate() error {
	var errs []error
	if t.DefaultSeatType == "" {
		errs = append(errs, errors.New("default seat type is empty"))
	}
	if len(t.BasePrices) == 0 {
		errs = append(errs, errors.New("no base prices"))
	}
	for room, seats := range t.BasePrices {
		for seat, p := range seats {
			if p <= 0 {
				errs = append(errs, fmt.Errorf("base price %s/%s must be positive", room, seat))
			}
		}
	}
	for _, dt := range []DayType{Weekday, Weekend, Holiday} {
		m, ok := t.DayMultipliers[dt]
		if !ok {
			errs = append(errs, fmt.Errorf("missing day multiplier %s", dt))
			continue
		}
		if !m.IsPositive() {
			errs = append(errs, fmt.Errorf("day multiplier %s must be positive", dt))
		}
	}
	for _, b := range t.TimeBands {
		if !b.Multiplier.IsPositive() {
			errs = append(errs, fmt.Errorf("time band %s multiplier must be positive", b.Name))
		}
		if b.From == b.To {
			errs = append(errs, fmt.Errorf("time band %s is empty", b.Name))
		}
	}
	return errors.Join(errs...)
}

type fileTable struct {
	DefaultSeatType string                      `yaml:"default_seat_type"`
	BasePrices      map[string]map[string]int64 `yaml:"base_prices"`
	DayMultipliers  map[string]string           `yaml:"day_multipliers"`
	TimeBands       []struct {
		Name       string `yaml:"name"`
		From       string `yaml:"from"`
		To         string `yaml:"to"`
		Multiplier string `yaml:"multiplier"`
	} `yaml:"time_bands"`
	Holidays []string `yaml:"holidays"`
}

// LoadFile reads a YAML price table.  An empty path returns DefaultTable.
func LoadFile(path string) (Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read price table: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML price table and validates it.
func Parse(data []byte) (Table, error) {
	var ft fileTable
	if err := yaml.Unmarshal(data, &ft); err != nil {
		return Table{}, fmt.Errorf("decode price table: %w", err)
	}

	t := Table{
		DefaultSeatType: strings.ToUpper(ft.DefaultSeatType),
		BasePrices:      make(map[string]map[string]int64, len(ft.BasePrices)),
		DayMultipliers:  make(map[DayType]decimal.Decimal, len(ft.DayMultipliers)),
		Holidays:        make(map[string]bool, len(ft.Holidays)),
	}
	if t.DefaultSeatType == "" {
		t.DefaultSeatType = "STANDARD"
	}
	for room, seats := range ft.BasePrices {
		m := make(map[string]int64, len(seats))
		for seat, p := range seats {
			m[strings.ToUpper(seat)] = p
		}
		t.BasePrices[strings.ToUpper(room)] = m
	}
	for k, v := range ft.DayMultipliers {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return Table{}, fmt.Errorf("day multiplier %s: %w", k, err)
		}
		t.DayMultipliers[DayType(strings.ToUpper(k))] = d
	}
	for _, b := range ft.TimeBands {
		from, err := parseClock(b.From)
		if err != nil {
			return Table{}, fmt.Errorf("time band %s: %w", b.Name, err)
		}
		to, err := parseClock(b.To)
		if err != nil {
			return Table{}, fmt.Errorf("time band %s: %w", b.Name, err)
		}
		m, err := decimal.NewFromString(b.Multiplier)
		if err != nil {
			return Table{}, fmt.Errorf("time band %s multiplier: %w", b.Name, err)
		}
		t.TimeBands = append(t.TimeBands, TimeBand{Name: b.Name, From: from, To: to, Multiplier: m})
	}
	for _, h := range ft.Holidays {
		if _, err := time.Parse(time.DateOnly, h); err != nil {
			return Table{}, fmt.Errorf("holiday %q: %w", h, err)
		}
		t.Holidays[h] = true
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// parseClock converts "HH:MM" (24:00 allowed) to an offset from midnight.
func parseClock(s string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
