// Package clock lets services read the current time through an injectable
// source.  Booking deadlines never use it; they follow the database clock.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a clock backed by time.Now in UTC.
func NewSystem() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now().UTC() }

type fixedClock struct{ now time.Time }

// NewFixed returns a clock frozen at t.
func NewFixed(t time.Time) Clock { return fixedClock{now: t.UTC()} }

func (f fixedClock) Now() time.Time { return f.now }
