// Package repository implements MySQL persistence for the booking engine.
// Methods suffixed with Tx run inside a transaction owned by the caller;
// the caller commits or rolls back.
//
// The sentinel values below let the service layer distinguish failure
// scenarios without inspecting driver errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup yields no rows.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update matched no row because
// the current state does not allow it.
var ErrConflict = errors.New("conflict")

// ErrDuplicate is returned when an insert violates a unique key that has no
// more specific meaning.
var ErrDuplicate = errors.New("duplicate")

// ErrSeatTaken is returned when a ticket insert collides with a
// non-terminal ticket for the same showtime and seat position.
var ErrSeatTaken = errors.New("seat already ticketed")

// ErrPendingExists is returned when a booking insert collides with the
// creator's existing PENDING booking.
var ErrPendingExists = errors.New("creator already has a pending booking")

// ErrInsufficientBalance is returned when a loyalty debit exceeds the
// balance.
var ErrInsufficientBalance = errors.New("insufficient loyalty balance")

// ErrPromotionNotApplicable is returned when a promotion is inactive,
// outside its validity window or exhausted.
var ErrPromotionNotApplicable = errors.New("promotion not applicable")

const mysqlDuplicateEntry = 1062

// duplicateKey reports whether err is a MySQL duplicate-key error and, if
// so, the name of the violated key.
func duplicateKey(err error) (string, bool) {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return "", false
	}
	// Message: Duplicate entry 'x' for key 'table.key_name'
	msg := me.Message
	i := strings.LastIndex(msg, "for key '")
	if i < 0 {
		return "", true
	}
	key := strings.TrimSuffix(msg[i+len("for key '"):], "'")
	if dot := strings.LastIndex(key, "."); dot >= 0 {
		key = key[dot+1:]
	}
	return key, true
}

func isDuplicate(err error) bool {
	_, ok := duplicateKey(err)
	return ok
}
