package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// NewTicketCode returns a printable ticket code such as "TK-9F2C41A07B3E".
// Codes are random; the tickets table rejects the rare duplicate.
func NewTicketCode() (string, error) {
	raw, err := randomHex(6)
	if err != nil {
		return "", err
	}
	return "TK-" + strings.ToUpper(raw), nil
}

// randomHex returns n bytes of cryptographically secure random data as a
// hex string.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
