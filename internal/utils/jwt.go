package utils // package utils provides token and code helpers shared by the binaries

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for signing and verifying tokens
)

// AccessToken is a signed HS256 JWT along with its expiry.  Tokens are
// issued by the identity service in production; the booking engine only
// verifies them.  NewAccessToken exists for local tooling and tests.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// Claims is the verified content of an access token.
type Claims struct {
	UserID uint64 // numeric "sub" claim; 0 for service principals
	Role   string // CUSTOMER, STAFF or PAYMENT_GATEWAY
}

// ErrInvalidToken is returned when a token fails verification.
var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken signs a token for userID with the given role that expires
// after ttl.  The subject is encoded as a decimal string as RFC 7519
// requires.
func NewAccessToken(secret string, userID uint64, role string, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(userID, 10),
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw with secret and extracts its claims.  Only
// HS256 is accepted.  The "sub" claim may be a decimal string or a JSON
// number; older issuers wrote the latter.
func ParseAccessToken(secret, raw string) (Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	role, _ := mc["role"].(string)
	if role == "" {
		return Claims{}, fmt.Errorf("%w: missing role", ErrInvalidToken)
	}
	var uid uint64
	switch sub := mc["sub"].(type) {
	case string:
		if sub != "" {
			uid, err = strconv.ParseUint(sub, 10, 64)
			if err != nil {
				return Claims{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
			}
		}
	case float64:
		if sub < 0 {
			return Claims{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
		}
		uid = uint64(sub)
	case nil:
	default:
		return Claims{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return Claims{UserID: uid, Role: role}, nil
}
