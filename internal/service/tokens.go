package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the "type" claim.
const (
	tokenAccess    = "access"
	tokenMagicLink = "magic_link"
)

type claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// signToken creates a signed HS256 JWT of the given kind.
func signToken(key []byte, kind, subject string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	c := claims{
		Type: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(key)
	return signed, exp, err
}

// parseToken verifies signature, expiry (30s leeway) and kind, and returns the subject.
func parseToken(key []byte, raw, kind string) (string, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	}, jwt.WithLeeway(30*time.Second))
	if err != nil || !parsed.Valid {
		return "", errors.New("invalid token")
	}
	if c.Type != kind {
		return "", errors.New("unexpected token type")
	}
	if c.Subject == "" {
		return "", errors.New("empty subject")
	}
	return c.Subject, nil
}
