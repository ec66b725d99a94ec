package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/dori/taskdeck/internal/model"
)

var errNoExpiry = errors.New("token has no exp claim")

// DecodeExpiry reads the exp claim of a JWT without verifying its signature.
// Verification is the server's job; the client only needs to know when to stop
// presenting the token.
func DecodeExpiry(token string) (time.Time, error) {
	if token == "" {
		return time.Time{}, &model.DecodeError{Err: errors.New("empty token")}
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, &model.DecodeError{Err: err}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, &model.DecodeError{Err: errNoExpiry}
	}
	return claims.ExpiresAt.Time, nil
}

// IsExpired reports whether the session's token is past its exp claim at now.
// A token that cannot be decoded counts as expired.
func IsExpired(s Session, now time.Time) bool {
	exp, err := DecodeExpiry(s.Token)
	if err != nil {
		return true
	}
	return now.After(exp)
}
