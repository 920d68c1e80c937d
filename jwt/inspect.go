package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/role"
)

// ErrNotJWT is returned by [Inspect] for tokens that do not decode as a JWT.
var ErrNotJWT = errors.New("token is not a jwt")

// Claims are the claims the portal API puts in its access tokens. The subject is
// the decimal user id.
type Claims struct {
	Role role.Role `json:"role,omitempty"`
	Name string    `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Inspect decodes token without verifying its signature.
func Inspect(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Join(ErrNotJWT, err)
	}
	return claims, nil
}

// Expired reports whether token is a JWT whose exp claim is in the past.
func Expired(token string) bool {
	return ExpiredAt(token, time.Now())
}

// ExpiredAt is [Expired] evaluated at now. Opaque tokens and tokens without an
// exp claim are never expired.
func ExpiredAt(token string, now time.Time) bool {
	claims, err := Inspect(token)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}
