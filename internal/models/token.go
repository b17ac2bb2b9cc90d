package models

import (
	"time"
)

// Signed access token issued on successful secret comparison
type IssuedToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims of a validated access token
// There is no user identity: the service has exactly one authorization level
type AuthClaims struct {
	TokenID       string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	Authenticated bool
}

// Valid reports whether claims authorize a request at the given moment
func (c AuthClaims) Valid(now time.Time) bool {
	return c.Authenticated && now.Before(c.ExpiresAt)
}
