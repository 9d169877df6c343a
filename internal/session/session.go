// Package session owns the access/refresh token pair, its durable copy and the refresh path.
package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the token pair held for the signed-in principal.
type Session struct {
	// ID correlates log lines for one sign-in; it survives refreshes.
	ID           string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// ExpiresWithin reports whether the access token expires before now+d.
// A zero expiry is unknown and never reported as expiring.
func (s Session) ExpiresWithin(d time.Duration, now time.Time) bool {
	if s.Expiry.IsZero() {
		return false
	}
	return !now.Add(d).Before(s.Expiry)
}

// ExpiryFromToken reads the exp claim of a JWT access token without verifying it.
// Opaque tokens yield the zero time.
func ExpiryFromToken(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// EventKind classifies a session change.
type EventKind int

const (
	// EventSaved is a new sign-in.
	EventSaved EventKind = iota
	// EventRefreshed is a token rotation for the same sign-in.
	EventRefreshed
	// EventCleared means no session remains.
	EventCleared
)

func (k EventKind) String() string {
	switch k {
	case EventSaved:
		return "saved"
	case EventRefreshed:
		return "refreshed"
	case EventCleared:
		return "cleared"
	}
	return "unknown"
}

// Event is delivered to subscribers after every successful save, refresh or clear.
type Event struct {
	Kind    EventKind
	Session Session
}
