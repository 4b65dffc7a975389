package domain

import "time"

// Identity is the verified result of token validation. It is bound to a
// connection once and never re-read from claims.
type Identity struct {
	UserID    UserID
	UserName  string
	ExpiresAt time.Time
}

func (i Identity) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
