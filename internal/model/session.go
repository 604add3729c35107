package model

import "time"

// Session is the server-side record behind a session cookie.
//
// Only the SHA-256 of the bearer token is stored, so a leaked table can't be
// replayed as cookies. A session past ExpiresAt is dead even if the row is
// still present.
type Session struct {
	TokenHash string    `db:"token_hash"`
	UserID    string    `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// Expired reports whether the session is dead at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
