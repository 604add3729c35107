// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered account.
//
// Email is stored trimmed and lower-cased; the UNIQUE constraint on the
// column is what ultimately decides which of two concurrent registrations
// wins. PasswordHash is a bcrypt string and is never serialized.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// AuthUser is the minimal identity attached to an authenticated request.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Public returns the projection that is safe to send to clients.
func (u *User) Public() AuthUser {
	return AuthUser{ID: u.ID, Email: u.Email}
}
