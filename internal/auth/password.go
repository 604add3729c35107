// Package auth holds the credential primitives: bcrypt password hashing,
// signed session tokens, the session cookie, and the HTTP middleware that
// turns a cookie into an authenticated user on the request context.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Password length bounds, in bytes. bcrypt only reads the first 72 bytes of
// its input, so anything longer would be silently truncated; we reject it.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 72
)

// DefaultCost is the bcrypt work factor used in production (~250ms per hash).
// Tests pass bcrypt.MinCost to NewPasswordServiceForTest.
const DefaultCost = 12

var (
	ErrPasswordMismatch = errors.New("auth: password does not match")
	ErrPasswordTooShort = fmt.Errorf("auth: password must be at least %d characters", MinPasswordLength)
	ErrPasswordTooLong  = fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordLength)
)

// PasswordService hashes and verifies passwords.
//
// The bcrypt hash embeds its own salt and cost:
//
//	$2a$12$<22-char salt><31-char hash>
//
// so a single column holds everything Verify needs.
type PasswordService struct {
	cost int

	// dummy is a hash of a random string at the same cost, compared against
	// when the account does not exist so that "unknown email" and "wrong
	// password" take the same time.
	dummyOnce sync.Once
	dummy     []byte
}

func NewPasswordService() *PasswordService {
	return &PasswordService{cost: DefaultCost}
}

// NewPasswordServiceForTest lets other packages' tests use a cheap cost.
// Never use it outside tests.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash validates the length bounds and returns a bcrypt hash.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if err := CheckPasswordLength(plaintext); err != nil {
		return "", err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash and ErrPasswordMismatch when
// it does not. Any other error means the stored hash is malformed.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// VerifyDummy burns the same CPU as a real Verify and always fails.
func (p *PasswordService) VerifyDummy(plaintext string) error {
	p.dummyOnce.Do(func() {
		p.dummy, _ = bcrypt.GenerateFromPassword([]byte(RandomSecret(24)), p.cost)
	})
	_ = bcrypt.CompareHashAndPassword(p.dummy, []byte(plaintext))
	return ErrPasswordMismatch
}

// CheckPasswordLength enforces MinPasswordLength and MaxPasswordLength.
func CheckPasswordLength(plaintext string) error {
	switch {
	case len(plaintext) < MinPasswordLength:
		return ErrPasswordTooShort
	case len(plaintext) > MaxPasswordLength:
		return ErrPasswordTooLong
	}
	return nil
}
