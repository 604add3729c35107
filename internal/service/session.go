package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/jokebox/internal/apperror"
	"github.com/sakif/jokebox/internal/auth"
	"github.com/sakif/jokebox/internal/model"
	"github.com/sakif/jokebox/internal/repository"
)

// SessionManager issues and checks session tokens.
//
// A session is valid only when BOTH hold:
//   - the token's signature, issuer and expiry check out, and
//   - a server-side record for the token's hash exists, is unexpired and
//     belongs to the token's subject.
//
// The second check is what makes logout real: deleting the record revokes
// the token even though its signature stays valid until exp.
type SessionManager struct {
	sessions repository.SessionRepository
	users    repository.UserRepository
	tokens   *auth.TokenService
	logger   *slog.Logger
	now      func() time.Time
}

func NewSessionManager(
	sessions repository.SessionRepository,
	users repository.UserRepository,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *SessionManager {
	return &SessionManager{
		sessions: sessions,
		users:    users,
		tokens:   tokens,
		logger:   logger,
		now:      time.Now,
	}
}

var _ auth.SessionValidator = (*SessionManager)(nil)

// SetClock replaces the time source. Tests use it to move across the
// session window.
func (m *SessionManager) SetClock(now func() time.Time) {
	m.now = now
}

// TTL is the lifetime of new sessions; the cookie Max-Age matches it.
func (m *SessionManager) TTL() time.Duration {
	return m.tokens.TTL()
}

// CreateSession issues a token for userID and records it server-side.
func (m *SessionManager) CreateSession(ctx context.Context, userID string) (string, time.Time, error) {
	now := m.now()
	token, expiresAt, err := m.tokens.Issue(userID, now)
	if err != nil {
		return "", time.Time{}, err
	}

	err = m.sessions.CreateSession(ctx, &model.Session{
		TokenHash: auth.HashToken(token),
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: now.UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("service/session: recording session for user %s: %w", userID, err)
	}
	return token, expiresAt, nil
}

// ValidateSession never returns an error. A forged, expired, revoked or
// orphaned token and a failing database all look the same to the caller,
// so nothing about why a token was rejected leaks out.
func (m *SessionManager) ValidateSession(ctx context.Context, token string) (model.AuthUser, bool) {
	now := m.now()

	subject, err := m.tokens.Parse(token, now)
	if err != nil {
		return model.AuthUser{}, false
	}

	hash := auth.HashToken(token)
	rec, err := m.sessions.GetSession(ctx, hash)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			m.logger.Error("session lookup failed", slog.String("error", err.Error()))
		}
		return model.AuthUser{}, false
	}

	if rec.Expired(now) {
		if err := m.sessions.DeleteSession(ctx, hash); err != nil {
			m.logger.Warn("failed to delete expired session", slog.String("error", err.Error()))
		}
		return model.AuthUser{}, false
	}
	if rec.UserID != subject {
		return model.AuthUser{}, false
	}

	user, err := m.users.GetUserByID(ctx, rec.UserID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			m.logger.Error("session user lookup failed",
				slog.String("user_id", rec.UserID),
				slog.String("error", err.Error()),
			)
		}
		return model.AuthUser{}, false
	}
	return user.Public(), true
}

// DeleteSession revokes token. Unknown or malformed tokens are not an error.
func (m *SessionManager) DeleteSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.sessions.DeleteSession(ctx, auth.HashToken(token)); err != nil {
		return fmt.Errorf("service/session: deleting session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every record past its expiry.
func (m *SessionManager) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	n, err := m.sessions.DeleteExpiredSessions(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("service/session: pruning sessions: %w", err)
	}
	return n, nil
}
