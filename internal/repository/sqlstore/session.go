package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/jokebox/internal/apperror"
	"github.com/sakif/jokebox/internal/model"
	"github.com/sakif/jokebox/internal/repository"
)

var _ repository.SessionRepository = (*Store)(nil)

// CreateSession stores a session record. ExpiresAt is chosen by the caller.
func (s *Store) CreateSession(ctx context.Context, session *model.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.timestamp()
	}
	session.ExpiresAt = session.ExpiresAt.UTC().Truncate(time.Microsecond)

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO sessions (token_hash, user_id, expires_at, created_at)
		 VALUES (?, ?, ?, ?)`),
		session.TokenHash,
		session.UserID,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("session", "already exists")
		}
		return fmt.Errorf("sqlstore: inserting session for user %s: %w", session.UserID, err)
	}
	return nil
}

// GetSession returns the record even when it has expired; deciding what an
// expired record means is the session manager's job.
func (s *Store) GetSession(ctx context.Context, tokenHash string) (*model.Session, error) {
	var sess model.Session
	err := s.db.GetContext(ctx, &sess, s.rebind(
		`SELECT token_hash, user_id, expires_at, created_at
		 FROM sessions WHERE token_hash = ?`), tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("session", "(redacted)")
		}
		return nil, fmt.Errorf("sqlstore: getting session: %w", err)
	}
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM sessions WHERE token_hash = ?`), tokenHash)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting session: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM sessions WHERE expires_at <= ?`),
		now.UTC().Truncate(time.Microsecond))
	if err != nil {
		return 0, fmt.Errorf("sqlstore: deleting expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: counting expired sessions: %w", err)
	}
	return n, nil
}
