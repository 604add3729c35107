// Package repository declares the storage contracts used by the service layer.
//
// Implementations live in sub-packages (see repository/sqlstore). Services
// depend on these interfaces only, so tests can swap in in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/sakif/jokebox/internal/model"
)

// UserRepository is the credential store.
type UserRepository interface {
	// CreateUser inserts a user and fills in ID and timestamps.
	// A duplicate email yields apperror.ErrConflict.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// SessionRepository persists server-side session records keyed by token hash.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, tokenHash string) (*model.Session, error)
	// DeleteSession is idempotent: deleting a missing row is not an error.
	DeleteSession(ctx context.Context, tokenHash string) error
	// DeleteExpiredSessions removes rows whose expiry is at or before now.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// JokeRepository persists jokes. It does not check ownership; that is an
// authorization concern handled by the service layer.
type JokeRepository interface {
	// CreateJoke inserts a joke. ID and Status must be set by the caller
	// when reserving a client-generated id; otherwise an ID is generated.
	CreateJoke(ctx context.Context, joke *model.Joke) error
	GetJoke(ctx context.Context, id string) (*model.Joke, error)
	CompleteJoke(ctx context.Context, id, text string) (*model.Joke, error)
	FailJoke(ctx context.Context, id string) (*model.Joke, error)
	// ListJokesByUser returns the user's jokes newest first.
	ListJokesByUser(ctx context.Context, userID string) ([]model.Joke, error)
	// FailStalePending flips pending jokes created before the cutoff to
	// failed and returns the affected rows.
	FailStalePending(ctx context.Context, before time.Time) ([]model.Joke, error)
}
