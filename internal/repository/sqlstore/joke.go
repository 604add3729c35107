package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sakif/jokebox/internal/apperror"
	"github.com/sakif/jokebox/internal/model"
	"github.com/sakif/jokebox/internal/repository"
)

var _ repository.JokeRepository = (*Store)(nil)

const jokeColumns = `id, user_id, text, status, created_at, updated_at`

// CreateJoke inserts a joke row.
//
// Ids are UUIDs rather than xids because clients may reserve an id before
// the row exists (the two-phase generation flow) and generate it with
// crypto.randomUUID in the browser. A reused id yields apperror.ErrConflict.
func (s *Store) CreateJoke(ctx context.Context, joke *model.Joke) error {
	if joke.ID == "" {
		joke.ID = uuid.NewString()
	}
	if joke.Status == "" {
		joke.Status = model.JokeCompleted
	}
	if joke.CreatedAt.IsZero() {
		joke.CreatedAt = s.timestamp()
	} else {
		joke.CreatedAt = joke.CreatedAt.UTC().Truncate(time.Microsecond)
	}
	joke.UpdatedAt = joke.CreatedAt

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO jokes (id, user_id, text, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		joke.ID,
		joke.UserID,
		joke.Text,
		joke.Status,
		joke.CreatedAt,
		joke.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("joke", "with this id already exists")
		}
		return fmt.Errorf("sqlstore: inserting joke %s: %w", joke.ID, err)
	}
	return nil
}

func (s *Store) GetJoke(ctx context.Context, id string) (*model.Joke, error) {
	var j model.Joke
	err := s.db.GetContext(ctx, &j, s.rebind(
		`SELECT `+jokeColumns+` FROM jokes WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("joke", id)
		}
		return nil, fmt.Errorf("sqlstore: getting joke %s: %w", id, err)
	}
	return &j, nil
}

// CompleteJoke sets the text and marks the joke completed. Completing an
// already-completed joke overwrites its text; callers that must not do that
// check the status first.
func (s *Store) CompleteJoke(ctx context.Context, id, text string) (*model.Joke, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE jokes SET text = ?, status = ?, updated_at = ? WHERE id = ?`),
		text, model.JokeCompleted, s.timestamp(), id)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: completing joke %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("sqlstore: completing joke %s: %w", id, err)
	} else if n == 0 {
		return nil, apperror.NotFound("joke", id)
	}
	return s.GetJoke(ctx, id)
}

// FailJoke marks a pending joke failed. A completed joke is never downgraded;
// it is returned unchanged.
func (s *Store) FailJoke(ctx context.Context, id string) (*model.Joke, error) {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE jokes SET status = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`),
		model.JokeFailed, s.timestamp(), id, model.JokeCompleted)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: failing joke %s: %w", id, err)
	}
	return s.GetJoke(ctx, id)
}

func (s *Store) ListJokesByUser(ctx context.Context, userID string) ([]model.Joke, error) {
	jokes := []model.Joke{}
	err := s.db.SelectContext(ctx, &jokes, s.rebind(
		`SELECT `+jokeColumns+` FROM jokes
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing jokes for user %s: %w", userID, err)
	}
	return jokes, nil
}

// FailStalePending expires pending jokes whose generation never finished.
//
// Each row is flipped with its own conditional UPDATE so a joke completed
// between the SELECT and the UPDATE keeps its completed status.
func (s *Store) FailStalePending(ctx context.Context, before time.Time) ([]model.Joke, error) {
	var stale []model.Joke
	err := s.db.SelectContext(ctx, &stale, s.rebind(
		`SELECT `+jokeColumns+` FROM jokes
		 WHERE status = ? AND created_at < ?
		 ORDER BY created_at`),
		model.JokePending, before.UTC().Truncate(time.Microsecond))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: finding stale pending jokes: %w", err)
	}

	failed := make([]model.Joke, 0, len(stale))
	for _, j := range stale {
		now := s.timestamp()
		res, err := s.db.ExecContext(ctx, s.rebind(
			`UPDATE jokes SET status = ?, updated_at = ? WHERE id = ? AND status = ?`),
			model.JokeFailed, now, j.ID, model.JokePending)
		if err != nil {
			return failed, fmt.Errorf("sqlstore: failing stale joke %s: %w", j.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		j.Status = model.JokeFailed
		j.UpdatedAt = now
		failed = append(failed, j)
	}
	return failed, nil
}
