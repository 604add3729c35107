package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sakif/jokebox/internal/apperror"
	"github.com/sakif/jokebox/internal/llm"
	"github.com/sakif/jokebox/internal/metrics"
	"github.com/sakif/jokebox/internal/model"
	"github.com/sakif/jokebox/internal/repository"
)

// MaxJokeLength bounds joke text, in characters.
const MaxJokeLength = 1000

// Publisher receives every joke write. *feed.Broker implements it.
type Publisher interface {
	Publish(evt model.JokeEvent)
}

// JokeService owns the joke lifecycle:
//
//	Create          text typed by the user           → completed
//	Generate        text from the generator          → completed
//	CreatePending   client reserves an id            → pending
//	GenerateFor     fill a pending/failed joke       → completed | failed
//	Complete        fill a joke with given text      → completed
//	ExpireStale     pending too long                 → failed
//
// Every method takes the caller's user id and treats a joke owned by someone
// else exactly like a missing one.
type JokeService struct {
	repo      repository.JokeRepository
	generator llm.Generator
	publisher Publisher
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewJokeService(
	repo repository.JokeRepository,
	generator llm.Generator,
	publisher Publisher,
	generationTimeout time.Duration,
	logger *slog.Logger,
) *JokeService {
	return &JokeService{
		repo:      repo,
		generator: generator,
		publisher: publisher,
		timeout:   generationTimeout,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns the user's jokes, newest first.
func (s *JokeService) List(ctx context.Context, userID string) ([]model.Joke, error) {
	jokes, err := s.repo.ListJokesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/joke: listing: %w", err)
	}
	return jokes, nil
}

// Create stores a completed joke with the given text.
func (s *JokeService) Create(ctx context.Context, userID, text string) (*model.Joke, error) {
	text, err := validateText(text)
	if err != nil {
		return nil, err
	}

	joke := &model.Joke{UserID: userID, Text: text, Status: model.JokeCompleted}
	if err := s.repo.CreateJoke(ctx, joke); err != nil {
		return nil, fmt.Errorf("service/joke: creating: %w", err)
	}
	s.publish(model.JokeInserted, joke)
	return joke, nil
}

// CreatePending reserves id as an empty pending joke. Posting the same id
// again as its owner returns the existing row, so a client may safely retry.
func (s *JokeService) CreatePending(ctx context.Context, userID, id string) (*model.Joke, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "id is required")
	}
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return nil, apperror.ValidationFailed("id", "id must be a UUID")
	}

	joke := &model.Joke{ID: id, UserID: userID, Status: model.JokePending}
	err := s.repo.CreateJoke(ctx, joke)
	if err == nil {
		s.publish(model.JokeInserted, joke)
		return joke, nil
	}
	if !errors.Is(err, apperror.ErrConflict) {
		return nil, fmt.Errorf("service/joke: reserving %s: %w", id, err)
	}

	existing, gerr := s.repo.GetJoke(ctx, id)
	if gerr != nil {
		return nil, fmt.Errorf("service/joke: loading reserved %s: %w", id, gerr)
	}
	if existing.UserID != userID {
		return nil, err
	}
	return existing, nil
}

// Generate asks the generator for a joke and stores it completed. On failure
// nothing is stored.
func (s *JokeService) Generate(ctx context.Context, userID, topic string) (*model.Joke, error) {
	if !llm.ValidTopic(topic) {
		return nil, topicError()
	}

	text, err := s.generate(ctx, userID, topic)
	if err != nil {
		return nil, err
	}

	joke := &model.Joke{UserID: userID, Text: text, Status: model.JokeCompleted}
	if err := s.repo.CreateJoke(ctx, joke); err != nil {
		return nil, fmt.Errorf("service/joke: storing generated joke: %w", err)
	}
	s.publish(model.JokeInserted, joke)
	return joke, nil
}

// GenerateFor fills the pending or failed joke id with generated text.
//
// A completed joke is returned as is, without calling the generator, so a
// duplicated request is harmless. When generation fails the joke is marked
// failed, which clients see through the change feed, and it can be retried
// by calling GenerateFor again.
func (s *JokeService) GenerateFor(ctx context.Context, userID, id, topic string) (*model.Joke, error) {
	if !llm.ValidTopic(topic) {
		return nil, topicError()
	}

	joke, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if joke.Status == model.JokeCompleted {
		return joke, nil
	}

	text, genErr := s.generate(ctx, userID, topic)
	if genErr != nil {
		// The request may already be cancelled; record the failure anyway.
		failed, err := s.repo.FailJoke(context.WithoutCancel(ctx), id)
		if err != nil {
			s.logger.Error("failed to mark joke failed",
				slog.String("joke_id", id),
				slog.String("error", err.Error()),
			)
		} else {
			s.publish(model.JokeUpdated, failed)
		}
		return nil, genErr
	}

	done, err := s.repo.CompleteJoke(ctx, id, text)
	if err != nil {
		return nil, fmt.Errorf("service/joke: completing %s: %w", id, err)
	}
	s.publish(model.JokeUpdated, done)
	return done, nil
}

// Complete sets the text of the caller's joke id and marks it completed.
func (s *JokeService) Complete(ctx context.Context, userID, id, text string) (*model.Joke, error) {
	text, err := validateText(text)
	if err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, userID, id); err != nil {
		return nil, err
	}

	done, err := s.repo.CompleteJoke(ctx, id, text)
	if err != nil {
		return nil, fmt.Errorf("service/joke: completing %s: %w", id, err)
	}
	s.publish(model.JokeUpdated, done)
	return done, nil
}

// ExpireStale marks jokes pending for longer than maxAge as failed.
func (s *JokeService) ExpireStale(ctx context.Context, maxAge time.Duration) (int, error) {
	failed, err := s.repo.FailStalePending(ctx, s.now().Add(-maxAge))
	for i := range failed {
		s.publish(model.JokeUpdated, &failed[i])
	}
	metrics.JokesExpired.Add(float64(len(failed)))
	if err != nil {
		return len(failed), fmt.Errorf("service/joke: expiring stale jokes: %w", err)
	}
	return len(failed), nil
}

func (s *JokeService) owned(ctx context.Context, userID, id string) (*model.Joke, error) {
	joke, err := s.repo.GetJoke(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("joke", id)
		}
		return nil, fmt.Errorf("service/joke: loading %s: %w", id, err)
	}
	if joke.UserID != userID {
		return nil, apperror.NotFound("joke", id)
	}
	return joke, nil
}

// generate calls the generator under the configured timeout. Every failure,
// including an empty answer or a timeout, becomes apperror.ErrGeneration.
func (s *JokeService) generate(ctx context.Context, userID, topic string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.generator.GenerateJoke(genCtx, strings.TrimSpace(topic))
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		text, err = validateGenerated(text)
	}
	if err != nil {
		metrics.JokesGenerated.WithLabelValues(metrics.OutcomeFailure).Inc()
		s.logger.Warn("joke generation failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return "", apperror.GenerationFailed(err)
	}
	metrics.JokesGenerated.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return text, nil
}

func (s *JokeService) publish(op model.JokeOperation, joke *model.Joke) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(model.JokeEvent{Operation: op, Joke: *joke})
}

func validateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperror.ValidationFailed("text", "text is required")
	}
	if utf8.RuneCountInString(text) > MaxJokeLength {
		return "", apperror.ValidationFailed("text",
			fmt.Sprintf("text must be %d characters or less", MaxJokeLength))
	}
	return text, nil
}

// validateGenerated trims model output and clips it to MaxJokeLength.
func validateGenerated(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", llm.ErrEmptyCompletion
	}
	if utf8.RuneCountInString(text) > MaxJokeLength {
		text = string([]rune(text)[:MaxJokeLength])
	}
	return text, nil
}

func topicError() error {
	return apperror.ValidationFailed("prompt",
		fmt.Sprintf("prompt must be %d characters or less", llm.MaxTopicLength))
}
