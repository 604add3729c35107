// Package service holds the business rules. Handlers translate HTTP into
// calls on these services; the services talk to storage only through the
// repository interfaces, so tests run them against in-memory fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/jokebox/internal/apperror"
	"github.com/sakif/jokebox/internal/auth"
	"github.com/sakif/jokebox/internal/model"
	"github.com/sakif/jokebox/internal/repository"
)

const invalidCredentials = "invalid credentials"

// AuthService registers users and logs them in and out.
type AuthService struct {
	users     repository.UserRepository
	sessions  *SessionManager
	passwords *auth.PasswordService
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	sessions *SessionManager,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		sessions:  sessions,
		passwords: passwords,
		validate:  validator.New(),
		logger:    logger,
	}
}

// AuthResult carries what the handler needs to answer and set the cookie.
type AuthResult struct {
	User      model.AuthUser
	Token     string
	ExpiresAt time.Time
}

// NormalizeEmail is applied before every store and lookup, so
// "A@X.com " and "a@x.com" are the same account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and signs it in.
// A taken email is apperror.ErrConflict, decided by the store's UNIQUE
// constraint rather than a prior lookup.
func (s *AuthService) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	if err := s.validate.Var(email, "required,email,max=254"); err != nil {
		return nil, apperror.ValidationFailed("email", "a valid email address is required")
	}
	if err := auth.CheckPasswordLength(password); err != nil {
		return nil, apperror.ValidationFailed("password", passwordMessage(err))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{Email: email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	return s.startSession(ctx, user)
}

// Login checks credentials. An unknown email and a wrong password produce
// the same error and cost the same bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/auth: looking up user: %w", err)
		}
		s.passwords.VerifyDummy(password)
		return nil, apperror.Unauthorized(invalidCredentials)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("stored password hash is unusable",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.Unauthorized(invalidCredentials)
	}

	return s.startSession(ctx, user)
}

// LoginWithGitHub signs in the account owning the GitHub identity's
// verified email, creating it on first use. Such accounts get a random
// password nobody knows; the owner can still only log in through GitHub.
func (s *AuthService) LoginWithGitHub(ctx context.Context, identity *auth.GitHubIdentity) (*AuthResult, error) {
	if identity == nil || identity.Email == "" {
		return nil, errors.New("service/auth: github identity without email")
	}
	email := NormalizeEmail(identity.Email)

	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		hash, herr := s.passwords.Hash(auth.RandomSecret(32))
		if herr != nil {
			return nil, fmt.Errorf("service/auth: hashing placeholder password: %w", herr)
		}
		user = &model.User{Email: email, PasswordHash: hash}
		if err := s.users.CreateUser(ctx, user); err != nil {
			// Lost a race with a concurrent first login; use the winner.
			if !errors.Is(err, apperror.ErrConflict) {
				return nil, fmt.Errorf("service/auth: creating github user: %w", err)
			}
			if user, err = s.users.GetUserByEmail(ctx, email); err != nil {
				return nil, fmt.Errorf("service/auth: reloading github user: %w", err)
			}
		} else {
			s.logger.Info("user registered via GitHub",
				slog.String("user_id", user.ID),
				slog.String("github_login", identity.Login),
			)
		}
	default:
		return nil, fmt.Errorf("service/auth: looking up github user: %w", err)
	}

	return s.startSession(ctx, user)
}

// Logout revokes the session behind token, if any. It succeeds for an
// empty, unknown or already revoked token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.DeleteSession(ctx, token)
}

func (s *AuthService) startSession(ctx context.Context, user *model.User) (*AuthResult, error) {
	token, expiresAt, err := s.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user.Public(), Token: token, ExpiresAt: expiresAt}, nil
}

func passwordMessage(err error) string {
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordLength)
	}
	return fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength)
}
