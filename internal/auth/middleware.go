package auth

import (
	"context"
	"net/http"

	"github.com/sakif/jokebox/internal/model"
)

// contextKey is unexported so no other package can read or overwrite the
// user stored by these middlewares.
type contextKey string

const userKey contextKey = "authUser"

// SessionValidator resolves a session token to its user. Every failure
// (bad signature, revoked, expired, storage error) is reported as false.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (model.AuthUser, bool)
}

// RequireAuth rejects the request with 401 unless the session cookie maps to
// a live session. On success the user is available via UserFromContext.
func RequireAuth(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := authenticate(r, sessions)
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"authentication required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// OptionalAuth attaches the user when the cookie is valid and otherwise lets
// the request through anonymously.
func OptionalAuth(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, ok := authenticate(r, sessions); ok {
				r = r.WithContext(WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user model.AuthUser) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, or false for anonymous
// requests.
func UserFromContext(ctx context.Context) (model.AuthUser, bool) {
	u, ok := ctx.Value(userKey).(model.AuthUser)
	return u, ok && u.ID != ""
}

func authenticate(r *http.Request, sessions SessionValidator) (model.AuthUser, bool) {
	token := SessionToken(r)
	if token == "" {
		return model.AuthUser{}, false
	}
	return sessions.ValidateSession(r.Context(), token)
}
