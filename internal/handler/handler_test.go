package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/jokebox/internal/auth"
	"github.com/sakif/jokebox/internal/feed"
	"github.com/sakif/jokebox/internal/handler"
	"github.com/sakif/jokebox/internal/llm"
	"github.com/sakif/jokebox/internal/repository/sqlstore"
	"github.com/sakif/jokebox/internal/service"
)

// testEnv is the real service stack over an in-memory database, with the
// text generator stubbed out.
type testEnv struct {
	router   chi.Router
	store    *sqlstore.Store
	sessions *service.SessionManager
	genText  string
	genErr   error
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := discardLogger()

	store, err := sqlstore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-at-least-32-chars", 7*24*time.Hour)
	require.NoError(t, err)

	env := &testEnv{store: store, genText: "A generated joke."}
	gen := llm.GeneratorFunc(func(context.Context, string) (string, error) {
		return env.genText, env.genErr
	})

	env.sessions = service.NewSessionManager(store, store, tokens, logger)
	authSvc := service.NewAuthService(store, env.sessions, auth.NewPasswordServiceForTest(4), logger)
	broker := feed.NewBroker(feed.DefaultBuffer, logger)
	t.Cleanup(broker.Close)
	jokeSvc := service.NewJokeService(store, gen, broker, time.Second, logger)

	authH := handler.NewAuthHandler(authSvc, env.sessions, nil, auth.CookieOptions{}, logger)
	jokeH := handler.NewJokeHandler(jokeSvc, logger)
	feedH := handler.NewFeedHandler(env.sessions, feed.NewStreamer(broker, []string{"*"}, logger), logger)
	healthH := handler.NewHealthHandler(store, logger)

	r := chi.NewRouter()
	r.Get("/health", healthH.HandleHealth)
	r.Get("/electric/auth", feedH.HandleElectricAuth)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authH.HandleRegister)
		r.Post("/login", authH.HandleLogin)
		r.With(auth.OptionalAuth(env.sessions)).Post("/logout", authH.HandleLogout)
		r.With(auth.RequireAuth(env.sessions)).Get("/me", authH.HandleMe)
	})
	r.Route("/jokes", func(r chi.Router) {
		r.Use(auth.RequireAuth(env.sessions))
		r.Get("/", jokeH.HandleList)
		r.Post("/", jokeH.HandleCreate)
		r.Post("/pending", jokeH.HandleCreatePending)
		r.Post("/generate", jokeH.HandleGenerate)
		r.Post("/generate/{id}", jokeH.HandleGenerateFor)
		r.Put("/{id}/complete", jokeH.HandleComplete)
	})
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// register signs up email and returns the session cookie.
func (e *testEnv) register(t *testing.T, email string) *http.Cookie {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/auth/register", `{"email":"`+email+`","password":"secret123"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return sessionCookie(t, rr)
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(&v), rr.Body.String())
	return v
}

type userBody struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type jokeBody struct {
	Joke struct {
		ID     string `json:"id"`
		UserID string `json:"userId"`
		Text   string `json:"text"`
		Status string `json:"status"`
	} `json:"joke"`
}

type errorBody = handler.ErrorResponse
