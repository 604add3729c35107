package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/jokebox/internal/apperror"
	"github.com/sakif/jokebox/internal/auth"
	"github.com/sakif/jokebox/internal/model"
	"github.com/sakif/jokebox/internal/service"
)

const oauthStateCookie = "oauth_state"

// AuthHandler serves the account endpoints.
//
//   - HandleRegister / HandleLogin  → email + password, set the session cookie
//   - HandleLogout                  → revoke the session, clear the cookie
//   - HandleMe                      → who the cookie belongs to
//   - HandleGitHubLogin / Callback  → optional GitHub OAuth, same cookie
type AuthHandler struct {
	auth    *service.AuthService
	github  *auth.GitHubProvider // nil when GitHub login is not configured
	cookies auth.CookieOptions
	ttl     time.Duration
	logger  *slog.Logger
}

// NewAuthHandler wires the handler. github may be nil.
func NewAuthHandler(
	svc *service.AuthService,
	sessions *service.SessionManager,
	github *auth.GitHubProvider,
	cookies auth.CookieOptions,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:    svc,
		github:  github,
		cookies: cookies,
		ttl:     sessions.TTL(),
		logger:  logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	User model.AuthUser `json:"user"`
}

// HandleRegister creates an account and signs it in.
//
// HTTP: POST /auth/register {email, password}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.signIn(w, result)
}

// HandleLogin signs in with email and password.
//
// HTTP: POST /auth/login {email, password}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.signIn(w, result)
}

// HandleLogout revokes the cookie's session and clears the cookie.
//
// HTTP: POST /auth/logout
//
// It answers 200 whether or not the caller was signed in, so a second
// logout (or one with an already expired cookie) succeeds too.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), auth.SessionToken(r)); err != nil {
		writeError(w, r, err)
		return
	}
	auth.ClearSessionCookie(w, h.cookies)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the signed-in user.
//
// HTTP: GET /auth/me (RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// HandleGitHubLogin redirects the browser to GitHub's consent page.
//
// HTTP: GET /auth/github/login
//
// A random state goes into a short-lived cookie and into the authorization
// URL; the callback only proceeds if the two match, which ties the callback
// to a login this browser started.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback finishes the OAuth flow and redirects home.
//
// HTTP: GET /auth/github/callback?code=...&state=...
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || q.Get("state") != stateCookie.Value {
		h.logger.Warn("github callback: state mismatch")
		writeError(w, r, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/", MaxAge: -1})

	if denied := q.Get("error"); denied != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", denied))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, r, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	identity, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("github callback: exchange failed", slog.String("error", err.Error()))
		http.Redirect(w, r, "/?auth=failed", http.StatusSeeOther)
		return
	}

	result, err := h.auth.LoginWithGitHub(r.Context(), identity)
	if err != nil {
		writeError(w, r, err)
		return
	}

	auth.SetSessionCookie(w, result.Token, h.ttl, h.cookies)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) signIn(w http.ResponseWriter, result *service.AuthResult) {
	auth.SetSessionCookie(w, result.Token, h.ttl, h.cookies)
	writeJSON(w, http.StatusOK, userResponse{User: result.User})
}
