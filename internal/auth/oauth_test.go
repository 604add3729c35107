package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

func fakeGitHub(t *testing.T, emails []githubEmail) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"access_token": "gh-token", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(githubUser{ID: 42, Login: "octocat"})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(emails)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGitHubProvider(srv *httptest.Server) *GitHubProvider {
	return newGitHubProvider("cid", "csecret", "http://localhost/auth/github/callback",
		oauth2.Endpoint{
			AuthURL:  srv.URL + "/login/oauth/authorize",
			TokenURL: srv.URL + "/login/oauth/access_token",
		}, srv.URL)
}

func TestGitHubProvider_AuthURL(t *testing.T) {
	p := NewGitHubProvider("cid", "csecret", "http://localhost/cb")
	u, err := url.Parse(p.AuthURL("state-123"))
	if err != nil {
		t.Fatalf("AuthURL() is not a URL: %v", err)
	}
	q := u.Query()
	if q.Get("state") != "state-123" || q.Get("client_id") != "cid" {
		t.Errorf("unexpected query: %v", q)
	}
}

func TestGitHubProvider_Exchange(t *testing.T) {
	srv := fakeGitHub(t, []githubEmail{
		{Email: "old@example.com", Primary: false, Verified: true},
		{Email: "Octo@Example.com", Primary: true, Verified: true},
	})

	id, err := newTestGitHubProvider(srv).Exchange(context.Background(), "code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if id.ID != 42 || id.Login != "octocat" || id.Email != "Octo@Example.com" {
		t.Errorf("identity = %+v", id)
	}
}

func TestGitHubProvider_Exchange_NoVerifiedEmail(t *testing.T) {
	srv := fakeGitHub(t, []githubEmail{{Email: "x@example.com", Primary: true, Verified: false}})

	_, err := newTestGitHubProvider(srv).Exchange(context.Background(), "code")
	if !errors.Is(err, ErrNoVerifiedEmail) {
		t.Errorf("Exchange() error = %v, want ErrNoVerifiedEmail", err)
	}
}
