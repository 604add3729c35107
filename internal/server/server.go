// Package server is the composition root: it builds every dependency from
// config.Config, mounts the routes and runs the HTTP server alongside the
// background janitor.
//
// DEPENDENCY FLOW:
//
//	config ──► sqlstore.Store ──► SessionManager ─┬─► AuthService ──► AuthHandler
//	                           │                  └─► auth.RequireAuth
//	                           └─► JokeService ◄── llm.Generator
//	                                   │
//	                                   └─► feed.Broker ──► Streamer ──► /jokes/stream
//
// Each layer only receives what it needs: services get repository
// interfaces, handlers get services.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/jokebox/internal/auth"
	"github.com/sakif/jokebox/internal/config"
	"github.com/sakif/jokebox/internal/feed"
	"github.com/sakif/jokebox/internal/handler"
	"github.com/sakif/jokebox/internal/llm"
	"github.com/sakif/jokebox/internal/metrics"
	"github.com/sakif/jokebox/internal/middleware"
	"github.com/sakif/jokebox/internal/repository/sqlstore"
	"github.com/sakif/jokebox/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server owns the database, the change feed broker and the router.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *sqlstore.Store
	broker   *feed.Broker
	sessions *service.SessionManager
	jokes    *service.JokeService
	limiter  *middleware.RateLimiter
	router   chi.Router
}

// New opens the database (running migrations) and wires every component.
// The caller must Close the server, or Run it, which closes on return.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, gen llm.Generator) (*Server, error) {
	store, err := sqlstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.ElectricEnabled() && store.Dialect() != sqlstore.DialectPostgres {
		logger.Warn("ELECTRIC_URL is set but the database is not PostgreSQL; Electric will have nothing to replicate")
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		broker:  feed.NewBroker(feed.DefaultBuffer, logger),
		limiter: middleware.NewRateLimiter(cfg.GenerateRatePerMinute, cfg.GenerateBurst),
	}
	s.sessions = service.NewSessionManager(store, store, tokens, logger)
	s.jokes = service.NewJokeService(store, gen, s.broker, cfg.GenerationTimeout, logger)

	if err := s.routes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// routes mounts every endpoint.
//
//	GET    /health
//	GET    /metrics
//	POST   /auth/register | /auth/login | /auth/logout
//	GET    /auth/me
//	GET    /auth/github/login | /auth/github/callback   (when configured)
//	GET    /electric/auth
//	GET    /electric/v1/shape                           (when configured)
//	GET    /jokes                 POST /jokes
//	POST   /jokes/pending
//	POST   /jokes/generate        POST /jokes/generate/{id}   (rate limited)
//	PUT    /jokes/{id}/complete
//	GET    /jokes/stream          (WebSocket)
//	*      everything else → SPA from STATIC_DIR, or 404
//
// MIDDLEWARE ORDER: RequestID must run before Logger so the log line carries
// it, and Recoverer sits inside Logger so a panic is logged as a 500.
func (s *Server) routes() error {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(corsOptions(s.cfg.CORSOrigins)))

	cookies := auth.CookieOptions{Secure: s.cfg.IsProduction()}
	passwords := auth.NewPasswordService()
	authSvc := service.NewAuthService(s.store, s.sessions, passwords, s.logger)

	var github *auth.GitHubProvider
	if s.cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.cfg.GitHubClientID, s.cfg.GitHubClientSecret, s.cfg.GitHubCallbackURL)
	}

	authH := handler.NewAuthHandler(authSvc, s.sessions, github, cookies, s.logger)
	jokeH := handler.NewJokeHandler(s.jokes, s.logger)
	feedH := handler.NewFeedHandler(s.sessions, feed.NewStreamer(s.broker, s.cfg.CORSOrigins, s.logger), s.logger)
	healthH := handler.NewHealthHandler(s.store, s.logger)

	requireAuth := auth.RequireAuth(s.sessions)

	r.Get("/health", healthH.HandleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authH.HandleRegister)
		r.Post("/login", authH.HandleLogin)
		r.With(auth.OptionalAuth(s.sessions)).Post("/logout", authH.HandleLogout)
		r.With(requireAuth).Get("/me", authH.HandleMe)

		if github != nil {
			r.Get("/github/login", authH.HandleGitHubLogin)
			r.Get("/github/callback", authH.HandleGitHubCallback)
		}
	})

	r.Get("/electric/auth", feedH.HandleElectricAuth)
	if s.cfg.ElectricEnabled() {
		proxy, err := feed.NewElectricProxy(s.cfg.ElectricURL, s.cfg.ElectricSecret, s.logger)
		if err != nil {
			return err
		}
		r.With(requireAuth).Handle("/electric/v1/shape", proxy)
	}

	r.Route("/jokes", func(r chi.Router) {
		r.Use(requireAuth)

		r.Get("/", jokeH.HandleList)
		r.Post("/", jokeH.HandleCreate)
		r.Post("/pending", jokeH.HandleCreatePending)
		r.Get("/stream", feedH.HandleStream)
		r.Put("/{id}/complete", jokeH.HandleComplete)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Post("/generate", jokeH.HandleGenerate)
			r.Post("/generate/{id}", jokeH.HandleGenerateFor)
		})
	})

	if s.cfg.StaticDir != "" {
		spa, err := handler.NewSPAHandler(s.cfg.StaticDir, s.logger)
		if err != nil {
			return err
		}
		r.NotFound(spa.ServeHTTP)
	} else {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"not_found","message":"no such route"}`))
		})
	}

	s.router = r
	return nil
}

// corsOptions allows credentialed requests from origins. Browsers refuse a
// literal "*" on credentialed responses, so "*" is served by echoing the
// request's Origin back instead.
func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   feed.ExposedHeaders,
		AllowCredentials: true,
		MaxAge:           300,
	}
	if slices.Contains(origins, "*") {
		opts.AllowedOrigins = nil
		opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
	}
	return opts
}

// Run serves HTTP on cfg.Addr() and runs the janitor until ctx is
// cancelled, then shuts down gracefully and closes the server.
//
// SHUTDOWN ORDER:
//  1. stop accepting connections and wait for in-flight requests
//  2. close the broker, which ends every open WebSocket stream (hijacked
//     connections are invisible to http.Server.Shutdown)
//  3. close the database
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: generation waits up to GENERATION_TIMEOUT and
		// Electric live requests are long polls.
	}

	j := &janitor{
		sessions:       s.sessions,
		jokes:          s.jokes,
		limiter:        s.limiter,
		interval:       s.cfg.CleanupInterval,
		pendingTimeout: s.cfg.PendingTimeout,
		logger:         s.logger,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("environment", s.cfg.Environment),
			slog.String("database", string(s.store.Dialect())),
			slog.Bool("github_login", s.cfg.GitHubEnabled()),
			slog.Bool("electric", s.cfg.ElectricEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return j.run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.broker.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}

// Close releases the broker and the database. Safe to call more than once.
func (s *Server) Close() error {
	s.broker.Close()
	return s.store.Close()
}
