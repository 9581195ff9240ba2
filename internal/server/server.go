// Package server is the composition root: it opens the store, builds the
// services and handlers, and mounts them on a chi router.
//
// Routes (every route not marked public needs a session cookie; see
// auth.PublicPaths):
//
//	GET    /healthz                   liveness (public)
//	GET    /                          home page (public, shows the user when signed in)
//	GET    /auth/{provider}           start an OAuth sign-in (public)
//	GET    /auth/{provider}/callback  finish it and sign the user in (public)
//	POST   /users/sign_up             password registration (public, rate limited)
//	POST   /users/sign_in             password sign-in (public, rate limited)
//	DELETE /users/sign_out            clear the session cookie (public)
//	GET    /api/me                    current user
//	PUT    /users                     update the current account
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/accountlink/internal/auth"
	"github.com/sakif/accountlink/internal/config"
	"github.com/sakif/accountlink/internal/handler"
	"github.com/sakif/accountlink/internal/middleware"
	"github.com/sakif/accountlink/internal/repository"
	pgRepo "github.com/sakif/accountlink/internal/repository/postgres"
	sqliteRepo "github.com/sakif/accountlink/internal/repository/sqlite"
	"github.com/sakif/accountlink/internal/service"
)

// Server owns the router and every resource that must be released on
// shutdown: the database and, when configured, the Redis client.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger

	store io.Closer
	users repository.UserRepository
	redis *redis.Client

	// passwords is swapped for a cheap bcrypt cost in tests.
	passwords *auth.PasswordService
}

// Option tweaks a Server before its routes are built.
type Option func(*Server)

// WithPasswordService replaces the production bcrypt cost.
func WithPasswordService(p *auth.PasswordService) Option {
	return func(s *Server) { s.passwords = p }
}

// New opens the store and wires every route.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		passwords: auth.NewPasswordService(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.openStore(ctx); err != nil {
		return nil, err
	}

	if cfg.RedisAddr != "" {
		s.redis = s.connectRedis(ctx)
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) openStore(ctx context.Context) error {
	if s.config.UsesPostgres() {
		db, err := pgRepo.New(ctx, s.config.DatabaseURL)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		s.store, s.users = db, db.Users()
		return nil
	}

	if s.config.DBPath != ":memory:" {
		dir := filepath.Dir(s.config.DBPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}
	db, err := sqliteRepo.New(s.config.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	s.store, s.users = db, db.Users()
	return nil
}

// connectRedis never fails startup: an unreachable Redis only means the rate
// limiter lets everything through until it comes back.
func (s *Server) connectRedis(ctx context.Context) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     s.config.RedisAddr,
		Password: s.config.RedisPassword,
		DB:       s.config.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		s.logger.Warn("redis ping failed, rate limiting will fail open",
			slog.String("addr", s.config.RedisAddr),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("redis connected", slog.String("addr", s.config.RedisAddr))
	}
	return client
}

func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	// Deny by default: only auth.PublicPaths are reachable without a session.
	s.router.Use(auth.RequireAuth(tokens, auth.PublicPaths...))

	providers, err := auth.SetupProviders(auth.ProviderConfig{
		PublicURL:      s.config.PublicURL,
		FacebookKey:    s.config.FacebookKey,
		FacebookSecret: s.config.FacebookSecret,
		SpotifyKey:     s.config.SpotifyKey,
		SpotifySecret:  s.config.SpotifySecret,
		SessionSecret:  s.config.SessionSecret,
		CookieSecure:   s.config.CookieSecure,
	})
	if err != nil {
		return fmt.Errorf("configuring OAuth providers: %w", err)
	}
	if len(providers) == 0 {
		s.logger.Warn("no OAuth provider configured, only password sign-in is available")
	}

	var limiter middleware.Limiter
	if s.redis != nil {
		rl, err := middleware.NewRedisLimiter(s.redis, s.config.RateLimitMax, s.config.RateLimitWindow)
		if err != nil {
			return fmt.Errorf("creating rate limiter: %w", err)
		}
		limiter = rl
	}
	rateLimit := middleware.RateLimit(limiter, middleware.KeyByIPAndPath, s.logger)

	accounts := service.NewAccountService(s.users, tokens, s.passwords, s.logger)
	resolver := service.NewIdentityResolver(s.users, s.passwords)

	cookies := handler.CookieConfig{Secure: s.config.CookieSecure}
	accountHandler := handler.NewAccountHandler(accounts, cookies, s.logger)
	authHandler := handler.NewAuthHandler(handler.GothicFlow{}, resolver, accounts, cookies, s.logger)
	homeHandler, err := handler.NewHomeHandler(accounts, providers, s.logger)
	if err != nil {
		return fmt.Errorf("creating home handler: %w", err)
	}

	s.router.Get("/healthz", handler.HandleHealth)

	s.router.Get("/", homeHandler.HandleHome)

	s.router.Route("/auth/{provider}", func(r chi.Router) {
		r.Get("/", authHandler.HandleBegin)
		r.Get("/callback", authHandler.HandleCallback)
	})

	s.router.Route("/users", func(r chi.Router) {
		r.With(rateLimit).Post("/sign_up", accountHandler.HandleSignUp)
		r.With(rateLimit).Post("/sign_in", accountHandler.HandleSignIn)
		r.Delete("/sign_out", accountHandler.HandleSignOut)
		r.Put("/", accountHandler.HandleUpdate)
	})

	s.router.Get("/api/me", accountHandler.HandleMe)

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database and Redis client.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the store.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		store := "sqlite:" + s.config.DBPath
		if s.config.UsesPostgres() {
			store = "postgres"
		}
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("public_url", s.config.PublicURL),
			slog.String("store", store),
			slog.Bool("rate_limited", s.redis != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
