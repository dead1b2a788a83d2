// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the wiring layer — the composition root where the database,
// services, handlers and middleware are assembled and mapped to routes.
// main.go stays minimal: load config, create a Server, call Start.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/snipshare/internal/auth"
	"github.com/sakif/snipshare/internal/config"
	"github.com/sakif/snipshare/internal/handler"
	"github.com/sakif/snipshare/internal/middleware"
	sqliteRepo "github.com/sakif/snipshare/internal/repository/sqlite"
	"github.com/sakif/snipshare/internal/service"
)

// publicPaths is the access guard's allow-list. Entries are path prefixes
// ("/" matches exactly). Everything else requires a valid session before the
// router even sees the request.
//
// "/snippets" and "/auth" being public here does NOT open the write
// endpoints: those additionally sit behind RequireAuth in the route table.
// The guard handles the page-level redirect behaviour; per-route middleware
// handles data authorization.
var publicPaths = []string{
	"/",
	"/login",
	"/signup",
	"/about",
	"/contact",
	"/favicon.ico",
	"/static",
	"/snippets",
	"/auth",
}

// Server owns the router and every long-lived resource behind it. The
// database connection is closed during graceful shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the full dependency chain:
//
//	sqlite.DB → services → handlers → routes
//
// Each layer only receives what it needs — the handlers never touch the
// database, the services never touch HTTP. The token service is anchored to
// time.Now() so every session issued before this process started is invalid:
// a restart or redeploy forces all users to log in again.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.SessionSecret, cfg.SessionMaxAge, time.Now())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	s.setupRoutes(tokens)
	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// MIDDLEWARE ORDER:
//  1. RequestID — tags each request for tracing
//  2. RealIP — extracts the client IP from proxy headers
//  3. Recoverer — turns panics into 500s instead of crashing
//  4. Logger — structured request log
//  5. CORS — the frontend runs on its own origin and sends cookies
//  6. Guard — the access guard, before any handler
func (s *Server) setupRoutes(tokens *auth.TokenService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// AllowCredentials is required for the session cookie to cross origins,
	// which in turn forbids a wildcard origin — the allowed origins come
	// from config.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Use(auth.Guard(tokens, publicPaths))

	// === Wiring ===
	passwords := auth.NewPasswordService()
	providers := s.buildProviders()

	authService := service.NewAuthService(s.db.Users(), passwords, tokens, s.logger, s.config.Debug)
	snippetService := service.NewSnippetService(s.db.Snippets(), s.logger)

	authHandler := handler.NewAuthHandler(authService, providers, tokens.MaxAge(), s.logger)
	snippetHandler := handler.NewSnippetHandler(snippetService, s.logger)

	// === Auth routes ===
	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/{provider}/login", authHandler.HandleOAuthLogin)
		r.Get("/{provider}/callback", authHandler.HandleOAuthCallback)

		r.With(auth.RequireAuth(tokens)).Get("/me", authHandler.HandleMe)
	})

	// === Snippet routes ===
	// Reads are public but viewer-aware (OptionalAuth attaches the identity
	// when a valid session rides along). Writes require a session.
	s.router.Route("/snippets", func(r chi.Router) {
		r.With(auth.OptionalAuth(tokens)).Get("/", snippetHandler.HandleList)
		r.With(auth.OptionalAuth(tokens)).Get("/{id}", snippetHandler.HandleGet)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Post("/", snippetHandler.HandleCreate)
			r.Post("/{id}/comment", snippetHandler.HandleComment)
			r.Post("/{id}/like", snippetHandler.HandleLike)
			r.Delete("/{id}/like", snippetHandler.HandleUnlike)
		})
	})
}

// buildProviders returns the OAuth providers that have credentials
// configured. An empty map just means password login only.
func (s *Server) buildProviders() map[string]auth.Provider {
	providers := make(map[string]auth.Provider)

	if s.config.GitHubClientID != "" && s.config.GitHubClientSecret != "" {
		providers["github"] = auth.NewGitHubProvider(
			s.config.GitHubClientID,
			s.config.GitHubClientSecret,
			s.config.BaseURL+"/auth/github/callback",
		)
	}
	if s.config.GoogleClientID != "" && s.config.GoogleClientSecret != "" {
		providers["google"] = auth.NewGoogleProvider(
			s.config.GoogleClientID,
			s.config.GoogleClientSecret,
			s.config.BaseURL+"/auth/google/callback",
		)
	}

	s.logger.Info("oauth providers configured", slog.Int("count", len(providers)))
	return providers
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, give in-flight requests 30
// seconds, close the database (flushes the WAL, releases the file lock).
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
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
