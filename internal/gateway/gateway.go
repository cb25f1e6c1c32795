// ABOUTME: Gateway orchestrator wiring config, store, limiter, model, search, push, and chat together
// ABOUTME: Manages the HTTP server lifecycle with graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/parley-gateway/internal/auth"
	"github.com/2389/parley-gateway/internal/cache"
	"github.com/2389/parley-gateway/internal/chat"
	"github.com/2389/parley-gateway/internal/config"
	"github.com/2389/parley-gateway/internal/model"
	"github.com/2389/parley-gateway/internal/push"
	"github.com/2389/parley-gateway/internal/ratelimit"
	"github.com/2389/parley-gateway/internal/search"
	"github.com/2389/parley-gateway/internal/store"
)

// searchCacheJanitorInterval is how often the search cache sweeps expired entries
const searchCacheJanitorInterval = 5 * time.Minute

// shutdownTimeout bounds graceful HTTP shutdown
const shutdownTimeout = 10 * time.Second

// Gateway wires the parley-gateway components together and runs the HTTP
// server.
type Gateway struct {
	config      *config.Config
	store       store.Store
	limiter     *ratelimit.SlidingWindowLimiter
	searchCache *cache.Cache[[]search.Result]
	registry    *push.Registry
	chat        *chat.Service
	verifier    *auth.JWTVerifier
	httpServer  *http.Server
	logger      *slog.Logger
}

// New creates a gateway from configuration. The store is opened and the full
// component graph is wired, but nothing listens until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	limiter, err := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("initializing rate limiter: %w", err)
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	registry := push.NewRegistry(logger)

	modelGateway := model.NewGateway(model.Config{
		Endpoint:       cfg.Model.Endpoint,
		Model:          cfg.Model.Model,
		MaxTokens:      cfg.Model.MaxTokens,
		Temperature:    cfg.Model.Temperature,
		TopP:           cfg.Model.TopP,
		MaxAttempts:    cfg.Model.MaxAttempts,
		ConnectTimeout: cfg.Model.ConnectTimeout,
		ReadTimeout:    cfg.Model.ReadTimeout,
	}, logger)

	g := &Gateway{
		config:   cfg,
		store:    st,
		limiter:  limiter,
		registry: registry,
		verifier: verifier,
		logger:   logger.With("component", "gateway"),
	}

	var searcher chat.Searcher
	if cfg.Search.Enabled {
		g.searchCache = cache.New[[]search.Result](cfg.Search.CacheTTL, cache.WithJanitor(searchCacheJanitorInterval))
		sources := []search.Source{search.NewDuckDuckGo(cfg.Search.SourceTimeout)}
		searcher = search.NewLookup(sources, g.searchCache, cfg.Search.TrustedSources, logger)
	}

	g.chat = chat.NewService(st, modelGateway, searcher, registry, cfg.Chat.HistoryLimit, logger)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.buildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// buildMux assembles the route table. API routes are bearer-authenticated
// and rate limited per subject; the push endpoint does its own token check
// so browser clients can pass the token as a query parameter.
func (g *Gateway) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	authMW := auth.Middleware(g.verifier)
	protect := func(h http.HandlerFunc) http.Handler {
		return authMW(g.rateLimitMiddleware(h))
	}

	mux.Handle("POST /api/chats", protect(g.handleCreateChat))
	mux.Handle("GET /api/chats", protect(g.handleListChats))
	mux.Handle("GET /api/chats/{id}", protect(g.handleGetChat))
	mux.Handle("PUT /api/chats/{id}", protect(g.handleUpdateChat))
	mux.Handle("DELETE /api/chats/{id}", protect(g.handleDeleteChat))
	mux.Handle("POST /api/chats/{id}/messages", protect(g.handleSendMessage))
	mux.Handle("GET /api/chats/{id}/messages", protect(g.handleListMessages))
	mux.Handle("POST /api/chats/{id}/messages/{mid}/attachments", protect(g.handleAddAttachment))

	mux.Handle("GET /ws", push.NewHandler(g.registry, g.verifier, g.logger))

	return mux
}

// rateLimitMiddleware rejects requests whose subject has exhausted its
// admission window.
func (g *Gateway) rateLimitMiddleware(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := auth.SubjectFromContext(r.Context())
		if !g.limiter.Allow(subject) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("shutdown requested")
	case serverErr = <-errCh:
		g.logger.Error("HTTP server failed", "error", serverErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := g.Shutdown(shutdownCtx); err != nil {
		g.logger.Error("shutdown error", "error", err)
		if serverErr == nil {
			serverErr = err
		}
	}

	return serverErr
}

// Shutdown stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var errs []error

	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if g.searchCache != nil {
		g.searchCache.Close()
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	return errors.Join(errs...)
}
