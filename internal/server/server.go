package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/alanyoungcy/predictpool/internal/server/handler"
	"github.com/alanyoungcy/predictpool/internal/server/middleware"
	"github.com/alanyoungcy/predictpool/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	AdminAPIKey string // if empty, admin endpoints are open

	// RateLimiter optionally throttles requests per client IP. Nil disables
	// rate limiting (paper mode has no Redis to back it).
	RateLimiter     domain.RateLimiter
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Markets     *handler.MarketHandler
	Trades      *handler.TradeHandler
	Liquidity   *handler.LiquidityHandler
	Positions   *handler.PositionHandler
	Resolutions *handler.ResolutionHandler
	Events      *handler.EventsHandler
	Admin       *handler.AdminHandler
}

// Server is the HTTP + WebSocket API for the prediction market.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// Public routes carry logging, CORS, and optional rate limiting; the admin
// routes additionally require the configured API key.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health and status (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Health.Status)

	// Market endpoints.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/prices", handlers.Markets.GetPrices)
	mux.HandleFunc("GET /api/markets/{id}/quote", handlers.Markets.Quote)

	// Trade endpoints.
	mux.HandleFunc("POST /api/markets/{id}/trades", handlers.Trades.Trade)
	mux.HandleFunc("GET /api/markets/{id}/trades", handlers.Trades.ListByMarket)
	mux.HandleFunc("GET /api/trades/{address}", handlers.Trades.ListByTrader)

	// Liquidity and claim endpoints.
	mux.HandleFunc("POST /api/markets/{id}/liquidity", handlers.Liquidity.AddLiquidity)
	mux.HandleFunc("POST /api/markets/{id}/liquidity/withdraw", handlers.Liquidity.RemoveLiquidity)
	mux.HandleFunc("POST /api/markets/{id}/claim", handlers.Liquidity.ClaimWinnings)

	// Position endpoint.
	mux.HandleFunc("GET /api/markets/{id}/positions/{address}", handlers.Positions.GetPosition)

	// Event history endpoint.
	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)

	// Resolution endpoints.
	mux.HandleFunc("GET /api/markets/{id}/resolution", handlers.Resolutions.GetResolution)
	mux.HandleFunc("GET /api/markets/{id}/resolution/policy", handlers.Resolutions.GetPolicy)
	mux.HandleFunc("POST /api/markets/{id}/resolution", handlers.Resolutions.SubmitResolution)
	mux.HandleFunc("POST /api/markets/{id}/resolution/votes", handlers.Resolutions.Vote)
	mux.HandleFunc("GET /api/markets/{id}/resolution/votes/{address}", handlers.Resolutions.GetVote)
	mux.HandleFunc("POST /api/markets/{id}/resolution/finalize", handlers.Resolutions.FinalizeResolution)
	mux.HandleFunc("POST /api/markets/{id}/resolution/dispute", handlers.Resolutions.DisputeResolution)

	// Admin endpoints, mounted behind API-key auth.
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("POST /api/admin/pause", handlers.Admin.Pause)
	adminMux.HandleFunc("POST /api/admin/unpause", handlers.Admin.Unpause)
	adminMux.HandleFunc("GET /api/admin/paused", handlers.Admin.GetPaused)
	adminMux.HandleFunc("PUT /api/admin/markets/{id}/resolution/policy", handlers.Admin.ConfigurePolicy)
	adminMux.HandleFunc("POST /api/admin/markets/{id}/resolution/reopen", handlers.Admin.ReopenResolution)
	adminMux.HandleFunc("PUT /api/admin/resolution/dispute-period", handlers.Admin.SetDefaultDisputePeriod)
	adminMux.HandleFunc("GET /api/admin/resolvers", handlers.Admin.ListResolvers)
	adminMux.HandleFunc("POST /api/admin/resolvers", handlers.Admin.AddResolver)
	adminMux.HandleFunc("DELETE /api/admin/resolvers/{address}", handlers.Admin.RemoveResolver)
	mux.Handle("/api/admin/", middleware.Auth(cfg.AdminAPIKey)(adminMux))

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
