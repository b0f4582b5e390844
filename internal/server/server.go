// Package server provides HTTP server initialization and lifecycle management
// for the recall API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/logger"
	"github.com/scrypster/recall/internal/metrics"
	"github.com/scrypster/recall/web/handlers"
)

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start listens on the configured address and serves the API until ctx is
// cancelled. It returns the actual address being listened on (useful for
// testing with port 0) and the WebSocketHub, which should be subscribed to the
// event bus so clients receive status updates.
func Start(ctx context.Context, cfg *config.Config, eng handlers.Engine, log *logger.Logger) (string, *handlers.WebSocketHub, error) {
	if log == nil {
		log = logger.NewNop()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	wsHub := handlers.NewWebSocketHub(originPatterns(cfg.Server.Host, actualAddr), log)
	go wsHub.Run()

	handler := routes(cfg, eng, wsHub, log)

	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
		}
	}()

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown error", "error", err)
		}
		wsHub.Stop()
	}()

	log.Info("recall API listening", "addr", actualAddr, "mode", cfg.Security.Mode)
	return actualAddr, wsHub, nil
}

func routes(cfg *config.Config, eng handlers.Engine, wsHub *handlers.WebSocketHub, log *logger.Logger) http.Handler {
	api := handlers.NewAPIHandlers(eng, log)
	auth := func(h http.HandlerFunc) http.Handler {
		return handlers.RequireAuth(h, cfg.Security)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/memories", auth(api.CreateMemory))
	mux.Handle("GET /api/memories", auth(api.ListMemories))
	mux.Handle("GET /api/memories/{id}", auth(api.GetMemory))
	mux.Handle("PATCH /api/memories/{id}", auth(api.UpdateMemory))
	mux.Handle("POST /api/memories/{id}/confirm", auth(api.ConfirmMemory))
	mux.Handle("POST /api/memories/{id}/flag", auth(api.FlagMemory))
	mux.Handle("DELETE /api/memories/{id}/flag", auth(api.UnflagMemory))
	mux.Handle("POST /api/query", auth(api.Query))
	mux.Handle("POST /api/converse", auth(api.Converse))
	mux.Handle("GET /api/insights/previews", auth(api.Previews))
	mux.Handle("GET /api/insights/summary", auth(api.Summary))
	mux.Handle("GET /api/prompt/daily", auth(api.DailyPrompt))

	// WebSocket status feed, scoped to the authenticated user
	mux.Handle("GET /ws", handlers.RequireAuth(wsHub, cfg.Security))

	// Health endpoint, no auth required
	mux.HandleFunc("GET /api/health", api.Health)

	if cfg.Server.MetricsEnabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	rateLimit, burst := cfg.Server.RateLimit, cfg.Server.RateBurst
	if rateLimit <= 0 {
		rateLimit = 10
	}
	if burst <= 0 {
		burst = 20
	}

	// Metrics must wrap the mux without copying the request so that the
	// matched pattern is visible after routing.
	handler := handlers.MetricsMiddleware(handlers.RateLimitMiddleware(mux, handlers.NewRateLimiter(rateLimit, burst)))
	return securityHeadersMiddleware(handler)
}

// originPatterns allows browser upgrades from the served address and the
// usual loopback names for it.
func originPatterns(host, actualAddr string) []string {
	_, port, err := net.SplitHostPort(actualAddr)
	if err != nil {
		return nil
	}
	patterns := []string{"localhost:" + port, "127.0.0.1:" + port}
	if host != "" && host != "localhost" && host != "127.0.0.1" && host != "0.0.0.0" {
		patterns = append(patterns, net.JoinHostPort(host, port))
	}
	return patterns
}
