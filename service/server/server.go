package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/cardflow/service/catalog"
	"github.com/brojonat/cardflow/service/config"
	"github.com/brojonat/cardflow/service/metrics"
	"github.com/brojonat/cardflow/service/payment"
	"github.com/brojonat/cardflow/service/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server for the payment service. It fronts the
// storefront catalog, the purchase trigger, the merchant dashboard
// aggregates, and the live pipeline event stream.
type Server struct {
	addr         string
	cfg          *config.Config
	catalog      *catalog.Catalog
	store        *store.Store
	engine       *payment.Engine
	ssePublisher *SSEPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies. The
// ssePublisher is optional - if nil, SSE endpoints won't be available.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, cat *catalog.Catalog, st *store.Store, engine *payment.Engine, ssePublisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:         addr,
		cfg:          cfg,
		catalog:      cat,
		store:        st,
		engine:       engine,
		ssePublisher: ssePublisher,
		metrics:      m,
		logger:       logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Storefront and purchase routes
	mux.Handle("GET /api/v1/catalog", handleListCatalog(s.catalog, s.logger))
	mux.Handle("POST /api/v1/purchases", handleCreatePurchase(s.cfg, s.catalog, s.store, s.engine, s.logger))
	mux.Handle("GET /api/v1/purchases", handleListPurchases(s.store, s.logger))
	mux.Handle("GET /api/v1/purchases/{id}", handleGetPurchase(s.store, s.logger))

	// Merchant dashboard route
	mux.Handle("GET /api/v1/merchant/summary", handleMerchantSummary(s.store, s.logger))

	// SSE streaming endpoints (if SSE publisher is configured)
	if s.ssePublisher != nil {
		mux.Handle("GET /api/v1/stream/payments/{id}", handleStreamPayments(s.ssePublisher, s.metrics, s.logger))
		mux.Handle("GET /api/v1/stream/payments", handleStreamPayments(s.ssePublisher, s.metrics, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoints disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	handler := corsMiddleware(metrics.HTTPMetricsMiddleware(s.metrics, "api")(mux))

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS
// preflight requests so the storefront can be served from another origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
