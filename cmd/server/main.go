package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/cardflow/service/catalog"
	"github.com/brojonat/cardflow/service/config"
	"github.com/brojonat/cardflow/service/ledger"
	"github.com/brojonat/cardflow/service/metrics"
	natspkg "github.com/brojonat/cardflow/service/nats"
	"github.com/brojonat/cardflow/service/payment"
	"github.com/brojonat/cardflow/service/server"
	"github.com/brojonat/cardflow/service/store"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	// Initialize Prometheus metrics on the default registry
	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize NATS publisher for pipeline events
	publisher, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
	if err != nil {
		logger.Error("failed to initialize NATS publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	// Initialize SSE publisher (bridges JetStream to HTTP clients)
	ssePublisher, err := server.NewSSEPublisher(cfg.NATSURL, logger)
	if err != nil {
		logger.Error("failed to initialize SSE publisher", "error", err)
		os.Exit(1)
	}

	// Initialize the ledger adapter when a treasury key is configured.
	// Without one, every settlement uses the synthetic fallback.
	var adapter ledger.Adapter
	if cfg.LedgerEnabled() {
		signer, err := solanago.PrivateKeyFromBase58(cfg.TreasuryKey)
		if err != nil {
			logger.Error("invalid treasury key", "error", err)
			os.Exit(1)
		}
		rpcClient := ledger.NewRPCClient(cfg.SolanaRPCURL)
		adapter = ledger.NewSolanaAdapter(rpcClient, signer, cfg.LedgerTimeout, m, logger)
		logger.Info("initialized solana ledger adapter", "url", cfg.SolanaRPCURL)
	} else {
		logger.Warn("no ledger configured, settlements will use synthetic transaction ids")
	}

	// Initialize the merchant store and the pipeline engine
	st := store.NewStore(cfg.TreasuryOpeningCents)
	engine := payment.NewEngine(payment.Config{
		MerchantAddress:   cfg.MerchantAddress,
		CreditLimitCents:  cfg.CreditLimitCents,
		LamportsPerCent:   cfg.LamportsPerCent,
		CompletionDelay:   cfg.CompletionDelay,
		FailOnLedgerError: cfg.FailOnLedgerError,
	}, adapter, publisher, nil, m, logger)

	// Settled runs credit the merchant and debit the treasury
	engine.SetSettlementCallback(func(rec *payment.TransactionRecord) {
		st.RecordSettlement(rec)
		logger.Info("settlement recorded",
			"record_id", rec.ID,
			"amount", payment.FormatUSD(rec.FinalAmount),
		)
	})

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, catalog.Default(), st, engine, ssePublisher, m, logger)

	logger.Info("server initialized, all dependencies ready",
		"nats_url", cfg.NATSURL,
		"merchant_address", cfg.MerchantAddress,
		"ledger_enabled", cfg.LedgerEnabled(),
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
