package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/forgo/progression/internal/app"
	"github.com/forgo/progression/internal/config"
	"github.com/forgo/progression/internal/handler"
	"github.com/forgo/progression/internal/middleware"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	engine, err := app.Open(ctx, cfg, logger, app.Options{HeartbeatInterval: 30 * time.Second})
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		return err
	}
	defer func() { _ = engine.Close() }()

	// Background loops: daily pipeline trigger and wellness index refresh
	trigger := engine.DailyTrigger()
	trigger.Start()
	defer trigger.Stop()

	refresher := engine.AggregatorRefresher()
	refresher.Start()
	defer refresher.Stop()

	idempotencyStore := middleware.NewIdempotencyStore(middleware.IdempotencyConfig{})
	defer idempotencyStore.Stop()

	mux := handler.NewRouter(handler.RouterConfig{
		Progression: engine.Progression,
		Badges:      engine.Badges,
		Aggregator:  engine.Aggregator,
		Analyzer:    engine.Analyzer,
		Query:       engine.Query,
		Scheduler:   engine.Scheduler,
		Hub:         engine.Hub,
		Store:       engine,
		Version:     version,
	})

	// Apply global middleware
	wrapped := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logger(logger.Named("http")),
		middleware.Recovery(logger),
		middleware.Idempotency(idempotencyStore),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      wrapped,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("port", cfg.Server.Port),
			zap.String("env", cfg.Server.Env),
			zap.String("driver", cfg.Database.Driver),
			zap.String("version", version),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down server...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// close streams first so Shutdown does not wait on open SSE connections
	engine.Hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}
