package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/simmarket/internal/clock"
	"github.com/efreitasn/simmarket/internal/config"
	"github.com/efreitasn/simmarket/internal/domain"
	"github.com/efreitasn/simmarket/internal/engine"
	"github.com/efreitasn/simmarket/internal/handler"
	"github.com/efreitasn/simmarket/internal/service"
	"github.com/efreitasn/simmarket/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Clock, with a best-effort one-shot network time correction.
	clk := clock.New()
	if cfg.TimeSyncURL != "" {
		syncCtx, syncCancel := context.WithTimeout(ctx, cfg.TimeSyncTimeout)
		offset, err := clk.Sync(syncCtx, &http.Client{Timeout: cfg.TimeSyncTimeout}, cfg.TimeSyncURL)
		syncCancel()
		if err != nil {
			logger.Warn("time sync failed, using local clock", slog.String("error", err.Error()))
		} else {
			logger.Info("time synced", slog.Duration("offset", offset))
		}
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", slog.String("driver", cfg.StoreDriver), slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("store opened", slog.String("driver", cfg.StoreDriver))

	symbols, err := domain.NewSymbolSet(cfg.Symbols)
	if err != nil {
		logger.Error("invalid symbols", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Engine.
	market := engine.NewMarket(ctx, st, symbols, clk, engine.Options{
		Volatility:      cfg.Volatility,
		UpdateInterval:  cfg.UpdateInterval,
		TickInterval:    cfg.TickInterval,
		ErrorBackoff:    cfg.ErrorBackoff,
		NewsProbability: cfg.NewsProbability,
		NewsTemplates:   cfg.NewsTemplates,
		Logger:          logger,
	})

	// Services.
	tradingSvc := service.NewTradingService(market, st, cfg.DefaultBalance, cfg.IsAdmin, logger)
	marketSvc := service.NewMarketService(market, st, cfg.IsAdmin, logger)

	// Router.
	router := handler.NewRouter(tradingSvc, marketSvc, market.Feed(), logger)

	market.Start(ctx)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, then the market loop, then the store.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	market.Stop()
	if err := st.Close(); err != nil {
		logger.Error("store close error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "postgres":
		return store.OpenPostgres(ctx, cfg.Postgres)
	default:
		return store.OpenSQLite(ctx, cfg.SQLitePath)
	}
}
