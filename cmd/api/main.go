package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/toolrental/rentkeeper/internal/auth"
	"github.com/toolrental/rentkeeper/internal/background"
	"github.com/toolrental/rentkeeper/internal/config"
	"github.com/toolrental/rentkeeper/internal/database"
	"github.com/toolrental/rentkeeper/internal/handlers"
	"github.com/toolrental/rentkeeper/internal/middleware"
	"github.com/toolrental/rentkeeper/internal/routes"
	"github.com/toolrental/rentkeeper/internal/services"
	"github.com/toolrental/rentkeeper/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewSQLite(cfg.Database.SQLitePath)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(db.Writer); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	var rentalStore store.Store = store.NewSQLiteStore(db, logger)

	// The cloud mirror is best effort: mirror failures are logged and
	// swallowed, never surfaced to rental API callers.
	if cfg.Database.MirrorEnabled {
		pg, err := database.NewPostgres(&cfg.Database.Mirror, logger)
		if err != nil {
			logger.Error("failed to connect to mirror database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pg.Close()

		rentalStore = store.NewMirrored(rentalStore, store.NewPostgresStore(pg, logger), logger)
		logger.Info("cloud mirror enabled", slog.String("host", cfg.Database.Mirror.Host))
	}

	keyStore := store.NewSQLiteAPIKeys(db, logger)
	keyManager := auth.NewAPIKeyManager()

	rentalService := services.NewRentalService(rentalStore, logger)
	keyService := services.NewAPIKeyService(keyStore, keyManager, logger)

	router := routes.NewRouter(routes.Options{
		Accounts:       handlers.NewAccountHandler(rentalService),
		Stats:          handlers.NewStatsHandler(keyService),
		KeyValidator:   keyService,
		Health:         db,
		TrustedProxies: cfg.Server.TrustedProxies,
		RateLimit:      middleware.RateLimitConfig{RequestsPerMinute: cfg.API.RateLimitPerMinute},
		Logger:         logger,
	})

	reconciler := background.NewReconcileManager(rentalStore, logger, cfg.Scheduler.ReconcileInterval)

	reconcileCtx, reconcileCancel := context.WithCancel(context.Background())
	defer reconcileCancel()
	go reconciler.Start(reconcileCtx)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting rental api", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	reconcileCancel()
	reconciler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
