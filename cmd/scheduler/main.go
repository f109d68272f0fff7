package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/toolrental/rentkeeper/internal/actor"
	"github.com/toolrental/rentkeeper/internal/config"
	"github.com/toolrental/rentkeeper/internal/configstore"
	"github.com/toolrental/rentkeeper/internal/database"
	"github.com/toolrental/rentkeeper/internal/schedule"
	"github.com/toolrental/rentkeeper/internal/services"
	"github.com/toolrental/rentkeeper/internal/store"
)

func main() {
	runNow := pflag.Bool("run-now", false, "run one reset pass immediately and exit")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

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

	accounts := configstore.NewFileRepository(cfg.Scheduler.AccountsConfigPath)

	factory := actor.NewBrowserFactory(actor.BrowserOptions{
		Timeout: cfg.Actor.StepTimeout,
	}, logger)

	var notifier schedule.Notifier = services.NopNotifier{}
	if cfg.Email.Enabled {
		sesNotifier, err := services.NewAWSSESNotifier(cfg.Email.Region, cfg.Email.FromAddress, cfg.Email.ToAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	orchestrator := schedule.NewOrchestrator(
		rentalStore,
		accounts,
		schedule.NewPlanner(rentalStore),
		factory,
		schedule.DefaultClassifier,
		notifier,
		logger,
	)

	scheduler, err := schedule.NewScheduler(orchestrator, cfg.Scheduler.CronSpec, logger)
	if err != nil {
		logger.Error("failed to create scheduler", slog.Any("error", err))
		os.Exit(1)
	}

	if *runNow {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if err := scheduler.RunNow(ctx); err != nil {
			logger.Error("reset pass failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	scheduler.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")
	scheduler.Stop()
	logger.Info("scheduler stopped gracefully")
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
