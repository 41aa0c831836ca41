package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cashquest/internal/config"
	"cashquest/internal/db"
	"cashquest/internal/game"

	"github.com/joho/godotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Error("schema init failed", "err", err)
		os.Exit(1)
	}

	svc := game.NewService(pool, logger)

	runOnce := strings.EqualFold(strings.TrimSpace(os.Getenv("CASHQUEST_WORKER_RUN_ONCE")), "true")
	if runOnce {
		applied, err := svc.RunEventSweep(ctx, cfg.SweepVolatility)
		if err != nil {
			logger.Error("event sweep failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed", "events_applied", applied)
		return
	}

	ticker := time.NewTicker(cfg.SweepEvery)
	defer ticker.Stop()

	logger.Info("worker started", "sweep_every", cfg.SweepEvery.String(), "volatility", cfg.SweepVolatility)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			applied, err := svc.RunEventSweep(ctx, cfg.SweepVolatility)
			if err != nil {
				logger.Error("event sweep failed", "err", err)
				continue
			}
			logger.Info("event sweep complete", "events_applied", applied)
		}
	}
}
