package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/agendavet-scheduling/internal/app"
	"github.com/hackgods/agendavet-scheduling/internal/config"
	"github.com/hackgods/agendavet-scheduling/internal/logging"
	redisclient "github.com/hackgods/agendavet-scheduling/internal/redis"
)

const drainLock = "drain"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("dev", "info")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "sync-worker").Logger()
	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.SyncInterval).Msg("sync-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancelOpen := context.WithTimeout(rootCtx, 15*time.Second)
	agent, err := app.Open(openCtx, cfg, "agendavet-sync-worker", logger)
	cancelOpen()
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer func() {
		if err := agent.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing resources")
		}
	}()

	// Run once at startup
	runOnce(rootCtx, agent, logger)

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping sync worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, agent, logger)
		}
	}
}

// runOnce drains every user's queue and refreshes the cached service catalog.
func runOnce(ctx context.Context, agent *app.App, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, agent.Config.LockTTL)
	defer cancel()

	start := time.Now()
	err := agent.Locker.WithLock(runCtx, drainLock, func(ctx context.Context) error {
		res, err := agent.Engine.Drain(ctx, "")
		if err != nil {
			return err
		}
		if res.Offline {
			logger.Debug().Msg("remote offline, drain skipped")
			return nil
		}
		if n, err := agent.Suggestions.RefreshCatalog(ctx); err != nil {
			logger.Warn().Err(err).Msg("catalog refresh failed")
		} else {
			logger.Debug().Int("services", n).Msg("catalog refreshed")
		}
		logger.Info().Int("pushed", res.Pushed).Int("failed", res.Failed).Bool("skipped", res.Skipped).
			Dur("took", time.Since(start)).Msg("sync run complete")
		return nil
	})
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		logger.Debug().Msg("another worker holds the drain lock")
	case err != nil:
		logger.Error().Err(err).Msg("sync run error")
	}
}
