// Package app wires the sync agent's components from process configuration.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/agendavet-scheduling/internal/appointment"
	"github.com/hackgods/agendavet-scheduling/internal/clinic"
	"github.com/hackgods/agendavet-scheduling/internal/config"
	"github.com/hackgods/agendavet-scheduling/internal/db"
	"github.com/hackgods/agendavet-scheduling/internal/kvstore"
	"github.com/hackgods/agendavet-scheduling/internal/localstate"
	redisclient "github.com/hackgods/agendavet-scheduling/internal/redis"
	"github.com/hackgods/agendavet-scheduling/internal/remote"
	"github.com/hackgods/agendavet-scheduling/internal/syncengine"
)

type App struct {
	Config      config.Config
	Clinic      clinic.Config
	Pool        *pgxpool.Pool
	Remote      *remote.PgStore
	KV          *kvstore.Fallback
	State       *localstate.Manager
	Engine      *syncengine.Engine
	Suggestions *appointment.Service
	// Locker is Redis-backed when Redis is reachable, local otherwise.
	Locker redisclient.Locker

	closers []func() error
}

// Open builds every component. Only configuration and pool setup errors are
// fatal: an unreachable Postgres leaves the agent offline, and an unusable
// durable KV store leaves it on the in-memory fallback.
func Open(ctx context.Context, cfg config.Config, name string, logger zerolog.Logger) (*App, error) {
	clinicCfg, err := clinic.Load(cfg.ClinicConfig)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Clinic: clinicCfg, Locker: redisclient.LocalLocker{}}

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{ApplicationName: name})
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	a.Remote = remote.NewPgStore(pool, cfg.RemoteTimeout)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; drain lock is process-local")
		} else {
			a.closers = append(a.closers, rdb.Close)
			a.Locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
		}
	}

	durable, err := a.openDurable(ctx, rdb)
	if err != nil {
		logger.Warn().Err(err).Str("backend", cfg.KVBackend).Msg("durable local store unavailable; using memory")
	}
	a.KV = kvstore.NewFallback(durable, logger)

	a.State = localstate.NewManager(a.KV, nil, logger)
	a.Engine = syncengine.NewEngine(a.State, a.Remote, remote.PingProbe{Pinger: a.Remote}, logger)
	a.Suggestions = appointment.NewService(appointment.NewRemoteRepository(a.Remote), a.State, clinicCfg, logger)

	_, localLock := a.Locker.(redisclient.LocalLocker)
	logger.Info().Str("kv_backend", cfg.KVBackend).Bool("kv_degraded", a.KV.Degraded()).
		Bool("shared_lock", !localLock).Msg("agent components ready")
	return a, nil
}

// openDurable returns nil with an error when the configured backend cannot be
// used. A nil store makes the fallback start degraded.
func (a *App) openDurable(ctx context.Context, rdb *redis.Client) (kvstore.Store, error) {
	switch a.Config.KVBackend {
	case config.KVMemory:
		return kvstore.NewMemory(), nil
	case config.KVRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis backend selected but redis is unreachable")
		}
		return kvstore.NewRedis(rdb, a.Config.KVRedisPrefix), nil
	default:
		s, err := kvstore.OpenSQLite(ctx, a.Config.KVSQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
