// Package app assembles repositories, clients and services from a Config.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/and161185/ovis-qbsync/internal/config"
	"github.com/and161185/ovis-qbsync/internal/crypto"
	"github.com/and161185/ovis-qbsync/internal/lock"
	"github.com/and161185/ovis-qbsync/internal/metrics"
	"github.com/and161185/ovis-qbsync/internal/migrate"
	"github.com/and161185/ovis-qbsync/internal/qbo"
	"github.com/and161185/ovis-qbsync/internal/repository/postgres"
	httpserver "github.com/and161185/ovis-qbsync/internal/server/http"
	"github.com/and161185/ovis-qbsync/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the wired service graph.
type App struct {
	Registry *prometheus.Registry
	Auth     service.AuthService
	Conns    service.ConnectionService
	Imports  service.ImportService
	Recat    service.RecategorizeService
	SyncLog  service.SyncLogService
	HTTP     *httpserver.Server

	closers []func()
}

// New connects to Postgres (and Redis when configured) and builds every service.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.Registry)

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	sealer, err := crypto.NewSealer([]byte(cfg.TokenKey))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("token sealer: %w", err)
	}

	locker, err := a.locker(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	connRepo := postgres.NewConnectionRepo(db, sealer)
	lineRepo := postgres.NewTxLineRepo(db)
	itemRepo := postgres.NewItemRepo(db)
	logRepo := postgres.NewSyncLogRepo(db)
	userRepo := postgres.NewUserRepo(db)

	api := qbo.NewClient(qbo.Config{
		BaseURL:       qbo.BaseURLFor(cfg.Sandbox),
		MinorVersion:  cfg.MinorVersion,
		Timeout:       cfg.HTTPTimeout,
		RatePerMinute: cfg.RatePerMinute,
	}, log, m)
	tokens := qbo.NewTokenClient(qbo.OAuthConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
	}, &http.Client{Timeout: cfg.HTTPTimeout})

	a.Auth = service.NewAuthService(userRepo, []byte(cfg.SessionKey), []byte(cfg.StateKey))
	a.SyncLog = service.NewSyncLogService(logRepo, log)
	a.Conns = service.NewConnectionService(connRepo, tokens, locker, log, m)
	a.Imports = service.NewImportService(a.Conns, api, lineRepo, itemRepo, a.SyncLog, log, m)
	a.Recat = service.NewRecategorizeService(a.Conns, api, lineRepo, locker, a.SyncLog, log, m)

	a.HTTP = httpserver.New(a.Auth, a.Conns, a.Imports, a.Recat, a.SyncLog, log)
	a.HTTP.ConnectedRedirect = cfg.ConnectedRedirect
	a.HTTP.SchemaVersion = func(ctx context.Context) (int64, error) {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return migrate.Version(ctx, cfg.DSN)
	}
	return a, nil
}

func (a *App) locker(ctx context.Context, cfg *config.Config, log *zap.Logger) (lock.Locker, error) {
	if cfg.RedisAddr == "" {
		log.Info("using in-process locks")
		return lock.NewLocal(), nil
	}
	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	a.closers = append(a.closers, func() { _ = rc.Close() })

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	log.Info("using redis locks", zap.String("addr", cfg.RedisAddr))
	return lock.NewRedis(rc, 100*time.Millisecond), nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
