// Package app wires configuration into a running engine: market data
// clients, archive sinks, retention and the HTTP surface.
package app

import (
	"context"
	"fmt"
	"time"

	"marketsync/config"
	"marketsync/internal/engine"
	"marketsync/internal/fallback"
	"marketsync/internal/httpapi"
	"marketsync/internal/retention"
	"marketsync/internal/session"
	"marketsync/internal/snapshot"
	"marketsync/pkg/marketdata"
	"marketsync/pkg/storage/archive"
	"marketsync/pkg/storage/redismirror"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	Engine *engine.Engine

	cfg     *config.Config
	logger  *zap.Logger
	archive *archive.Client
	redis   *redis.Client
	pruner  *retention.MidnightPruner
	http    *httpapi.Server
}

// Build creates every component the configuration asks for. Nothing runs
// until Run is called.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	restClient := marketdata.NewRESTClient(cfg.MarketData.REST.BaseURL, cfg.MarketData.REST.Timeout).
		WithLogger(logger.Named("rest"))

	deps := engine.Deps{
		Fetcher: restClient,
		Loader: &snapshot.Loader{
			Client:  restClient,
			Timeout: cfg.MarketData.REST.Timeout,
			Logger:  logger.Named("snapshot"),
		},
		QueueSize: cfg.Archive.QueueSize,
		Logger:    logger,
	}

	if cfg.MarketData.WS.URL != "" {
		deps.Dialer = newPushDialer(cfg.MarketData.WS, logger.Named("ws"))
	}

	synth, err := buildSynthesizer(cfg.Fallback)
	if err != nil {
		return nil, err
	}
	deps.Synthesizer = synth

	if err := a.openArchive(); err != nil {
		a.Close()
		return nil, err
	}
	if a.archive != nil {
		deps.Sinks = append(deps.Sinks, a.archive)
		a.pruner = &retention.MidnightPruner{
			Pruner:    a.archive,
			Retention: cfg.Archive.Retention,
			Logger:    logger.Named("retention"),
		}
	}

	if cfg.Redis.Addr != "" {
		rdb, err := redismirror.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redis = rdb
		deps.Sinks = append(deps.Sinks, redismirror.New(rdb, cfg.Redis.TTL, cfg.Redis.KeepTicks))
	}

	a.Engine = engine.New(cfg.Engine, deps)

	if cfg.HTTP.Addr != "" {
		a.http = httpapi.New(a.Engine, logger.Named("http"), cfg.Log.Level == "debug")
	}
	return a, nil
}

func newPushDialer(ws config.WSConfig, logger *zap.Logger) session.Dialer {
	d := &marketdata.WSDialer{
		URL:              ws.URL,
		Topics:           ws.Topics,
		HandshakeTimeout: ws.HandshakeTimeout,
		ReadTimeout:      ws.ReadTimeout,
		PingInterval:     ws.PingInterval,
		Logger:           logger,
	}
	return session.DialerFunc(func(ctx context.Context) (session.Transport, error) {
		conn, err := d.Dial(ctx)
		if err != nil {
			// a nil *WSConn must not become a non-nil Transport
			return nil, err
		}
		return conn, nil
	})
}

func buildSynthesizer(cfg config.FallbackConfig) (fallback.Synthesizer, error) {
	if !cfg.Enabled {
		return fallback.Disabled{}, nil
	}
	baselines, err := fallback.LoadBaselines(cfg.BaselinesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load fallback baselines: %w", err)
	}
	return fallback.NewRandomWalk(baselines, cfg.MaxDrift, uint64(time.Now().UnixNano())), nil
}

func (a *App) openArchive() error {
	var err error
	switch a.cfg.Archive.Driver {
	case "postgres":
		a.archive, err = archive.OpenPostgres(a.cfg.Archive.Postgres, a.cfg.Log.Environment, a.cfg.Archive.CreateDB)
	case "sqlite":
		a.archive, err = archive.OpenSQLite(a.cfg.Archive.SQLitePath)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	a.logger.Info("archive opened", zap.String("driver", a.cfg.Archive.Driver))
	return nil
}

// Run starts retention, the engine and the HTTP server, and blocks until
// ctx is done or the HTTP server fails.
func (a *App) Run(ctx context.Context) error {
	if a.pruner != nil && a.cfg.Archive.Retention > 0 {
		a.pruner.Start(ctx)
	}

	if err := a.Engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer a.Engine.Stop()

	if a.http == nil {
		<-ctx.Done()
		return nil
	}
	return a.http.Run(ctx, a.cfg.HTTP.Addr)
}

// Close releases storage connections. Call after Run returns.
func (a *App) Close() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Warn("failed to close archive", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
