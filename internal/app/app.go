package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/clinic-assessments/content"
	"github.com/gokatarajesh/clinic-assessments/internal/access"
	"github.com/gokatarajesh/clinic-assessments/internal/attempt"
	"github.com/gokatarajesh/clinic-assessments/internal/catalog"
	"github.com/gokatarajesh/clinic-assessments/internal/config"
	"github.com/gokatarajesh/clinic-assessments/internal/db/repository"
	"github.com/gokatarajesh/clinic-assessments/internal/export"
	"github.com/gokatarajesh/clinic-assessments/internal/logging"
	"github.com/gokatarajesh/clinic-assessments/internal/metrics"
	"github.com/gokatarajesh/clinic-assessments/internal/navigation"
	"github.com/gokatarajesh/clinic-assessments/internal/runner"
	"github.com/gokatarajesh/clinic-assessments/internal/server"
	ws "github.com/gokatarajesh/clinic-assessments/pkg/http/ws"
)

// Application aggregates shared infrastructure (stores, catalog, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	http    *http.Server
	hub     *ws.Hub
	closers []func() error
}

// New bootstraps the logger, catalog, stores and HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	a := &Application{cfg: cfg, logger: logger}
	deps := make(map[string]server.Pinger)

	cat, err := loadCatalog(cfg.Catalog, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("assessments", cat.Len()).Msg("catalog loaded")

	routes, err := navigation.ParseRoutes(cfg.Routes.Overrides)
	if err != nil {
		return nil, fmt.Errorf("parse routes: %w", err)
	}

	submissions, err := a.openSubmissions(ctx, deps)
	if err != nil {
		a.close()
		return nil, err
	}

	var store attempt.Store
	switch cfg.Runner.SessionStore {
	case "memory":
		logger.Warn().Msg("using in-memory session store; attempts are lost on restart")
		store = attempt.NewMemoryStore()
	default:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		a.closers = append(a.closers, redisClient.Close)
		redisStore := attempt.NewRedisStore(redisClient, cfg.Runner.SessionTTL, logger)
		deps["redis"] = redisStore
		store = redisStore
	}

	recorder := metrics.New(prometheus.DefaultRegisterer)

	attemptSvc := attempt.NewService(cat, store, submissions, routes, attempt.ServiceOptions{
		AutoAdvanceDelay: cfg.Runner.AutoAdvanceDelay,
		SliderPolicy:     runner.SliderPolicy(cfg.Runner.SliderPolicy),
		LockWait:         cfg.Runner.LockWait,
		Metrics:          recorder,
	}, logger)

	var guard, staffGuard func(http.Handler) http.Handler
	if cfg.Access.Enabled {
		tokens := access.NewManager(access.TokenConfig{
			Secret: []byte(cfg.Access.Secret),
			TTL:    cfg.Access.TTL,
			Issuer: cfg.Access.Issuer,
		})
		guard = access.RequireEntitlement(tokens, logger)
		staffGuard = access.RequireStaff(tokens, logger)
		logger.Info().Msg("entitlement gating enabled")
	} else {
		logger.Warn().Msg("entitlement gating disabled; anyone can start an attempt")
	}

	a.hub = ws.NewHub(logger)
	attemptHandlers := attempt.NewHTTPHandlers(attemptSvc, a.hub, server.NewUpgrader(cfg.CORS), logger)
	catalogHandlers := catalog.NewHTTPHandlers(cat, logger)
	exportHandlers := export.NewHTTPHandlers(cat, submissions, logger)

	a.http = server.NewHTTPServer(cfg, logger, deps,
		catalogHandlers.Register,
		func(mux *http.ServeMux) { attemptHandlers.Register(mux, guard) },
		func(mux *http.ServeMux) { exportHandlers.Register(mux, staffGuard) },
	)
	return a, nil
}

func loadCatalog(cfg config.Catalog, logger zerolog.Logger) (*catalog.Catalog, error) {
	if cfg.Dir != "" {
		cat, err := catalog.LoadDir(cfg.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("load catalog from %s: %w", cfg.Dir, err)
		}
		return cat, nil
	}
	cat, err := catalog.Load(content.Assessments(), logger)
	if err != nil {
		return nil, fmt.Errorf("load embedded catalog: %w", err)
	}
	return cat, nil
}

// openSubmissions connects the configured submission store.
func (a *Application) openSubmissions(ctx context.Context, deps map[string]server.Pinger) (*repository.SubmissionRepository, error) {
	switch a.cfg.Submissions.Driver {
	case "sqlite":
		db, err := repository.OpenSQLite(ctx, a.cfg.Submissions.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		deps["sqlite"] = db
		a.logger.Info().Str("path", a.cfg.Submissions.SQLitePath).Msg("submissions stored in sqlite")
		return repository.NewSubmissionRepository(db), nil
	default:
		poolCfg, err := pgxpool.ParseConfig(a.cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("parse postgres config: %w", err)
		}
		poolCfg.MaxConns = int32(a.cfg.Postgres.MaxConns)
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		deps["postgres"] = server.PingFunc(pool.Ping)
		return repository.NewSubmissionRepository(repository.NewPostgresSubmissions(pool)), nil
	}
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		a.close()
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	// hijacked WebSocket connections are not tracked by Shutdown
	a.hub.CloseAll()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	a.close()
	a.logger.Info().Msg("shutdown complete")
	return nil
}

func (a *Application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error().Err(err).Msg("close error")
		}
	}
	a.closers = nil
}
