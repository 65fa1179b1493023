// Package server wires the configured backends into the HTTP API, runs it
// and shuts everything down on SIGINT, SIGTERM or SIGQUIT.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gainsborouo/ta-source/internal/logging"
	"github.com/gainsborouo/ta-source/internal/server/access"
	"github.com/gainsborouo/ta-source/internal/server/auth"
	"github.com/gainsborouo/ta-source/internal/server/config"
	"github.com/gainsborouo/ta-source/internal/server/httpapi"
	"github.com/gainsborouo/ta-source/internal/server/logstore"
	"github.com/gainsborouo/ta-source/internal/server/metrics"
	"github.com/gainsborouo/ta-source/internal/server/oauth"
	"github.com/gainsborouo/ta-source/internal/server/repositories/repomanager"
	"github.com/gainsborouo/ta-source/internal/server/services"
	"github.com/gainsborouo/ta-source/internal/server/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProviderTimeout bounds each call to an identity provider.
const ProviderTimeout = 10 * time.Second

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	sessions    sessions.Store
	authService *services.AuthService
	handler     http.Handler
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewLogger(c.LogFormat, c.LogLevel)

	rm, err := repomanager.New(c.DatabaseDriver)
	if err != nil {
		return nil, err
	}

	db, err := repomanager.Open(ctx, c.DatabaseDriver, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	store, err := newSessionStore(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session store init error: %w", err)
	}

	logs, err := newLogStore(ctx, c)
	if err != nil {
		_ = store.Close()
		_ = db.Close()
		return nil, fmt.Errorf("log store init error: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mtr := metrics.NewMetrics(registry)

	tokens := auth.NewTokenService([]byte(c.SecretKey), c.AccessTokenValidityDuration)
	providers := oauth.NewRegistry(c.ActiveProviders(), &http.Client{Timeout: ProviderTimeout})

	as := services.NewAuthService(db, rm, c, tokens, providers, store, logger, mtr)
	cs := services.NewCourseService(db, rm, access.NewEvaluator(logs), logger, mtr)

	h := httpapi.NewHandler(c, as, cs, db, registry, mtr, logger)

	logger.Info(ctx, "App initialized",
		"driver", c.DatabaseDriver,
		"session_backend", c.SessionBackend,
		"log_backend", c.LogBackend,
		"providers", providers.Names(),
	)

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		sessions:    store,
		authService: as,
		handler:     h.Router(),
	}, nil
}

func newSessionStore(ctx context.Context, c *config.Config) (sessions.Store, error) {
	switch c.SessionBackend {
	case config.SessionBackendRedis:
		return sessions.NewRedisStore(ctx, c.RedisURL)
	default:
		return sessions.NewMemoryStore(), nil
	}
}

func newLogStore(ctx context.Context, c *config.Config) (logstore.Store, error) {
	switch c.LogBackend {
	case config.LogBackendS3:
		return logstore.NewS3Store(ctx, logstore.S3Config{
			Bucket:       c.S3Bucket,
			Prefix:       c.S3Prefix,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
		})
	default:
		return logstore.NewFSStore(c.LogsRoot)
	}
}

// AuthService exposes account operations to command-line tools sharing
// the server configuration.
func (app *App) AuthService() *services.AuthService {
	return app.authService
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.handler)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "HTTP server failed", "error", err)
		cancelFunc()
	}
}

// Run serves until a shutdown signal arrives or ctx is cancelled, then
// releases the database pool and session store.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(ctx, "shutdown error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}

// Close releases the resources opened by NewApp.
func (app *App) Close() error {
	return errors.Join(app.sessions.Close(), app.db.Close())
}
