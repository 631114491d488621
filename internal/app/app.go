package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/clipforge/exportd/internal/data/db"
	"github.com/clipforge/exportd/internal/jobs/recovery"
	"github.com/clipforge/exportd/internal/platform/logger"
	"github.com/clipforge/exportd/internal/platform/tracing"
)

// App is the fully wired orchestrator process: HTTP server, worker pool,
// and their shared collaborators. New builds it; Start brings persisted
// state to a coherent condition and launches the worker pool; Run blocks
// serving HTTP; Close unwinds everything in reverse order.
type App struct {
	Log           *logger.Logger
	DB            *gorm.DB
	Cfg           Config
	Clients       Clients
	Repos         Repos
	Services      Services
	http          *httpServer
	traceShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	traceShutdown := tracing.Init(context.Background(), log, "exportd")

	log.Info("loading configuration")
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	clients, err := wireClients(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init clients: %w", err)
	}

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(clients, reposet, cfg, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init services: %w", err)
	}

	handlerset := wireHandlers(log, serviceset, reposet.Jobs)
	mw := wireMiddleware(log)
	router := wireRouter(handlerset, mw)

	return &App{
		Log:           log,
		DB:            theDB,
		Cfg:           cfg,
		Clients:       clients,
		Repos:         reposet,
		Services:      serviceset,
		http:          newHTTPServer(cfg.HTTPAddr, router, log),
		traceShutdown: traceShutdown,
	}, nil
}

// Start reconciles persisted job state left over from a previous process
// (spec §4.5) and only then launches the worker pool. Recovery must run
// to completion before the first ClaimNext, or a worker could claim a job
// Recovery was about to reconcile out from under it.
func (a *App) Start(ctx context.Context) error {
	if err := recovery.Run(ctx, a.Repos.Jobs, a.Log, a.Cfg.Scheduler.StartupOrphanPolicy); err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}
	a.Services.Scheduler.Start(ctx)
	return nil
}

// Run blocks serving HTTP until the server shuts down.
func (a *App) Run() error {
	return a.http.Run()
}

// Close unwinds the worker pool, the HTTP server, and every external
// connection, in that order, then flushes the logger.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Services.Scheduler != nil {
		a.Services.Scheduler.Stop()
	}
	if a.http != nil {
		if err := a.http.Shutdown(ctx); err != nil {
			a.Log.Warn("http server shutdown error", "error", err)
		}
	}
	a.Clients.Close()
	if a.traceShutdown != nil {
		if err := a.traceShutdown(ctx); err != nil {
			a.Log.Warn("otel tracer shutdown error", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
