package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/eoty/eoty-backend/internal/data/db"
	httpx "github.com/eoty/eoty-backend/internal/http"
	"github.com/eoty/eoty-backend/internal/observability"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Server   *httpx.Server

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
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

	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "eoty-backend",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

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
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(theDB, log, cfg, reposet, clients)

	middleware, err := wireMiddleware(log)
	if err != nil {
		clients.Close()
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(log, serviceset)
	server := wireServer(log, handlerset, middleware)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Server:       server,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background workers. It is safe to call once.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Start(ctx)
	}
	if a.Services.SweepScheduler != nil {
		a.Services.SweepScheduler.Start(ctx)
	}
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Server listening", "address", a.Cfg.ServerAddress)
	return a.Server.Run(a.Cfg.ServerAddress)
}

// Close drains the HTTP server before stopping the workers so in-flight
// requests can still enqueue jobs.
func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("HTTP shutdown failed", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Stop()
	}
	if a.Services.SweepScheduler != nil {
		a.Services.SweepScheduler.Stop()
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("OTel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
