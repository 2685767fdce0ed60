package cli

import (
	"context"
	"fmt"

	"schedlog/internal/config"
	"schedlog/internal/db"
	"schedlog/internal/identity"
	"schedlog/internal/jobs"
	"schedlog/internal/logging"
	"schedlog/internal/session"
	"schedlog/internal/store"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App is everything one command invocation works with.
type App struct {
	Config  config.Config
	Logger  *zap.Logger
	DB      *gorm.DB
	Store   *store.Gorm
	Client  *identity.Client
	Session *session.Manager
}

// open connects the store, resumes a durable session if one was saved and
// finishes purges left by earlier runs.
func (o *RootOptions) open(ctx context.Context, extra ...identity.Option) (*App, error) {
	var cfg config.Config
	if o.Config != nil {
		cfg = *o.Config
	} else {
		var err error
		if cfg, err = config.Load(); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	logger, err := logging.New(cfg.Env, level)
	if err != nil {
		return nil, err
	}

	dsn := cfg.SQLitePath
	if cfg.StoreDriver == "postgres" {
		dsn = cfg.DatabaseURL
	}
	gdb, err := db.Connect(cfg.StoreDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		closeDB(gdb)
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	authority := &identity.Authority{
		DB:         gdb,
		JWT:        identity.NewJWT(cfg.JWTSecret),
		DurableTTL: cfg.DurableSessionTTL,
		ScopedTTL:  cfg.ScopedSessionTTL,
	}
	if cfg.FederationEnabled() {
		authority.Federation = identity.NewFederatedVerifier(cfg.FederatedIssuer, cfg.FederatedAudience, cfg.FederatedSecret)
	}

	st := store.New(gdb)
	repo := &jobs.Repo{DB: gdb}
	opts := append([]identity.Option{identity.WithTokenStore(identity.FileTokenStore{Path: cfg.TokenFile})}, extra...)
	client := identity.NewClient(authority, opts...)

	app := &App{
		Config:  cfg,
		Logger:  logger,
		DB:      gdb,
		Store:   st,
		Client:  client,
		Session: session.NewManager(client, st, repo, logger),
	}

	drain(ctx, &jobs.Worker{
		ID:          "cli",
		Repo:        repo,
		Credentials: authority,
		Logger:      logger,
	})

	if err := client.Start(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("resume session: %w", err)
	}
	if err := app.Session.Start(ctx); err != nil {
		logger.Warn("session restore failed", zap.Error(err))
	}
	return app, nil
}

func (a *App) Close() {
	a.Session.Close()
	_ = a.Logger.Sync()
	closeDB(a.DB)
}

// drain runs every due job once. A failing job is rescheduled by the worker
// and retried by a later run.
func drain(ctx context.Context, w *jobs.Worker) {
	for {
		found, err := w.RunOnce(ctx)
		if err != nil {
			w.Logger.Warn("job drain stopped", zap.Error(err))
			return
		}
		if !found {
			return
		}
	}
}

func closeDB(gdb *gorm.DB) {
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
