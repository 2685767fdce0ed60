package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schedlog/internal/config"
	"schedlog/internal/db"
	httpx "schedlog/internal/http"
	"schedlog/internal/identity"
	"schedlog/internal/jobs"
	"schedlog/internal/logging"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	dsn := cfg.DatabaseURL
	if cfg.StoreDriver == "sqlite" {
		dsn = cfg.SQLitePath
	}
	gdb, err := db.Connect(cfg.StoreDriver, dsn)
	if err != nil {
		logger.Fatal("connect store", zap.Error(err))
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		logger.Fatal("migrate store", zap.Error(err))
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

	r := httpx.NewRouter(cfg, gdb, authority, logger)

	// worker
	worker := &jobs.Worker{
		ID:          cfg.WorkerID,
		Repo:        &jobs.Repo{DB: gdb},
		Credentials: authority,
		Interval:    cfg.WorkerInterval,
		Logger:      logger.Named("jobs"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go worker.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
