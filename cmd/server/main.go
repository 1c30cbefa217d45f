// Package main provides the ops HTTP server entry point: health probes,
// queue inspection and manual import triggers.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/library-sync/internal/api"
	"github.com/library-sync/internal/config"
	"github.com/library-sync/internal/logging"
	"github.com/library-sync/internal/notify"
	"github.com/library-sync/internal/storage"
	"github.com/library-sync/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable, duration stats disabled")
		clickhouse = nil
	} else {
		defer clickhouse.Close()
	}

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, health check degraded")
		redis = nil
	} else {
		defer redis.Close()
	}

	imports := storage.NewImportRepository(postgres)
	notifications := storage.NewNotificationRepository(postgres)
	games := storage.NewGameRepository(postgres)
	similar := storage.NewSimilarGameRepository(postgres)

	var importLogs *storage.ImportLogRepository
	if clickhouse != nil {
		importLogs = storage.NewImportLogRepository(clickhouse)
	}

	notifier := notify.NewNotifier(notifications, nil)
	enqueuer := worker.NewEnqueuer(imports, importLogs, notifier, cfg.Worker.ProcessCount)

	server := api.NewServer(api.ServerConfig{
		Config:        &cfg.Server,
		Postgres:      postgres,
		Redis:         redis,
		ClickHouse:    clickhouse,
		Imports:       imports,
		ImportLogs:    importLogs,
		Games:         games,
		Similar:       similar,
		Notifications: notifications,
		Enqueuer:      enqueuer,
		Counters:      worker.NewCounters(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-errCh:
		logger.WithError(err).Error("Server stopped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
}
