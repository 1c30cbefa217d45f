// Package main provides the import worker entry point: one process owning
// one partition of the import queue, or the periodic sync sweep with --sync.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/library-sync/internal/achievements"
	"github.com/library-sync/internal/config"
	"github.com/library-sync/internal/logging"
	"github.com/library-sync/internal/merger"
	"github.com/library-sync/internal/notify"
	"github.com/library-sync/internal/platform"
	"github.com/library-sync/internal/resolver"
	"github.com/library-sync/internal/retry"
	"github.com/library-sync/internal/storage"
	"github.com/library-sync/internal/worker"
)

func main() {
	var (
		num     = flag.Int("num", -1, "this worker's partition number (overrides WORKER_PROCESS_NUM)")
		length  = flag.Int("len", 0, "total worker processes (overrides WORKER_PROCESS_COUNT)")
		runSync = flag.Bool("sync", false, "run the periodic sync sweep instead of the import queue")
		userID  = flag.Int64("user", 0, "with --sync, restrict the sweep to one user id")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *num >= 0 {
		cfg.Worker.ProcessNum = *num
	}
	if *length > 0 {
		cfg.Worker.ProcessCount = *length
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)

	log.Printf("Library sync worker starting (partition %d/%d, sync=%v)",
		cfg.Worker.ProcessNum, cfg.Worker.ProcessCount, *runSync)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	postgres, clickhouse, redis := connect(ctx, cfg)
	defer postgres.Close()
	if clickhouse != nil {
		defer clickhouse.Close()
	}
	if redis != nil {
		defer redis.Close()
	}

	deps := build(cfg, postgres, clickhouse, redis)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down...", sig)
		cancel()
	}()

	if *runSync {
		if err := deps.syncWorker.RunSync(ctx, *userID); err != nil && ctx.Err() == nil {
			log.Fatalf("Sync sweep failed: %v", err)
		}
		log.Println("Sync sweep complete")
		return
	}

	if err := deps.importWorker.Start(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Import worker failed: %v", err)
	}
	log.Println("Import worker stopped")
}

// connect establishes database connections, retrying with backoff because
// workers frequently start before their databases during deploys
func connect(ctx context.Context, cfg *config.Config) (*storage.PostgresDB, *storage.ClickHouseDB, *storage.RedisCache) {
	var postgres *storage.PostgresDB
	result := retry.WithExponentialBackoff(ctx, retry.DefaultRetryConfig(), func(ctx context.Context, attempt int) error {
		var err error
		postgres, err = storage.NewPostgresDB(&cfg.Database.Postgres)
		return err
	})
	if !result.Success {
		log.Fatalf("Failed to connect to Postgres: %v", result.LastError)
	}

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		log.Printf("WARNING: ClickHouse unavailable, audit logs disabled: %v", err)
		clickhouse = nil
	}

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		log.Printf("WARNING: Redis unavailable, resolver cache disabled: %v", err)
		redis = nil
	}

	return postgres, clickhouse, redis
}

type workerDeps struct {
	importWorker *worker.ImportWorker
	syncWorker   *worker.SyncWorker
}

func build(cfg *config.Config, postgres *storage.PostgresDB, clickhouse *storage.ClickHouseDB, redis *storage.RedisCache) *workerDeps {
	games := storage.NewGameRepository(postgres)
	users := storage.NewUserRepository(postgres)
	userGames := storage.NewUserGameRepository(postgres)
	imports := storage.NewImportRepository(postgres)
	notifications := storage.NewNotificationRepository(postgres)

	var importLogs *storage.ImportLogRepository
	if clickhouse != nil {
		importLogs = storage.NewImportLogRepository(clickhouse)
	}

	var cache resolver.Cache
	if redis != nil {
		cache = storage.NewResolverCache(redis, cfg.Cache.ResolveTTL)
	}

	res, err := resolver.New(resolver.Config{Catalog: games, Cache: cache})
	if err != nil {
		log.Fatalf("Failed to build resolver: %v", err)
	}

	merge, err := merger.New(merger.Config{Resolver: res, Store: userGames})
	if err != nil {
		log.Fatalf("Failed to build merger: %v", err)
	}

	registry := buildRegistry(cfg)
	notifier := notify.NewNotifier(notifications, nil)
	finisher := worker.NewFinisher(users, storage.NewNetworkRepository(postgres), importLogs, notifier)
	counters := worker.NewCounters()

	ingester := achievements.NewIngester(storage.NewAchievementRepository(postgres))
	achievementSyncer := achievements.NewSyncer(res, ingester)

	importWorker, err := worker.NewImportWorker(worker.ImportWorkerConfig{
		Worker:       &cfg.Worker,
		Imports:      imports,
		Users:        users,
		Clients:      registry,
		Merger:       merge,
		Achievements: achievementSyncer,
		Finisher:     finisher,
		Counters:     counters,
	})
	if err != nil {
		log.Fatalf("Failed to build import worker: %v", err)
	}

	syncWorker, err := worker.NewSyncWorker(worker.SyncWorkerConfig{
		Sync:     &cfg.Sync,
		Users:    users,
		Clients:  registry,
		Merger:   merge,
		Finisher: finisher,
		Counters: counters,
	})
	if err != nil {
		log.Fatalf("Failed to build sync worker: %v", err)
	}

	return &workerDeps{importWorker: importWorker, syncWorker: syncWorker}
}

// buildRegistry creates the configured network clients, each behind a
// circuit breaker
func buildRegistry(cfg *config.Config) *platform.Registry {
	registry := platform.NewRegistry()
	for _, name := range cfg.Networks.Enabled {
		var client platform.Client
		switch name {
		case "steam":
			client = platform.NewSteamClient(&cfg.Networks.Steam)
		case "xbox":
			client = platform.NewXboxClient(&cfg.Networks.Xbox)
		case "playstation":
			client = platform.NewPlayStationClient(&cfg.Networks.PlayStation)
		case "gog":
			client = platform.NewGOGClient(&cfg.Networks.GOG)
		default:
			log.Printf("Skipping unknown network %q", name)
			continue
		}
		registry.Register(platform.WithBreaker(client))
	}
	if len(registry.Networks()) == 0 {
		log.Fatal(fmt.Errorf("no networks configured"))
	}
	return registry
}
