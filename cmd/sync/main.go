// Package main provides the periodic library sync entry point: a single
// resumable sweep over recently active users, intended to run from cron.
// The worker binary's --sync flag runs the same sweep; this binary exists
// so cron schedules don't need worker partition flags.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/library-sync/internal/config"
	"github.com/library-sync/internal/logging"
	"github.com/library-sync/internal/merger"
	"github.com/library-sync/internal/notify"
	"github.com/library-sync/internal/platform"
	"github.com/library-sync/internal/resolver"
	"github.com/library-sync/internal/storage"
	"github.com/library-sync/internal/worker"
)

func main() {
	var (
		userID = flag.Int64("user", 0, "restrict the sweep to one user id")
		window = flag.Duration("window", 0, "activity window override, e.g. 168h for weekly (overrides SYNC_ACTIVE_WINDOW)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *window > 0 {
		cfg.Sync.ActiveWindow = *window
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	var importLogs *storage.ImportLogRepository
	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		log.Printf("WARNING: ClickHouse unavailable, audit logs disabled: %v", err)
	} else {
		defer clickhouse.Close()
		importLogs = storage.NewImportLogRepository(clickhouse)
	}

	var cache resolver.Cache
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		log.Printf("WARNING: Redis unavailable, resolver cache disabled: %v", err)
	} else {
		defer redis.Close()
		cache = storage.NewResolverCache(redis, cfg.Cache.ResolveTTL)
	}

	games := storage.NewGameRepository(postgres)
	users := storage.NewUserRepository(postgres)
	userGames := storage.NewUserGameRepository(postgres)
	notifications := storage.NewNotificationRepository(postgres)

	res, err := resolver.New(resolver.Config{Catalog: games, Cache: cache})
	if err != nil {
		log.Fatalf("Failed to build resolver: %v", err)
	}

	merge, err := merger.New(merger.Config{Resolver: res, Store: userGames})
	if err != nil {
		log.Fatalf("Failed to build merger: %v", err)
	}

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
		log.Fatal("no networks configured")
	}

	notifier := notify.NewNotifier(notifications, nil)
	finisher := worker.NewFinisher(users, storage.NewNetworkRepository(postgres), importLogs, notifier)

	syncWorker, err := worker.NewSyncWorker(worker.SyncWorkerConfig{
		Sync:     &cfg.Sync,
		Users:    users,
		Clients:  registry,
		Merger:   merge,
		Finisher: finisher,
		Counters: worker.NewCounters(),
	})
	if err != nil {
		log.Fatalf("Failed to build sync worker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down...", sig)
		cancel()
	}()

	if err := syncWorker.RunSync(ctx, *userID); err != nil && ctx.Err() == nil {
		log.Fatalf("Sync sweep failed: %v", err)
	}
	log.Println("Sync sweep complete")
}
