// Package main provides the duplicate catalog maintenance entry point:
// it sweeps the catalog for similarly named games and executes merges for
// pairs where a moderator has already picked the survivor. Intended to run
// from cron.
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
	"github.com/library-sync/internal/similarity"
	"github.com/library-sync/internal/storage"
)

func main() {
	var (
		skipSweep  = flag.Bool("skip-sweep", false, "skip candidate detection, only execute decided merges")
		mergeLimit = flag.Int("merge-limit", 100, "max decided pairs to merge per run")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
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

	var cache similarity.CacheInvalidator
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		log.Printf("WARNING: Redis unavailable, cache invalidation disabled: %v", err)
	} else {
		defer redis.Close()
		cache = storage.NewResolverCache(redis, cfg.Cache.ResolveTTL)
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

	games := storage.NewGameRepository(postgres)
	similar := storage.NewSimilarGameRepository(postgres)

	if !*skipSweep {
		found, err := similarity.NewDetector(games, similar).Sweep(ctx)
		if err != nil {
			log.Fatalf("Similarity sweep failed: %v", err)
		}
		log.Printf("Recorded %d new candidate pairs", found)
	}

	pairs, err := similar.ListDecided(ctx, *mergeLimit)
	if err != nil {
		log.Fatalf("Failed to list decided pairs: %v", err)
	}

	merger := similarity.NewMergeService(games, similar, cache)
	merged := 0
	for _, pair := range pairs {
		if ctx.Err() != nil {
			break
		}
		if err := merger.Merge(ctx, pair); err != nil {
			log.Printf("Failed to merge pair %d: %v", pair.ID, err)
			continue
		}
		merged++
	}
	log.Printf("Merged %d of %d decided pairs", merged, len(pairs))
}
