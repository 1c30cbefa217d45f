// Package main provides the achievement maintenance entry point: it heals
// duplicate parent achievements left by racing imports, then recomputes
// percent-unlocked statistics for everything marked dirty. Intended to run
// from cron.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/library-sync/internal/achievements"
	"github.com/library-sync/internal/config"
	"github.com/library-sync/internal/logging"
	"github.com/library-sync/internal/storage"
)

func main() {
	var (
		repairLimit = flag.Int("repair-limit", 200, "max duplicate parent groups to heal per run")
		skipRepair  = flag.Bool("skip-repair", false, "skip the duplicate parent sweep")
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down...", sig)
		cancel()
	}()

	repo := storage.NewAchievementRepository(postgres)

	if !*skipRepair {
		ingester := achievements.NewIngester(repo)
		repaired, err := ingester.RepairSweep(ctx, *repairLimit)
		if err != nil {
			log.Fatalf("Duplicate parent sweep failed: %v", err)
		}
		log.Printf("Healed %d duplicate parent groups", repaired)
	}

	recalculator, err := achievements.NewRecalculator(achievements.RecalcConfig{
		Achievements: repo,
		UserGames:    storage.NewUserGameRepository(postgres),
		MaxPasses:    cfg.Recalc.MaxPasses,
		BatchSize:    cfg.Recalc.BatchSize,
	})
	if err != nil {
		log.Fatalf("Failed to build recalculator: %v", err)
	}

	updated, err := recalculator.Run(ctx)
	if err != nil {
		log.Fatalf("Recalculation failed: %v", err)
	}
	log.Printf("Recalculated %d achievement percentages", updated)
}
