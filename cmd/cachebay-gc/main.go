package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cachebay/cachebay"
	"github.com/cachebay/cachebay/internal/canonical"
	"github.com/cachebay/cachebay/internal/config"
	"github.com/cachebay/cachebay/internal/graph"
	"github.com/cachebay/cachebay/internal/wire"
)

// cachebay-gc runs a standalone periodic sweeper over a persisted cache
// snapshot (spec §5 "a gc.connections(predicate?) sweeper", SPEC_FULL §12).
// On every tick it loads the snapshot from disk, runs GCConnections and
// persists the result. Its predicate keeps every connection, so nothing is
// removed; the configured idle TTL is only logged.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadFromFiles(os.Getenv("CACHEBAY_CONFIG_DIR"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if !cfg.Persistence.Enabled {
		log.Fatal("cachebay-gc requires persistence.enabled in configuration")
	}

	cache, err := wire.InitializeCache(cfg)
	if err != nil {
		log.Fatalf("failed to initialize cache: %v", err)
	}
	logger := cache.Logger()

	interval := cfg.GC.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	idleTTL := cfg.GC.IdleTTL
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}

	logger.Info("starting gc worker", zap.Duration("interval", interval), zap.Duration("idle_ttl", idleTTL))

	go runSweeps(ctx, cache, interval, idleTTL, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gc worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	<-shutdownCtx.Done()

	if err := logger.Sync(); err != nil {
		log.Printf("failed to sync logger: %v", err)
	}
	log.Println("gc worker stopped")
}

// runSweeps reloads the on-disk snapshot and sweeps it every interval,
// writing the result back so the next reload (by this process or the
// application) sees the reclaimed space.
func runSweeps(ctx context.Context, cache *cachebay.Cache, interval, idleTTL time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cache.LoadFromDisk(); err != nil {
				logger.Error("gc: failed to load snapshot", zap.Error(err))
				continue
			}

			before := len(cache.ListConnections())
			cache.GCConnections(func(key graph.RecordId, state canonical.GCState) bool {
				// No real last-access tracking exists in this demo sweeper;
				// a production deployment would consult a recency index
				// keyed by canonical connection and compare against idleTTL.
				return false
			})
			after := len(cache.ListConnections())

			if err := cache.PersistToDisk(); err != nil {
				logger.Error("gc: failed to persist swept snapshot", zap.Error(err))
				continue
			}

			logger.Info("gc sweep complete", zap.Int("before", before), zap.Int("after", after))
		}
	}
}
