package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tokligence/tokligence-iosched/internal/config"
	"github.com/tokligence/tokligence-iosched/internal/device"
	"github.com/tokligence/tokligence-iosched/internal/health"
	"github.com/tokligence/tokligence-iosched/internal/httpserver"
	"github.com/tokligence/tokligence-iosched/internal/ledger/backend"
	"github.com/tokligence/tokligence-iosched/internal/logging"
	"github.com/tokligence/tokligence-iosched/internal/metrics"
	"github.com/tokligence/tokligence-iosched/internal/report"
	"github.com/tokligence/tokligence-iosched/internal/scheduler"
	"github.com/tokligence/tokligence-iosched/internal/version"
)

func main() {
	cfg, err := config.LoadIoschedConfig(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	const maxLogBytes = int64(300 * 1024 * 1024) // 300MB
	logCloser, err := logging.Setup(cfg.LogFile, cfg.LogLevel, "[ioschedd] ", maxLogBytes)
	if err != nil {
		log.Fatalf("init rotating log: %v", err)
	}
	defer logCloser.Close()
	log.Printf("[INFO] ioschedd %s env=%s devices=%v", version.FullInfo(), cfg.Environment, cfg.Devices)

	schedCfg, err := scheduler.ConfigFromSettings(cfg.BestEffortMode, cfg.BestEffortQueues, cfg.StochasticSeed,
		logging.DebugLogger(cfg.LogLevel, "[ioschedd/sched] "))
	if err != nil {
		log.Fatalf("scheduler config: %v", err)
	}

	registry := device.NewRegistry(schedCfg)
	for _, name := range cfg.Devices {
		if _, err := registry.Activate(name); err != nil {
			log.Fatalf("activate device %s: %v", name, err)
		}
	}

	snapshots, err := backend.Open(cfg, true, log.New(log.Writer(), "[ioschedd/ledger] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		log.Fatalf("open snapshot ledger: %v", err)
	}

	reporter := report.New(registry, report.Config{
		Interval:    cfg.ReportInterval,
		Burst:       cfg.ReportBurst,
		BacklogWarn: uint64(cfg.BacklogWarn),
		Store:       snapshots.Store,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reporter.Start(ctx)

	promRegistry := metrics.NewRegistry(registry)
	promRegistry.WatchReporter(reporter)

	adminSrv := httpserver.New(httpserver.Config{
		Devices: registry,
		Health: health.New(health.Config{
			LedgerDB:    snapshots.DB,
			Fleet:       registry,
			BacklogWarn: uint64(cfg.BacklogWarn),
		}),
		Ledger:  snapshots.Store,
		Metrics: promRegistry.Handler(),
		Debug:   logging.ParseLevel(cfg.LogLevel) == logging.LevelDebug,
	})

	srv := &http.Server{
		Addr:         cfg.AdminAddress,
		Handler:      adminSrv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[INFO] admin server listening on %s", cfg.AdminAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] graceful shutdown failed: %v", err)
	}

	reporter.Stop()
	// final snapshot before the queues are torn down
	for _, snap := range registry.Snapshots() {
		scheduler.LogStats(log.Default(), snap.Name, snap.Snapshot)
	}
	if n := registry.Close(); n > 0 {
		log.Printf("[WARN] flushed %d pending requests during shutdown", n)
	}
	if err := snapshots.Store.Close(); err != nil {
		log.Printf("[WARN] close snapshot ledger: %v", err)
	}
	log.Printf("[INFO] ioschedd stopped")
}
