// Command arbd is the process entrypoint: it loads configuration, wires the
// symbol registry, fee table, book store, per-venue connectors, both scan
// engines and the emitter's notifier/persistence sinks together, then runs
// until a termination signal arrives.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cryptoflow/internal/bookstore"
	"cryptoflow/internal/config"
	"cryptoflow/internal/connector"
	"cryptoflow/internal/connectorset"
	"cryptoflow/internal/emitter"
	"cryptoflow/internal/engine/cross"
	"cryptoflow/internal/engine/tri"
	"cryptoflow/internal/fees"
	"cryptoflow/internal/logger"
	"cryptoflow/internal/metrics"
	"cryptoflow/internal/notifier"
	"cryptoflow/internal/persistence"
	"cryptoflow/internal/symbols"
)

func main() {
	config.LoadDotEnv(".env")

	log := logger.GetLogger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("configuration load failed")
		os.Exit(2)
	}

	if err := log.Configure(cfg.LogLevel, "json", "stdout", 0); err != nil {
		log.WithError(err).Error("logger configuration failed")
		os.Exit(2)
	}

	metrics.InitCloudWatch("", "", "")
	logger.InitCloudWatch("", "", "")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.StartReport(ctx, log, 30*time.Second)

	registry := symbols.NewRegistry()
	feeTable := fees.NewTable()
	if err := feeTable.ApplyOverridesFromEnviron(os.Environ()); err != nil {
		log.WithError(err).Error("fee override parsing failed")
		os.Exit(2)
	}
	store := bookstore.New(cfg.MaxStaleness)

	persistSink, err := buildPersistenceSink(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("persistence sink init failed")
		os.Exit(2)
	}

	var notify emitter.Notifier
	if cfg.NotifierToken != "" && cfg.NotifierChat != "" {
		notify = notifier.New(notifier.Config{
			BaseURL: cfg.NotifierBaseURL,
			Token:   cfg.NotifierToken,
			Chat:    cfg.NotifierChat,
		})
	} else {
		log.WithComponent("main").Warn("NOTIFIER_TOKEN/NOTIFIER_CHAT not set, alerts will not be delivered")
	}

	em := emitter.New(emitter.Config{
		Cooldown: cfg.AlertCooldown,
	}, notify, persistSink)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		em.Run(ctx)
	}()

	conns, err := connectorset.NewEnabled(cfg, registry)
	if err != nil {
		log.WithError(err).Error("connector wiring failed")
		os.Exit(2)
	}

	for _, c := range conns {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			runConnector(ctx, log, c)
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			forwardSnapshots(ctx, store, c)
		}()
	}

	crossEngine := cross.New(cross.Config{
		ScanInterval: cfg.CrossScanInterval,
		MinNotional:  cfg.MinNotional,
		MinSpreadBps: cfg.MinSpreadBps,
	}, store, registry, feeTable, log.WithComponent("cross_engine").Entry, em.Submit)

	triEngine := tri.New(tri.Config{
		ScanInterval:  cfg.TriScanInterval,
		MinNotional:   cfg.MinNotional,
		MinTriGainBps: cfg.MinTriGainBps,
		Bases:         cfg.TriBases,
		ExcludeQuotes: cfg.TriExcludeQuotes,
		PathCacheTTL:  cfg.TriPathCacheTTL,
	}, store, feeTable, log.WithComponent("tri_engine").Entry, em.Submit)

	wg.Add(2)
	go func() {
		defer wg.Done()
		crossEngine.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		triEngine.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		reportEngineStats(ctx, log, crossEngine, triEngine, 30*time.Second)
	}()

	log.WithComponent("main").WithFields(logger.Fields{"venues": len(conns)}).Info("arbd started")

	<-ctx.Done()
	log.WithComponent("main").Info("shutdown signal received, draining")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(cfg.GraceShutdown):
		log.WithComponent("main").Warn("grace period elapsed before all components stopped")
	}

	if closer, ok := persistSink.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.WithError(err).Warn("persistence sink close failed")
		}
	}

	log.WithComponent("main").Info("arbd stopped")
}

func buildPersistenceSink(ctx context.Context, cfg *config.Config) (emitter.PersistenceSink, error) {
	switch cfg.PersistBackend {
	case "s3":
		return persistence.NewS3Sink(ctx, cfg.PersistBucket, "opportunities", "")
	default:
		return persistence.NewFileSink(cfg.PersistPath), nil
	}
}

// runConnector drives one connector's Run loop, logging (rather than
// propagating) a permanent failure so one venue's outage never takes down
// the process.
func runConnector(ctx context.Context, log *logger.Log, c connector.Connector) {
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		log.WithComponent("main").WithError(err).WithFields(logger.Fields{
			"venue": string(c.Venue()),
		}).Error("connector stopped permanently")
	}
}

// reportEngineStats periodically logs each engine's scan/emit counters,
// the same self-report texture logger.StartReport gives the connector layer.
func reportEngineStats(ctx context.Context, log *logger.Log, crossEngine *cross.Engine, triEngine *tri.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs := crossEngine.GetStats()
			ts := triEngine.GetStats()
			log.WithComponent("cross_engine").WithFields(logger.Fields{
				"scans": cs.Scans, "emitted": cs.Emitted, "pairs_last_scan": cs.PairsLastScan,
			}).Info("engine stats")
			log.WithComponent("tri_engine").WithFields(logger.Fields{
				"scans": ts.Scans, "emitted": ts.Emitted,
			}).Info("engine stats")
		}
	}
}

// forwardSnapshots relays a connector's published snapshots into the shared
// Store until its channel closes or ctx is cancelled, counting each snapshot
// the Store rejects through the book_snapshot_rejected drop metric.
func forwardSnapshots(ctx context.Context, store *bookstore.Store, c connector.Connector) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-c.Snapshots():
			if !ok {
				return
			}
			if !store.Put(snap) {
				metrics.EmitDropMetric(nil, metrics.DropMetricBookStore, string(snap.Venue), snap.Pair.String(), "bookstore_put")
			}
		}
	}
}
