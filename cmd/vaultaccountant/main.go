package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"VaultAccountant/internal/accountant"
	"VaultAccountant/internal/config"
	"VaultAccountant/internal/event"
	"VaultAccountant/internal/ingestion"
	"VaultAccountant/internal/observability"
	"VaultAccountant/internal/persistence"
	"VaultAccountant/internal/projection"
	"VaultAccountant/internal/query"
	"VaultAccountant/internal/server"
)

func main() {
	log := observability.NewLogger("main")

	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("VA_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.Persistence.MigrationsDir, observability.NewLogger("migrate"))
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	// --- Channels ---
	// Persist path blocks (backpressure); projection and publish drop.
	persistChan := make(chan accountant.Output, cfg.Engine.PersistChanSize)
	projectionChan := make(chan accountant.Output, cfg.Engine.ProjectionChanSize)
	persistWorkerChan := make(chan accountant.Output, cfg.Engine.PersistChanSize)
	publishChan := make(chan ingestion.PublishableEvent, cfg.Engine.PublishChanSize)

	// --- Engine ---
	engine, err := accountant.NewAccountant(accountant.EngineParams{
		FeeManager:    accountant.Identity(cfg.Engine.FeeManager),
		FeeRecipient:  accountant.Identity(cfg.Engine.FeeRecipient),
		DefaultConfig: accountant.FeeConfig{
			MaxGainBps: cfg.Engine.DefaultMaxGainBps,
			MaxLossBps: cfg.Engine.DefaultMaxLossBps,
		},
		DedupCapacity:  cfg.Engine.DedupCapacity,
		DBDedup:        persistence.NewPostgresDedupChecker(db),
		PersistChan:    persistChan,
		ProjectionChan: projectionChan,
		Metrics:        metrics,
		Logger:         observability.NewLogger("engine"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("create engine")
	}

	// --- Recovery ---
	snapStore := persistence.NewSnapshotStore(db)
	snap, err := snapStore.LoadLatest(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load snapshot")
	}
	if snap != nil {
		engine.RestoreFromSnapshot(snap)
	} else {
		log.Info().Msg("no snapshot found, cold start")
	}

	// Role bootstrap runs after recovery: a restored snapshot carries the
	// live roles, and it must not be clobbered. Re-setting only on change
	// keeps restarts from emitting spurious audit events.
	if vm := accountant.Identity(cfg.Engine.VaultManager); vm != accountant.ZeroIdentity && engine.Roles().VaultManager != vm {
		if err := engine.SetVaultManager(engine.Roles().FeeManager, vm); err != nil {
			log.Fatal().Err(err).Msg("bootstrap vault manager")
		}
	}

	errChan := make(chan error, 8)

	// --- NATS ---
	var subscriber *ingestion.Subscriber
	if cfg.NATS.Enabled {
		nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL, observability.NewLogger("nats"))
		if err != nil {
			log.Fatal().Err(err).Msg("nats connect")
		}
		defer nc.Close()

		natsLog := observability.NewLogger("ingestion")
		if err := ingestion.EnsureStreams(ctx, js, natsLog); err != nil {
			log.Fatal().Err(err).Msg("ensure NATS streams")
		}
		if err := ingestion.EnsureOutboundStream(ctx, js, natsLog); err != nil {
			log.Fatal().Err(err).Msg("ensure outbound stream")
		}

		rawChan := make(chan ingestion.RawEvent, cfg.Engine.IngestChanSize)
		subscriber = ingestion.NewSubscriber(js, rawChan, natsLog)
		if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
			log.Fatal().Err(err).Msg("nats subscribe")
		}

		go runIngestionLoop(ctx, rawChan, engine, natsLog)

		publisher := ingestion.NewPublisher(js, publishChan, observability.NewLogger("publisher"))
		go func() { errChan <- publisher.Run(ctx) }()
	}

	// --- Workers ---
	persistWorker := persistence.NewWorker(
		db, persistWorkerChan,
		cfg.Persistence.BatchSize, cfg.Persistence.FlushTimeout,
		metrics, observability.NewLogger("persistence"),
	)
	go func() { errChan <- persistWorker.Run(ctx) }()

	projWorker := projection.NewWorker(db, projectionChan, metrics, observability.NewLogger("projection"))
	go func() { errChan <- projWorker.Run(ctx) }()

	// Bridge: persist outputs fan out to the persistence worker (blocking)
	// and the outbound publisher (drop when full).
	go bridgeOutputs(ctx, persistChan, persistWorkerChan, publishChan, metrics)

	// Channel utilization gauges.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.SetChannelMetrics("persist", len(persistChan), cap(persistChan))
				metrics.SetChannelMetrics("projection", len(projectionChan), cap(projectionChan))
				metrics.SetChannelMetrics("publish", len(publishChan), cap(publishChan))
			}
		}
	}()

	// --- HTTP server ---
	rebuild := func(ctx context.Context) error { return projection.Rebuild(ctx, db) }
	srv := server.New(engine, query.NewService(db), rebuild, health, metrics, observability.NewLogger("http"))
	httpServer := &http.Server{
		Addr:    cfg.HTTP.ListenAddr,
		Handler: srv.Router(),
	}
	go func() {
		<-ctx.Done()
		shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		httpServer.Shutdown(shutCtx)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	health.SetReady(true)
	log.Info().
		Int64("sequence", engine.Sequence()).
		Str("http", cfg.HTTP.ListenAddr).
		Bool("nats", cfg.NATS.Enabled).
		Msg("vaultaccountant ready")

	// --- Wait for shutdown ---
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("worker failed, shutting down")
	}

	cancel()
	if subscriber != nil {
		subscriber.Stop()
	}

	// Final snapshot so the next start resumes from the exact state.
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := snapStore.Save(shutCtx, engine.Snapshot()); err != nil {
		log.Error().Err(err).Msg("final snapshot failed")
	} else {
		log.Info().Msg("final snapshot saved")
	}

	log.Info().Msg("shutdown complete")
}

// bridgeOutputs tees committed engine outputs: a blocking forward to the
// persistence worker and a best-effort forward to the publisher.
func bridgeOutputs(
	ctx context.Context,
	in <-chan accountant.Output,
	persistOut chan<- accountant.Output,
	publishOut chan<- ingestion.PublishableEvent,
	metrics *observability.Metrics,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case out, ok := <-in:
			if !ok {
				close(persistOut)
				return
			}

			persistOut <- out

			select {
			case publishOut <- ingestion.PublishableFromEnvelope(out.Envelope):
			default:
				if metrics != nil {
					metrics.PublishDrops.Inc()
				}
			}
		}
	}
}

// runIngestionLoop drains parsed NATS messages into the engine. Messages
// are acked after the engine decides: rejections (duplicate, stale, bound
// violation) are final decisions, not transient failures, so they are not
// redelivered.
func runIngestionLoop(
	ctx context.Context,
	rawChan <-chan ingestion.RawEvent,
	engine *accountant.Accountant,
	log zerolog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-rawChan:
			if !ok {
				return
			}

			evt, err := ingestion.ParseRawEvent(raw)
			if err != nil {
				log.Warn().Err(err).Str("subject", raw.Subject).Msg("parse failed")
				raw.AckFunc() // unparseable events are acked to stop redelivery
				continue
			}

			switch typed := evt.(type) {
			case *event.StrategyReport:
				_, err = engine.ProcessReport(typed)
			case *event.FeeAccrued:
				err = engine.RecordAccrual(typed)
			}
			_ = err // rejections are logged and counted inside the engine
			raw.AckFunc()
		}
	}
}
