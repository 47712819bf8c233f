package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/KaripeHS/serenity-sub009/internal/evv/authz"
	"github.com/KaripeHS/serenity-sub009/internal/evv/codeset"
	codesetredis "github.com/KaripeHS/serenity-sub009/internal/evv/codeset/cache"
	codesetpg "github.com/KaripeHS/serenity-sub009/internal/evv/codeset/loader/postgres"
	"github.com/KaripeHS/serenity-sub009/internal/evv/codeset/loader/seed"
	"github.com/KaripeHS/serenity-sub009/internal/evv/compliance"
	evvmetrics "github.com/KaripeHS/serenity-sub009/internal/evv/metrics"
	"github.com/KaripeHS/serenity-sub009/internal/evv/payload"
	"github.com/KaripeHS/serenity-sub009/internal/evv/sequence"
	seqmemory "github.com/KaripeHS/serenity-sub009/internal/evv/sequence/store/memory"
	seqpg "github.com/KaripeHS/serenity-sub009/internal/evv/sequence/store/postgres"
	"github.com/KaripeHS/serenity-sub009/internal/evv/submission"
	ledgermemory "github.com/KaripeHS/serenity-sub009/internal/evv/submission/store/memory"
	ledgerpg "github.com/KaripeHS/serenity-sub009/internal/evv/submission/store/postgres"
	"github.com/KaripeHS/serenity-sub009/internal/evv/transport"
	"github.com/KaripeHS/serenity-sub009/internal/platform/config"
	"github.com/KaripeHS/serenity-sub009/internal/platform/httpserver"
	"github.com/KaripeHS/serenity-sub009/internal/platform/logger"
	"github.com/KaripeHS/serenity-sub009/internal/platform/postgres"
	platformredis "github.com/KaripeHS/serenity-sub009/internal/platform/redis"
	"github.com/KaripeHS/serenity-sub009/internal/records"
	httptransport "github.com/KaripeHS/serenity-sub009/internal/transport/http"
	"github.com/KaripeHS/serenity-sub009/pkg/platform/audit"
	"github.com/KaripeHS/serenity-sub009/pkg/platform/audit/relay"
	auditmemory "github.com/KaripeHS/serenity-sub009/pkg/platform/audit/store/memory"
	auditpg "github.com/KaripeHS/serenity-sub009/pkg/platform/audit/store/postgres"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps
// the server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics := evvmetrics.New(registry)

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	} else {
		log.Warn("no database configured, using in-memory stores")
	}

	// Audit trail: postgres outbox relayed to Kafka, or in-memory in dev.
	var auditStore audit.Store
	var auditRelay *relay.Relay
	if db != nil {
		pgStore := auditpg.New(db)
		auditStore = pgStore
		if len(cfg.Kafka.Brokers) > 0 {
			auditRelay, err = relay.New(ctx, cfg.Kafka.Brokers, pgStore,
				relay.WithTopic(cfg.Kafka.AuditTopic),
				relay.WithLogger(log),
			)
			if err != nil {
				return err
			}
		}
	} else {
		auditStore = auditmemory.NewInMemoryStore()
	}
	auditPublisher := audit.NewPublisher(auditStore, audit.WithLogger(log))

	// Sequence allocation.
	var seqStore sequence.Store
	if db != nil {
		seqStore = seqpg.New(db)
	} else {
		seqStore = seqmemory.NewInMemoryStore()
	}
	allocator, err := sequence.New(seqStore,
		sequence.WithLogger(log),
		sequence.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		return err
	}

	// Code-set catalog: postgres behind redis, falling back to the seed.
	var catalogLoader codeset.Loader = seed.New()
	if db != nil {
		catalogLoader = codeset.NewFallbackLoader(codesetpg.New(db), seed.New(), log)
	}
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		catalogLoader = codesetredis.NewRedisLoader(redisClient.Client, catalogLoader, codesetredis.WithLogger(log))
	}
	codesets, err := codeset.NewValidator(catalogLoader, codeset.WithLogger(log))
	if err != nil {
		return err
	}

	// Compliance rule engine.
	complianceCfg := compliance.DefaultConfig()
	complianceCfg.GeofenceRadiusMiles = cfg.Compliance.GeofenceRadiusMiles
	if cfg.Compliance.AuthorizationMode == "warn" {
		complianceCfg.Authorization.Mode = authz.ModeWarn
	}
	complianceValidator := compliance.NewValidator(complianceCfg)

	// Aggregator transport.
	tokens := transport.NewTokenManager(
		cfg.Aggregator.TokenURL,
		cfg.Aggregator.ClientID,
		cfg.Aggregator.ClientSecret,
		&http.Client{Timeout: cfg.Aggregator.RequestTimeout},
	)
	client := transport.NewClient(cfg.Aggregator.BaseURL, tokens,
		transport.WithHTTPClient(&http.Client{Timeout: cfg.Aggregator.RequestTimeout}),
		transport.WithLogger(log),
	)

	// Transaction ledger.
	var ledger submission.Ledger
	if db != nil {
		ledger = ledgerpg.New(db)
	} else {
		ledger = ledgermemory.NewInMemoryLedger()
	}

	retryCfg := submission.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseBackoff: cfg.Retry.BaseBackoff,
	}
	orchestrator, err := submission.NewOrchestrator(
		retryCfg,
		payload.NewBuilder(allocator),
		complianceValidator,
		client,
		allocator,
		ledger,
		submission.WithCodesetChecker(codesets),
		submission.WithAuditPublisher(auditPublisher),
		submission.WithMetrics(engineMetrics),
		submission.WithLogger(log),
	)
	if err != nil {
		return err
	}

	worker, err := submission.NewWorker(
		submission.WorkerConfig{
			PollInterval: cfg.Retry.PollInterval,
			Concurrency:  cfg.Retry.Concurrency,
		},
		retryCfg,
		ledger,
		client,
		submission.WorkerWithAuditPublisher(auditPublisher),
		submission.WorkerWithMetrics(engineMetrics),
		submission.WorkerWithLogger(log),
	)
	if err != nil {
		return err
	}

	recordStore := records.NewInMemoryStore()
	if db == nil {
		records.Seed(recordStore)
		log.Info("seeded dev record store")
	}
	handler := httptransport.NewHandler(orchestrator, ledger, recordStore, worker, log)
	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(handler, registry))

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting evv submission engine", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	go func() {
		if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("retry worker exited", "error", err)
		}
	}()
	if auditRelay != nil {
		go func() {
			if err := auditRelay.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit relay exited", "error", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	cancelWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
