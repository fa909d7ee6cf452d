package bootstrap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	petitionservice "petitionhub/contexts/civic-engagement/petition-service"
	"petitionhub/contexts/civic-engagement/petition-service/adapters/gemini"
	"petitionhub/contexts/civic-engagement/petition-service/adapters/geo"
	postgresadapter "petitionhub/contexts/civic-engagement/petition-service/adapters/postgres"
	prometheusadapter "petitionhub/contexts/civic-engagement/petition-service/adapters/prometheus"
	"petitionhub/contexts/civic-engagement/petition-service/adapters/redislock"
	"petitionhub/contexts/civic-engagement/petition-service/adapters/session"
	"petitionhub/contexts/civic-engagement/petition-service/adapters/warehouse"
	"petitionhub/contexts/civic-engagement/petition-service/application/workers"
	"petitionhub/internal/platform/config"
	"petitionhub/internal/platform/db"
	"petitionhub/internal/platform/httpserver"
	"petitionhub/internal/platform/logging"
	"petitionhub/internal/platform/messaging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	closers  []func() error
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres       *db.Postgres
	reconciliation workers.ReconciliationJob
	schedule       string
	closers        []func() error
	logger         *slog.Logger
}

// runtime is the set of adapters shared by the API and worker processes.
type runtime struct {
	cfg      config.Config
	postgres *db.Postgres
	module   petitionservice.Module
	registry *prometheus.Registry
	closers  []func() error
}

func BuildAPI() (*APIApp, error) {
	rt, err := buildRuntime("api")
	if err != nil {
		return nil, err
	}
	logger := rt.module.Handler.Logger
	metrics := promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{})
	server := httpserver.New(rt.module, metrics, logger, normalizeAddr(rt.cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: rt.postgres,
		closers:  rt.closers,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	rt, err := buildRuntime("worker")
	if err != nil {
		return nil, err
	}
	if !rt.cfg.EnableScheduledReconciliation {
		rt.module.Handler.Logger.Warn("scheduled reconciliation disabled",
			"event", "bootstrap_worker_reconciliation_disabled",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return &WorkerApp{
		postgres:       rt.postgres,
		reconciliation: rt.module.Reconciliation,
		schedule:       rt.cfg.ReconcileSchedule,
		closers:        rt.closers,
		logger:         rt.module.Handler.Logger,
	}, nil
}

func buildRuntime(process string) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat).
		With("service", cfg.ServiceName, "process", process)
	slog.SetDefault(logger)
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, postgres: pg, registry: prometheus.NewRegistry()}
	fail := func(err error) (*runtime, error) {
		rt.close()
		_ = pg.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := postgresadapter.EnsureSchema(ctx, pg.DB); err != nil {
		return fail(err)
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	deps := petitionservice.Dependencies{
		Petitions:             repo,
		UnitOfWork:            repo,
		Maintenance:           repo,
		Events:                repo,
		ModerationLogs:        repo,
		Metrics:               prometheusadapter.New(rt.registry),
		Clock:                 postgresadapter.SystemClock{},
		IDGen:                 postgresadapter.UUIDGenerator{},
		Sleeper:               postgresadapter.SystemClock{},
		Judges:                cfg.Judges,
		PetitionPurpose:       cfg.PetitionPurpose,
		ReconcileBatchCap:     cfg.ReconcileBatchCap,
		ReconcileGroupDelay:   cfg.ReconcileGroupDelay,
		DisableReconciliation: process == "worker" && !cfg.EnableScheduledReconciliation,
		Logger:                logger,
	}
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.GeminiAPIKey == "" {
		return fail(errors.New("GEMINI_API_KEY is required"))
	}
	deps.Model = gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiEndpoint, logger)

	if cfg.DistrictsGeoJSONPath != "" {
		resolver, err := geo.LoadFile(cfg.DistrictsGeoJSONPath, cfg.DistrictNameProperty)
		if err != nil {
			return fail(err)
		}
		logger.Info("district dataset loaded",
			"event", "bootstrap_districts_loaded",
			"module", "internal/app/bootstrap",
			"layer", "platform",
			"districts", resolver.Len(),
		)
		deps.Regions = resolver
	}

	if cfg.BadWordsPath != "" {
		words, err := loadWordList(cfg.BadWordsPath)
		if err != nil {
			return fail(err)
		}
		deps.BadWords = words
	}

	if cfg.SessionSigningKey != "" {
		verifier, err := session.NewJWTVerifier(cfg.SessionSigningKey, cfg.SessionIssuer)
		if err != nil {
			return fail(err)
		}
		deps.Sessions = verifier
	} else {
		logger.Warn("admin sessions disabled; admin routes will deny every request",
			"event", "bootstrap_sessions_disabled",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fail(fmt.Errorf("ping redis: %w", err))
		}
		rt.closers = append(rt.closers, client.Close)
		deps.Lock = redislock.New(client, redislock.DefaultKey)
	}

	if cfg.EnableWarehouseSync {
		kafka, err := messaging.NewKafka(cfg.KafkaBrokers, cfg.WarehouseTopic, logger)
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, kafka.Close)
		deps.Warehouse = warehouse.NewKafkaSink(kafka, logger)
	}

	rt.module = petitionservice.NewModule(deps)
	return rt, nil
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
}

// loadWordList reads one blocked word per line. Blank lines and lines
// starting with # are skipped.
func loadWordList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open word list: %w", err)
	}
	defer file.Close()

	var words []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read word list: %w", err)
	}
	return words, nil
}

func (a *APIApp) Run(ctx context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	errs := make(chan error, 1)
	go func() {
		errs <- a.server.Start()
	}()
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	}
}

func (a *APIApp) Close() error {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

// Run executes reconciliation passes on the cron schedule until ctx ends.
// Passes that leave work behind are followed by another pass immediately.
func (w *WorkerApp) Run(ctx context.Context) error {
	scheduler := cron.New(cron.WithChain(reconciliationWrappers(w.logger)...))
	if _, err := scheduler.AddFunc(w.schedule, func() { w.drain(ctx) }); err != nil {
		return fmt.Errorf("invalid reconciliation schedule %q: %w", w.schedule, err)
	}

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"schedule", w.schedule,
	)
	scheduler.Start()
	<-ctx.Done()
	<-scheduler.Stop().Done()
	return nil
}

// reconciliationWrappers drop a tick while the previous drain is still
// running, so a slow pass never overlaps the next one in this process.
func reconciliationWrappers(logger *slog.Logger) []cron.JobWrapper {
	return []cron.JobWrapper{cron.SkipIfStillRunning(cronLogger{logger: logger})}
}

// cronLogger routes scheduler messages through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info("cron "+msg, append([]any{
		"event", "bootstrap_worker_cron",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	}, keysAndValues...)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron "+msg, append([]any{
		"event", "bootstrap_worker_cron_failed",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"error", err.Error(),
	}, keysAndValues...)...)
}

func (w *WorkerApp) drain(ctx context.Context) {
	for ctx.Err() == nil {
		report, err := w.reconciliation.RunOnce(ctx)
		if err != nil {
			w.logger.Error("scheduled reconciliation failed",
				"event", "bootstrap_worker_reconciliation_failed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"error", err.Error(),
			)
			return
		}
		if !report.HasMorePending || report.ProcessedCount == 0 {
			return
		}
	}
}

func (w *WorkerApp) Close() error {
	for i := len(w.closers) - 1; i >= 0; i-- {
		_ = w.closers[i]()
	}
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
