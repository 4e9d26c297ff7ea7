// Command worker consumes generation and ingestion jobs from Redpanda and
// drives the report pipeline.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talentforge/assessor/internal/adapter/ai/openrouter"
	"github.com/talentforge/assessor/internal/adapter/events"
	"github.com/talentforge/assessor/internal/adapter/queue/redpanda"
	"github.com/talentforge/assessor/internal/adapter/repo/postgres"
	tikaext "github.com/talentforge/assessor/internal/adapter/textextractor/tika"
	"github.com/talentforge/assessor/internal/app"
	"github.com/talentforge/assessor/internal/config"
	"github.com/talentforge/assessor/internal/observability"
	"github.com/talentforge/assessor/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// The worker exposes its own /metrics endpoint so job-queue metrics are
	// scrapable independently of the HTTP server.
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{Addr: ":9090", Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		if err := metricsSrv.ListenAndServe(); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	reportRepo := postgres.NewReportRepo(pool)
	dictRepo := postgres.NewDictionaryRepo(pool)
	docRepo := postgres.NewDocumentRepo(pool)
	evidenceRepo := postgres.NewEvidenceRepo(pool)
	analysisRepo := postgres.NewAnalysisRepo(pool)
	summaryRepo := postgres.NewSummaryRepo(pool)

	bus, err := events.NewBus(cfg.RedisURL)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			slog.Error("failed to close event bus", slog.Any("error", err))
		}
	}()

	// Producer used for retry redelivery within the worker.
	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("queue producer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close queue producer", slog.Any("error", err))
		}
	}()

	prompts, err := config.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		slog.Error("prompt load failed", slog.Any("error", err))
		os.Exit(1)
	}

	runner := pipeline.NewRunner(cfg, prompts, pipeline.Deps{
		Reports:   reportRepo,
		Dicts:     dictRepo,
		Docs:      docRepo,
		Evidence:  evidenceRepo,
		Analyses:  analysisRepo,
		Summaries: summaryRepo,
		AI:        openrouter.New(cfg),
		Events:    bus,
		Extractor: tikaext.New(cfg.TikaURL),
	})

	retrier := redpanda.NewRetryScheduler(producer, reportRepo, bus, cfg)

	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, "assessor-workers", redpanda.Handlers{
		Generate: runner.HandleGenerate,
		Ingest:   runner.HandleIngest,
	}, retrier)
	if err != nil {
		slog.Error("redpanda consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			slog.Error("failed to close consumer", slog.Any("error", err))
		}
	}()

	// A crashed worker leaves its report stuck in processing; the sweeper
	// eventually fails it so clients stop waiting.
	if sweeper := app.NewStuckReportSweeper(reportRepo, cfg.StuckReportAge, cfg.StuckReportSweepEach); sweeper != nil {
		go sweeper.Run(ctx)
	}

	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("consumer error", slog.Any("error", err))
			stop()
		}
	}()

	slog.Info("worker started, waiting for shutdown signal")
	<-ctx.Done()
	slog.Info("worker stopped")
}
