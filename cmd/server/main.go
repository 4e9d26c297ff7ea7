// Command server starts the assessment report HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talentforge/assessor/internal/adapter/ai/openrouter"
	"github.com/talentforge/assessor/internal/adapter/events"
	"github.com/talentforge/assessor/internal/adapter/httpserver"
	"github.com/talentforge/assessor/internal/adapter/queue/redpanda"
	"github.com/talentforge/assessor/internal/adapter/repo/postgres"
	tikaext "github.com/talentforge/assessor/internal/adapter/textextractor/tika"
	"github.com/talentforge/assessor/internal/app"
	"github.com/talentforge/assessor/internal/config"
	"github.com/talentforge/assessor/internal/observability"
	"github.com/talentforge/assessor/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register Prometheus metrics once per process; /metrics exposes HTTP,
	// AI and job instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	reportRepo := postgres.NewReportRepo(pool)
	dictRepo := postgres.NewDictionaryRepo(pool)
	docRepo := postgres.NewDocumentRepo(pool)
	evidenceRepo := postgres.NewEvidenceRepo(pool)
	analysisRepo := postgres.NewAnalysisRepo(pool)
	summaryRepo := postgres.NewSummaryRepo(pool)

	// Redis pub/sub fan-out for the SSE stream.
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

	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("redpanda producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close queue producer", slog.Any("error", err))
		}
	}()

	ext := tikaext.New(cfg.TikaURL)
	aicl := openrouter.New(cfg)

	reportSvc := usecase.NewReportService(reportRepo, dictRepo)
	dictSvc := usecase.NewDictionaryService(dictRepo)
	docSvc := usecase.NewDocumentService(docRepo, reportRepo, producer)
	genSvc := usecase.NewGenerateService(reportRepo, dictRepo, docRepo, evidenceRepo, analysisRepo, producer, bus)
	resultSvc := usecase.NewResultService(reportRepo, evidenceRepo, analysisRepo, summaryRepo)

	if cfg.DictionarySeedPath != "" {
		if id, err := seedDictionaryFromYAML(ctx, dictSvc, cfg.DictionarySeedPath); err != nil {
			slog.Error("dictionary seed failed", slog.Any("error", err))
		} else {
			slog.Info("dictionary seeded", slog.String("dictionary_id", id))
		}
	}

	srv := &httpserver.Server{
		Cfg:       cfg,
		Reports:   reportSvc,
		Dicts:     dictSvc,
		Documents: docSvc,
		Generate:  genSvc,
		Results:   resultSvc,
		Events:    bus,

		DBCheck:    app.CheckFor("postgres", pool),
		RedisCheck: app.CheckFor("redis", bus),
		TikaCheck:  app.CheckFor("tika", ext),
		AICheck:    app.CheckFor("openrouter", aicl),
	}

	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
