package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talentforge/assessor/internal/config"
	"github.com/talentforge/assessor/internal/domain"
	"github.com/talentforge/assessor/internal/observability"
)

// Runner owns one worker's pipeline execution. All collaborators are
// injected; the worker entry point constructs a single Runner at startup and
// registers its handlers with the queue consumer.
type Runner struct {
	cfg     config.Config
	prompts config.Prompts

	reports   domain.ReportRepository
	dicts     domain.DictionaryRepository
	docs      domain.DocumentRepository
	evidence  domain.EvidenceRepository
	analyses  domain.AnalysisRepository
	summaries domain.SummaryRepository

	ai        domain.CompletionClient
	events    domain.EventPublisher
	extractor domain.TextExtractor
	monitor   *Monitor
}

// Deps bundles the Runner's collaborators.
type Deps struct {
	Reports   domain.ReportRepository
	Dicts     domain.DictionaryRepository
	Docs      domain.DocumentRepository
	Evidence  domain.EvidenceRepository
	Analyses  domain.AnalysisRepository
	Summaries domain.SummaryRepository
	AI        domain.CompletionClient
	Events    domain.EventPublisher
	Extractor domain.TextExtractor
}

// NewRunner constructs a Runner.
func NewRunner(cfg config.Config, prompts config.Prompts, d Deps) *Runner {
	return &Runner{
		cfg:       cfg,
		prompts:   prompts,
		reports:   d.Reports,
		dicts:     d.Dicts,
		docs:      d.Docs,
		evidence:  d.Evidence,
		analyses:  d.Analyses,
		summaries: d.Summaries,
		ai:        d.AI,
		events:    d.Events,
		extractor: d.Extractor,
		monitor:   NewMonitor(d.Reports),
	}
}

// Monitor exposes the cancellation monitor, mainly for the trigger usecase.
func (r *Runner) Monitor() *Monitor { return r.monitor }

// HandleGenerate runs one generation job to a terminal outcome. A nil return
// means the phase completed and the report was marked completed; a
// cancellation sentinel means the job stopped cooperatively without touching
// report status; any other error is handed to the retry scheduler by the
// caller.
func (r *Runner) HandleGenerate(ctx domain.Context, payload domain.GenerateTaskPayload) error {
	log := observability.LoggerFromContext(ctx)

	if !payload.Phase.Valid() {
		return fmt.Errorf("op=pipeline.generate: %w: phase %d", domain.ErrDataIntegrity, payload.Phase)
	}

	// The first check doubles as the zombie gate: a redelivered job whose
	// report was re-triggered sees the mismatch before doing any work.
	if err := r.monitor.Check(ctx, payload.ReportID, payload.JobID); err != nil {
		// A superseded zombie stays silent; the newer job owns the user's
		// screen now.
		if errors.Is(err, domain.ErrCancelled) {
			r.publishCancelled(ctx, payload)
		}
		return err
	}

	report, err := r.reports.Get(ctx, payload.ReportID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("op=pipeline.generate: report %s: %w", payload.ReportID, domain.ErrDataIntegrity)
		}
		return fmt.Errorf("op=pipeline.generate: %w", err)
	}

	dict, err := r.dicts.Get(ctx, report.DictionaryID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("op=pipeline.generate: dictionary %s: %w", report.DictionaryID, domain.ErrDataIntegrity)
		}
		return fmt.Errorf("op=pipeline.generate: %w", err)
	}

	model, backup := r.cfg.ModelForAttempt(payload.Attempt)
	if backup {
		log.Warn("escalated to backup model", slog.String("model", model), slog.Int("attempt", payload.Attempt))
	}

	switch payload.Phase {
	case domain.PhaseEvidence:
		err = r.runPhase1(ctx, payload, report, dict, model)
	case domain.PhaseAnalysis:
		err = r.runPhase2(ctx, payload, report, dict, model)
	case domain.PhaseSummary:
		err = r.runPhase3(ctx, payload, report, model)
	}

	if err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			log.Info("generation stopped cooperatively", slog.Any("signal", err))
			r.publishCancelled(ctx, payload)
		}
		return err
	}
	return nil
}

// finishPhase flips the report to completed and announces it. Extra carries
// phase-specific payload fields (e.g. evidence count).
func (r *Runner) finishPhase(ctx domain.Context, payload domain.GenerateTaskPayload, extra map[string]any) error {
	if err := r.reports.UpdateStatus(ctx, payload.ReportID, domain.ReportCompleted, nil); err != nil {
		return fmt.Errorf("op=pipeline.finish: %w", err)
	}

	event := map[string]any{
		"reportId": payload.ReportID,
		"phase":    int(payload.Phase),
		"status":   string(domain.ReportCompleted),
	}
	for k, v := range extra {
		event[k] = v
	}
	if err := r.events.Publish(ctx, payload.UserID, domain.EventGenerationComplete, event); err != nil {
		observability.LoggerFromContext(ctx).Warn("failed to publish completion event", slog.Any("error", err))
	}
	return nil
}

// publishCancelled is best-effort: the user asked for the stop, the event
// just confirms it happened.
func (r *Runner) publishCancelled(ctx domain.Context, payload domain.GenerateTaskPayload) {
	err := r.events.Publish(ctx, payload.UserID, domain.EventGenerationCancelled, map[string]any{
		"reportId": payload.ReportID,
		"phase":    int(payload.Phase),
		"status":   "cancelled",
	})
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("failed to publish cancellation event", slog.Any("error", err))
	}
}
