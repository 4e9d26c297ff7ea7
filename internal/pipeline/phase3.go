package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/talentforge/assessor/internal/domain"
	"github.com/talentforge/assessor/internal/observability"
)

// runPhase3 writes the executive summary in two sequential passes against
// the same context: a draft, then a critique pass that checks the draft for
// self-contradiction and returns the refined result. Neither pass streams
// to the UI, but both run under a watch context so a user can still stop a
// long two-pass call within one poll interval.
func (r *Runner) runPhase3(ctx domain.Context, payload domain.GenerateTaskPayload, report domain.Report, model string) error {
	log := observability.LoggerFromContext(ctx)

	analyses, err := r.analyses.ListByReport(ctx, payload.ReportID)
	if err != nil {
		return fmt.Errorf("op=pipeline.phase3: %w", err)
	}
	if len(analyses) == 0 {
		return fmt.Errorf("op=pipeline.phase3: no analyses for report %s, run phase 2 first: %w",
			payload.ReportID, domain.ErrDataIntegrity)
	}

	draft, err := r.summaryCall(ctx, payload, model, r.prompts.SummaryDraftSystem,
		buildSummaryDraftPrompt(analyses, report.SpecificContext))
	if err != nil {
		return err
	}
	log.Info("summary draft produced", slog.Int("overview_len", len(draft.Overview)))

	final, err := r.summaryCall(ctx, payload, model, r.prompts.SummaryCritiqSystem,
		buildSummaryCritiquePrompt(draft))
	if err != nil {
		return err
	}

	if err := r.summaries.Replace(ctx, domain.ExecutiveSummary{
		ReportID:        payload.ReportID,
		Overview:        final.Overview,
		Strengths:       final.Strengths,
		Weaknesses:      final.Weaknesses,
		Recommendations: final.Recommendations,
	}); err != nil {
		return fmt.Errorf("op=pipeline.phase3: persist: %w", err)
	}

	log.Info("phase 3 completed")
	return r.finishPhase(ctx, payload, nil)
}

func (r *Runner) summaryCall(ctx domain.Context, payload domain.GenerateTaskPayload, model, systemPrompt, userPrompt string) (summaryResult, error) {
	if err := r.monitor.Check(ctx, payload.ReportID, payload.JobID); err != nil {
		return summaryResult{}, err
	}
	callCtx, stop := r.monitor.Watch(ctx, payload.ReportID, payload.JobID, r.cfg.CancelPollInterval)
	defer stop()

	raw, err := r.ai.Complete(callCtx, domain.CompletionRequest{
		Model:        model,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  r.cfg.NarrativeTemperature,
		MaxTokens:    r.cfg.CompletionMaxTokens,
	})
	if err != nil {
		if callCtx.Err() != nil {
			return summaryResult{}, CancelCause(callCtx, err)
		}
		return summaryResult{}, fmt.Errorf("op=pipeline.summary_call: %w", err)
	}
	out, err := parseSummary(raw)
	if err != nil {
		return summaryResult{}, fmt.Errorf("op=pipeline.summary_call: %w", err)
	}
	return out, nil
}
