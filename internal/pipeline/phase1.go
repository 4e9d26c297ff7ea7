package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/talentforge/assessor/internal/domain"
	"github.com/talentforge/assessor/internal/observability"
)

// runPhase1 extracts evidence for every (competency, level, source document)
// unit. Units are processed in dictionary order, then level order, then
// document order, so progress is deterministic across resumes. Already
// persisted units (the resume set) are skipped, which makes the whole phase
// idempotent across retries and crashes.
func (r *Runner) runPhase1(ctx domain.Context, payload domain.GenerateTaskPayload, report domain.Report, dict domain.Dictionary, model string) error {
	log := observability.LoggerFromContext(ctx)

	docs, err := r.docs.ListByReport(ctx, payload.ReportID)
	if err != nil {
		return fmt.Errorf("op=pipeline.phase1: %w", err)
	}
	extracted := docs[:0:0]
	for _, d := range docs {
		if d.Status == domain.DocumentExtracted && d.Text != "" {
			extracted = append(extracted, d)
		}
	}
	if len(extracted) == 0 {
		return fmt.Errorf("op=pipeline.phase1: no ingested documents for report %s: %w",
			payload.ReportID, domain.ErrDataIntegrity)
	}
	if len(dict.Competencies) == 0 {
		return fmt.Errorf("op=pipeline.phase1: dictionary %s has no competencies: %w",
			dict.ID, domain.ErrDataIntegrity)
	}

	done, err := r.evidence.Signatures(ctx, payload.ReportID)
	if err != nil {
		return fmt.Errorf("op=pipeline.phase1: resume set: %w", err)
	}
	log.Info("phase 1 starting",
		slog.Int("competencies", len(dict.Competencies)),
		slog.Int("documents", len(extracted)),
		slog.Int("resumed_units", len(done)))

	for _, comp := range dict.Competencies {
		for _, level := range comp.Levels {
			for _, doc := range extracted {
				unit := domain.EvidenceUnit{
					Competency: comp.Name,
					Level:      level.Level,
					SourceTag:  doc.SourceTag,
				}
				if _, ok := done[unit.Signature()]; ok {
					log.Debug("unit already persisted, skipping", slog.String("unit", unit.Signature()))
					continue
				}

				if err := r.monitor.Check(ctx, payload.ReportID, payload.JobID); err != nil {
					return err
				}

				if err := r.extractUnit(ctx, payload, unit, comp, level, doc, report.SpecificContext, model); err != nil {
					if domain.IsCancellation(err) {
						return err
					}
					// A malformed response for one unit must not abort the
					// phase; the unit stays incomplete and the next run
					// picks it up again.
					log.Warn("unit extraction failed, continuing",
						slog.String("unit", unit.Signature()),
						slog.Any("error", err))
					continue
				}
			}
		}
	}

	total, err := r.evidence.CountByReport(ctx, payload.ReportID)
	if err != nil {
		return fmt.Errorf("op=pipeline.phase1: %w", err)
	}
	log.Info("phase 1 completed", slog.Int("evidence_count", total))
	return r.finishPhase(ctx, payload, map[string]any{"evidenceCount": total})
}

// extractUnit runs one completion call for one unit and persists its rows.
// The stream is wired through the event channel for live display, and a
// watch context aborts it within one poll interval of a cancellation.
func (r *Runner) extractUnit(ctx domain.Context, payload domain.GenerateTaskPayload, unit domain.EvidenceUnit, comp domain.Competency, level domain.CompetencyLevel, doc domain.Document, specificContext, model string) error {
	start := time.Now()

	streamCtx, stop := r.monitor.Watch(ctx, payload.ReportID, payload.JobID, r.cfg.CancelPollInterval)
	defer stop()

	raw, err := r.ai.CompleteStream(streamCtx, domain.CompletionRequest{
		Model:        model,
		SystemPrompt: r.prompts.EvidenceSystem,
		UserPrompt:   buildEvidencePrompt(doc, comp, level, specificContext),
		Temperature:  r.cfg.ExtractTemperature,
		MaxTokens:    r.cfg.CompletionMaxTokens,
	}, func(chunk string) {
		_ = r.events.Publish(ctx, payload.UserID, domain.EventAIStream, map[string]any{
			"reportId": payload.ReportID,
			"chunk":    chunk,
		})
	})
	if err != nil {
		if streamCtx.Err() != nil {
			return CancelCause(streamCtx, err)
		}
		return fmt.Errorf("op=pipeline.extract_unit: %w", err)
	}

	items, err := parseEvidence(raw)
	if err != nil {
		return fmt.Errorf("op=pipeline.extract_unit: %w", err)
	}

	rows := make([]domain.Evidence, 0, len(items))
	for _, item := range items {
		if item.Quote == "" {
			continue
		}
		kb, matched := canonicalizeKB(item.KeyBehavior, level.KeyBehaviors)
		if !matched {
			observability.LoggerFromContext(ctx).Debug("key behavior not in dictionary, keeping raw text",
				slog.String("competency", comp.Name),
				slog.Int("level", level.Level),
				slog.String("key_behavior", item.KeyBehavior))
		}
		rows = append(rows, domain.Evidence{
			ReportID:    payload.ReportID,
			Competency:  unit.Competency,
			Level:       unit.Level,
			KeyBehavior: kb,
			Quote:       item.Quote,
			SourceTag:   unit.SourceTag,
			Reasoning:   item.Reasoning,
			AIGenerated: true,
		})
	}

	// Delete-then-reinsert scoped to exactly this unit; an empty result set
	// still clears stale partial rows from a crashed earlier attempt.
	if err := r.evidence.ReplaceUnit(ctx, payload.ReportID, unit, rows); err != nil {
		return fmt.Errorf("op=pipeline.extract_unit: persist: %w", err)
	}
	observability.EvidenceRowsPersisted.Add(float64(len(rows)))

	_ = r.events.Publish(ctx, payload.UserID, domain.EventEvidenceSaved, map[string]any{
		"reportId":   payload.ReportID,
		"competency": unit.Competency,
		"count":      len(rows),
	})
	observability.LoggerFromContext(ctx).Info("unit persisted",
		slog.String("unit", unit.Signature()),
		slog.Int("rows", len(rows)),
		slog.Duration("took", time.Since(start)))
	return nil
}
