package pipeline

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/talentforge/assessor/internal/domain"
	"github.com/talentforge/assessor/internal/observability"
)

// runPhase2 judges key-behavior fulfillment per level and computes each
// competency's achieved level. The ladder walk per competency:
//
//  1. the target level first,
//  2. the foundation check, every level below target down to 1, always,
//  3. the growth check, upward from target+1 only while each level passes.
//
// Persistence is report-scoped: the full analysis set replaces the old one
// only after every competency finished, so a retry reprocesses the whole
// report. Partial resume is unsound here because the final level depends on
// every rung of the ladder (see finalLevel).
func (r *Runner) runPhase2(ctx domain.Context, payload domain.GenerateTaskPayload, report domain.Report, dict domain.Dictionary, model string) error {
	log := observability.LoggerFromContext(ctx)

	allEvidence, err := r.evidence.ListByReport(ctx, payload.ReportID)
	if err != nil {
		return fmt.Errorf("op=pipeline.phase2: %w", err)
	}
	if len(allEvidence) == 0 {
		return fmt.Errorf("op=pipeline.phase2: no evidence for report %s, run phase 1 first: %w",
			payload.ReportID, domain.ErrDataIntegrity)
	}
	byCompetency := make(map[string][]domain.Evidence)
	for _, e := range allEvidence {
		byCompetency[e.Competency] = append(byCompetency[e.Competency], e)
	}

	var results []domain.CompetencyAnalysis
	for _, comp := range dict.Competencies {
		target, ok := report.TargetLevels[comp.Name]
		if !ok || target <= 0 {
			log.Debug("competency has no target level, skipping", slog.String("competency", comp.Name))
			continue
		}
		if _, ok := comp.Level(target); !ok {
			return fmt.Errorf("op=pipeline.phase2: competency %s has no level %d: %w",
				comp.Name, target, domain.ErrDataIntegrity)
		}

		if err := r.monitor.Check(ctx, payload.ReportID, payload.JobID); err != nil {
			return err
		}

		analysis, err := r.judgeCompetency(ctx, payload, comp, target, byCompetency[comp.Name], model)
		if err != nil {
			return err
		}
		results = append(results, analysis)

		_ = r.events.Publish(ctx, payload.UserID, domain.EventAnalysisProgress, map[string]any{
			"reportId":      payload.ReportID,
			"competency":    comp.Name,
			"levelAchieved": analysis.LevelAchieved,
			"anomaly":       analysis.Anomaly,
		})
	}
	if len(results) == 0 {
		return fmt.Errorf("op=pipeline.phase2: report %s has no target levels: %w",
			payload.ReportID, domain.ErrDataIntegrity)
	}

	if err := r.analyses.ReplaceForReport(ctx, payload.ReportID, results); err != nil {
		return fmt.Errorf("op=pipeline.phase2: persist: %w", err)
	}

	log.Info("phase 2 completed", slog.Int("competencies", len(results)))
	return r.finishPhase(ctx, payload, map[string]any{"competencyCount": len(results)})
}

// judgeCompetency walks the ladder for one competency and writes its
// narrative.
func (r *Runner) judgeCompetency(ctx domain.Context, payload domain.GenerateTaskPayload, comp domain.Competency, target int, evidence []domain.Evidence, model string) (domain.CompetencyAnalysis, error) {
	log := observability.LoggerFromContext(ctx).With(slog.String("competency", comp.Name))

	outcomes := make(map[int]LevelOutcome)
	var statuses []domain.KeyBehaviorStatus

	judge := func(lvl int) (bool, error) {
		if err := r.monitor.Check(ctx, payload.ReportID, payload.JobID); err != nil {
			return false, err
		}
		level, ok := comp.Level(lvl)
		if !ok {
			return false, nil
		}
		outcome, levelStatuses, err := r.judgeLevel(ctx, payload, comp, level, evidence, model)
		if err != nil {
			return false, err
		}
		outcomes[lvl] = outcome
		statuses = append(statuses, levelStatuses...)
		log.Info("level judged",
			slog.Int("level", lvl),
			slog.Int("fulfilled", outcome.Fulfilled),
			slog.Int("total", outcome.Total),
			slog.Bool("passed", outcome.Passed))
		return outcome.Passed, nil
	}

	targetPassed, err := judge(target)
	if err != nil {
		return domain.CompetencyAnalysis{}, err
	}

	// Foundation check: always, so a failed rung below a passing target
	// surfaces as an anomaly instead of silently inflating the score.
	for lvl := target - 1; lvl >= 1; lvl-- {
		if _, err := judge(lvl); err != nil {
			return domain.CompetencyAnalysis{}, err
		}
	}

	// Growth check: only while passing; the first failed level above target
	// caps the ceiling.
	if targetPassed {
		for lvl := target + 1; lvl <= comp.MaxLevel(); lvl++ {
			passed, err := judge(lvl)
			if err != nil {
				return domain.CompetencyAnalysis{}, err
			}
			if !passed {
				break
			}
		}
	}

	flat := make([]LevelOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		flat = append(flat, o)
	}
	achieved := finalLevel(flat)
	anomaly := hasAnomaly(flat)
	observability.AchievedLevelHistogram.Observe(float64(achieved))

	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].Level != statuses[j].Level {
			return statuses[i].Level < statuses[j].Level
		}
		return statuses[i].KeyBehavior < statuses[j].KeyBehavior
	})

	narrative, err := r.writeNarrative(ctx, payload, comp, target, achieved, statuses, flat, model)
	if err != nil {
		return domain.CompetencyAnalysis{}, err
	}

	explanation := narrative.Explanation
	if anomaly {
		explanation = fmt.Sprintf("%s\n\nScoring anomaly: level(s) %s failed while a higher level passed; the achieved level reflects the lowest unbroken run.",
			explanation, joinInts(anomalyLevels(flat)))
	}

	return domain.CompetencyAnalysis{
		ReportID:      payload.ReportID,
		Competency:    comp.Name,
		LevelAchieved: achieved,
		Explanation:   explanation,
		Recommendations: domain.Recommendations{
			PersonalDevelopment: narrative.Recommendations.PersonalDevelopment,
			Assignment:          narrative.Recommendations.Assignment,
			Training:            narrative.Recommendations.Training,
		},
		KeyBehaviors: statuses,
		Anomaly:      anomaly,
	}, nil
}

// judgeLevel asks the model to verdict every key behavior of one level
// against the evidence and applies the pass threshold.
func (r *Runner) judgeLevel(ctx domain.Context, payload domain.GenerateTaskPayload, comp domain.Competency, level domain.CompetencyLevel, evidence []domain.Evidence, model string) (LevelOutcome, []domain.KeyBehaviorStatus, error) {
	if len(level.KeyBehaviors) == 0 {
		return LevelOutcome{Level: level.Level}, nil, nil
	}

	callCtx, stop := r.monitor.Watch(ctx, payload.ReportID, payload.JobID, r.cfg.CancelPollInterval)
	defer stop()

	raw, err := r.ai.Complete(callCtx, domain.CompletionRequest{
		Model:        model,
		SystemPrompt: r.prompts.JudgeSystem,
		UserPrompt:   buildJudgePrompt(comp, level, evidence),
		Temperature:  r.cfg.JudgeTemperature,
		MaxTokens:    r.cfg.CompletionMaxTokens,
	})
	if err != nil {
		if callCtx.Err() != nil {
			return LevelOutcome{}, nil, CancelCause(callCtx, err)
		}
		return LevelOutcome{}, nil, fmt.Errorf("op=pipeline.judge_level: %w", err)
	}

	verdicts, err := parseVerdicts(raw)
	if err != nil {
		return LevelOutcome{}, nil, fmt.Errorf("op=pipeline.judge_level: %w", err)
	}

	// Index verdicts by canonical key behavior; unmatched official behaviors
	// count as not fulfilled so a short response cannot inflate the ratio.
	verdictByKB := make(map[string]behaviorVerdict, len(verdicts))
	for _, v := range verdicts {
		kb, _ := canonicalizeKB(v.KeyBehavior, level.KeyBehaviors)
		verdictByKB[kb] = v
	}

	fulfilled := 0
	statuses := make([]domain.KeyBehaviorStatus, 0, len(level.KeyBehaviors))
	for _, kb := range level.KeyBehaviors {
		v, judged := verdictByKB[kb]
		status := domain.KeyBehaviorStatus{
			Level:       level.Level,
			KeyBehavior: kb,
			Fulfilled:   judged && v.Fulfilled,
			Explanation: v.Explanation,
			Quotes:      v.Quotes,
		}
		if !judged {
			status.Explanation = "not addressed by the judgment response"
		}
		if status.Fulfilled {
			fulfilled++
		}
		statuses = append(statuses, status)
	}

	outcome := LevelOutcome{
		Level:     level.Level,
		Total:     len(level.KeyBehaviors),
		Fulfilled: fulfilled,
		Passed:    passes(fulfilled, len(level.KeyBehaviors), r.cfg.PassThreshold),
	}
	return outcome, statuses, nil
}

// writeNarrative turns the judgment trail into prose and the three mandated
// recommendation categories.
func (r *Runner) writeNarrative(ctx domain.Context, payload domain.GenerateTaskPayload, comp domain.Competency, target, achieved int, statuses []domain.KeyBehaviorStatus, outcomes []LevelOutcome, model string) (narrativeResult, error) {
	callCtx, stop := r.monitor.Watch(ctx, payload.ReportID, payload.JobID, r.cfg.CancelPollInterval)
	defer stop()

	raw, err := r.ai.Complete(callCtx, domain.CompletionRequest{
		Model:        model,
		SystemPrompt: r.prompts.NarrativeSystem,
		UserPrompt:   buildNarrativePrompt(comp, target, achieved, statuses, anomalyLevels(outcomes)),
		Temperature:  r.cfg.NarrativeTemperature,
		MaxTokens:    r.cfg.CompletionMaxTokens,
	})
	if err != nil {
		if callCtx.Err() != nil {
			return narrativeResult{}, CancelCause(callCtx, err)
		}
		return narrativeResult{}, fmt.Errorf("op=pipeline.narrative: %w", err)
	}
	out, err := parseNarrative(raw)
	if err != nil {
		return narrativeResult{}, fmt.Errorf("op=pipeline.narrative: %w", err)
	}
	return out, nil
}
