package usecase

import (
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/talentforge/assessor/internal/domain"
)

// GenerateService triggers and cancels generation phases. Triggering claims
// the report with a fresh job id before enqueueing, so any still-running job
// for the report becomes a zombie and self-terminates on its next
// cancellation check.
type GenerateService struct {
	Reports  domain.ReportRepository
	Dicts    domain.DictionaryRepository
	Docs     domain.DocumentRepository
	Evidence domain.EvidenceRepository
	Analyses domain.AnalysisRepository
	Queue    domain.Queue
	Events   domain.EventPublisher
}

// NewGenerateService constructs a GenerateService with its dependencies.
func NewGenerateService(r domain.ReportRepository, d domain.DictionaryRepository, docs domain.DocumentRepository,
	ev domain.EvidenceRepository, an domain.AnalysisRepository, q domain.Queue, events domain.EventPublisher) GenerateService {
	return GenerateService{Reports: r, Dicts: d, Docs: docs, Evidence: ev, Analyses: an, Queue: q, Events: events}
}

// Trigger validates phase prerequisites, claims the report under a new job id
// and enqueues the generation job. Returns the job id.
func (s GenerateService) Trigger(ctx domain.Context, reportID, userID, requestID string, phase domain.Phase) (string, error) {
	if !phase.Valid() {
		return "", fmt.Errorf("op=generate.trigger: %w: unknown phase %d", domain.ErrInvalidArgument, int(phase))
	}
	report, err := s.Reports.Get(ctx, reportID)
	if err != nil {
		return "", fmt.Errorf("op=generate.trigger: %w", err)
	}
	if _, err := s.Dicts.Get(ctx, report.DictionaryID); err != nil {
		return "", fmt.Errorf("op=generate.trigger: dictionary %s: %w", report.DictionaryID, err)
	}
	if err := s.checkPrerequisites(ctx, reportID, phase); err != nil {
		return "", err
	}

	jobID := ulid.Make().String()
	if err := s.Reports.SetActiveJob(ctx, reportID, jobID); err != nil {
		return "", fmt.Errorf("op=generate.trigger: claim: %w", err)
	}
	_, err = s.Queue.EnqueueGenerate(ctx, domain.GenerateTaskPayload{
		ReportID:  reportID,
		UserID:    userID,
		JobID:     jobID,
		RequestID: requestID,
		Phase:     phase,
	})
	if err != nil {
		msg := "failed to enqueue generation job"
		if markErr := s.Reports.UpdateStatus(ctx, reportID, domain.ReportFailed, &msg); markErr != nil {
			return "", fmt.Errorf("op=generate.trigger: enqueue: %w (mark failed: %v)", err, markErr)
		}
		return "", fmt.Errorf("op=generate.trigger: enqueue: %w", err)
	}
	return jobID, nil
}

// checkPrerequisites enforces phase ordering: each phase needs the previous
// phase's output persisted before it can run.
func (s GenerateService) checkPrerequisites(ctx domain.Context, reportID string, phase domain.Phase) error {
	switch phase {
	case domain.PhaseEvidence:
		docs, err := s.Docs.ListByReport(ctx, reportID)
		if err != nil {
			return fmt.Errorf("op=generate.trigger: %w", err)
		}
		for _, d := range docs {
			if d.Status == domain.DocumentExtracted {
				return nil
			}
		}
		return fmt.Errorf("op=generate.trigger: %w: no extracted documents for report %s", domain.ErrConflict, reportID)
	case domain.PhaseAnalysis:
		n, err := s.Evidence.CountByReport(ctx, reportID)
		if err != nil {
			return fmt.Errorf("op=generate.trigger: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("op=generate.trigger: %w: no evidence for report %s, run phase 1 first", domain.ErrConflict, reportID)
		}
	case domain.PhaseSummary:
		analyses, err := s.Analyses.ListByReport(ctx, reportID)
		if err != nil {
			return fmt.Errorf("op=generate.trigger: %w", err)
		}
		if len(analyses) == 0 {
			return fmt.Errorf("op=generate.trigger: %w: no analyses for report %s, run phase 2 first", domain.ErrConflict, reportID)
		}
	}
	return nil
}

// Cancel flips a processing report out of processing and confirms over the
// event channel. The running job observes the flip on its next poll.
func (s GenerateService) Cancel(ctx domain.Context, reportID, userID string) error {
	report, err := s.Reports.Get(ctx, reportID)
	if err != nil {
		return fmt.Errorf("op=generate.cancel: %w", err)
	}
	if report.Status != domain.ReportProcessing {
		return fmt.Errorf("op=generate.cancel: %w: report %s is not processing", domain.ErrConflict, reportID)
	}
	if err := s.Reports.UpdateStatus(ctx, reportID, domain.ReportCreated, nil); err != nil {
		return fmt.Errorf("op=generate.cancel: %w", err)
	}
	// Best-effort confirmation; the job's own cancelled event follows when the
	// worker observes the flip.
	_ = s.Events.Publish(ctx, userID, domain.EventGenerationCancelled, map[string]any{
		"reportId": reportID,
		"status":   "cancelled",
	})
	return nil
}
