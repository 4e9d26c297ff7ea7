package usecase

import (
	"fmt"

	"github.com/talentforge/assessor/internal/domain"
)

// ResultService reads back pipeline output for the API.
type ResultService struct {
	Reports   domain.ReportRepository
	Evidence  domain.EvidenceRepository
	Analyses  domain.AnalysisRepository
	Summaries domain.SummaryRepository
}

// NewResultService constructs a ResultService with its dependencies.
func NewResultService(r domain.ReportRepository, e domain.EvidenceRepository, a domain.AnalysisRepository, s domain.SummaryRepository) ResultService {
	return ResultService{Reports: r, Evidence: e, Analyses: a, Summaries: s}
}

// ListEvidence returns all non-archived evidence rows for the report.
func (s ResultService) ListEvidence(ctx domain.Context, reportID string) ([]domain.Evidence, error) {
	if _, err := s.Reports.Get(ctx, reportID); err != nil {
		return nil, fmt.Errorf("op=result.evidence: %w", err)
	}
	return s.Evidence.ListByReport(ctx, reportID)
}

// ListAnalyses returns the phase-2 verdicts for the report.
func (s ResultService) ListAnalyses(ctx domain.Context, reportID string) ([]domain.CompetencyAnalysis, error) {
	if _, err := s.Reports.Get(ctx, reportID); err != nil {
		return nil, fmt.Errorf("op=result.analyses: %w", err)
	}
	return s.Analyses.ListByReport(ctx, reportID)
}

// Summary returns the executive summary, ErrNotFound before phase 3 has run.
func (s ResultService) Summary(ctx domain.Context, reportID string) (domain.ExecutiveSummary, error) {
	if _, err := s.Reports.Get(ctx, reportID); err != nil {
		return domain.ExecutiveSummary{}, fmt.Errorf("op=result.summary: %w", err)
	}
	return s.Summaries.GetByReport(ctx, reportID)
}
