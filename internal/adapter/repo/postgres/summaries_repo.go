package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/talentforge/assessor/internal/domain"
)

// SummaryRepo persists the executive summary, one row per report.
type SummaryRepo struct{ Pool PgxPool }

// NewSummaryRepo constructs a SummaryRepo with the given pool.
func NewSummaryRepo(p PgxPool) *SummaryRepo { return &SummaryRepo{Pool: p} }

// Replace upserts the summary by report_id; phase 3 wholly replaces it.
func (r *SummaryRepo) Replace(ctx domain.Context, s domain.ExecutiveSummary) error {
	tracer := otel.Tracer("repo.summaries")
	ctx, span := tracer.Start(ctx, "summaries.Replace")
	defer span.End()
	q := `INSERT INTO executive_summaries (report_id, overview, strengths, weaknesses, recommendations, created_at)
	VALUES ($1,$2,$3,$4,$5,$6)
	ON CONFLICT (report_id)
	DO UPDATE SET overview=EXCLUDED.overview, strengths=EXCLUDED.strengths, weaknesses=EXCLUDED.weaknesses, recommendations=EXCLUDED.recommendations`
	_, err := r.Pool.Exec(ctx, q, s.ReportID, s.Overview, s.Strengths, s.Weaknesses, s.Recommendations, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=summary.replace: %w", err)
	}
	return nil
}

// GetByReport loads the summary for a report.
func (r *SummaryRepo) GetByReport(ctx domain.Context, reportID string) (domain.ExecutiveSummary, error) {
	tracer := otel.Tracer("repo.summaries")
	ctx, span := tracer.Start(ctx, "summaries.GetByReport")
	defer span.End()
	q := `SELECT report_id, overview, strengths, weaknesses, recommendations, created_at FROM executive_summaries WHERE report_id=$1`
	row := r.Pool.QueryRow(ctx, q, reportID)
	var s domain.ExecutiveSummary
	if err := row.Scan(&s.ReportID, &s.Overview, &s.Strengths, &s.Weaknesses, &s.Recommendations, &s.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.ExecutiveSummary{}, fmt.Errorf("op=summary.get: %w", domain.ErrNotFound)
		}
		return domain.ExecutiveSummary{}, fmt.Errorf("op=summary.get: %w", err)
	}
	return s, nil
}
