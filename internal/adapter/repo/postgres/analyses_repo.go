package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/talentforge/assessor/internal/domain"
)

// AnalysisRepo persists competency analyses.
type AnalysisRepo struct{ Pool PgxPool }

// NewAnalysisRepo constructs an AnalysisRepo with the given pool.
func NewAnalysisRepo(p PgxPool) *AnalysisRepo { return &AnalysisRepo{Pool: p} }

// ReplaceForReport deletes all analyses for the report and inserts the full
// new set in one transaction. Phase 2 persistence is report-scoped: analyses
// are never partially stale.
func (r *AnalysisRepo) ReplaceForReport(ctx domain.Context, reportID string, rows []domain.CompetencyAnalysis) error {
	tracer := otel.Tracer("repo.analyses")
	ctx, span := tracer.Start(ctx, "analyses.ReplaceForReport")
	defer span.End()
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=analysis.replace: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM competency_analyses WHERE report_id=$1`, reportID); err != nil {
		return fmt.Errorf("op=analysis.replace: delete: %w", err)
	}
	ins := `INSERT INTO competency_analyses (id, report_id, competency, level_achieved, explanation, recommendations, key_behaviors_status, anomaly, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	now := time.Now().UTC()
	for _, a := range rows {
		id := a.ID
		if id == "" {
			id = uuid.New().String()
		}
		recs, err := json.Marshal(a.Recommendations)
		if err != nil {
			return fmt.Errorf("op=analysis.replace: encode recommendations: %w", err)
		}
		kbs, err := json.Marshal(a.KeyBehaviors)
		if err != nil {
			return fmt.Errorf("op=analysis.replace: encode key_behaviors_status: %w", err)
		}
		if _, err := tx.Exec(ctx, ins, id, reportID, a.Competency, a.LevelAchieved, a.Explanation, recs, kbs, a.Anomaly, now); err != nil {
			return fmt.Errorf("op=analysis.replace: insert: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=analysis.replace: commit: %w", err)
	}
	return nil
}

// ListByReport returns all analyses for a report ordered by competency.
func (r *AnalysisRepo) ListByReport(ctx domain.Context, reportID string) ([]domain.CompetencyAnalysis, error) {
	tracer := otel.Tracer("repo.analyses")
	ctx, span := tracer.Start(ctx, "analyses.ListByReport")
	defer span.End()
	q := `SELECT id, report_id, competency, level_achieved, explanation, recommendations, key_behaviors_status, anomaly, created_at
	FROM competency_analyses WHERE report_id=$1 ORDER BY competency`
	rows, err := r.Pool.Query(ctx, q, reportID)
	if err != nil {
		return nil, fmt.Errorf("op=analysis.list: %w", err)
	}
	defer rows.Close()
	var out []domain.CompetencyAnalysis
	for rows.Next() {
		var a domain.CompetencyAnalysis
		var recs, kbs []byte
		if err := rows.Scan(&a.ID, &a.ReportID, &a.Competency, &a.LevelAchieved, &a.Explanation, &recs, &kbs, &a.Anomaly, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=analysis.list: %w", err)
		}
		if err := json.Unmarshal(recs, &a.Recommendations); err != nil {
			return nil, fmt.Errorf("op=analysis.list: decode recommendations: %w", err)
		}
		if err := json.Unmarshal(kbs, &a.KeyBehaviors); err != nil {
			return nil, fmt.Errorf("op=analysis.list: decode key_behaviors_status: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=analysis.list: %w", err)
	}
	return out, nil
}
