package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/talentforge/assessor/internal/domain"
)

// EvidenceRepo persists evidence rows.
type EvidenceRepo struct{ Pool PgxPool }

// NewEvidenceRepo constructs an EvidenceRepo with the given pool.
func NewEvidenceRepo(p PgxPool) *EvidenceRepo { return &EvidenceRepo{Pool: p} }

// ReplaceUnit deletes all AI-generated rows for exactly the given
// (competency, level, source) unit and inserts the new rows, in one
// transaction. Manual rows and sibling units are never touched; this is the
// invariant that makes phase-1 resume safe.
func (r *EvidenceRepo) ReplaceUnit(ctx domain.Context, reportID string, unit domain.EvidenceUnit, rows []domain.Evidence) error {
	tracer := otel.Tracer("repo.evidence")
	ctx, span := tracer.Start(ctx, "evidence.ReplaceUnit")
	defer span.End()
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=evidence.replace_unit: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	del := `DELETE FROM evidence WHERE report_id=$1 AND competency=$2 AND level=$3 AND source_tag=$4 AND is_ai_generated=true`
	if _, err := tx.Exec(ctx, del, reportID, unit.Competency, unit.Level, unit.SourceTag); err != nil {
		return fmt.Errorf("op=evidence.replace_unit: delete: %w", err)
	}
	ins := `INSERT INTO evidence (id, report_id, competency, level, key_behavior, quote, source_tag, reasoning, is_ai_generated, is_archived, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	now := time.Now().UTC()
	for _, e := range rows {
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.Exec(ctx, ins, id, reportID, unit.Competency, unit.Level, e.KeyBehavior, e.Quote, unit.SourceTag, e.Reasoning, true, false, now); err != nil {
			return fmt.Errorf("op=evidence.replace_unit: insert: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=evidence.replace_unit: commit: %w", err)
	}
	return nil
}

// Signatures returns the distinct (competency|level|source) signatures that
// already hold AI-generated evidence for the report: the phase-1 resume set.
func (r *EvidenceRepo) Signatures(ctx domain.Context, reportID string) (map[string]struct{}, error) {
	tracer := otel.Tracer("repo.evidence")
	ctx, span := tracer.Start(ctx, "evidence.Signatures")
	defer span.End()
	q := `SELECT DISTINCT competency, level, source_tag FROM evidence WHERE report_id=$1 AND is_ai_generated=true`
	rows, err := r.Pool.Query(ctx, q, reportID)
	if err != nil {
		return nil, fmt.Errorf("op=evidence.signatures: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var u domain.EvidenceUnit
		if err := rows.Scan(&u.Competency, &u.Level, &u.SourceTag); err != nil {
			return nil, fmt.Errorf("op=evidence.signatures: %w", err)
		}
		out[u.Signature()] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=evidence.signatures: %w", err)
	}
	return out, nil
}

// ListByReport returns all non-archived evidence for a report in
// deterministic order.
func (r *EvidenceRepo) ListByReport(ctx domain.Context, reportID string) ([]domain.Evidence, error) {
	tracer := otel.Tracer("repo.evidence")
	ctx, span := tracer.Start(ctx, "evidence.ListByReport")
	defer span.End()
	q := `SELECT id, report_id, competency, level, key_behavior, quote, source_tag, reasoning, is_ai_generated, is_archived, created_at
	FROM evidence WHERE report_id=$1 AND is_archived=false ORDER BY competency, level, source_tag, id`
	rows, err := r.Pool.Query(ctx, q, reportID)
	if err != nil {
		return nil, fmt.Errorf("op=evidence.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Evidence
	for rows.Next() {
		var e domain.Evidence
		if err := rows.Scan(&e.ID, &e.ReportID, &e.Competency, &e.Level, &e.KeyBehavior, &e.Quote, &e.SourceTag, &e.Reasoning, &e.AIGenerated, &e.Archived, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=evidence.list: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=evidence.list: %w", err)
	}
	return out, nil
}

// CountByReport returns the number of non-archived evidence rows.
func (r *EvidenceRepo) CountByReport(ctx domain.Context, reportID string) (int, error) {
	tracer := otel.Tracer("repo.evidence")
	ctx, span := tracer.Start(ctx, "evidence.CountByReport")
	defer span.End()
	var n int
	if err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM evidence WHERE report_id=$1 AND is_archived=false`, reportID).Scan(&n); err != nil {
		return 0, fmt.Errorf("op=evidence.count: %w", err)
	}
	return n, nil
}

// Create inserts a single manually highlighted evidence row.
func (r *EvidenceRepo) Create(ctx domain.Context, e domain.Evidence) (string, error) {
	tracer := otel.Tracer("repo.evidence")
	ctx, span := tracer.Start(ctx, "evidence.Create")
	defer span.End()
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO evidence (id, report_id, competency, level, key_behavior, quote, source_tag, reasoning, is_ai_generated, is_archived, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.Pool.Exec(ctx, q, id, e.ReportID, e.Competency, e.Level, e.KeyBehavior, e.Quote, e.SourceTag, e.Reasoning, e.AIGenerated, e.Archived, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("op=evidence.create: %w", err)
	}
	return id, nil
}
