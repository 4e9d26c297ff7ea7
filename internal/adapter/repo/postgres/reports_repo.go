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

// ReportRepo persists and loads reports from PostgreSQL.
type ReportRepo struct{ Pool PgxPool }

// NewReportRepo constructs a ReportRepo with the given pool.
func NewReportRepo(p PgxPool) *ReportRepo { return &ReportRepo{Pool: p} }

// Create inserts a new report and returns its id.
func (r *ReportRepo) Create(ctx domain.Context, rep domain.Report) (string, error) {
	tracer := otel.Tracer("repo.reports")
	ctx, span := tracer.Start(ctx, "reports.Create")
	defer span.End()
	id := rep.ID
	if id == "" {
		id = uuid.New().String()
	}
	targets, err := json.Marshal(rep.TargetLevels)
	if err != nil {
		return "", fmt.Errorf("op=report.create: %w", err)
	}
	q := `INSERT INTO reports (id, title, project_id, created_by, dictionary_id, status, target_levels, specific_context, active_job_id, error, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	now := time.Now().UTC()
	_, err = r.Pool.Exec(ctx, q, id, rep.Title, rep.ProjectID, rep.CreatedBy, rep.DictionaryID, domain.ReportCreated, targets, rep.SpecificContext, "", "", now, now)
	if err != nil {
		return "", fmt.Errorf("op=report.create: %w", err)
	}
	return id, nil
}

// Get loads a report by id.
func (r *ReportRepo) Get(ctx domain.Context, id string) (domain.Report, error) {
	tracer := otel.Tracer("repo.reports")
	ctx, span := tracer.Start(ctx, "reports.Get")
	defer span.End()
	q := `SELECT id, title, project_id, created_by, dictionary_id, status, target_levels, specific_context, COALESCE(active_job_id,''), COALESCE(error,''), created_at, updated_at
	FROM reports WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var rep domain.Report
	var targets []byte
	if err := row.Scan(&rep.ID, &rep.Title, &rep.ProjectID, &rep.CreatedBy, &rep.DictionaryID, &rep.Status, &targets, &rep.SpecificContext, &rep.ActiveJobID, &rep.Error, &rep.CreatedAt, &rep.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Report{}, fmt.Errorf("op=report.get: %w", domain.ErrNotFound)
		}
		return domain.Report{}, fmt.Errorf("op=report.get: %w", err)
	}
	if len(targets) > 0 {
		if err := json.Unmarshal(targets, &rep.TargetLevels); err != nil {
			return domain.Report{}, fmt.Errorf("op=report.get: decode target_levels: %w", err)
		}
	}
	return rep, nil
}

// UpdateStatus updates a report's status and optional error message.
func (r *ReportRepo) UpdateStatus(ctx domain.Context, id string, status domain.ReportStatus, errMsg *string) error {
	tracer := otel.Tracer("repo.reports")
	ctx, span := tracer.Start(ctx, "reports.UpdateStatus")
	defer span.End()
	// Map nil errMsg to empty string to satisfy the NOT NULL error column.
	errVal := ""
	if errMsg != nil {
		errVal = *errMsg
	}
	q := `UPDATE reports SET status=$2, error=$3, updated_at=$4 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, status, errVal, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=report.update_status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=report.update_status: %w", domain.ErrNotFound)
	}
	return nil
}

// SetActiveJob records the authoritative job id and flips the report to
// processing in a single statement.
func (r *ReportRepo) SetActiveJob(ctx domain.Context, id, jobID string) error {
	tracer := otel.Tracer("repo.reports")
	ctx, span := tracer.Start(ctx, "reports.SetActiveJob")
	defer span.End()
	q := `UPDATE reports SET active_job_id=$2, status=$3, error='', updated_at=$4 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, jobID, domain.ReportProcessing, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=report.set_active_job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=report.set_active_job: %w", domain.ErrNotFound)
	}
	return nil
}

// ListStuckProcessing returns ids of reports that have been in processing
// longer than maxAge. Used by the sweeper.
func (r *ReportRepo) ListStuckProcessing(ctx domain.Context, maxAge time.Duration) ([]string, error) {
	tracer := otel.Tracer("repo.reports")
	ctx, span := tracer.Start(ctx, "reports.ListStuckProcessing")
	defer span.End()
	q := `SELECT id FROM reports WHERE status=$1 AND updated_at < $2`
	rows, err := r.Pool.Query(ctx, q, domain.ReportProcessing, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return nil, fmt.Errorf("op=report.list_stuck: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("op=report.list_stuck: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=report.list_stuck: %w", err)
	}
	return ids, nil
}
