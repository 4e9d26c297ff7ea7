package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/talentforge/assessor/internal/domain"
)

// DocumentRepo persists uploaded transcripts.
type DocumentRepo struct{ Pool PgxPool }

// NewDocumentRepo constructs a DocumentRepo with the given pool.
func NewDocumentRepo(p PgxPool) *DocumentRepo { return &DocumentRepo{Pool: p} }

// Create stores a new document row (text empty until ingestion completes).
func (r *DocumentRepo) Create(ctx domain.Context, d domain.Document) (string, error) {
	tracer := otel.Tracer("repo.documents")
	ctx, span := tracer.Start(ctx, "documents.Create")
	defer span.End()
	id := d.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO documents (id, report_id, filename, source_tag, mime, size, text, status, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.Pool.Exec(ctx, q, id, d.ReportID, d.Filename, d.SourceTag, d.MIME, d.Size, d.Text, domain.DocumentPending, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("op=document.create: %w", err)
	}
	return id, nil
}

// Get loads a document by id.
func (r *DocumentRepo) Get(ctx domain.Context, id string) (domain.Document, error) {
	tracer := otel.Tracer("repo.documents")
	ctx, span := tracer.Start(ctx, "documents.Get")
	defer span.End()
	q := `SELECT id, report_id, filename, source_tag, mime, size, text, status, created_at FROM documents WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var d domain.Document
	if err := row.Scan(&d.ID, &d.ReportID, &d.Filename, &d.SourceTag, &d.MIME, &d.Size, &d.Text, &d.Status, &d.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Document{}, fmt.Errorf("op=document.get: %w", domain.ErrNotFound)
		}
		return domain.Document{}, fmt.Errorf("op=document.get: %w", err)
	}
	return d, nil
}

// ListByReport returns all documents of a report ordered by creation time so
// the pipeline iterates sources deterministically.
func (r *DocumentRepo) ListByReport(ctx domain.Context, reportID string) ([]domain.Document, error) {
	tracer := otel.Tracer("repo.documents")
	ctx, span := tracer.Start(ctx, "documents.ListByReport")
	defer span.End()
	q := `SELECT id, report_id, filename, source_tag, mime, size, text, status, created_at FROM documents WHERE report_id=$1 ORDER BY created_at, id`
	rows, err := r.Pool.Query(ctx, q, reportID)
	if err != nil {
		return nil, fmt.Errorf("op=document.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.ReportID, &d.Filename, &d.SourceTag, &d.MIME, &d.Size, &d.Text, &d.Status, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=document.list: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=document.list: %w", err)
	}
	return out, nil
}

// SetExtracted stores extracted text and marks the document ready.
func (r *DocumentRepo) SetExtracted(ctx domain.Context, id, text string) error {
	tracer := otel.Tracer("repo.documents")
	ctx, span := tracer.Start(ctx, "documents.SetExtracted")
	defer span.End()
	q := `UPDATE documents SET text=$2, status=$3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, text, domain.DocumentExtracted)
	if err != nil {
		return fmt.Errorf("op=document.set_extracted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=document.set_extracted: %w", domain.ErrNotFound)
	}
	return nil
}

// SetFailed marks ingestion as failed; the reason lands in the text column
// prefixed so the UI can surface it.
func (r *DocumentRepo) SetFailed(ctx domain.Context, id, reason string) error {
	tracer := otel.Tracer("repo.documents")
	ctx, span := tracer.Start(ctx, "documents.SetFailed")
	defer span.End()
	q := `UPDATE documents SET status=$2, text=$3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, domain.DocumentFailed, "extraction failed: "+reason)
	if err != nil {
		return fmt.Errorf("op=document.set_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=document.set_failed: %w", domain.ErrNotFound)
	}
	return nil
}
