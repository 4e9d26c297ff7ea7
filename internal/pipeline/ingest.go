package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/talentforge/assessor/internal/domain"
	"github.com/talentforge/assessor/internal/observability"
)

// HandleIngest extracts text from one uploaded transcript. Failures are
// terminal for the document, never for the report: the document is marked
// failed and the user is told, so they can re-upload.
func (r *Runner) HandleIngest(ctx domain.Context, payload domain.IngestTaskPayload) error {
	log := observability.LoggerFromContext(ctx)

	text, err := r.extractor.ExtractPath(ctx, payload.Filename, payload.Path)
	if err != nil {
		log.Error("text extraction failed", slog.Any("error", err))
		if markErr := r.docs.SetFailed(ctx, payload.DocumentID, err.Error()); markErr != nil {
			log.Error("failed to mark document failed", slog.Any("error", markErr))
		}
		r.publishIngested(ctx, payload, string(domain.DocumentFailed))
		return fmt.Errorf("op=pipeline.ingest: %w", err)
	}
	if text == "" {
		err := fmt.Errorf("op=pipeline.ingest: %w: no text in %s", domain.ErrInvalidArgument, payload.Filename)
		if markErr := r.docs.SetFailed(ctx, payload.DocumentID, "document contains no extractable text"); markErr != nil {
			log.Error("failed to mark document failed", slog.Any("error", markErr))
		}
		r.publishIngested(ctx, payload, string(domain.DocumentFailed))
		return err
	}

	if err := r.docs.SetExtracted(ctx, payload.DocumentID, text); err != nil {
		return fmt.Errorf("op=pipeline.ingest: persist: %w", err)
	}

	log.Info("document ingested", slog.Int("text_len", len(text)))
	r.publishIngested(ctx, payload, string(domain.DocumentExtracted))
	return nil
}

func (r *Runner) publishIngested(ctx domain.Context, payload domain.IngestTaskPayload, status string) {
	err := r.events.Publish(ctx, payload.UserID, domain.EventDocumentIngested, map[string]any{
		"documentId": payload.DocumentID,
		"reportId":   payload.ReportID,
		"filename":   payload.Filename,
		"status":     status,
	})
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("failed to publish ingest event", slog.Any("error", err))
	}
}
