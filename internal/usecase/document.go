package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/talentforge/assessor/internal/domain"
)

// DocumentService registers uploaded transcripts and hands them to the
// ingestion worker. The HTTP layer stages the file on disk and sniffs the
// mime type; this service owns validation and the queue handoff.
type DocumentService struct {
	Docs    domain.DocumentRepository
	Reports domain.ReportRepository
	Queue   domain.Queue
}

// NewDocumentService constructs a DocumentService with its dependencies.
func NewDocumentService(d domain.DocumentRepository, r domain.ReportRepository, q domain.Queue) DocumentService {
	return DocumentService{Docs: d, Reports: r, Queue: q}
}

// Upload persists a pending document row for the staged file at path and
// enqueues its text extraction. Returns the new document id.
func (s DocumentService) Upload(ctx domain.Context, reportID, userID, filename, sourceTag, mimeType string, size int64, path string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", fmt.Errorf("op=document.upload: %w: filename required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(sourceTag) == "" {
		return "", fmt.Errorf("op=document.upload: %w: source_tag required", domain.ErrInvalidArgument)
	}
	if _, err := s.Reports.Get(ctx, reportID); err != nil {
		return "", fmt.Errorf("op=document.upload: report %s: %w", reportID, err)
	}

	docID, err := s.Docs.Create(ctx, domain.Document{
		ReportID:  reportID,
		Filename:  filename,
		SourceTag: sourceTag,
		MIME:      mimeType,
		Size:      size,
		Status:    domain.DocumentPending,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("op=document.upload: %w", err)
	}

	_, err = s.Queue.EnqueueIngest(ctx, domain.IngestTaskPayload{
		DocumentID: docID,
		ReportID:   reportID,
		UserID:     userID,
		Path:       path,
		Filename:   filename,
	})
	if err != nil {
		if markErr := s.Docs.SetFailed(ctx, docID, "enqueue failed"); markErr != nil {
			return "", fmt.Errorf("op=document.upload: %w (mark failed: %v)", err, markErr)
		}
		return "", fmt.Errorf("op=document.upload: enqueue: %w", err)
	}
	return docID, nil
}

// ListByReport returns all documents uploaded for the report.
func (s DocumentService) ListByReport(ctx domain.Context, reportID string) ([]domain.Document, error) {
	return s.Docs.ListByReport(ctx, reportID)
}
