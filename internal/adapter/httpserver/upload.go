package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/talentforge/assessor/internal/domain"
)

// allowedExt enforces the upload allowlist: .txt, .pdf, .docx transcripts.
func allowedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".pdf", ".docx":
		return true
	}
	return false
}

func allowedMIME(m, filename string) bool {
	m = strings.ToLower(m)
	// Some detectors misclassify rich plain text, so .txt accepts any text/*.
	if strings.HasSuffix(strings.ToLower(filename), ".txt") && strings.HasPrefix(m, "text/") {
		return true
	}
	if strings.HasPrefix(m, "text/plain") {
		return true
	}
	return m == "application/pdf" ||
		m == "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}

// UploadDocumentHandler accepts one multipart transcript for a report, stages
// it under the shared temp dir and enqueues extraction. The file must survive
// until the ingest worker picks it up, so it is not cleaned up here.
func (s *Server) UploadDocumentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reportID, ok := requireParam(w, r, "id")
		if !ok {
			return
		}
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
					Code: "PAYLOAD_TOO_LARGE", Message: "payload too large",
					Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB},
				}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file required", domain.ErrInvalidArgument), map[string]string{"field": "file"})
			return
		}
		defer func() { _ = file.Close() }()

		sourceTag := r.FormValue("source_tag")
		if strings.TrimSpace(sourceTag) == "" {
			writeError(w, r, fmt.Errorf("%w: source_tag required", domain.ErrInvalidArgument), map[string]string{"field": "source_tag"})
			return
		}

		if !allowedExt(header.Filename) {
			writeJSON(w, http.StatusUnsupportedMediaType, errorEnvelope{Error: apiError{
				Code: "UNSUPPORTED_MEDIA_TYPE", Message: "unsupported file extension",
				Details: map[string]string{"filename": header.Filename},
			}})
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: read upload: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		mime := mimetype.Detect(data)
		if !allowedMIME(mime.String(), header.Filename) {
			writeJSON(w, http.StatusUnsupportedMediaType, errorEnvelope{Error: apiError{
				Code: "UNSUPPORTED_MEDIA_TYPE", Message: "unsupported media type (content)",
				Details: map[string]string{"mime": mime.String(), "filename": header.Filename},
			}})
			return
		}

		path, err := stageUpload(header.Filename, data)
		if err != nil {
			writeError(w, r, fmt.Errorf("stage upload: %w", err), nil)
			return
		}

		docID, err := s.Documents.Upload(r.Context(), reportID, UserID(r),
			header.Filename, sourceTag, mime.String(), int64(len(data)), path)
		if err != nil {
			_ = os.Remove(path)
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":        docID,
			"report_id": reportID,
			"status":    string(domain.DocumentPending),
		})
	}
}

// ListDocumentsHandler returns the report's uploaded transcripts and their
// ingestion state.
func (s *Server) ListDocumentsHandler() http.HandlerFunc {
	type row struct {
		ID        string `json:"id"`
		Filename  string `json:"filename"`
		SourceTag string `json:"source_tag"`
		Status    string `json:"status"`
		Size      int64  `json:"size"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reportID, ok := requireParam(w, r, "id")
		if !ok {
			return
		}
		docs, err := s.Documents.ListByReport(r.Context(), reportID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]row, 0, len(docs))
		for _, d := range docs {
			out = append(out, row{
				ID: d.ID, Filename: d.Filename, SourceTag: d.SourceTag,
				Status: string(d.Status), Size: d.Size,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"report_id": reportID, "documents": out})
	}
}

func stageUpload(filename string, data []byte) (string, error) {
	f, err := os.CreateTemp("", "upload-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
