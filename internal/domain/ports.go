package domain

// Repositories (ports)

// ReportRepository persists reports. UpdateStatus and SetActiveJob are the
// only mutators the pipeline uses; the report row is the single source of
// truth for "should this job still be running".
type ReportRepository interface {
	Create(ctx Context, r Report) (string, error)
	Get(ctx Context, id string) (Report, error)
	UpdateStatus(ctx Context, id string, status ReportStatus, errMsg *string) error
	// SetActiveJob records the authoritative job id for the report and moves
	// it to processing in one statement, so a concurrent trigger cannot
	// observe a half-claimed report.
	SetActiveJob(ctx Context, id, jobID string) error
}

// DictionaryRepository persists competency dictionaries.
type DictionaryRepository interface {
	Create(ctx Context, d Dictionary) (string, error)
	Get(ctx Context, id string) (Dictionary, error)
	Update(ctx Context, d Dictionary) error
	// InUse reports whether any report references the dictionary.
	InUse(ctx Context, id string) (bool, error)
}

// DocumentRepository persists uploaded transcripts.
type DocumentRepository interface {
	Create(ctx Context, d Document) (string, error)
	Get(ctx Context, id string) (Document, error)
	ListByReport(ctx Context, reportID string) ([]Document, error)
	SetExtracted(ctx Context, id, text string) error
	SetFailed(ctx Context, id string, reason string) error
}

// EvidenceRepository persists evidence rows.
type EvidenceRepository interface {
	// ReplaceUnit transactionally deletes all AI-generated rows for exactly
	// the given unit and inserts rows in their place. Manual rows and sibling
	// units are untouched.
	ReplaceUnit(ctx Context, reportID string, unit EvidenceUnit, rows []Evidence) error
	// Signatures returns the resume set: unit signatures that already have
	// AI-generated evidence persisted for the report.
	Signatures(ctx Context, reportID string) (map[string]struct{}, error)
	ListByReport(ctx Context, reportID string) ([]Evidence, error)
	CountByReport(ctx Context, reportID string) (int, error)
	Create(ctx Context, e Evidence) (string, error)
}

// AnalysisRepository persists competency analyses, replaced report-scoped.
type AnalysisRepository interface {
	ReplaceForReport(ctx Context, reportID string, rows []CompetencyAnalysis) error
	ListByReport(ctx Context, reportID string) ([]CompetencyAnalysis, error)
}

// SummaryRepository persists the executive summary, one row per report.
type SummaryRepository interface {
	Replace(ctx Context, s ExecutiveSummary) error
	GetByReport(ctx Context, reportID string) (ExecutiveSummary, error)
}

// Queue (port)

// Queue enqueues durable background work.
type Queue interface {
	EnqueueGenerate(ctx Context, payload GenerateTaskPayload) (string, error)
	EnqueueIngest(ctx Context, payload IngestTaskPayload) (string, error)
}

// EventPublisher fans a named event out to every live client session of a
// user, regardless of which process publishes. Delivery is best-effort
// at-most-once; with no subscriber the event is dropped.
type EventPublisher interface {
	Publish(ctx Context, userID, event string, payload any) error
}

// CompletionRequest is one call to the completion service.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// CompletionClient is the black-box LLM completion service. Both methods
// honor ctx cancellation mid-request; CompleteStream additionally invokes
// onChunk for every text fragment as it is produced and returns the full
// concatenated text.
type CompletionClient interface {
	Complete(ctx Context, req CompletionRequest) (string, error)
	CompleteStream(ctx Context, req CompletionRequest, onChunk func(chunk string)) (string, error)
}

// TextExtractor extracts plain text from an uploaded file at path.
type TextExtractor interface {
	ExtractPath(ctx Context, fileName, path string) (string, error)
}
