// Package domain defines the core entities and ports of the assessment
// report pipeline. Adapters (HTTP, Postgres, Redpanda, Redis, AI providers)
// depend on this package, never the other way around.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	// ErrDataIntegrity marks unrecoverable configuration problems (missing
	// dictionary, missing report, no ingested documents). Jobs failing with
	// this error are never retried; retrying cannot fix them.
	ErrDataIntegrity = errors.New("data integrity")
	// ErrCancelled is the distinguished cancellation signal raised by the
	// cancel monitor when a report's status leaves processing. It is control
	// flow, not a failure: it must never mark a report failed and must never
	// enter the retry path.
	ErrCancelled = errors.New("generation cancelled")
	// ErrSuperseded means a newer job took over the report (active_job_id
	// mismatch). The running job is a zombie and must stop without touching
	// the fresher job's results.
	ErrSuperseded = errors.New("job superseded")
	ErrInternal   = errors.New("internal error")
)

// IsCancellation reports whether err is one of the cooperative-cancellation
// signals (user cancel or zombie supersession).
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, ErrSuperseded)
}

// IsRetryable reports whether a job attempt that failed with err should be
// redelivered. Cancellation and data-integrity errors are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !IsCancellation(err) && !errors.Is(err, ErrDataIntegrity)
}

// ReportStatus is the lifecycle state of a report.
type ReportStatus string

// Report lifecycle states.
const (
	ReportCreated    ReportStatus = "created"
	ReportProcessing ReportStatus = "processing"
	ReportCompleted  ReportStatus = "completed"
	ReportFailed     ReportStatus = "failed"
)

// Report is one assessment write-up.
// Invariants: Status is processing iff a generation job for it is being
// worked (best effort, reconciled in orchestrator terminal paths);
// ActiveJobID identifies the single authoritative job so stale retries can
// detect supersession.
type Report struct {
	ID              string
	Title           string
	ProjectID       string
	CreatedBy       string
	DictionaryID    string
	Status          ReportStatus
	TargetLevels    map[string]int
	SpecificContext string
	ActiveJobID     string
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DocumentStatus tracks transcript ingestion.
type DocumentStatus string

// Document ingestion states.
const (
	DocumentPending   DocumentStatus = "pending"
	DocumentExtracted DocumentStatus = "extracted"
	DocumentFailed    DocumentStatus = "failed"
)

// Document is an uploaded candidate transcript, tagged with the simulation
// method (e.g. "Case Study", "Role Play") it came from.
type Document struct {
	ID        string
	ReportID  string
	Filename  string
	SourceTag string
	MIME      string
	Size      int64
	Text      string
	Status    DocumentStatus
	CreatedAt time.Time
}

// Evidence is one literal quote matched to a key behavior, produced by
// phase 1 or by manual user highlighting.
type Evidence struct {
	ID          string
	ReportID    string
	Competency  string
	Level       int
	KeyBehavior string
	Quote       string
	SourceTag   string
	Reasoning   string
	AIGenerated bool
	Archived    bool
	CreatedAt   time.Time
}

// EvidenceUnit identifies the (competency, level, source) granule phase 1
// processes atomically. Rows for a unit are deleted and reinserted in one
// transaction; sibling units are never touched. That invariant is what makes
// resume-after-crash safe.
type EvidenceUnit struct {
	Competency string
	Level      int
	SourceTag  string
}

// Signature returns the stable resume-set key for the unit.
func (u EvidenceUnit) Signature() string {
	return fmt.Sprintf("%s|%d|%s", u.Competency, u.Level, u.SourceTag)
}

// KeyBehaviorStatus is one judged key behavior inside a competency analysis.
type KeyBehaviorStatus struct {
	Level       int      `json:"level"`
	KeyBehavior string   `json:"key_behavior"`
	Fulfilled   bool     `json:"fulfilled"`
	Explanation string   `json:"explanation"`
	Quotes      []string `json:"quotes,omitempty"`
}

// Recommendations holds the three mandated development categories. The
// narrative prompt pins this schema so the UI can render fixed sections.
type Recommendations struct {
	PersonalDevelopment []string `json:"personal_development"`
	Assignment          []string `json:"assignment"`
	Training            []string `json:"training"`
}

// CompetencyAnalysis is the phase-2 verdict for one competency. Rows are
// replaced report-scoped: every successful phase-2 run deletes all analyses
// for the report and inserts the full new set.
type CompetencyAnalysis struct {
	ID              string
	ReportID        string
	Competency      string
	LevelAchieved   int
	Explanation     string
	Recommendations Recommendations
	KeyBehaviors    []KeyBehaviorStatus
	Anomaly         bool
	CreatedAt       time.Time
}

// ExecutiveSummary is the phase-3 output, one row per report.
type ExecutiveSummary struct {
	ReportID        string
	Overview        string
	Strengths       string
	Weaknesses      string
	Recommendations string
	CreatedAt       time.Time
}

// Phase identifies a pipeline stage.
type Phase int

// Pipeline phases.
const (
	PhaseEvidence Phase = 1
	PhaseAnalysis Phase = 2
	PhaseSummary  Phase = 3
)

// JobType returns the queue job-type name for the phase.
func (p Phase) JobType() string { return fmt.Sprintf("generate-phase-%d", int(p)) }

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool { return p >= PhaseEvidence && p <= PhaseSummary }

// GenerateTaskPayload is the producer -> queue -> worker contract for the
// three generation job types. Attempt starts at 0 and is incremented by the
// retry scheduler on redelivery.
type GenerateTaskPayload struct {
	ReportID  string `json:"report_id"`
	UserID    string `json:"user_id"`
	JobID     string `json:"job_id"`
	RequestID string `json:"request_id,omitempty"`
	Phase     Phase  `json:"phase"`
	Attempt   int    `json:"attempt"`
}

// IngestTaskPayload is the file-ingestion job contract.
type IngestTaskPayload struct {
	DocumentID string `json:"document_id"`
	ReportID   string `json:"report_id"`
	UserID     string `json:"user_id"`
	Path       string `json:"path"`
	Filename   string `json:"filename"`
}

// Context is an alias to decouple the domain package from std context in
// signatures; adapters pass context.Context through unchanged.
type Context = context.Context
