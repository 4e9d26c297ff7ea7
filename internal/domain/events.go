package domain

// Event names published on the per-user event channel. Clients subscribe
// over SSE and switch on these; renaming one is a breaking client change.
const (
	// EventAIStream carries one streamed text fragment of an in-flight
	// completion call so the UI can render generation as it happens.
	EventAIStream = "ai-stream"
	// EventEvidenceSaved announces that one evidence unit was persisted.
	EventEvidenceSaved = "evidence-batch-saved"
	// EventAnalysisProgress announces per-competency progress during phase 2.
	EventAnalysisProgress = "analysis-progress"
	// EventGenerationComplete announces that a phase finished for a report.
	EventGenerationComplete = "generation-complete"
	// EventGenerationRetrying announces that a failed job will be retried
	// after a backoff delay; carries the attempt number and the delay.
	EventGenerationRetrying = "generation-retrying"
	// EventGenerationFailed announces terminal failure after retries ran out.
	EventGenerationFailed = "generation-failed"
	// EventGenerationCancelled confirms a user-requested cancellation.
	EventGenerationCancelled = "generation-cancelled"
	// EventDocumentIngested announces that an uploaded file finished text
	// extraction, or failed it (see the payload's status field).
	EventDocumentIngested = "document-ingested"
)
