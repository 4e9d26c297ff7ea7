package redpanda

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talentforge/assessor/internal/config"
	"github.com/talentforge/assessor/internal/domain"
	"github.com/talentforge/assessor/internal/observability"
)

// RetryScheduler decides what happens to a generation job after its handler
// returns an error: redeliver with the attempt counter bumped, or fail the
// report terminally. Cancellations are never redelivered.
type RetryScheduler struct {
	queue   domain.Queue
	reports domain.ReportRepository
	events  domain.EventPublisher
	cfg     config.Config

	// sleep is swappable in tests.
	sleep func(time.Duration)
}

// NewRetryScheduler builds a scheduler over the producer and report store.
func NewRetryScheduler(queue domain.Queue, reports domain.ReportRepository, events domain.EventPublisher, cfg config.Config) *RetryScheduler {
	return &RetryScheduler{
		queue:   queue,
		reports: reports,
		events:  events,
		cfg:     cfg,
		sleep:   time.Sleep,
	}
}

// HandleFailure routes a failed generation attempt. It never returns an
// error to the consumer loop; the record is consumed either way and the
// outcome lives in the report row and the retry topic.
func (s *RetryScheduler) HandleFailure(ctx domain.Context, payload domain.GenerateTaskPayload, procErr error) {
	log := observability.LoggerFromContext(ctx).With(
		slog.String("report_id", payload.ReportID),
		slog.String("job_id", payload.JobID),
		slog.Int("phase", int(payload.Phase)),
		slog.Int("attempt", payload.Attempt))

	switch {
	case domain.IsCancellation(procErr):
		// The cancel path already updated the report and told the user;
		// a superseded job must not touch the report at all.
		log.Info("generation job stopped", slog.Any("reason", procErr))
		observability.CancelJob(payload.Phase.JobType())
		return

	case !domain.IsRetryable(procErr):
		log.Error("generation job failed permanently", slog.Any("error", procErr))
		s.failTerminally(ctx, payload, procErr)
		return

	case payload.Attempt+1 >= s.cfg.GenerateMaxAttempts:
		log.Error("generation job exhausted retries", slog.Any("error", procErr))
		s.failTerminally(ctx, payload, procErr)
		return
	}

	delay := s.cfg.RetryDelay(payload.Attempt)
	log.Warn("generation job scheduled for retry",
		slog.Duration("delay", delay),
		slog.Any("error", procErr))
	observability.RetryJob(payload.Phase.JobType())

	next := payload
	next.Attempt++
	if err := s.events.Publish(ctx, payload.UserID, domain.EventGenerationRetrying, map[string]any{
		"reportId": payload.ReportID,
		"phase":    int(payload.Phase),
		"attempt":  next.Attempt,
		"delayMs":  delay.Milliseconds(),
	}); err != nil {
		log.Warn("failed to publish retry event", slog.Any("error", err))
	}
	go s.redeliver(next, delay)
}

// redeliver waits out the delay and re-enqueues, unless the report was
// cancelled or re-triggered in the meantime.
func (s *RetryScheduler) redeliver(payload domain.GenerateTaskPayload, delay time.Duration) {
	s.sleep(delay)

	ctx := context.Background()
	report, err := s.reports.Get(ctx, payload.ReportID)
	if err != nil {
		slog.Error("retry redelivery: report lookup failed",
			slog.String("report_id", payload.ReportID), slog.Any("error", err))
		return
	}
	if report.Status != domain.ReportProcessing {
		slog.Info("retry redelivery skipped, report no longer processing",
			slog.String("report_id", payload.ReportID),
			slog.String("status", string(report.Status)))
		return
	}
	if report.ActiveJobID != payload.JobID {
		slog.Info("retry redelivery skipped, job superseded",
			slog.String("report_id", payload.ReportID),
			slog.String("job_id", payload.JobID),
			slog.String("active_job_id", report.ActiveJobID))
		return
	}

	if _, err := s.queue.EnqueueGenerate(ctx, payload); err != nil {
		slog.Error("retry redelivery: enqueue failed",
			slog.String("report_id", payload.ReportID), slog.Any("error", err))
		errMsg := fmt.Sprintf("retry enqueue failed: %v", err)
		_ = s.reports.UpdateStatus(ctx, payload.ReportID, domain.ReportFailed, &errMsg)
	}
}

func (s *RetryScheduler) failTerminally(ctx domain.Context, payload domain.GenerateTaskPayload, procErr error) {
	observability.FailJob(payload.Phase.JobType())

	errMsg := procErr.Error()
	if err := s.reports.UpdateStatus(ctx, payload.ReportID, domain.ReportFailed, &errMsg); err != nil {
		slog.Error("failed to mark report failed",
			slog.String("report_id", payload.ReportID), slog.Any("error", err))
	}
	if err := s.events.Publish(ctx, payload.UserID, domain.EventGenerationFailed, map[string]any{
		"reportId": payload.ReportID,
		"phase":    int(payload.Phase),
		"status":   string(domain.ReportFailed),
		"message":  errMsg,
	}); err != nil {
		slog.Warn("failed to publish generation-failed event",
			slog.String("report_id", payload.ReportID), slog.Any("error", err))
	}
}
