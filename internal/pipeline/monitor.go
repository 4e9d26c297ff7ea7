// Package pipeline implements the three-phase report generation
// orchestrator: evidence extraction, competency-level judgment, and the
// executive summary. It consumes the domain ports only; transport and
// storage adapters are wired in by the worker entry point.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/talentforge/assessor/internal/domain"
	"github.com/talentforge/assessor/internal/observability"
)

// Monitor is the cooperative cancellation check. The report row is the
// single source of truth for "should this job still be running": a status
// away from processing means the user or the system stopped it, and an
// active_job_id mismatch means a newer job superseded this one.
type Monitor struct {
	reports domain.ReportRepository
}

// NewMonitor builds a Monitor over the report store.
func NewMonitor(reports domain.ReportRepository) *Monitor {
	return &Monitor{reports: reports}
}

// Check reads the report row and returns ErrCancelled, ErrSuperseded, or nil.
// A missing report row counts as cancelled.
func (m *Monitor) Check(ctx domain.Context, reportID, jobID string) error {
	report, err := m.reports.Get(ctx, reportID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("op=monitor.check: report gone: %w", domain.ErrCancelled)
		}
		return fmt.Errorf("op=monitor.check: %w", err)
	}
	if report.ActiveJobID != jobID {
		return fmt.Errorf("op=monitor.check: active job is %s: %w", report.ActiveJobID, domain.ErrSuperseded)
	}
	if report.Status != domain.ReportProcessing {
		return fmt.Errorf("op=monitor.check: status is %s: %w", report.Status, domain.ErrCancelled)
	}
	return nil
}

// Watch derives a context that is cancelled as soon as a poll observes a
// cancellation signal, bounding worst-case latency of an in-flight
// completion call to roughly one interval. The caller must invoke stop to
// release the poller; Cause carries the cancellation sentinel.
func (m *Monitor) Watch(ctx domain.Context, reportID, jobID string, interval time.Duration) (domain.Context, context.CancelFunc) {
	watched, cancel := context.WithCancelCause(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-watched.Done():
				return
			case <-ticker.C:
				if err := m.Check(watched, reportID, jobID); err != nil {
					if domain.IsCancellation(err) {
						observability.LoggerFromContext(ctx).Info("cancellation observed mid-stream",
							slog.String("report_id", reportID),
							slog.String("job_id", jobID),
							slog.Any("signal", err))
						cancel(err)
						return
					}
					// Transient store errors do not abort the stream; the
					// next tick retries the check.
					observability.LoggerFromContext(ctx).Warn("cancel poll failed",
						slog.String("report_id", reportID), slog.Any("error", err))
				}
			}
		}
	}()

	return watched, func() { cancel(nil) }
}

// CancelCause extracts the cancellation sentinel from a watched context, or
// returns fallback when the context was cancelled without a recorded cause.
func CancelCause(ctx domain.Context, fallback error) error {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return fallback
}
