package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/talentforge/assessor/internal/domain"
)

// stuckReportLister is the slice of the report repository the sweeper needs.
type stuckReportLister interface {
	ListStuckProcessing(ctx context.Context, maxAge time.Duration) ([]string, error)
	UpdateStatus(ctx context.Context, id string, status domain.ReportStatus, errMsg *string) error
}

// StuckReportSweeper fails reports wedged in processing past a maximum age.
// A crashed worker leaves its report processing forever; without the sweeper
// the UI shows an eternal spinner and no retrigger is possible (retrigger
// itself is allowed, but the user has no signal that the old run died).
type StuckReportSweeper struct {
	reports  stuckReportLister
	maxAge   time.Duration
	interval time.Duration
}

// NewStuckReportSweeper constructs a sweeper; zero durations get safe defaults.
func NewStuckReportSweeper(reports stuckReportLister, maxAge, interval time.Duration) *StuckReportSweeper {
	if reports == nil {
		return nil
	}
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckReportSweeper{reports: reports, maxAge: maxAge, interval: interval}
}

// Run sweeps until ctx is cancelled.
func (s *StuckReportSweeper) Run(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck report sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StuckReportSweeper) sweepOnce(ctx context.Context) {
	ctx, span := otel.Tracer("reports.sweeper").Start(ctx, "StuckReportSweeper.sweepOnce")
	defer span.End()
	span.SetAttributes(attribute.Float64("reports.max_age_seconds", s.maxAge.Seconds()))

	ids, err := s.reports.ListStuckProcessing(ctx, s.maxAge)
	if err != nil {
		span.RecordError(err)
		slog.Error("stuck report sweep failed to list", slog.Any("error", err))
		return
	}

	failed := 0
	msg := "generation exceeded maximum processing age; failed by sweeper"
	for _, id := range ids {
		if err := s.reports.UpdateStatus(ctx, id, domain.ReportFailed, &msg); err != nil {
			span.RecordError(err)
			slog.Error("stuck report sweep failed to update",
				slog.String("report_id", id), slog.Any("error", err))
			continue
		}
		failed++
		slog.Warn("stuck report failed by sweeper", slog.String("report_id", id))
	}
	span.SetAttributes(
		attribute.Int("reports.checked", len(ids)),
		attribute.Int("reports.failed", failed),
	)
}
