package redpanda

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentforge/assessor/internal/config"
	"github.com/talentforge/assessor/internal/domain"
)

type fakeQueue struct {
	mu        sync.Mutex
	generated []domain.GenerateTaskPayload
	notify    chan struct{}
	err       error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{notify: make(chan struct{}, 8)}
}

func (q *fakeQueue) EnqueueGenerate(_ domain.Context, p domain.GenerateTaskPayload) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		q.notify <- struct{}{}
		return "", q.err
	}
	q.generated = append(q.generated, p)
	q.notify <- struct{}{}
	return p.JobID, nil
}

func (q *fakeQueue) EnqueueIngest(_ domain.Context, p domain.IngestTaskPayload) (string, error) {
	return p.DocumentID, nil
}

func (q *fakeQueue) enqueued() []domain.GenerateTaskPayload {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.GenerateTaskPayload(nil), q.generated...)
}

type fakeReports struct {
	mu      sync.Mutex
	report  domain.Report
	getErr  error
	updates []struct {
		Status domain.ReportStatus
		ErrMsg string
	}
	notify chan struct{}
}

func newFakeReports(r domain.Report) *fakeReports {
	return &fakeReports{report: r, notify: make(chan struct{}, 8)}
}

func (f *fakeReports) Create(domain.Context, domain.Report) (string, error) { return "", nil }

func (f *fakeReports) Get(domain.Context, string) (domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.report, f.getErr
}

func (f *fakeReports) UpdateStatus(_ domain.Context, _ string, status domain.ReportStatus, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := ""
	if errMsg != nil {
		msg = *errMsg
	}
	f.updates = append(f.updates, struct {
		Status domain.ReportStatus
		ErrMsg string
	}{status, msg})
	select {
	case f.notify <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeReports) SetActiveJob(domain.Context, string, string) error { return nil }

func (f *fakeReports) statusUpdates() []struct {
	Status domain.ReportStatus
	ErrMsg string
} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]struct {
		Status domain.ReportStatus
		ErrMsg string
	}(nil), f.updates...)
}

type fakeEvents struct {
	mu       sync.Mutex
	names    []string
	payloads []map[string]any
	userID   string
}

func (f *fakeEvents) Publish(_ domain.Context, userID, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userID = userID
	f.names = append(f.names, event)
	data, _ := payload.(map[string]any)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeEvents) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

func (f *fakeEvents) payload(i int) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[i]
}

func retryFixture(t *testing.T, report domain.Report) (*RetryScheduler, *fakeQueue, *fakeReports, *fakeEvents) {
	t.Helper()
	q := newFakeQueue()
	r := newFakeReports(report)
	e := &fakeEvents{}
	s := NewRetryScheduler(q, r, e, config.Config{
		AppEnv:             "test",
		GenerateMaxAttempts: 6,
		RetryInitialDelay:  time.Millisecond,
		RetryMaxDelay:      10 * time.Millisecond,
		RetryMultiplier:    2,
	})
	s.sleep = func(time.Duration) {}
	return s, q, r, e
}

func processingReport(jobID string) domain.Report {
	return domain.Report{
		ID:          "rep-1",
		CreatedBy:   "user-1",
		Status:      domain.ReportProcessing,
		ActiveJobID: jobID,
	}
}

func genPayload(attempt int) domain.GenerateTaskPayload {
	return domain.GenerateTaskPayload{
		ReportID: "rep-1",
		UserID:   "user-1",
		JobID:    "job-1",
		Phase:    domain.PhaseEvidence,
		Attempt:  attempt,
	}
}

func TestRetrySchedulerRedeliversRetryableError(t *testing.T) {
	t.Parallel()

	s, q, r, e := retryFixture(t, processingReport("job-1"))

	s.HandleFailure(context.Background(), genPayload(1),
		fmt.Errorf("call failed: %w", domain.ErrUpstreamTimeout))

	select {
	case <-q.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a redelivery")
	}

	got := q.enqueued()
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Attempt, "attempt counter is bumped on redelivery")
	assert.Equal(t, "job-1", got[0].JobID, "job identity survives redelivery")
	assert.Empty(t, r.statusUpdates(), "report untouched while retrying")
	assert.Equal(t, []string{domain.EventGenerationRetrying}, e.published(),
		"user is told the job will be retried")
}

func TestRetrySchedulerPublishesRetryNotice(t *testing.T) {
	t.Parallel()

	s, q, _, e := retryFixture(t, processingReport("job-1"))

	s.HandleFailure(context.Background(), genPayload(1),
		fmt.Errorf("call failed: %w", domain.ErrUpstreamRateLimit))

	select {
	case <-q.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a redelivery")
	}

	require.Equal(t, []string{domain.EventGenerationRetrying}, e.published())
	assert.Equal(t, "user-1", e.userID)
	got := e.payload(0)
	assert.Equal(t, "rep-1", got["reportId"])
	assert.Equal(t, int(domain.PhaseEvidence), got["phase"])
	assert.Equal(t, 2, got["attempt"], "notice carries the upcoming attempt number")
	assert.Contains(t, got, "delayMs")
}

func TestRetrySchedulerCancellationIsDropped(t *testing.T) {
	t.Parallel()

	for _, sentinel := range []error{domain.ErrCancelled, domain.ErrSuperseded} {
		s, q, r, e := retryFixture(t, processingReport("job-1"))

		s.HandleFailure(context.Background(), genPayload(0),
			fmt.Errorf("stopped: %w", sentinel))

		select {
		case <-q.notify:
			t.Fatalf("%v must not be redelivered", sentinel)
		case <-time.After(50 * time.Millisecond):
		}
		assert.Empty(t, q.enqueued())
		assert.Empty(t, r.statusUpdates(), "cancel path owns the report status")
		assert.Empty(t, e.published())
	}
}

func TestRetrySchedulerDataIntegrityFailsImmediately(t *testing.T) {
	t.Parallel()

	s, q, r, e := retryFixture(t, processingReport("job-1"))

	s.HandleFailure(context.Background(), genPayload(0),
		fmt.Errorf("dictionary missing level: %w", domain.ErrDataIntegrity))

	updates := r.statusUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, domain.ReportFailed, updates[0].Status)
	assert.Contains(t, updates[0].ErrMsg, "dictionary missing level")
	assert.Equal(t, []string{domain.EventGenerationFailed}, e.published())
	assert.Empty(t, q.enqueued(), "integrity failures are not retried")
}

func TestRetrySchedulerExhaustedAttemptsFail(t *testing.T) {
	t.Parallel()

	s, q, r, e := retryFixture(t, processingReport("job-1"))

	s.HandleFailure(context.Background(), genPayload(5),
		fmt.Errorf("still flaking: %w", domain.ErrUpstreamRateLimit))

	updates := r.statusUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, domain.ReportFailed, updates[0].Status)
	assert.Equal(t, []string{domain.EventGenerationFailed}, e.published())
	assert.Empty(t, q.enqueued())
}

func TestRetrySchedulerSkipsSupersededRedelivery(t *testing.T) {
	t.Parallel()

	// A newer trigger replaced the active job between failure and redelivery.
	s, q, _, _ := retryFixture(t, processingReport("job-2"))

	s.HandleFailure(context.Background(), genPayload(0),
		fmt.Errorf("blip: %w", domain.ErrUpstreamTimeout))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, q.enqueued(), "stale job must not be redelivered")
}

func TestRetrySchedulerSkipsRedeliveryWhenNotProcessing(t *testing.T) {
	t.Parallel()

	report := processingReport("job-1")
	report.Status = domain.ReportFailed
	s, q, _, _ := retryFixture(t, report)

	s.HandleFailure(context.Background(), genPayload(0),
		fmt.Errorf("blip: %w", domain.ErrUpstreamTimeout))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, q.enqueued())
}
