package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/talentforge/assessor/internal/config"
	"github.com/talentforge/assessor/internal/domain"
)

func record(t *testing.T, topic string, payload any) *kgo.Record {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return &kgo.Record{Topic: topic, Value: b}
}

func dispatchFixture(t *testing.T) (*Consumer, *fakeQueue, *[]domain.GenerateTaskPayload, *[]domain.IngestTaskPayload) {
	t.Helper()

	var generated []domain.GenerateTaskPayload
	var ingested []domain.IngestTaskPayload

	q := newFakeQueue()
	retrier := NewRetryScheduler(q, newFakeReports(processingReport("job-1")), &fakeEvents{}, config.Config{
		AppEnv:              "test",
		GenerateMaxAttempts: 6,
		RetryInitialDelay:   time.Millisecond,
		RetryMaxDelay:       10 * time.Millisecond,
		RetryMultiplier:     2,
	})
	retrier.sleep = func(time.Duration) {}

	c := &Consumer{
		handlers: Handlers{
			Generate: func(_ domain.Context, p domain.GenerateTaskPayload) error {
				generated = append(generated, p)
				return nil
			},
			Ingest: func(_ domain.Context, p domain.IngestTaskPayload) error {
				ingested = append(ingested, p)
				return nil
			},
		},
		retrier: retrier,
		groupID: "test-group",
	}
	return c, q, &generated, &ingested
}

func TestProcessRecordDispatchesByTopic(t *testing.T) {
	t.Parallel()

	c, _, generated, ingested := dispatchFixture(t)

	for phase, topic := range map[domain.Phase]string{
		domain.PhaseEvidence: TopicPhase1,
		domain.PhaseAnalysis: TopicPhase2,
		domain.PhaseSummary:  TopicPhase3,
	} {
		c.processRecord(context.Background(), record(t, topic, domain.GenerateTaskPayload{
			ReportID: "rep-1", UserID: "user-1", JobID: "job-1", Phase: phase,
		}))
	}
	c.processRecord(context.Background(), record(t, TopicIngest, domain.IngestTaskPayload{
		DocumentID: "doc-1", ReportID: "rep-1",
	}))

	require.Len(t, *generated, 3)
	phases := map[domain.Phase]bool{}
	for _, p := range *generated {
		phases[p.Phase] = true
	}
	assert.Len(t, phases, 3, "each topic carries its own phase")

	require.Len(t, *ingested, 1)
	assert.Equal(t, "doc-1", (*ingested)[0].DocumentID)
}

func TestProcessRecordDropsPoisonPayload(t *testing.T) {
	t.Parallel()

	c, _, generated, _ := dispatchFixture(t)

	c.processRecord(context.Background(), &kgo.Record{Topic: TopicPhase1, Value: []byte("{not json")})
	assert.Empty(t, *generated, "undecodable records never reach the handler")
}

func TestProcessRecordIgnoresUnknownTopic(t *testing.T) {
	t.Parallel()

	c, _, generated, ingested := dispatchFixture(t)

	c.processRecord(context.Background(), record(t, "some.other.topic", map[string]string{"x": "y"}))
	assert.Empty(t, *generated)
	assert.Empty(t, *ingested)
}

func TestRunGenerateRoutesFailureToRetrier(t *testing.T) {
	t.Parallel()

	c, q, _, _ := dispatchFixture(t)
	c.handlers.Generate = func(domain.Context, domain.GenerateTaskPayload) error {
		return fmt.Errorf("upstream blip: %w", domain.ErrUpstreamTimeout)
	}

	c.processRecord(context.Background(), record(t, TopicPhase1, genPayload(0)))

	select {
	case <-q.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the retrier to redeliver")
	}
	got := q.enqueued()
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Attempt)
}

func TestRunIngestFailureIsTerminal(t *testing.T) {
	t.Parallel()

	c, q, _, _ := dispatchFixture(t)
	c.handlers.Ingest = func(domain.Context, domain.IngestTaskPayload) error {
		return fmt.Errorf("extraction failed: %w", domain.ErrInternal)
	}

	c.processRecord(context.Background(), record(t, TopicIngest, domain.IngestTaskPayload{
		DocumentID: "doc-1", ReportID: "rep-1",
	}))

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, q.enqueued(), "ingest jobs are never redelivered")
}

func TestNewConsumerValidation(t *testing.T) {
	t.Parallel()

	handlers := Handlers{
		Generate: func(domain.Context, domain.GenerateTaskPayload) error { return nil },
		Ingest:   func(domain.Context, domain.IngestTaskPayload) error { return nil },
	}

	_, err := NewConsumer(nil, "g", handlers, nil)
	assert.Error(t, err)

	_, err = NewConsumer([]string{"localhost:9092"}, "", handlers, nil)
	assert.Error(t, err)

	_, err = NewConsumer([]string{"localhost:9092"}, "g", Handlers{}, nil)
	assert.Error(t, err)
}

func TestTopicForPhase(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TopicPhase1, TopicForPhase(domain.PhaseEvidence))
	assert.Equal(t, TopicPhase2, TopicForPhase(domain.PhaseAnalysis))
	assert.Equal(t, TopicPhase3, TopicForPhase(domain.PhaseSummary))
	assert.Equal(t, "", TopicForPhase(domain.Phase(9)))
}
