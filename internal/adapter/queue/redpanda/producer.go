package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/talentforge/assessor/internal/domain"
	"github.com/talentforge/assessor/internal/observability"
)

// Producer implements domain.Queue on a transactional Kafka producer. A
// buffered single-slot channel serializes transactions; concurrent callers
// queue on it rather than interleaving begin/commit.
type Producer struct {
	client          *kgo.Client
	transactionChan chan struct{}
}

// NewProducer constructs a transactional producer and ensures the pipeline
// topics exist.
func NewProducer(brokers []string) (*Producer, error) {
	return NewProducerWithTransactionalID(brokers, "assessor-producer")
}

// NewProducerWithTransactionalID allows tests to isolate transactional IDs.
func NewProducerWithTransactionalID(brokers []string, transactionalID string) (*Producer, error) {
	slog.Info("creating queue producer",
		slog.Any("brokers", brokers),
		slog.String("transactional_id", transactionalID))

	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
	)
	if err != nil {
		return nil, fmt.Errorf("queue client: %w", err)
	}

	if err := ensureAllTopics(context.Background(), client, 8); err != nil {
		// Topic creation races with other processes; existing topics are fine.
		slog.Warn("topic bootstrap incomplete", slog.Any("error", err))
	}

	return &Producer{
		client:          client,
		transactionChan: make(chan struct{}, 1),
	}, nil
}

// EnqueueGenerate publishes a generation job to the topic of its phase.
// The record key is the report ID so jobs for one report are ordered.
func (p *Producer) EnqueueGenerate(ctx domain.Context, payload domain.GenerateTaskPayload) (string, error) {
	if !payload.Phase.Valid() {
		return "", fmt.Errorf("op=queue.enqueue_generate: %w: phase %d", domain.ErrInvalidArgument, payload.Phase)
	}
	topic := TopicForPhase(payload.Phase)

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(payload.ReportID),
		Headers: []kgo.RecordHeader{
			{Key: "job_id", Value: []byte(payload.JobID)},
			{Key: "report_id", Value: []byte(payload.ReportID)},
			{Key: "request_id", Value: []byte(payload.RequestID)},
		},
	}
	if err := p.produce(ctx, record, payload); err != nil {
		return "", err
	}

	observability.EnqueueJob(payload.Phase.JobType())
	slog.Info("generation job enqueued",
		slog.String("topic", topic),
		slog.String("report_id", payload.ReportID),
		slog.String("job_id", payload.JobID),
		slog.Int("attempt", payload.Attempt))
	return payload.JobID, nil
}

// EnqueueIngest publishes a document-ingestion job.
func (p *Producer) EnqueueIngest(ctx domain.Context, payload domain.IngestTaskPayload) (string, error) {
	record := &kgo.Record{
		Topic: TopicIngest,
		Key:   []byte(payload.ReportID),
		Headers: []kgo.RecordHeader{
			{Key: "document_id", Value: []byte(payload.DocumentID)},
			{Key: "report_id", Value: []byte(payload.ReportID)},
		},
	}
	if err := p.produce(ctx, record, payload); err != nil {
		return "", err
	}

	observability.EnqueueJob("ingest")
	slog.Info("ingest job enqueued",
		slog.String("document_id", payload.DocumentID),
		slog.String("report_id", payload.ReportID))
	return payload.DocumentID, nil
}

// produce marshals the payload and publishes it inside one transaction.
func (p *Producer) produce(ctx domain.Context, record *kgo.Record, payload any) error {
	select {
	case p.transactionChan <- struct{}{}:
		defer func() { <-p.transactionChan }()
	case <-ctx.Done():
		return fmt.Errorf("op=queue.produce: %w", ctx.Err())
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("op=queue.produce: marshal payload: %w", err)
	}
	record.Value = b

	if err := p.client.BeginTransaction(); err != nil {
		return fmt.Errorf("op=queue.produce: begin transaction: %w", err)
	}

	promise := kgo.AbortingFirstErrPromise(p.client)
	p.client.Produce(ctx, record, promise.Promise())
	if err := promise.Err(); err != nil {
		if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			slog.Error("transaction abort failed", slog.Any("error", abortErr))
		}
		return fmt.Errorf("op=queue.produce: %w", err)
	}

	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return fmt.Errorf("op=queue.produce: commit transaction: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
