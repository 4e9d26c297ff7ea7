package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/talentforge/assessor/internal/domain"
	"github.com/talentforge/assessor/internal/observability"
)

// Handlers are the worker entry points the consumer dispatches records to.
type Handlers struct {
	Generate func(ctx domain.Context, payload domain.GenerateTaskPayload) error
	Ingest   func(ctx domain.Context, payload domain.IngestTaskPayload) error
}

// Consumer is a group consumer over all pipeline topics. Records inside one
// poll are handled sequentially; per-report ordering comes from keying
// records by report ID, so one consumer never interleaves two jobs of the
// same report.
type Consumer struct {
	client   *kgo.Client
	handlers Handlers
	retrier  *RetryScheduler
	groupID  string
}

// NewConsumer constructs a Consumer and ensures the topics exist.
func NewConsumer(brokers []string, groupID string, handlers Handlers, retrier *RetryScheduler) (*Consumer, error) {
	slog.Info("creating queue consumer",
		slog.Any("brokers", brokers),
		slog.String("group_id", groupID))

	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("missing required group ID")
	}
	if handlers.Generate == nil || handlers.Ingest == nil {
		return nil, fmt.Errorf("both handlers must be set")
	}

	bootstrap, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("bootstrap client: %w", err)
	}
	if err := ensureAllTopics(context.Background(), bootstrap, 8); err != nil {
		slog.Warn("topic bootstrap incomplete", slog.Any("error", err))
	}
	bootstrap.Close()

	kotelService := kotel.NewKotel(kotel.WithTracer(
		kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider())),
	))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(AllTopics()...),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.WithHooks(kotelService.Hooks()...),

		kgo.DialTimeout(10*time.Second),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.RebalanceTimeout(10*time.Second),
		kgo.FetchMaxWait(5*time.Second),

		// Offsets are marked only after a record was fully handled, so a
		// crash redelivers it; handlers are resume-safe.
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("consumer client: %w", err)
	}

	return &Consumer{
		client:   client,
		handlers: handlers,
		retrier:  retrier,
		groupID:  groupID,
	}, nil
}

// Start polls until ctx is done. It returns ctx.Err() on shutdown.
func (c *Consumer) Start(ctx context.Context) error {
	slog.Info("queue consumer started",
		slog.String("group_id", c.groupID),
		slog.Any("topics", AllTopics()))

	for {
		if err := ctx.Err(); err != nil {
			slog.Info("queue consumer shutting down")
			return err
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return errors.New("queue client closed")
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			fatal := false
			for _, fe := range errs {
				if errors.Is(fe.Err, context.Canceled) {
					fatal = true
					continue
				}
				slog.Error("fetch error",
					slog.String("topic", fe.Topic),
					slog.Int("partition", int(fe.Partition)),
					slog.Any("error", fe.Err))
			}
			if fatal {
				return ctx.Err()
			}
			time.Sleep(2 * time.Second)
			continue
		}

		fetches.EachRecord(func(rec *kgo.Record) {
			c.processRecord(ctx, rec)
			c.client.MarkCommitRecords(rec)
		})
	}
}

// processRecord dispatches one record by topic. Undecodable records are
// poison and get dropped after logging; everything else is consumed exactly
// once from the log's perspective, with retries going through redelivery.
func (c *Consumer) processRecord(ctx context.Context, rec *kgo.Record) {
	switch rec.Topic {
	case TopicPhase1, TopicPhase2, TopicPhase3:
		var payload domain.GenerateTaskPayload
		if err := json.Unmarshal(rec.Value, &payload); err != nil {
			slog.Error("dropping undecodable generation record",
				slog.String("topic", rec.Topic), slog.Any("error", err))
			return
		}
		c.runGenerate(ctx, payload)

	case TopicIngest:
		var payload domain.IngestTaskPayload
		if err := json.Unmarshal(rec.Value, &payload); err != nil {
			slog.Error("dropping undecodable ingest record",
				slog.String("topic", rec.Topic), slog.Any("error", err))
			return
		}
		c.runIngest(ctx, payload)

	default:
		slog.Warn("record on unexpected topic", slog.String("topic", rec.Topic))
	}
}

func (c *Consumer) runGenerate(ctx context.Context, payload domain.GenerateTaskPayload) {
	jobType := payload.Phase.JobType()
	log := slog.Default().With(
		slog.String("report_id", payload.ReportID),
		slog.String("job_id", payload.JobID),
		slog.String("job_type", jobType),
		slog.Int("attempt", payload.Attempt))
	ctx = observability.ContextWithLogger(ctx, log)
	if payload.RequestID != "" {
		ctx = observability.ContextWithRequestID(ctx, payload.RequestID)
	}

	observability.StartJob(jobType)
	start := time.Now()
	log.Info("generation job started")

	if err := c.handlers.Generate(ctx, payload); err != nil {
		c.retrier.HandleFailure(ctx, payload, err)
		return
	}

	observability.CompleteJob(jobType)
	log.Info("generation job completed", slog.Duration("took", time.Since(start)))
}

func (c *Consumer) runIngest(ctx context.Context, payload domain.IngestTaskPayload) {
	log := slog.Default().With(
		slog.String("document_id", payload.DocumentID),
		slog.String("report_id", payload.ReportID))
	ctx = observability.ContextWithLogger(ctx, log)

	observability.StartJob("ingest")
	log.Info("ingest job started")

	// Ingest failures are terminal: the handler marks the document failed
	// and tells the user, so there is nothing to redeliver.
	if err := c.handlers.Ingest(ctx, payload); err != nil {
		observability.FailJob("ingest")
		log.Error("ingest job failed", slog.Any("error", err))
		return
	}

	observability.CompleteJob("ingest")
	log.Info("ingest job completed")
}

// Close closes the consumer client.
func (c *Consumer) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
