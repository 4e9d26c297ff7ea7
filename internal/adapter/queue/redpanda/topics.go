// Package redpanda provides the Redpanda/Kafka queue adapter for the report
// pipeline. Generation jobs for the three phases and document ingestion each
// get their own topic; records are keyed by report ID so all work for one
// report stays on one partition and is consumed in order.
package redpanda

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/talentforge/assessor/internal/domain"
)

const (
	// TopicPhase1 carries evidence-extraction jobs.
	TopicPhase1 = "report.phase1.generate"
	// TopicPhase2 carries level-judgment jobs.
	TopicPhase2 = "report.phase2.generate"
	// TopicPhase3 carries executive-summary jobs.
	TopicPhase3 = "report.phase3.generate"
	// TopicIngest carries document text-extraction jobs.
	TopicIngest = "document.ingest"
)

// TopicForPhase maps a generation phase to its topic.
func TopicForPhase(p domain.Phase) string {
	switch p {
	case domain.PhaseEvidence:
		return TopicPhase1
	case domain.PhaseAnalysis:
		return TopicPhase2
	case domain.PhaseSummary:
		return TopicPhase3
	default:
		return ""
	}
}

// AllTopics lists every topic the worker consumes.
func AllTopics() []string {
	return []string{TopicPhase1, TopicPhase2, TopicPhase3, TopicIngest}
}

// ensureTopic creates a topic via the admin API if it does not exist.
// Error code 36 (TOPIC_ALREADY_EXISTS) is treated as success.
func ensureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	if topic == "" {
		return fmt.Errorf("topic name cannot be empty")
	}
	if partitions <= 0 || replicationFactor <= 0 {
		return fmt.Errorf("invalid topic sizing: partitions=%d replication=%d", partitions, replicationFactor)
	}

	req := kmsg.NewCreateTopicsRequest()
	req.TimeoutMillis = 30000

	topicReq := kmsg.NewCreateTopicsRequestTopic()
	topicReq.Topic = topic
	topicReq.NumPartitions = partitions
	topicReq.ReplicationFactor = replicationFactor
	req.Topics = append(req.Topics, topicReq)

	resp, err := client.Request(ctx, &req)
	if err != nil {
		return fmt.Errorf("create topics request: %w", err)
	}
	created, ok := resp.(*kmsg.CreateTopicsResponse)
	if !ok {
		return fmt.Errorf("unexpected response type: %T", resp)
	}

	for _, tr := range created.Topics {
		if tr.ErrorCode != 0 {
			if tr.ErrorCode == 36 {
				slog.Debug("topic already exists", slog.String("topic", tr.Topic))
				return nil
			}
			msg := ""
			if tr.ErrorMessage != nil {
				msg = *tr.ErrorMessage
			}
			return fmt.Errorf("create topic %s: %s (code %d)", tr.Topic, msg, tr.ErrorCode)
		}
		slog.Info("topic created",
			slog.String("topic", tr.Topic),
			slog.Int("partitions", int(partitions)))
	}
	return nil
}

// ensureAllTopics creates every pipeline topic up front so producer and
// consumer never race topic auto-creation.
func ensureAllTopics(ctx context.Context, client *kgo.Client, partitions int32) error {
	for _, topic := range AllTopics() {
		if err := ensureTopic(ctx, client, topic, partitions, 1); err != nil {
			return err
		}
	}
	return nil
}
