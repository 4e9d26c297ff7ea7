// Package events provides the Redis pub/sub event channel.
//
// Workers publish progress and streaming events keyed by user id; the HTTP
// process subscribes and bridges them onto live SSE connections. Delivery is
// best-effort at-most-once: with no subscriber the event is dropped and the
// UI re-syncs with a full refetch on reconnect.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/talentforge/assessor/internal/domain"
	"github.com/talentforge/assessor/internal/observability"
)

// Envelope is the wire shape of one published event.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	TS      time.Time       `json:"ts"`
}

// Bus implements domain.EventPublisher over Redis pub/sub.
type Bus struct {
	rdb *redis.Client
}

// NewBus constructs a Bus from a Redis URL.
func NewBus(redisURL string) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("op=events.NewBus: %w", err)
	}
	return &Bus{rdb: redis.NewClient(opts)}, nil
}

// NewBusWithClient wraps an existing client; used by tests with miniredis.
func NewBusWithClient(rdb *redis.Client) *Bus { return &Bus{rdb: rdb} }

func channelFor(userID string) string { return "assessor:events:" + userID }

// Publish fans the event out to every live session of the user.
func (b *Bus) Publish(ctx domain.Context, userID, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("op=events.Publish: marshal payload: %w", err)
	}
	env := Envelope{Event: event, Payload: raw, TS: time.Now().UTC()}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("op=events.Publish: marshal envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, channelFor(userID), body).Err(); err != nil {
		return fmt.Errorf("op=events.Publish: %w", err)
	}
	observability.EventsPublishedTotal.WithLabelValues(event).Inc()
	return nil
}

// Subscribe returns a channel of envelopes for the user's event stream. The
// subscription closes when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, userID string) (<-chan Envelope, error) {
	sub := b.rdb.Subscribe(ctx, channelFor(userID))
	// Wait for confirmation so callers do not miss events published right
	// after Subscribe returns.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("op=events.Subscribe: %w", err)
	}
	out := make(chan Envelope, 32)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					slog.Warn("dropping malformed event envelope",
						slog.String("channel", msg.Channel),
						slog.Any("error", err))
					continue
				}
				select {
				case out <- env:
				default:
					// Slow consumer: drop rather than block the pub/sub
					// reader. At-most-once delivery is the contract.
					slog.Warn("dropping event for slow subscriber",
						slog.String("user_id", userID),
						slog.String("event", env.Event))
				}
			}
		}
	}()
	return out, nil
}

// Ping verifies connectivity for readiness checks.
func (b *Bus) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

// Close releases the underlying client.
func (b *Bus) Close() error { return b.rdb.Close() }
