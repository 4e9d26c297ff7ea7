package openrouter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/talentforge/assessor/internal/domain"
	"github.com/talentforge/assessor/internal/observability"
)

// streamChunk is one SSE data frame of an OpenAI-compatible stream.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// CompleteStream performs a streaming chat completion, invoking onChunk for
// every text fragment, and returns the full concatenated text. Connection
// failures before the first fragment retry like Complete; once fragments
// have been forwarded the call fails permanently so the caller's own retry
// can restart the whole unit instead of duplicating output.
func (c *Client) CompleteStream(ctx domain.Context, req domain.CompletionRequest, onChunk func(chunk string)) (string, error) {
	ctx, span := otel.Tracer("ai.openrouter").Start(ctx, "openrouter.complete_stream")
	defer span.End()
	span.SetAttributes(attribute.String("ai.model", req.Model))

	start := time.Now()
	var (
		content string
		emitted bool
	)
	guarded := func(chunk string) {
		emitted = true
		observability.CompletionStreamChunks.Inc()
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	op := func() error {
		out, err := c.doOnce(ctx, req, true, guarded)
		if err != nil {
			if emitted {
				return backoff.Permanent(err)
			}
			return err
		}
		content = out
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(c.newBackoff(), ctx))
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.CompletionRequestsTotal.WithLabelValues(req.Model, "stream", outcome).Inc()
	observability.CompletionRequestDuration.WithLabelValues(req.Model, "stream").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	c.recordTokens(ctx, req, content)
	return content, nil
}

// readStream consumes the SSE body line by line until [DONE] or EOF.
func readStream(ctx domain.Context, body io.Reader, onChunk func(string)) (string, error) {
	log := observability.LoggerFromContext(ctx)

	var sb strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return "", backoff.Permanent(fmt.Errorf("op=openrouter.stream: %w", domain.ErrCancelled))
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			// Blank keep-alives and SSE comments.
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			data, ok = strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
		}
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.Debug("skipping malformed stream frame", slog.Any("error", err))
			continue
		}
		if chunk.Error != nil {
			return "", backoff.Permanent(fmt.Errorf("op=openrouter.stream: %w: %s", domain.ErrInternal, chunk.Error.Message))
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				sb.WriteString(choice.Delta.Content)
				onChunk(choice.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(fmt.Errorf("op=openrouter.stream: %w", domain.ErrCancelled))
		}
		return "", fmt.Errorf("op=openrouter.stream: %w: %v", domain.ErrUpstreamTimeout, err)
	}
	return sb.String(), nil
}
