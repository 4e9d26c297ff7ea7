// Package openrouter implements the completion service port against the
// OpenRouter chat-completions API (OpenAI-compatible wire format).
package openrouter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/talentforge/assessor/internal/adapter/ai/tokencount"
	"github.com/talentforge/assessor/internal/config"
	"github.com/talentforge/assessor/internal/domain"
	"github.com/talentforge/assessor/internal/observability"
)

// Client talks to OpenRouter. One instance is shared by all pipeline phases.
type Client struct {
	httpClient *http.Client
	cfg        config.Config
	counter    *tokencount.Counter
}

// New builds a Client from config. The HTTP client timeout is a hard upper
// bound per attempt; per-call deadlines come from ctx. Outbound requests are
// traced via otelhttp so AI latency shows up in spans.
func New(cfg config.Config) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   5 * time.Minute,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cfg:     cfg,
		counter: tokencount.NewCounter(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Complete performs a single blocking chat completion with retry on
// transient upstream failures. Cancellation of ctx aborts the retry loop
// and the in-flight request.
func (c *Client) Complete(ctx domain.Context, req domain.CompletionRequest) (string, error) {
	ctx, span := otel.Tracer("ai.openrouter").Start(ctx, "openrouter.complete")
	defer span.End()
	span.SetAttributes(attribute.String("ai.model", req.Model))

	start := time.Now()
	var content string
	op := func() error {
		out, err := c.doOnce(ctx, req, false, nil)
		if err != nil {
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
	observability.CompletionRequestsTotal.WithLabelValues(req.Model, "complete", outcome).Inc()
	observability.CompletionRequestDuration.WithLabelValues(req.Model, "complete").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	c.recordTokens(ctx, req, content)
	return content, nil
}

func (c *Client) newBackoff() backoff.BackOff {
	maxElapsed, initial, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.Multiplier = multiplier
	return b
}

// doOnce issues one HTTP attempt. A non-nil onChunk selects streaming mode.
func (c *Client) doOnce(ctx domain.Context, req domain.CompletionRequest, stream bool, onChunk func(string)) (string, error) {
	log := observability.LoggerFromContext(ctx)

	body := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("marshal chat request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.OpenRouterBaseURL, "/")+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("build chat request: %w", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.OpenRouterAPIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.OpenRouterReferer != "" {
		httpReq.Header.Set("HTTP-Referer", c.cfg.OpenRouterReferer)
	}
	if c.cfg.OpenRouterTitle != "" {
		httpReq.Header.Set("X-Title", c.cfg.OpenRouterTitle)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(fmt.Errorf("op=openrouter.request: %w", domain.ErrCancelled))
		}
		log.Warn("completion request failed, will retry", slog.String("model", req.Model), slog.Any("error", err))
		return "", fmt.Errorf("op=openrouter.request: %w: %v", domain.ErrUpstreamTimeout, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", c.classifyStatus(ctx, resp)
	}

	if stream {
		return readStream(ctx, resp.Body, onChunk)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("op=openrouter.decode: %w: %v", domain.ErrSchemaInvalid, err)
	}
	if out.Error != nil {
		return "", backoff.Permanent(fmt.Errorf("op=openrouter.api: %w: %s", domain.ErrInternal, out.Error.Message))
	}
	if len(out.Choices) == 0 {
		// Some providers return 200 with an empty choice list under load.
		return "", fmt.Errorf("op=openrouter.decode: %w: empty choices", domain.ErrUpstreamTimeout)
	}
	return out.Choices[0].Message.Content, nil
}

// classifyStatus maps HTTP failures onto the domain error taxonomy and
// decides retryability: 429 and 5xx retry, other 4xx are permanent.
func (c *Client) classifyStatus(ctx domain.Context, resp *http.Response) error {
	log := observability.LoggerFromContext(ctx)
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		log.Warn("completion rate limited", slog.Int("status", resp.StatusCode))
		return fmt.Errorf("op=openrouter.request: %w: %s", domain.ErrUpstreamRateLimit, string(snippet))
	case resp.StatusCode >= 500:
		log.Warn("completion upstream error, will retry",
			slog.Int("status", resp.StatusCode), slog.String("body", string(snippet)))
		return fmt.Errorf("op=openrouter.request: %w: status %d", domain.ErrUpstreamTimeout, resp.StatusCode)
	default:
		log.Error("completion rejected",
			slog.Int("status", resp.StatusCode), slog.String("body", string(snippet)))
		return backoff.Permanent(fmt.Errorf("op=openrouter.request: %w: status %d: %s",
			domain.ErrInvalidArgument, resp.StatusCode, string(snippet)))
	}
}

func (c *Client) recordTokens(ctx domain.Context, req domain.CompletionRequest, completion string) {
	usage, err := c.counter.Usage(req.SystemPrompt, req.UserPrompt, completion, req.Model)
	if err != nil {
		observability.LoggerFromContext(ctx).Debug("token accounting unavailable", slog.Any("error", err))
		return
	}
	observability.CompletionTokensTotal.WithLabelValues(req.Model, "prompt").Add(float64(usage.PromptTokens))
	observability.CompletionTokensTotal.WithLabelValues(req.Model, "completion").Add(float64(usage.CompletionTokens))
}

// Ping verifies the API is reachable and the key is accepted.
func (c *Client) Ping(ctx domain.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(c.cfg.OpenRouterBaseURL, "/")+"/models", nil)
	if err != nil {
		return fmt.Errorf("op=openrouter.ping: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.OpenRouterAPIKey)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("op=openrouter.ping: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("op=openrouter.ping: %w: status %d", domain.ErrInternal, resp.StatusCode)
	}
	return nil
}
