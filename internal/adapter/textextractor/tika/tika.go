// Package tika extracts plain text from uploaded assessment documents
// through an Apache Tika server. It handles PDF, Word and plain-text
// transcripts and returns whitespace-normalized text ready for prompting.
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/talentforge/assessor/internal/domain"
	"github.com/talentforge/assessor/pkg/textx"
)

// Client is a minimal Apache Tika HTTP client implementing domain.TextExtractor.
// It performs PUT /tika with Accept: text/plain to retrieve extracted text.
// See: https://tika.apache.org/server/ for API details.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Tika client with a default timeout.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9998"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// ExtractPath uploads the file at path to the Tika server and returns plain
// text with control characters stripped and whitespace collapsed. Only files
// under the system temp dir or the working directory are accepted; uploads
// are staged under the temp dir, anything else is a forged path.
func (c *Client) ExtractPath(ctx context.Context, fileName, path string) (string, error) {
	ctx, span := otel.Tracer("text.tika").Start(ctx, "tika.extract")
	defer span.End()
	span.SetAttributes(attribute.String("file.name", fileName))

	openPath, err := constrainPath(path)
	if err != nil {
		return "", fmt.Errorf("op=tika.extract: %w", err)
	}
	data, err := os.ReadFile(openPath)
	if err != nil {
		return "", fmt.Errorf("op=tika.extract: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("op=tika.extract: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	if ct := contentTypeFromExt(filepath.Ext(fileName)); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("op=tika.extract: %w", domain.ErrCancelled)
		}
		return "", fmt.Errorf("op=tika.extract: %w: %w", domain.ErrUpstreamTimeout, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return "", fmt.Errorf("op=tika.extract: %w: tika cannot parse %s", domain.ErrInvalidArgument, fileName)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("op=tika.extract: %w: tika status %d", domain.ErrInternal, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("op=tika.extract: read body: %w", err)
	}

	return textx.CollapseWhitespace(textx.SanitizeText(string(body))), nil
}

// Ping checks server liveness via GET /version.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/version", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("op=tika.ping: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("op=tika.ping: status %d", resp.StatusCode)
	}
	return nil
}

func constrainPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	for _, base := range []string{filepath.Clean(os.TempDir()), workingDir()} {
		if base == "" {
			continue
		}
		if abs == base || strings.HasPrefix(abs, base+string(os.PathSeparator)) {
			rel, err := filepath.Rel(base, abs)
			if err != nil {
				return "", err
			}
			return filepath.Join(base, rel), nil
		}
	}
	return "", fmt.Errorf("disallowed path: %s", abs)
}

func workingDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Clean(wd)
}

func contentTypeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	default:
		return mime.TypeByExtension(ext)
	}
}
