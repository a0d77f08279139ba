package invalidator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Wikid82/revalidator/internal/logger"
)

// DefaultSecretHeader is sent with the target secret when none is configured.
const DefaultSecretHeader = "X-Revalidate-Secret"

// Invalidator expires cached artifacts on the frontend.
type Invalidator interface {
	InvalidatePath(ctx context.Context, path string) error
	InvalidateTag(ctx context.Context, tag string) error
}

// Kind is the type of cache key being invalidated.
type Kind string

const (
	KindPath Kind = "path"
	KindTag  Kind = "tag"
)

type request struct {
	Type  Kind   `json:"type"`
	Value string `json:"value"`
}

// HTTPInvalidator posts one request per key to the frontend's revalidation
// endpoint.
type HTTPInvalidator struct {
	url          string
	secret       string
	secretHeader string
	client       *http.Client
}

// NewHTTPInvalidator returns an invalidator for targetURL. Each request is
// bounded by the caller's context, with timeout as an upper limit.
func NewHTTPInvalidator(targetURL, secret, secretHeader string, timeout time.Duration) *HTTPInvalidator {
	if secretHeader == "" {
		secretHeader = DefaultSecretHeader
	}
	return &HTTPInvalidator{
		url:          targetURL,
		secret:       secret,
		secretHeader: secretHeader,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (h *HTTPInvalidator) InvalidatePath(ctx context.Context, path string) error {
	return h.post(ctx, request{Type: KindPath, Value: path})
}

func (h *HTTPInvalidator) InvalidateTag(ctx context.Context, tag string) error {
	return h.post(ctx, request{Type: KindTag, Value: tag})
}

func (h *HTTPInvalidator) post(ctx context.Context, body request) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.secret != "" {
		req.Header.Set(h.secretHeader, h.secret)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if text := strings.TrimSpace(string(msg)); text != "" {
			return fmt.Errorf("target returned status %d: %s", resp.StatusCode, text)
		}
		return fmt.Errorf("target returned status %d", resp.StatusCode)
	}
	return nil
}

// LogInvalidator only logs what it would invalidate. It is used when no
// target URL is configured and by the plan command.
type LogInvalidator struct{}

func (LogInvalidator) InvalidatePath(ctx context.Context, path string) error {
	logger.Component("invalidator").WithField("path", path).Info("dry run: invalidate path")
	return ctx.Err()
}

func (LogInvalidator) InvalidateTag(ctx context.Context, tag string) error {
	logger.Component("invalidator").WithField("tag", tag).Info("dry run: invalidate tag")
	return ctx.Err()
}
