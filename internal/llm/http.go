package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"
)

// Error bodies are truncated to this many bytes
const maxErrorBody = 1024

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_\-]+`),
	regexp.MustCompile(`sk-[A-Za-z0-9_\-]{20,}`),
	regexp.MustCompile(`"x-api-key"\s*:\s*"[^"]*"`),
}

// sanitizeErrorBody redacts API keys echoed back in provider error bodies
func sanitizeErrorBody(body string) string {
	for _, p := range sensitivePatterns {
		body = p.ReplaceAllString(body, "[REDACTED]")
	}
	return body
}

// StatusError is a non-2xx reply from a provider
type StatusError struct {
	Provider Provider
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Code, e.Body)
}

// Temporary reports whether the same request may succeed later
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// transport is the JSON-over-HTTP plumbing the provider clients share
type transport struct {
	provider Provider
	client   *http.Client
	headers  map[string]string
}

func newTransport(provider Provider, timeout time.Duration, headers map[string]string) transport {
	return transport{
		provider: provider,
		client:   &http.Client{Timeout: timeout},
		headers:  headers,
	}
}

func (t transport) postJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", t.provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req, out)
}

func (t transport) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return t.do(req, out)
}

func (t transport) do(req *http.Request, out any) error {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", t.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Provider: t.provider, Code: resp.StatusCode, Body: sanitizeErrorBody(string(b))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to decode %s response: %w", t.provider, err)
	}
	return nil
}

// modelFor returns the model a client serves tier with
func modelFor(models map[Tier]string, tier Tier) (string, error) {
	if m := models[tier]; m != "" {
		return m, nil
	}
	return "", fmt.Errorf("%w: tier %d", ErrNoModel, tier)
}
