// Package webhook delivers scan_completed events to an HTTP endpoint.
//
// Each event is POSTed as JSON. When a secret is configured the body is
// signed with HMAC-SHA256 so receivers can reject forged reports.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pithecene-io/evq/adapter"
	"github.com/pithecene-io/evq/iox"
	"github.com/pithecene-io/evq/types"
)

// Request headers set on every delivery.
const (
	EventHeader     = "X-Evq-Event"
	RunIDHeader     = "X-Evq-Run-Id"
	SignatureHeader = "X-Evq-Signature"
)

// DefaultTimeout bounds one HTTP round trip.
const DefaultTimeout = 10 * time.Second

// DefaultRetries is the retry count used when none is configured.
const DefaultRetries = 3

// maxErrorBody caps how much of a failed response is quoted in errors.
const maxErrorBody = 256

// Config configures the webhook adapter.
type Config struct {
	// URL receives the POST (required).
	URL string
	// Headers are added to each request. They cannot replace the evq headers.
	Headers map[string]string
	// Secret, when set, signs each body into SignatureHeader.
	Secret string
	// Timeout bounds one request (default 10s).
	Timeout time.Duration
	// Retries after the first attempt.
	Retries int
}

// Adapter posts events to one endpoint.
type Adapter struct {
	url     string
	headers map[string]string
	secret  []byte
	retries int
	client  *http.Client
}

// New validates cfg and returns an adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if err := adapter.CheckRetries(cfg.Retries); err != nil {
		return nil, fmt.Errorf("webhook adapter: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{
		url:     cfg.URL,
		headers: cfg.Headers,
		secret:  []byte(cfg.Secret),
		retries: cfg.Retries,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Publish posts event. Network errors and 5xx responses are retried with
// backoff. A 4xx response fails at once.
func (a *Adapter) Publish(ctx context.Context, event *adapter.ScanCompletedEvent) error {
	body, err := adapter.Encode(event)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return adapter.Retry(ctx, "webhook", a.retries, func(ctx context.Context) error {
		return a.post(ctx, event.RunID, body)
	}, rejected)
}

// Sign returns the SignatureHeader value for body: "sha256=" and the hex
// HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	// Body is the start of the response body, if any.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// rejected reports a 4xx response. The receiver refused the payload, so
// sending it again cannot succeed.
func rejected(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

func (a *Adapter) post(ctx context.Context, runID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "evq/"+types.Version)
	req.Header.Set(EventHeader, adapter.EventTypeScanCompleted)
	req.Header.Set(RunIDHeader, runID)
	if len(a.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(a.secret, body))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drained so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
