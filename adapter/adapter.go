// Package adapter defines the notification boundary of a monitoring run.
//
// After every run the monitor publishes one scan_completed event through
// the configured adapter. Delivery is best effort: a failed publish is
// logged and never changes the run's exit status.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventTypeScanCompleted is the only event type published.
const EventTypeScanCompleted = "scan_completed"

// Run outcomes.
const (
	OutcomeSuccess        = "success"
	OutcomePartialFailure = "partial_failure"
)

// HostSummary is the per-host part of a scan_completed event.
type HostSummary struct {
	Host           string `json:"host"`
	Agents         int    `json:"agents"`
	Blobs          int64  `json:"blobs"`
	Bytes          int64  `json:"bytes"`
	Orphans        int    `json:"orphans"`
	ReclaimedBlobs int64  `json:"reclaimed_blobs"`
	ReclaimedBytes int64  `json:"reclaimed_bytes"`
	Issues         int    `json:"issues"`
	Error          string `json:"error,omitempty"`
}

// ScanCompletedEvent is the payload published when a monitoring run finishes.
type ScanCompletedEvent struct {
	NotificationVersion string        `json:"notification_version"`
	EventType           string        `json:"event_type"` // always "scan_completed"
	RunID               string        `json:"run_id"`
	Outcome             string        `json:"outcome"` // success, partial_failure
	DryRun              bool          `json:"dry_run"`
	Timestamp           string        `json:"timestamp"` // RFC 3339, UTC
	DurationMs          int64         `json:"duration_ms"`
	HostsFailed         int           `json:"hosts_failed"`
	Hosts               []HostSummary `json:"hosts"`
}

// Adapter publishes scan completion events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *ScanCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Encode marshals event as the JSON wire payload shared by every adapter.
func Encode(event *ScanCompletedEvent) ([]byte, error) {
	if event == nil {
		return nil, errors.New("nil event")
	}
	if event.EventType == "" {
		return nil, errors.New("event has no event_type")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return body, nil
}

// CheckRetries rejects a negative retry count.
func CheckRetries(n int) error {
	if n < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", n)
	}
	return nil
}

// BaseBackoff is the delay before the first retry. It doubles per retry.
const BaseBackoff = 500 * time.Millisecond

// Backoff returns the delay before retry number n (1-based).
func Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return time.Duration(1<<uint(n-1)) * BaseBackoff
}

// Retry calls attempt up to 1+retries times with exponential backoff
// between calls. It stops early when attempt succeeds, when ctx is done,
// or when permanent reports the error as not worth retrying.
// name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, attempt func(context.Context) error, permanent func(error) bool) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(Backoff(i)):
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
