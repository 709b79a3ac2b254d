// Package monitor runs a monitoring pass: one reconciliation scan per
// configured shard host, a report, and a scan_completed notification.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/evq/adapter"
	"github.com/pithecene-io/evq/blobstore"
	"github.com/pithecene-io/evq/log"
	"github.com/pithecene-io/evq/metrics"
	"github.com/pithecene-io/evq/reconcile"
	"github.com/pithecene-io/evq/registry"
	"github.com/pithecene-io/evq/report"
	"github.com/pithecene-io/evq/types"
)

// DefaultNotifyTimeout bounds the notification publish.
const DefaultNotifyTimeout = 30 * time.Second

// Deps are the collaborators of a Monitor. Adapter, Logger and Collector
// may be nil.
type Deps struct {
	Registry  registry.Registry
	Pool      *blobstore.Pool
	Adapter   adapter.Adapter
	Logger    *log.Logger
	Collector *metrics.Collector
}

// Options tunes a run.
type Options struct {
	// DryRun reports orphans without deleting them.
	DryRun bool
	// Parallel is the number of hosts scanned at once. Values below 2
	// scan sequentially.
	Parallel int
	// NotifyTimeout bounds the notification publish (default 30s).
	NotifyTimeout time.Duration
}

// Monitor orchestrates monitoring runs.
type Monitor struct {
	pool      *blobstore.Pool
	scanner   *reconcile.Scanner
	notifier  adapter.Adapter
	logger    *log.Logger
	collector *metrics.Collector
	opts      Options

	now      func() time.Time
	newRunID func() string
}

// New creates a Monitor.
func New(deps Deps, opts Options) *Monitor {
	logger := deps.Logger
	if logger == nil {
		logger = log.Nop()
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	return &Monitor{
		pool: deps.Pool,
		scanner: reconcile.NewScanner(deps.Registry, reconcile.Options{
			DryRun:    opts.DryRun,
			Logger:    logger.Named("reconcile"),
			Collector: deps.Collector,
		}),
		notifier:  deps.Adapter,
		logger:    logger,
		collector: deps.Collector,
		opts:      opts,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
}

// Hosts returns one target per host label, in configuration order.
// Shards sharing a host are scanned once.
func Hosts(targets []blobstore.Target) []blobstore.Target {
	seen := make(map[string]struct{}, len(targets))
	var hosts []blobstore.Target
	for _, t := range targets {
		if _, ok := seen[t.Label()]; ok {
			continue
		}
		seen[t.Label()] = struct{}{}
		hosts = append(hosts, t)
	}
	return hosts
}

// Run scans every configured host and returns the report, hosts in
// configured order. A failed host is recorded in its HostReport and does
// not stop the others. Run returns an error only when ctx ends.
func (m *Monitor) Run(ctx context.Context) (*report.Report, error) {
	started := m.now()
	hosts := Hosts(m.pool.Targets())
	results := make([]report.HostReport, len(hosts))

	m.logger.Info("monitoring run started", map[string]any{
		"hosts":    len(hosts),
		"parallel": m.opts.Parallel,
		"dry_run":  m.opts.DryRun,
	})

	if m.opts.Parallel > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(m.opts.Parallel)
		for i, t := range hosts {
			g.Go(func() error {
				results[i] = m.scanHost(gctx, t)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, t := range hosts {
			results[i] = m.scanHost(ctx, t)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("monitoring run interrupted: %w", err)
	}

	rep := &report.Report{Hosts: results}
	if m.collector != nil {
		snap := m.collector.Snapshot()
		rep.Metrics = &snap
	}

	finished := m.now()
	m.logger.Info("monitoring run finished", map[string]any{
		"hosts_failed": len(rep.FailedHosts()),
		"duration_ms":  finished.Sub(started).Milliseconds(),
	})

	m.notify(ctx, BuildEvent(rep, m.newRunID(), m.opts.DryRun, started, finished))
	return rep, nil
}

// scanHost connects to t's host and runs one scan. Failures become the
// host's error.
func (m *Monitor) scanHost(ctx context.Context, t blobstore.Target) report.HostReport {
	host := t.Label()
	logger := m.logger.WithHost(host)

	store, err := m.pool.Connect(ctx, t)
	if err == nil {
		var res *reconcile.Result
		res, err = m.scanner.Scan(ctx, host, store)
		if err == nil {
			logger.Info("host scanned", map[string]any{
				"agents":    len(res.Entries),
				"reclaimed": len(res.Reclaimed),
				"issues":    len(res.Issues),
			})
			return report.NewHostReport(host, res, nil)
		}
	}

	m.collector.IncHostFailed()
	logger.Error("host scan failed", map[string]any{"error": err.Error()})
	return report.NewHostReport(host, nil, err)
}

func (m *Monitor) notify(ctx context.Context, event *adapter.ScanCompletedEvent) {
	if m.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.NotifyTimeout)
	defer cancel()

	if err := m.notifier.Publish(notifyCtx, event); err != nil {
		m.logger.Warn("scan notification failed", map[string]any{
			"run_id": event.RunID,
			"error":  err.Error(),
		})
		return
	}
	m.logger.Debug("scan notification published", map[string]any{"run_id": event.RunID})
}

// BuildEvent summarizes a report as a scan_completed event.
func BuildEvent(rep *report.Report, runID string, dryRun bool, started, finished time.Time) *adapter.ScanCompletedEvent {
	event := &adapter.ScanCompletedEvent{
		NotificationVersion: types.NotificationVersion,
		EventType:           adapter.EventTypeScanCompleted,
		RunID:               runID,
		Outcome:             adapter.OutcomeSuccess,
		DryRun:              dryRun,
		Timestamp:           finished.UTC().Format(time.RFC3339),
		DurationMs:          finished.Sub(started).Milliseconds(),
		Hosts:               make([]adapter.HostSummary, 0, len(rep.Hosts)),
	}
	for _, h := range rep.Hosts {
		s := adapter.HostSummary{
			Host:    h.Host,
			Agents:  len(h.Entries),
			Orphans: len(h.Reclaimed),
			Issues:  len(h.Issues),
		}
		for _, e := range h.Entries {
			s.Blobs += e.Count
			s.Bytes += e.Size
		}
		for _, r := range h.Reclaimed {
			s.ReclaimedBlobs += r.Blobs
			s.ReclaimedBytes += r.Bytes
		}
		if h.Error != nil {
			s.Error = h.Error.Error()
			event.HostsFailed++
		}
		event.Hosts = append(event.Hosts, s)
	}
	if event.HostsFailed > 0 {
		event.Outcome = adapter.OutcomePartialFailure
	}
	return event
}
