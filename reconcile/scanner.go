// Package reconcile aggregates the evidence stored on a shard host per
// agent, cross-references the agent registry and reclaims orphaned evidence.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pithecene-io/evq/blobstore"
	"github.com/pithecene-io/evq/log"
	"github.com/pithecene-io/evq/metrics"
	"github.com/pithecene-io/evq/registry"
	"github.com/pithecene-io/evq/types"
)

// SyncTimeLayout renders last-sync times: UTC, whole seconds, no offset.
const SyncTimeLayout = "2006-01-02 15:04:05"

// AgentEntry is the per-agent aggregate of one host pass.
type AgentEntry struct {
	Filename     string           `json:"filename" yaml:"filename"`
	Ident        string           `json:"ident" yaml:"ident"`
	Instance     string           `json:"instance" yaml:"instance"`
	Count        int64            `json:"count" yaml:"count"`
	Size         int64            `json:"size" yaml:"size"`
	Platform     string           `json:"platform" yaml:"platform"`
	LastSyncTime string           `json:"last_sync_time" yaml:"last_sync_time"`
	Status       types.SyncStatus `json:"sync_status" yaml:"sync_status"`
}

// Reclaimed records one orphaned filename and what was (or would be) deleted.
type Reclaimed struct {
	Filename string `json:"filename" yaml:"filename"`
	Blobs    int64  `json:"blobs" yaml:"blobs"`
	Bytes    int64  `json:"bytes" yaml:"bytes"`
	// DryRun is set when nothing was actually deleted.
	DryRun bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

// Issue is a filename skipped during the pass. Skipped filenames are
// neither reported nor deleted.
type Issue struct {
	Filename string `json:"filename" yaml:"filename"`
	Reason   string `json:"reason" yaml:"reason"`
}

// Result is the outcome of scanning one host.
type Result struct {
	Host      string       `json:"host" yaml:"host"`
	Entries   []AgentEntry `json:"entries" yaml:"entries"`
	Reclaimed []Reclaimed  `json:"reclaimed,omitempty" yaml:"reclaimed,omitempty"`
	Issues    []Issue      `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// ReclaimedTotals sums the reclaimed blobs and bytes.
func (r *Result) ReclaimedTotals() (blobs, bytes int64) {
	for _, rc := range r.Reclaimed {
		blobs += rc.Blobs
		bytes += rc.Bytes
	}
	return blobs, bytes
}

// Options configures a Scanner.
type Options struct {
	// DryRun reports orphans without deleting them.
	DryRun    bool
	Logger    *log.Logger
	Collector *metrics.Collector
}

// Scanner runs reconciliation passes. It holds no per-host state, so one
// scanner may serve several hosts, concurrently if the registry allows it.
type Scanner struct {
	registry  registry.Registry
	dryRun    bool
	logger    *log.Logger
	collector *metrics.Collector
}

// NewScanner creates a scanner reading agents from reg.
func NewScanner(reg registry.Registry, opts Options) *Scanner {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Scanner{
		registry:  reg,
		dryRun:    opts.DryRun,
		logger:    logger,
		collector: opts.Collector,
	}
}

// Scan runs one pass over the evidence collection of host.
//
// Each distinct filename is aggregated, then its agent is looked up:
// missing agents have all their evidence deleted and get no entry; found
// agents get an entry carrying platform and last-sync time. Entries are
// sorted by last-sync time, never-synced first.
//
// List, read and delete failures abort the pass and are returned.
// Malformed filenames and registry failures skip the filename and are
// recorded as issues.
func (s *Scanner) Scan(ctx context.Context, host string, store blobstore.Store) (*Result, error) {
	logger := s.logger.WithHost(host)
	result := &Result{Host: host, Entries: []AgentEntry{}}

	names, err := store.DistinctFilenames(ctx)
	if err != nil {
		return nil, fmt.Errorf("host %s: list filenames: %w", host, err)
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("host %s: %w", host, err)
		}

		blobs, err := store.ByFilename(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("host %s: list blobs of %s: %w", host, name, err)
		}
		entry := AgentEntry{Filename: name}
		for _, b := range blobs {
			entry.Count++
			entry.Size += b.Length
		}
		s.collector.AddFilename(entry.Count, entry.Size)

		key, err := types.ParseFilename(name)
		if err != nil {
			s.collector.IncMalformedFilename()
			logger.Warn("skipping malformed filename", map[string]any{
				"filename": name,
				"error":    err.Error(),
			})
			result.Issues = append(result.Issues, Issue{Filename: name, Reason: err.Error()})
			continue
		}
		entry.Ident, entry.Instance = key.Ident, key.Instance

		agent, err := s.registry.Lookup(ctx, key)
		if errors.Is(err, registry.ErrAgentNotFound) {
			if err := s.reclaim(ctx, logger, store, entry); err != nil {
				return nil, fmt.Errorf("host %s: %w", host, err)
			}
			result.Reclaimed = append(result.Reclaimed, Reclaimed{
				Filename: name,
				Blobs:    entry.Count,
				Bytes:    entry.Size,
				DryRun:   s.dryRun,
			})
			continue
		}
		if err != nil {
			s.collector.IncRegistryError()
			logger.Warn("skipping filename after registry error", map[string]any{
				"filename": name,
				"error":    err.Error(),
			})
			result.Issues = append(result.Issues, Issue{Filename: name, Reason: err.Error()})
			continue
		}

		entry.Platform = agent.Platform
		entry.LastSyncTime = FormatSyncTime(agent.LastSync)
		entry.Status = agent.Status
		result.Entries = append(result.Entries, entry)
	}

	SortEntries(result.Entries)
	s.collector.IncHostScanned()
	return result, nil
}

func (s *Scanner) reclaim(ctx context.Context, logger *log.Logger, store blobstore.Store, entry AgentEntry) error {
	fields := map[string]any{
		"filename": entry.Filename,
		"blobs":    entry.Count,
		"bytes":    entry.Size,
	}
	if s.dryRun {
		logger.Info("would reclaim orphaned evidence", fields)
		s.collector.AddOrphanReclaimed(entry.Count, entry.Size)
		return nil
	}
	if err := store.DeleteByFilename(ctx, entry.Filename); err != nil {
		return fmt.Errorf("reclaim %s: %w", entry.Filename, err)
	}
	logger.Info("reclaimed orphaned evidence", fields)
	s.collector.AddOrphanReclaimed(entry.Count, entry.Size)
	return nil
}

// FormatSyncTime renders t with SyncTimeLayout in UTC, or "" when t is nil.
func FormatSyncTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Truncate(time.Second).Format(SyncTimeLayout)
}

// SortEntries orders entries by last-sync time, empty first, then by filename.
func SortEntries(entries []AgentEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].LastSyncTime != entries[j].LastSyncTime {
			return entries[i].LastSyncTime < entries[j].LastSyncTime
		}
		return entries[i].Filename < entries[j].Filename
	})
}
