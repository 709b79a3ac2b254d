// Package metrics collects per-process counters for evidence writes and
// reconciliation scans.
//
// The Collector is a leaf package with no internal dependencies. It is
// shared by the blob store instrumentation, the evidence writer and the
// scanner, and is read once at the end of a monitoring run.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Safe to read concurrently after creation.
type Snapshot struct {
	// Scan
	HostsScanned         int64 `json:"hosts_scanned" yaml:"hosts_scanned"`
	HostsFailed          int64 `json:"hosts_failed" yaml:"hosts_failed"`
	FilenamesScanned     int64 `json:"filenames_scanned" yaml:"filenames_scanned"`
	BlobsCounted         int64 `json:"blobs_counted" yaml:"blobs_counted"`
	BytesCounted         int64 `json:"bytes_counted" yaml:"bytes_counted"`
	OrphansReclaimed     int64 `json:"orphans_reclaimed" yaml:"orphans_reclaimed"`
	OrphanBlobsDeleted   int64 `json:"orphan_blobs_deleted" yaml:"orphan_blobs_deleted"`
	OrphanBytesReclaimed int64 `json:"orphan_bytes_reclaimed" yaml:"orphan_bytes_reclaimed"`
	MalformedFilenames   int64 `json:"malformed_filenames" yaml:"malformed_filenames"`
	RegistryErrors       int64 `json:"registry_errors" yaml:"registry_errors"`

	// Ingestion
	EvidenceStored int64 `json:"evidence_stored" yaml:"evidence_stored"`
	InvalidShard   int64 `json:"invalid_shard" yaml:"invalid_shard"`

	// Blob store (per call)
	StoreWriteSuccess  int64 `json:"store_write_success" yaml:"store_write_success"`
	StoreWriteFailure  int64 `json:"store_write_failure" yaml:"store_write_failure"`
	StoreReadFailure   int64 `json:"store_read_failure" yaml:"store_read_failure"`
	StoreDeleteSuccess int64 `json:"store_delete_success" yaml:"store_delete_success"`
	StoreDeleteFailure int64 `json:"store_delete_failure" yaml:"store_delete_failure"`

	// Dimensions (informational, set at construction)
	StorageBackend string `json:"storage_backend" yaml:"storage_backend"`
	DryRun         bool   `json:"dry_run" yaml:"dry_run"`
}

// Collector accumulates counters. Thread-safe via sync.Mutex.
// All methods are nil-receiver safe so callers may pass a nil collector.
type Collector struct {
	mu sync.Mutex

	hostsScanned         int64
	hostsFailed          int64
	filenamesScanned     int64
	blobsCounted         int64
	bytesCounted         int64
	orphansReclaimed     int64
	orphanBlobsDeleted   int64
	orphanBytesReclaimed int64
	malformedFilenames   int64
	registryErrors       int64

	evidenceStored int64
	invalidShard   int64

	storeWriteSuccess  int64
	storeWriteFailure  int64
	storeReadFailure   int64
	storeDeleteSuccess int64
	storeDeleteFailure int64

	storageBackend string
	dryRun         bool
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(storageBackend string, dryRun bool) *Collector {
	return &Collector{
		storageBackend: storageBackend,
		dryRun:         dryRun,
	}
}

func (c *Collector) add(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- Scan ---

// IncHostScanned records a completed host pass.
func (c *Collector) IncHostScanned() {
	if c == nil {
		return
	}
	c.add(&c.hostsScanned, 1)
}

// IncHostFailed records a host pass aborted by an error.
func (c *Collector) IncHostFailed() {
	if c == nil {
		return
	}
	c.add(&c.hostsFailed, 1)
}

// AddFilename records one aggregated filename with its blob count and bytes.
func (c *Collector) AddFilename(blobs, bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.filenamesScanned++
	c.blobsCounted += blobs
	c.bytesCounted += bytes
	c.mu.Unlock()
}

// AddOrphanReclaimed records the reclamation of one orphaned filename.
func (c *Collector) AddOrphanReclaimed(blobs, bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.orphansReclaimed++
	c.orphanBlobsDeleted += blobs
	c.orphanBytesReclaimed += bytes
	c.mu.Unlock()
}

// IncMalformedFilename records a filename that could not be parsed.
func (c *Collector) IncMalformedFilename() {
	if c == nil {
		return
	}
	c.add(&c.malformedFilenames, 1)
}

// IncRegistryError records a registry lookup failure other than not-found.
func (c *Collector) IncRegistryError() {
	if c == nil {
		return
	}
	c.add(&c.registryErrors, 1)
}

// --- Ingestion ---

// IncEvidenceStored records a successful EvidenceWriter store.
func (c *Collector) IncEvidenceStored() {
	if c == nil {
		return
	}
	c.add(&c.evidenceStored, 1)
}

// IncInvalidShard records a write rejected for lack of a shard.
func (c *Collector) IncInvalidShard() {
	if c == nil {
		return
	}
	c.add(&c.invalidShard, 1)
}

// --- Blob store ---
// Counters are per call: one DeleteByFilename removing N blobs counts once.

// IncStoreWriteSuccess records a successful blob put.
func (c *Collector) IncStoreWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.storeWriteSuccess, 1)
}

// IncStoreWriteFailure records a failed blob put.
func (c *Collector) IncStoreWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.storeWriteFailure, 1)
}

// IncStoreReadFailure records a failed list or read.
func (c *Collector) IncStoreReadFailure() {
	if c == nil {
		return
	}
	c.add(&c.storeReadFailure, 1)
}

// IncStoreDeleteSuccess records a successful delete-by-filename.
func (c *Collector) IncStoreDeleteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.storeDeleteSuccess, 1)
}

// IncStoreDeleteFailure records a failed delete-by-filename.
func (c *Collector) IncStoreDeleteFailure() {
	if c == nil {
		return
	}
	c.add(&c.storeDeleteFailure, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		HostsScanned:         c.hostsScanned,
		HostsFailed:          c.hostsFailed,
		FilenamesScanned:     c.filenamesScanned,
		BlobsCounted:         c.blobsCounted,
		BytesCounted:         c.bytesCounted,
		OrphansReclaimed:     c.orphansReclaimed,
		OrphanBlobsDeleted:   c.orphanBlobsDeleted,
		OrphanBytesReclaimed: c.orphanBytesReclaimed,
		MalformedFilenames:   c.malformedFilenames,
		RegistryErrors:       c.registryErrors,

		EvidenceStored: c.evidenceStored,
		InvalidShard:   c.invalidShard,

		StoreWriteSuccess:  c.storeWriteSuccess,
		StoreWriteFailure:  c.storeWriteFailure,
		StoreReadFailure:   c.storeReadFailure,
		StoreDeleteSuccess: c.storeDeleteSuccess,
		StoreDeleteFailure: c.storeDeleteFailure,

		StorageBackend: c.storageBackend,
		DryRun:         c.dryRun,
	}
}
