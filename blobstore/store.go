package blobstore

import (
	"context"
	"strings"
	"time"

	"github.com/pithecene-io/evq/types"
)

// DefaultCollection is the collection evidence blobs live in.
const DefaultCollection = "evidence"

// Handle is the store-assigned identifier of one blob.
type Handle string

// PutMeta describes a blob being written.
type PutMeta struct {
	// Filename is the composite "<ident>:<instance>" key.
	Filename string
	// Shard is recorded on the blob as metadata.shard.
	Shard types.ShardID
}

// BlobInfo describes one stored blob as returned by ByFilename.
type BlobInfo struct {
	Handle     Handle        `json:"handle"`
	Filename   string        `json:"filename"`
	Length     int64         `json:"length"`
	Shard      types.ShardID `json:"shard"`
	UploadedAt time.Time     `json:"uploaded_at"`
	SHA256     string        `json:"sha256"`
}

// Store is the blob store of one shard host, scoped to a single collection.
//
// Implementations must tolerate concurrent Puts under different filenames.
// No operation retries internally; failures surface as *StorageError.
type Store interface {
	// Put stores content under meta.Filename and returns the new handle.
	Put(ctx context.Context, content []byte, meta PutMeta) (Handle, error)

	// DistinctFilenames returns every filename with at least one blob, sorted.
	DistinctFilenames(ctx context.Context) ([]string, error)

	// ByFilename returns every blob stored under filename.
	ByFilename(ctx context.Context, filename string) ([]BlobInfo, error)

	// DeleteByFilename removes every blob stored under filename.
	DeleteByFilename(ctx context.Context, filename string) error
}

// checkFilename rejects names that cannot be used as a single path segment.
func checkFilename(filename string) error {
	if filename == "" {
		return &types.MalformedFilenameError{Filename: filename, Reason: "empty filename"}
	}
	if strings.ContainsAny(filename, "/\\") || filename == "." || filename == ".." {
		return &types.MalformedFilenameError{Filename: filename, Reason: "path separator in filename"}
	}
	return nil
}
