package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/evq/iox"
)

const (
	blobSuffix = ".blob"
	metaSuffix = ".meta"
)

// LodeStore is a Store backed by a lode.Store.
//
// Layout under the store root:
//
//	<collection>/<filename>/<handle>.blob   content
//	<collection>/<filename>/<handle>.meta   msgpack sidecar
//
// Listings are driven by sidecars: content without a sidecar is invisible.
type LodeStore struct {
	store      lode.Store
	collection string
	now        func() time.Time
	newHandle  func() string
}

// NewLodeStore creates a store from a lode factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeStore(factory lode.StoreFactory, collection string) (*LodeStore, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	st, err := factory()
	if err != nil {
		return nil, WrapInitError(err, collection)
	}
	return &LodeStore{
		store:      st,
		collection: collection,
		now:        time.Now,
		newHandle:  uuid.NewString,
	}, nil
}

// Put writes content, then its sidecar. If the sidecar write fails the
// content is removed on a best-effort basis and the write error returned.
func (s *LodeStore) Put(ctx context.Context, content []byte, meta PutMeta) (Handle, error) {
	if err := checkFilename(meta.Filename); err != nil {
		return "", err
	}

	handle := Handle(s.newHandle())
	sum := sha256.Sum256(content)
	info := BlobInfo{
		Handle:     handle,
		Filename:   meta.Filename,
		Length:     int64(len(content)),
		Shard:      meta.Shard,
		UploadedAt: s.now().UTC(),
		SHA256:     hex.EncodeToString(sum[:]),
	}

	sidecar, err := encodeMeta(info)
	if err != nil {
		return "", WrapWriteError(err, s.metaPath(meta.Filename, handle))
	}

	blobPath := s.blobPath(meta.Filename, handle)
	if err := s.store.Put(ctx, blobPath, bytes.NewReader(content)); err != nil {
		return "", WrapWriteError(err, blobPath)
	}

	metaPath := s.metaPath(meta.Filename, handle)
	if err := s.store.Put(ctx, metaPath, bytes.NewReader(sidecar)); err != nil {
		_ = s.store.Delete(ctx, blobPath)
		return "", WrapWriteError(err, metaPath)
	}

	return handle, nil
}

// DistinctFilenames lists the collection and returns the sorted set of
// filenames that have at least one sidecar.
func (s *LodeStore) DistinctFilenames(ctx context.Context) ([]string, error) {
	prefix := s.collection + "/"
	paths, err := s.list(ctx, prefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, p := range paths {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok || !strings.HasSuffix(rest, metaSuffix) {
			continue
		}
		name, _, ok := strings.Cut(rest, "/")
		if !ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ByFilename reads every sidecar under filename. Results are ordered by
// upload time, then handle.
func (s *LodeStore) ByFilename(ctx context.Context, filename string) ([]BlobInfo, error) {
	if err := checkFilename(filename); err != nil {
		return nil, err
	}

	paths, err := s.list(ctx, s.dir(filename))
	if err != nil {
		return nil, err
	}

	var blobs []BlobInfo
	for _, p := range paths {
		if !strings.HasSuffix(p, metaSuffix) {
			continue
		}
		rc, err := s.store.Get(ctx, p)
		if err != nil {
			return nil, WrapReadError(err, p)
		}
		data, err := iox.ReadAllClose(rc)
		if err != nil {
			return nil, WrapReadError(err, p)
		}
		info, err := decodeMeta(data)
		if err != nil {
			return nil, NewStorageError(ErrCorrupt, OpRead, p, err)
		}
		blobs = append(blobs, info)
	}

	sort.Slice(blobs, func(i, j int) bool {
		if !blobs[i].UploadedAt.Equal(blobs[j].UploadedAt) {
			return blobs[i].UploadedAt.Before(blobs[j].UploadedAt)
		}
		return blobs[i].Handle < blobs[j].Handle
	})
	return blobs, nil
}

// DeleteByFilename removes every object under filename. Sidecars go first
// so a partially failed delete never leaves a visible blob without content.
func (s *LodeStore) DeleteByFilename(ctx context.Context, filename string) error {
	if err := checkFilename(filename); err != nil {
		return err
	}

	paths, err := s.list(ctx, s.dir(filename))
	if err != nil {
		return err
	}

	sort.SliceStable(paths, func(i, j int) bool {
		return strings.HasSuffix(paths[i], metaSuffix) && !strings.HasSuffix(paths[j], metaSuffix)
	})

	for _, p := range paths {
		if err := s.store.Delete(ctx, p); err != nil {
			return WrapDeleteError(err, p)
		}
	}
	return nil
}

// Content returns the raw bytes of one blob.
func (s *LodeStore) Content(ctx context.Context, filename string, handle Handle) ([]byte, error) {
	if err := checkFilename(filename); err != nil {
		return nil, err
	}
	p := s.blobPath(filename, handle)
	rc, err := s.store.Get(ctx, p)
	if err != nil {
		return nil, WrapReadError(err, p)
	}
	data, err := iox.ReadAllClose(rc)
	if err != nil {
		return nil, WrapReadError(err, p)
	}
	return data, nil
}

// list wraps lode List. A missing prefix is an empty listing, not an error.
//
// Backends clean the prefix before matching, which drops the trailing
// slash, so "x:inst-1/" would also match "x:inst-10/...". Paths outside
// the slash-terminated prefix are filtered out here.
func (s *LodeStore) list(ctx context.Context, prefix string) ([]string, error) {
	paths, err := s.store.List(ctx, prefix)
	if err != nil {
		wrapped := WrapListError(err, prefix)
		if errors.Is(wrapped, ErrNotFound) {
			return nil, nil
		}
		return nil, wrapped
	}
	kept := paths[:0]
	for _, p := range paths {
		if strings.HasPrefix(p, prefix) {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

func (s *LodeStore) dir(filename string) string {
	return path.Join(s.collection, filename) + "/"
}

func (s *LodeStore) blobPath(filename string, handle Handle) string {
	return path.Join(s.collection, filename, string(handle)+blobSuffix)
}

func (s *LodeStore) metaPath(filename string, handle Handle) string {
	return path.Join(s.collection, filename, string(handle)+metaSuffix)
}

// Verify LodeStore implements Store.
var _ Store = (*LodeStore)(nil)
