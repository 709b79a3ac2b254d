package blobstore

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/evq/types"
)

// blobMeta is the msgpack sidecar stored next to each blob.
// Field tags are part of the on-disk format.
type blobMeta struct {
	Handle     string    `msgpack:"handle"`
	Filename   string    `msgpack:"filename"`
	Length     int64     `msgpack:"length"`
	Shard      string    `msgpack:"shard"`
	UploadedAt time.Time `msgpack:"uploaded_at"`
	SHA256     string    `msgpack:"sha256"`
}

func encodeMeta(info BlobInfo) ([]byte, error) {
	return msgpack.Marshal(&blobMeta{
		Handle:     string(info.Handle),
		Filename:   info.Filename,
		Length:     info.Length,
		Shard:      string(info.Shard),
		UploadedAt: info.UploadedAt.UTC(),
		SHA256:     info.SHA256,
	})
}

func decodeMeta(data []byte) (BlobInfo, error) {
	var m blobMeta
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return BlobInfo{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if m.Handle == "" || m.Filename == "" || m.Length < 0 {
		return BlobInfo{}, fmt.Errorf("%w: missing handle, filename or length", ErrCorrupt)
	}
	return BlobInfo{
		Handle:     Handle(m.Handle),
		Filename:   m.Filename,
		Length:     m.Length,
		Shard:      types.ShardID(m.Shard),
		UploadedAt: m.UploadedAt.UTC(),
		SHA256:     m.SHA256,
	}, nil
}
