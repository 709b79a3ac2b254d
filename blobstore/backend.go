package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// Storage backends.
const (
	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Backend describes where one shard host keeps its blobs.
type Backend struct {
	// Kind is fs, s3 or memory.
	Kind string
	// Path is a directory for fs, "bucket/prefix" for s3.
	Path string
	// Region is the AWS region (s3 only, optional).
	Region string
	// Endpoint is a custom S3 endpoint for S3-compatible providers.
	Endpoint string
	// UsePathStyle forces path-style addressing (s3 only).
	UsePathStyle bool
	// OpsPerSecond throttles store operations. Zero disables throttling.
	OpsPerSecond float64
}

// Validate checks the backend kind and required fields.
func (b Backend) Validate() error {
	switch b.Kind {
	case BackendFS:
		if b.Path == "" {
			return errors.New("fs backend requires a path")
		}
	case BackendS3:
		bucket, _ := ParseS3Path(b.Path)
		if bucket == "" {
			return errors.New("s3 backend requires a bucket path")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unsupported storage backend: %q (must be fs, s3, or memory)", b.Kind)
	}
	if b.OpsPerSecond < 0 {
		return fmt.Errorf("ops_per_second must be >= 0, got %v", b.OpsPerSecond)
	}
	return nil
}

// ParseS3Path parses a path in format "bucket/prefix" or "bucket".
func ParseS3Path(p string) (bucket, prefix string) {
	parts := strings.SplitN(p, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix
}

// NewFactory returns the lode store factory for a backend.
func NewFactory(ctx context.Context, b Backend) (lode.StoreFactory, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	switch b.Kind {
	case BackendFS:
		if err := os.MkdirAll(b.Path, 0o750); err != nil {
			return nil, WrapInitError(err, b.Path)
		}
		return lode.NewFSFactory(b.Path), nil
	case BackendS3:
		return NewS3Factory(ctx, b)
	default:
		return lode.NewMemoryFactory(), nil
	}
}

// NewS3Factory creates a lode store factory for an S3 bucket.
// Uses AWS SDK default credential chain (env vars, shared config, IAM role).
func NewS3Factory(ctx context.Context, b Backend) (lode.StoreFactory, error) {
	bucket, prefix := ParseS3Path(b.Path)

	var opts []func(*config.LoadOptions) error
	if b.Region != "" {
		opts = append(opts, config.WithRegion(b.Region))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, WrapInitError(fmt.Errorf("failed to load AWS config: %w", err), bucket)
	}

	var s3Opts []func(*s3.Options)
	if b.Endpoint != "" {
		endpoint := b.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if b.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsConfig, s3Opts...)

	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: bucket,
			Prefix: prefix,
		})
	}, nil
}
