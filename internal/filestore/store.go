// Package filestore defines the object storage interface and the answer
// archive built on it.
//
// Providers (currently MinIO, which also speaks to S3) implement Store.
// Callers depend only on this package, never on a provider package.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	archive := filestore.NewArchive(store, cfg.Bucket, cfg.Prefix)
//	err = archive.Prepare(ctx, cfg.AutoCreateBucket)
//	err = archive.Save(ctx, answer.ID, answer)
package filestore

import (
	"context"
	"io"
)

// Store is the single interface all file storage providers must implement.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// EnsureBucket creates bucket if it does not exist yet.
	EnsureBucket(ctx context.Context, bucket string) error

	// PutObject uploads size bytes from r to key inside bucket.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (*ObjectInfo, error)

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// StatObject returns metadata for the object at key without downloading it.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// ListObjects returns the objects in bucket that match opts, recursively.
	ListObjects(ctx context.Context, bucket string, opts ListOptions) ([]ObjectInfo, error)
}
