// Package minio provides a MinIO / S3 implementation of filestore.Store.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
package minio

import (
	"context"
	"io"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/koustreak/querygate/internal/errs"
	"github.com/koustreak/querygate/internal/filestore"
)

// Driver is a MinIO implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
	region string
}

// New connects to MinIO using the provided Config and returns a Driver.
// It pings the server before returning. Bucket creation is left to
// filestore.Archive.Prepare.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, errs.New(errs.ErrKindConfiguration, "object store endpoint is required")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfiguration, "failed to create minio client", err)
	}

	d := &Driver{client: client, region: cfg.Region}

	if err := d.Ping(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

// --- filestore.Store implementation ---

// Ping verifies the MinIO server is reachable by listing buckets.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.client.ListBuckets(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close is a no-op: the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := d.client.BucketExists(ctx, bucket)
	if err != nil {
		return mapError(err, "failed to check bucket")
	}
	if exists {
		return nil
	}
	err = d.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{Region: d.region})
	if err != nil {
		// Another instance may have created it in the meantime.
		if resp := miniogo.ToErrorResponse(err); resp.Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return mapError(err, "failed to create bucket")
	}
	return nil
}

func (d *Driver) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (*filestore.ObjectInfo, error) {
	info, err := d.client.PutObject(ctx, bucket, key, r, size, miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, mapError(err, "failed to put object")
	}
	return &filestore.ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  contentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

// GetObject opens a streaming handle to the object at key inside bucket.
// The caller MUST call Object.Close() after reading.
func (d *Driver) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	obj, err := d.client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get object")
	}

	// GetObject is lazy; Stat surfaces NoSuchKey.
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, mapError(err, "failed to stat object after get")
	}

	return &object{
		ReadCloser: obj,
		info:       toObjectInfo(stat),
	}, nil
}

func (d *Driver) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	stat, err := d.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to stat object")
	}
	return toObjectInfo(stat), nil
}

// ListObjects lists recursively under opts.Prefix.
func (d *Driver) ListObjects(ctx context.Context, bucket string, opts filestore.ListOptions) ([]filestore.ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listOpts := miniogo.ListObjectsOptions{
		Prefix:    opts.Prefix,
		Recursive: true,
	}

	results := make([]filestore.ObjectInfo, 0)
	for obj := range d.client.ListObjects(ctx, bucket, listOpts) {
		if obj.Err != nil {
			return nil, mapError(obj.Err, "failed to list objects")
		}
		results = append(results, *toObjectInfo(obj))
		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}
	return results, nil
}

// --- internal types ---

func toObjectInfo(o miniogo.ObjectInfo) *filestore.ObjectInfo {
	return &filestore.ObjectInfo{
		Key:          o.Key,
		Size:         o.Size,
		ContentType:  o.ContentType,
		ETag:         o.ETag,
		LastModified: o.LastModified,
	}
}

// object wraps a MinIO GetObject response and exposes filestore.Object.
type object struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return o.info
}
