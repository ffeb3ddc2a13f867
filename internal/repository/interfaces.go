package repository

import (
	"context"
	"io"

	"github.com/iconidentify/tubevault/internal/domain"
)

// ObjectStore is the bucket/key storage that finished downloads land in.
// Implementations return domain.ErrObjectNotFound for missing keys and
// domain.ErrBucketNotFound for missing buckets.
type ObjectStore interface {
	// Stat reports whether key exists. A missing key is not an error.
	Stat(ctx context.Context, bucket, key string) (*domain.ObjectStat, error)

	// Upload writes size bytes from content under key, replacing any existing object.
	Upload(ctx context.Context, bucket, key string, content io.Reader, size int64, contentType string) error

	// Download opens key for reading. Caller must close the reader.
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, *domain.ObjectInfo, error)

	// List returns every object in bucket.
	List(ctx context.Context, bucket string) ([]domain.ObjectInfo, error)

	// Delete removes key.
	Delete(ctx context.Context, bucket, key string) error

	// Stats aggregates object count and total size for bucket.
	Stats(ctx context.Context, bucket string) (*domain.BucketStats, error)

	// CreateBucket creates bucket. An existing bucket is not an error.
	CreateBucket(ctx context.Context, bucket string) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// aggregate computes bucket statistics from a listing.
func aggregate(bucket string, objects []domain.ObjectInfo) *domain.BucketStats {
	stats := &domain.BucketStats{Bucket: bucket, Count: len(objects)}
	for _, o := range objects {
		stats.TotalBytes += o.Size
	}
	return stats
}
