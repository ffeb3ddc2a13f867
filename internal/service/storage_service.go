package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/tubevault/internal/domain"
	"github.com/iconidentify/tubevault/internal/repository"
)

// bucketName follows the S3 naming rules minus the IP-address exclusion.
var bucketName = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// BucketSummary is BucketStats with a human-readable total.
type BucketSummary struct {
	domain.BucketStats
	TotalSizeHuman string `json:"totalSizeFormatted"`
}

// StorageService exposes administrative bucket operations.
type StorageService struct {
	store  repository.ObjectStore
	logger *slog.Logger
}

// NewStorageService creates a new storage service.
func NewStorageService(store repository.ObjectStore, logger *slog.Logger) *StorageService {
	return &StorageService{store: store, logger: logger}
}

// ValidateBucketName rejects names the object store would refuse.
func ValidateBucketName(name string) error {
	if !bucketName.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: invalid bucket name %q", domain.ErrInvalidRequest, name)
	}
	return nil
}

// ListObjects returns the objects in bucket sorted by key.
func (s *StorageService) ListObjects(ctx context.Context, bucket string) ([]domain.ObjectInfo, error) {
	if err := ValidateBucketName(bucket); err != nil {
		return nil, err
	}
	return s.store.List(ctx, bucket)
}

// DeleteObject removes key from bucket.
func (s *StorageService) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := ValidateBucketName(bucket); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: object key is required", domain.ErrInvalidRequest)
	}
	if err := s.store.Delete(ctx, bucket, key); err != nil {
		return err
	}
	s.logger.Info("object deleted", "bucket", bucket, "key", key)
	return nil
}

// Stats aggregates the objects in bucket.
func (s *StorageService) Stats(ctx context.Context, bucket string) (*BucketSummary, error) {
	if err := ValidateBucketName(bucket); err != nil {
		return nil, err
	}
	stats, err := s.store.Stats(ctx, bucket)
	if err != nil {
		return nil, err
	}
	return &BucketSummary{
		BucketStats:    *stats,
		TotalSizeHuman: humanize.IBytes(uint64(stats.TotalBytes)),
	}, nil
}

// CreateBucket creates bucket. An existing bucket is not an error.
func (s *StorageService) CreateBucket(ctx context.Context, bucket string) error {
	if err := ValidateBucketName(bucket); err != nil {
		return err
	}
	if err := s.store.CreateBucket(ctx, bucket); err != nil {
		return err
	}
	s.logger.Info("bucket created", "bucket", bucket)
	return nil
}
