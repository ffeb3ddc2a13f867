package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/iconidentify/tubevault/internal/config"
	"github.com/iconidentify/tubevault/internal/domain"
)

// S3ObjectStore implements ObjectStore against MinIO or any S3-compatible API.
type S3ObjectStore struct {
	client *s3.Client
	region string
	logger *slog.Logger
}

// NewS3ObjectStore creates a path-style S3 client for the configured endpoint.
func NewS3ObjectStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*S3ObjectStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		// Retries are handled by RetryingObjectStore.
		awsconfig.WithRetryMaxAttempts(1),
		awsconfig.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := endpointURL(cfg.Endpoint, cfg.UseSSL)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &S3ObjectStore{
		client: client,
		region: cfg.Region,
		logger: logger,
	}, nil
}

func endpointURL(endpoint string, useSSL bool) string {
	if endpoint == "" {
		return ""
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// Stat checks key with HeadObject.
func (s *S3ObjectStore) Stat(ctx context.Context, bucket, key string) (*domain.ObjectStat, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return &domain.ObjectStat{Present: false}, nil
		}
		return nil, fmt.Errorf("head object: %w", err)
	}

	return &domain.ObjectStat{
		Present:    true,
		Size:       aws.ToInt64(out.ContentLength),
		ETag:       aws.ToString(out.ETag),
		ModifiedAt: aws.ToTime(out.LastModified),
	}, nil
}

// Upload stores content with PutObject.
func (s *S3ObjectStore) Upload(ctx context.Context, bucket, key string, content io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          content,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		if isNoSuchBucket(err) {
			return domain.ErrBucketNotFound
		}
		s.logger.Error("put object failed", "bucket", bucket, "key", key, "error", err)
		return fmt.Errorf("put object: %w", err)
	}

	s.logger.Debug("object stored", "bucket", bucket, "key", key, "size", size)
	return nil
}

// Download opens key with GetObject.
func (s *S3ObjectStore) Download(ctx context.Context, bucket, key string) (io.ReadCloser, *domain.ObjectInfo, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchBucket(err) {
			return nil, nil, domain.ErrBucketNotFound
		}
		if isNotFoundError(err) {
			return nil, nil, domain.ErrObjectNotFound
		}
		return nil, nil, fmt.Errorf("get object: %w", err)
	}

	return out.Body, &domain.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         aws.ToString(out.ETag),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// List pages through ListObjectsV2.
func (s *S3ObjectStore) List(ctx context.Context, bucket string) ([]domain.ObjectInfo, error) {
	objects := []domain.ObjectInfo{}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isNoSuchBucket(err) {
				return nil, domain.ErrBucketNotFound
			}
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, domain.ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         aws.ToString(obj.ETag),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

// Delete removes key. S3 deletes are silent for missing keys, so the key is
// checked first.
func (s *S3ObjectStore) Delete(ctx context.Context, bucket, key string) error {
	stat, err := s.Stat(ctx, bucket, key)
	if err != nil {
		return err
	}
	if !stat.Present {
		return domain.ErrObjectNotFound
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}

	s.logger.Info("object deleted", "bucket", bucket, "key", key)
	return nil
}

// Stats aggregates a full listing.
func (s *S3ObjectStore) Stats(ctx context.Context, bucket string) (*domain.BucketStats, error) {
	objects, err := s.List(ctx, bucket)
	if err != nil {
		return nil, err
	}
	return aggregate(bucket, objects), nil
}

// CreateBucket creates bucket, ignoring "already exists" responses.
func (s *S3ObjectStore) CreateBucket(ctx context.Context, bucket string) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(s.region),
		}
	}

	_, err := s.client.CreateBucket(ctx, input)
	if err != nil {
		var bae *s3types.BucketAlreadyExists
		var baoyb *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &bae) || errors.As(err, &baoyb) {
			s.logger.Debug("bucket already exists", "bucket", bucket)
			return nil
		}
		return fmt.Errorf("create bucket: %w", err)
	}

	s.logger.Info("bucket created", "bucket", bucket)
	return nil
}

// Ping lists buckets to verify connectivity and credentials.
func (s *S3ObjectStore) Ping(ctx context.Context) error {
	if _, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{}); err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func isNoSuchBucket(err error) bool {
	var nsb *s3types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket"
}
