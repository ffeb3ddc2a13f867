package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/iconidentify/tubevault/internal/config"
	"github.com/iconidentify/tubevault/internal/domain"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// RetryConfigFrom builds a RetryConfig from store configuration.
func RetryConfigFrom(cfg config.StoreConfig) RetryConfig {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  cfg.RetryDelay,
		MaxDelay:      cfg.MaxRetryDelay,
		BackoffFactor: 2.0,
	}
}

// RetryWithCheck executes a function with retry, allowing custom retry decision.
func RetryWithCheck[T any](
	ctx context.Context,
	cfg RetryConfig,
	fn func() (T, error),
	shouldRetry func(error) bool,
) (T, error) {
	var lastErr error
	var zero T

	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !shouldRetry(err) {
			break
		}

		// Don't wait after the last attempt
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, lastErr
}

// Retryable reports whether a store error is worth another attempt.
// Missing objects, missing buckets, auth failures and cancellation are final.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrObjectNotFound),
		errors.Is(err, domain.ErrBucketNotFound),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == 429
	}
	return true
}

// RetryingObjectStore retries transient failures of an underlying store and
// wraps final failures in domain.ErrStoreFailed.
type RetryingObjectStore struct {
	next   ObjectStore
	cfg    RetryConfig
	logger *slog.Logger
}

// NewRetryingObjectStore wraps next with bounded retries.
func NewRetryingObjectStore(next ObjectStore, cfg RetryConfig, logger *slog.Logger) *RetryingObjectStore {
	return &RetryingObjectStore{next: next, cfg: cfg, logger: logger}
}

func (s *RetryingObjectStore) Stat(ctx context.Context, bucket, key string) (*domain.ObjectStat, error) {
	return retry(ctx, s, "stat", func() (*domain.ObjectStat, error) {
		return s.next.Stat(ctx, bucket, key)
	})
}

// Upload retries only when content can be rewound.
func (s *RetryingObjectStore) Upload(ctx context.Context, bucket, key string, content io.Reader, size int64, contentType string) error {
	seeker, seekable := content.(io.Seeker)
	first := true

	_, err := retry(ctx, s, "upload", func() (struct{}, error) {
		if !first {
			if !seekable {
				return struct{}{}, errNoRewind
			}
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return struct{}{}, fmt.Errorf("rewind upload: %w", err)
			}
		}
		first = false
		return struct{}{}, s.next.Upload(ctx, bucket, key, content, size, contentType)
	})
	return err
}

var errNoRewind = errors.New("upload body cannot be rewound")

func (s *RetryingObjectStore) Download(ctx context.Context, bucket, key string) (io.ReadCloser, *domain.ObjectInfo, error) {
	type opened struct {
		rc   io.ReadCloser
		info *domain.ObjectInfo
	}
	o, err := retry(ctx, s, "download", func() (opened, error) {
		rc, info, err := s.next.Download(ctx, bucket, key)
		return opened{rc, info}, err
	})
	if err != nil {
		return nil, nil, err
	}
	return o.rc, o.info, nil
}

func (s *RetryingObjectStore) List(ctx context.Context, bucket string) ([]domain.ObjectInfo, error) {
	return retry(ctx, s, "list", func() ([]domain.ObjectInfo, error) {
		return s.next.List(ctx, bucket)
	})
}

func (s *RetryingObjectStore) Delete(ctx context.Context, bucket, key string) error {
	_, err := retry(ctx, s, "delete", func() (struct{}, error) {
		return struct{}{}, s.next.Delete(ctx, bucket, key)
	})
	return err
}

func (s *RetryingObjectStore) Stats(ctx context.Context, bucket string) (*domain.BucketStats, error) {
	return retry(ctx, s, "stats", func() (*domain.BucketStats, error) {
		return s.next.Stats(ctx, bucket)
	})
}

func (s *RetryingObjectStore) CreateBucket(ctx context.Context, bucket string) error {
	_, err := retry(ctx, s, "create bucket", func() (struct{}, error) {
		return struct{}{}, s.next.CreateBucket(ctx, bucket)
	})
	return err
}

// Ping is not retried; readiness reports the current state.
func (s *RetryingObjectStore) Ping(ctx context.Context) error {
	if err := s.next.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreFailed, err)
	}
	return nil
}

func retry[T any](ctx context.Context, s *RetryingObjectStore, op string, fn func() (T, error)) (T, error) {
	attempt := 0
	result, err := RetryWithCheck(ctx, s.cfg, func() (T, error) {
		attempt++
		res, err := fn()
		if err != nil && Retryable(err) && attempt < s.cfg.MaxAttempts {
			s.logger.Warn("store operation failed, retrying",
				"op", op,
				"attempt", attempt,
				"error", err,
			)
		}
		return res, err
	}, func(err error) bool {
		return Retryable(err) && !errors.Is(err, errNoRewind)
	})
	if err == nil {
		return result, nil
	}

	// Not-found style errors pass through unchanged so callers can match them.
	if !Retryable(err) {
		return result, err
	}
	return result, fmt.Errorf("%w: %s: %v", domain.ErrStoreFailed, op, err)
}
