package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/iconidentify/tubevault/internal/auth"
	"github.com/iconidentify/tubevault/internal/config"
	"github.com/iconidentify/tubevault/internal/domain"
	"github.com/iconidentify/tubevault/internal/metrics"
	"github.com/iconidentify/tubevault/internal/repository"
	"github.com/iconidentify/tubevault/pkg/ytdlp"
)

const (
	MessageFileExists = "File already exists"
	MessageFileReady  = "File ready"
)

// MediaTool resolves metadata and downloads media.
type MediaTool interface {
	Version(ctx context.Context) string
	Info(ctx context.Context, url string) (*domain.VideoMetadata, error)
	Download(ctx context.Context, req domain.DownloadRequest, outputDir string) (*ytdlp.DownloadResult, error)
}

// UploadResult is returned by DownloadAndUpload.
type UploadResult struct {
	Success           bool                `json:"success"`
	FileName          string              `json:"fileName"`
	DownloadReference string              `json:"downloadReference"`
	DownloadURL       string              `json:"downloadUrl"`
	Message           string              `json:"message"`
	Outcome           domain.EventOutcome `json:"-"`
}

// CheckFileRequest asks whether an artifact is already stored.
// FileName, when set, skips metadata resolution.
type CheckFileRequest struct {
	URL          string `json:"url"`
	QualityLabel string `json:"qualityLabel,omitempty"`
	MediaType    string `json:"mediaType,omitempty"`
	FileName     string `json:"fileName,omitempty"`
	Bucket       string `json:"bucketName,omitempty"`
}

// CheckFileResult reports a stored artifact.
type CheckFileResult struct {
	Exists            bool   `json:"exists"`
	FileName          string `json:"fileName,omitempty"`
	DownloadReference string `json:"downloadReference,omitempty"`
	DownloadURL       string `json:"downloadUrl,omitempty"`
}

// DownloadService orchestrates metadata lookup, the existence check, the
// download and the upload of one artifact.
type DownloadService struct {
	tool             MediaTool
	store            repository.ObjectStore
	history          domain.EventEmitter
	metrics          *metrics.Metrics
	scratch          string
	bucket           string
	missOnCheckError bool
	serialize        bool
	filesPrefix      string
	flights          singleflight.Group
	keys             *ristretto.Cache[string, string]
	logger           *slog.Logger
}

// DownloadServiceDeps groups the collaborators of DownloadService.
type DownloadServiceDeps struct {
	Tool    MediaTool
	Store   repository.ObjectStore
	History domain.EventEmitter
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NewDownloadService creates a new download service.
func NewDownloadService(cfg *config.Config, deps DownloadServiceDeps) (*DownloadService, error) {
	keys, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters:        100_000,
		MaxCost:            10_000,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create key cache: %w", err)
	}

	if err := os.MkdirAll(cfg.YtDlp.ScratchPath, 0755); err != nil {
		keys.Close()
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	return &DownloadService{
		tool:             deps.Tool,
		store:            deps.Store,
		history:          deps.History,
		metrics:          deps.Metrics,
		scratch:          cfg.YtDlp.ScratchPath,
		bucket:           cfg.Store.Bucket,
		missOnCheckError: cfg.Store.MissOnCheckError,
		serialize:        cfg.Download.SerializeByKey,
		filesPrefix:      "/api/v1/files/",
		keys:             keys,
		logger:           deps.Logger,
	}, nil
}

// Close releases the key cache.
func (s *DownloadService) Close() {
	s.keys.Close()
}

// DefaultBucket returns the bucket used when a request names none.
func (s *DownloadService) DefaultBucket() string {
	return s.bucket
}

// ResolveMetadata describes url without downloading it.
func (s *DownloadService) ResolveMetadata(ctx context.Context, url string) (*domain.VideoMetadata, error) {
	if err := (domain.DownloadRequest{URL: url}).Validate(); err != nil {
		return nil, err
	}
	return s.tool.Info(ctx, url)
}

// DownloadAndUpload makes sure the artifact for req is stored in bucket and
// returns a reference to it. A stored artifact is never downloaded again.
func (s *DownloadService) DownloadAndUpload(ctx context.Context, req domain.DownloadRequest, bucket string) (*UploadResult, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if bucket == "" {
		bucket = s.bucket
	} else if err := ValidateBucketName(bucket); err != nil {
		return nil, err
	}

	fp := fingerprint(req, bucket)
	if !s.serialize {
		return s.run(ctx, req, bucket, fp)
	}

	v, err, shared := s.flights.Do(fp, func() (interface{}, error) {
		return s.run(ctx, req, bucket, fp)
	})
	if shared {
		s.logger.Debug("joined in-flight download", "url", req.URL, "bucket", bucket)
	}
	if err != nil {
		return nil, err
	}
	res := *v.(*UploadResult)
	return &res, nil
}

func (s *DownloadService) run(ctx context.Context, req domain.DownloadRequest, bucket, fp string) (result *UploadResult, err error) {
	start := time.Now()
	done := s.metrics.DownloadStarted()
	label := req.QualityLabel()
	logger := s.logger.With("url", req.URL, "bucket", bucket, "quality", label)

	var key string
	defer func() {
		outcome := domain.OutcomeFailed
		if err == nil {
			outcome = result.Outcome
		}
		done(string(outcome))
		s.record(ctx, req, bucket, key, outcome, err, time.Since(start))
	}()

	if cached, ok := s.keys.Get(fp); ok {
		stat, statErr := s.store.Stat(ctx, bucket, cached)
		if statErr == nil && stat.Present {
			key = cached
			logger.Info("artifact already stored", "key", key)
			return s.hit(bucket, key), nil
		}
		s.keys.Del(fp)
	}

	meta, err := s.tool.Info(ctx, req.URL)
	if err != nil {
		logger.Error("metadata lookup failed", "error", err)
		return nil, err
	}

	key = domain.StoredKey(meta.Title, label, req.Extension())
	stat, err := s.checkExists(ctx, bucket, key, logger)
	if err != nil {
		return nil, err
	}
	if stat.Present {
		s.remember(fp, key)
		logger.Info("artifact already stored", "key", key)
		return s.hit(bucket, key), nil
	}

	res, produced, err := s.downloadAndStore(ctx, req, bucket, label, logger)
	if produced != "" {
		key = produced
	}
	if err != nil {
		return nil, err
	}
	s.remember(fp, key)
	return res, nil
}

// downloadAndStore downloads into a private scratch directory, which is
// removed on every exit path.
func (s *DownloadService) downloadAndStore(ctx context.Context, req domain.DownloadRequest, bucket, label string, logger *slog.Logger) (*UploadResult, string, error) {
	dir := filepath.Join(s.scratch, uuid.NewString())
	defer s.cleanup(dir, logger)

	res, err := s.tool.Download(ctx, req, dir)
	if err != nil {
		logger.Error("download failed", "error", err)
		return nil, "", err
	}

	key := domain.ProducedKey(res.FileName, label)
	stat, err := s.checkExists(ctx, bucket, key, logger)
	if err != nil {
		return nil, key, err
	}
	if stat.Present {
		logger.Info("artifact stored while downloading", "key", key)
		return s.hit(bucket, key), key, nil
	}

	f, err := os.Open(res.FilePath)
	if err != nil {
		return nil, key, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	if err := s.store.Upload(ctx, bucket, key, f, res.Size, ContentType(key)); err != nil {
		s.metrics.StoreError("upload")
		logger.Error("upload failed", "key", key, "error", err)
		return nil, key, storeError("upload", key, err)
	}
	s.metrics.ArtifactUploaded(res.Size)

	logger.Info("artifact uploaded", "key", key, "size", res.Size)
	return &UploadResult{
		Success:           true,
		FileName:          key,
		DownloadReference: domain.DownloadReference(bucket, key),
		DownloadURL:       s.filesPrefix + domain.DownloadReference(bucket, key),
		Message:           MessageFileReady,
		Outcome:           domain.OutcomeUploaded,
	}, key, nil
}

func (s *DownloadService) checkExists(ctx context.Context, bucket, key string, logger *slog.Logger) (*domain.ObjectStat, error) {
	stat, err := s.store.Stat(ctx, bucket, key)
	if err == nil {
		return stat, nil
	}
	s.metrics.StoreError("stat")
	if s.missOnCheckError && ctx.Err() == nil {
		logger.Warn("existence check failed, treating as absent", "key", key, "error", err)
		return &domain.ObjectStat{}, nil
	}
	logger.Error("existence check failed", "key", key, "error", err)
	return nil, storeError("check existence", key, err)
}

func (s *DownloadService) hit(bucket, key string) *UploadResult {
	return &UploadResult{
		Success:           true,
		FileName:          key,
		DownloadReference: domain.DownloadReference(bucket, key),
		DownloadURL:       s.filesPrefix + domain.DownloadReference(bucket, key),
		Message:           MessageFileExists,
		Outcome:           domain.OutcomeCacheHit,
	}
}

func (s *DownloadService) remember(fp, key string) {
	if s.keys.Set(fp, key, 1) {
		s.keys.Wait()
	}
}

func (s *DownloadService) cleanup(dir string, logger *slog.Logger) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("failed to remove scratch dir", "dir", dir, "error", err)
	}
}

func (s *DownloadService) record(ctx context.Context, req domain.DownloadRequest, bucket, key string, outcome domain.EventOutcome, err error, d time.Duration) {
	if s.history == nil {
		return
	}
	msg := MessageFileReady
	switch {
	case err != nil:
		msg = err.Error()
	case outcome == domain.OutcomeCacheHit:
		msg = MessageFileExists
	}

	var subject string
	if id := auth.IdentityFrom(ctx); id != nil {
		subject = id.Subject
	}

	s.history.Emit(domain.Event{
		Outcome:    outcome,
		Tier:       domain.ClassifyTier(req),
		URL:        req.URL,
		Bucket:     bucket,
		Key:        key,
		Subject:    subject,
		Message:    msg,
		DurationMS: d.Milliseconds(),
		Metadata: domain.EventMetadata{
			"extract_audio": req.ExtractAudio,
			"quality":       req.QualityLabel(),
		}.ToJSON(),
	})
}

// RecordRejected adds a rejected request to the history.
func (s *DownloadService) RecordRejected(ctx context.Context, req domain.DownloadRequest, bucket string, err error) {
	if bucket == "" {
		bucket = s.bucket
	}
	done := s.metrics.DownloadStarted()
	done(string(domain.OutcomeRejected))
	s.record(ctx, req, bucket, "", domain.OutcomeRejected, err, 0)
}

// CheckFile reports whether the artifact described by req is stored. The
// exact key is tried first, then the bucket listing is searched for a key
// with the same base name in any case. Store failures report absence.
func (s *DownloadService) CheckFile(ctx context.Context, req CheckFileRequest) (*CheckFileResult, error) {
	bucket := req.Bucket
	if bucket == "" {
		bucket = s.bucket
	}

	name := req.FileName
	if name == "" {
		if err := (domain.DownloadRequest{URL: req.URL}).Validate(); err != nil {
			return nil, err
		}
		meta, err := s.tool.Info(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		ext := ".mp3"
		if strings.EqualFold(req.MediaType, "video") {
			ext = ".mp4"
		}
		name = meta.Title + ext
		if req.QualityLabel != "" {
			name = domain.StoredKey(meta.Title, req.QualityLabel, ext)
		}
	}
	key := domain.SanitizeFilename(name)
	if key == "" {
		return nil, fmt.Errorf("%w: file name is empty", domain.ErrInvalidRequest)
	}

	logger := s.logger.With("bucket", bucket, "key", key)

	stat, err := s.store.Stat(ctx, bucket, key)
	if err != nil {
		logger.Warn("existence check failed", "error", err)
		return &CheckFileResult{Exists: false}, nil
	}
	if stat.Present {
		return s.found(bucket, key), nil
	}

	objects, err := s.store.List(ctx, bucket)
	if err != nil {
		logger.Warn("bucket listing failed", "error", err)
		return &CheckFileResult{Exists: false}, nil
	}
	want := domain.BaseName(key)
	for _, obj := range objects {
		if strings.EqualFold(domain.BaseName(obj.Key), want) {
			return s.found(bucket, obj.Key), nil
		}
	}
	return &CheckFileResult{Exists: false}, nil
}

func (s *DownloadService) found(bucket, key string) *CheckFileResult {
	ref := domain.DownloadReference(bucket, key)
	return &CheckFileResult{
		Exists:            true,
		FileName:          key,
		DownloadReference: ref,
		DownloadURL:       s.filesPrefix + ref,
	}
}

// LocalFile is a downloaded artifact streamed straight to the caller.
// Close removes its scratch directory.
type LocalFile struct {
	*os.File
	Name string
	Size int64

	dir    string
	logger *slog.Logger
}

// Close closes the file and removes the scratch directory.
func (f *LocalFile) Close() error {
	err := f.File.Close()
	if rmErr := os.RemoveAll(f.dir); rmErr != nil {
		f.logger.Warn("failed to remove scratch dir", "dir", f.dir, "error", rmErr)
	}
	return err
}

// Fetch downloads req without storing it. The caller must Close the result.
func (s *DownloadService) Fetch(ctx context.Context, req domain.DownloadRequest) (*LocalFile, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	logger := s.logger.With("url", req.URL, "quality", req.QualityLabel())

	dir := filepath.Join(s.scratch, uuid.NewString())
	res, err := s.tool.Download(ctx, req, dir)
	if err != nil {
		s.cleanup(dir, logger)
		return nil, err
	}

	f, err := os.Open(res.FilePath)
	if err != nil {
		s.cleanup(dir, logger)
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return &LocalFile{
		File:   f,
		Name:   domain.SanitizeFilename(res.FileName),
		Size:   res.Size,
		dir:    dir,
		logger: logger,
	}, nil
}

// OpenObject streams a stored artifact.
func (s *DownloadService) OpenObject(ctx context.Context, bucket, key string) (io.ReadCloser, *domain.ObjectInfo, error) {
	rc, info, err := s.store.Download(ctx, bucket, key)
	if err != nil {
		if !errors.Is(err, domain.ErrObjectNotFound) && !errors.Is(err, domain.ErrBucketNotFound) {
			s.metrics.StoreError("download")
		}
		return nil, nil, err
	}
	return rc, info, nil
}

// fingerprint identifies requests that resolve to the same stored key.
func fingerprint(req domain.DownloadRequest, bucket string) string {
	return strings.Join([]string{bucket, req.URL, req.QualityLabel(), req.Extension()}, "\x00")
}

var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".flac": "audio/flac",
	".wav":  "audio/wav",
}

// ContentType returns the MIME type for an object key.
func ContentType(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if ct, ok := mediaTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func storeError(op, key string, err error) error {
	if errors.Is(err, domain.ErrStoreFailed) {
		return domain.NewDownloadError(op, key, err, "")
	}
	return domain.NewDownloadError(op, key, fmt.Errorf("%w: %w", domain.ErrStoreFailed, err), "")
}
