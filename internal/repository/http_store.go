package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iconidentify/tubevault/internal/config"
	"github.com/iconidentify/tubevault/internal/domain"
)

type bearerKey struct{}

// WithBearerToken attaches the caller's bearer token to ctx. HTTPObjectStore
// forwards it on admin routes of the storage service.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

func bearerToken(ctx context.Context) string {
	token, _ := ctx.Value(bearerKey{}).(string)
	return token
}

// HTTPObjectStore implements ObjectStore over the sibling storage service.
type HTTPObjectStore struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPObjectStore creates a client for the storage service at cfg.ServiceURL.
func NewHTTPObjectStore(cfg config.StoreConfig, logger *slog.Logger) *HTTPObjectStore {
	return &HTTPObjectStore{
		baseURL: strings.TrimRight(cfg.ServiceURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type checkExistsRequest struct {
	Bucket     string `json:"bucket"`
	ObjectName string `json:"objectName"`
}

type checkExistsResponse struct {
	Exists       bool       `json:"exists"`
	Size         *int64     `json:"size"`
	ETag         string     `json:"etag"`
	LastModified *time.Time `json:"lastModified"`
}

type downloadRequest struct {
	Bucket string `json:"bucket"`
	Object string `json:"object"`
}

type statsResponse struct {
	TotalFiles int    `json:"totalFiles"`
	TotalSize  int64  `json:"totalSize"`
	BucketName string `json:"bucketName"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Stat calls POST /check-exists.
func (s *HTTPObjectStore) Stat(ctx context.Context, bucket, key string) (*domain.ObjectStat, error) {
	resp, err := s.doJSON(ctx, http.MethodPost, "/check-exists", checkExistsRequest{Bucket: bucket, ObjectName: key})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var body checkExistsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode check-exists response: %w", err)
	}

	stat := &domain.ObjectStat{Present: body.Exists, ETag: body.ETag}
	if body.Size != nil {
		stat.Size = *body.Size
	}
	if body.LastModified != nil {
		stat.ModifiedAt = *body.LastModified
	}
	return stat, nil
}

// Upload streams content as the "file" part of POST /upload/{bucket}/{key}.
func (s *HTTPObjectStore) Upload(ctx context.Context, bucket, key string, content io.Reader, size int64, contentType string) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", key)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, content); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	path := "/upload/" + url.PathEscape(bucket) + "/" + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		pr.Close()
		return fmt.Errorf("upload %s: %w", key, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	s.logger.Debug("object stored", "bucket", bucket, "key", key, "size", size)
	return nil
}

// Download calls POST /download and returns the streamed body.
func (s *HTTPObjectStore) Download(ctx context.Context, bucket, key string) (io.ReadCloser, *domain.ObjectInfo, error) {
	resp, err := s.doJSON(ctx, http.MethodPost, "/download", downloadRequest{Bucket: bucket, Object: key})
	if err != nil {
		return nil, nil, err
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, nil, err
	}

	info := &domain.ObjectInfo{Key: key, Size: resp.ContentLength}
	if info.Size < 0 {
		info.Size = 0
	}
	return resp.Body, info, nil
}

// List calls GET /list/{bucket}, which returns only key names.
func (s *HTTPObjectStore) List(ctx context.Context, bucket string) ([]domain.ObjectInfo, error) {
	resp, err := s.do(ctx, http.MethodGet, "/list/"+url.PathEscape(bucket), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var keys []string
	if err := json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}

	objects := make([]domain.ObjectInfo, 0, len(keys))
	for _, k := range keys {
		objects = append(objects, domain.ObjectInfo{Key: k})
	}
	return objects, nil
}

// Delete calls DELETE /delete/{bucket}/{key}.
func (s *HTTPObjectStore) Delete(ctx context.Context, bucket, key string) error {
	path := "/delete/" + url.PathEscape(bucket) + "/" + url.PathEscape(key)
	resp, err := s.do(ctx, http.MethodDelete, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Stats calls GET /stats?bucketName=. Older services ignore the parameter
// and report on their default bucket.
func (s *HTTPObjectStore) Stats(ctx context.Context, bucket string) (*domain.BucketStats, error) {
	resp, err := s.do(ctx, http.MethodGet, "/stats?bucketName="+url.QueryEscape(bucket), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var body statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode stats response: %w", err)
	}
	if body.BucketName != "" && body.BucketName != bucket {
		s.logger.Warn("storage service reported stats for a different bucket",
			"requested", bucket, "reported", body.BucketName)
	}
	return &domain.BucketStats{Bucket: body.BucketName, Count: body.TotalFiles, TotalBytes: body.TotalSize}, nil
}

// CreateBucket calls POST /bucket/create/{bucket}.
func (s *HTTPObjectStore) CreateBucket(ctx context.Context, bucket string) error {
	resp, err := s.do(ctx, http.MethodPost, "/bucket/create/"+url.PathEscape(bucket), nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Ping calls GET /health.
func (s *HTTPObjectStore) Ping(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodGet, "/health", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (s *HTTPObjectStore) doJSON(ctx context.Context, method, path string, payload interface{}) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return s.do(ctx, method, path, bytes.NewReader(data), "application/json")
}

func (s *HTTPObjectStore) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := bearerToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// checkStatus maps storage service status codes onto domain errors.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg := readError(resp.Body)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return domain.ErrObjectNotFound
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrForbidden, msg)
	default:
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}
}

func readError(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var e errorResponse
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}

// StatusError is a non-2xx response from the storage service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return "storage service returned " + strconv.Itoa(e.Code)
	}
	return fmt.Sprintf("storage service returned %d: %s", e.Code, e.Message)
}
