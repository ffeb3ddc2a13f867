package repository

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/iconidentify/tubevault/internal/domain"
)

type memoryObject struct {
	data        []byte
	contentType string
	etag        string
	modified    time.Time
}

// InMemoryObjectStore implements ObjectStore in process memory.
// Buckets are created on first upload.
type InMemoryObjectStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*memoryObject
}

// NewInMemoryObjectStore creates an empty store.
func NewInMemoryObjectStore() *InMemoryObjectStore {
	return &InMemoryObjectStore{
		buckets: make(map[string]map[string]*memoryObject),
	}
}

func (s *InMemoryObjectStore) Stat(ctx context.Context, bucket, key string) (*domain.ObjectStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.buckets[bucket][key]
	if !ok {
		return &domain.ObjectStat{Present: false}, nil
	}
	return &domain.ObjectStat{
		Present:    true,
		Size:       int64(len(obj.data)),
		ETag:       obj.etag,
		ModifiedAt: obj.modified,
	}, nil
}

func (s *InMemoryObjectStore) Upload(ctx context.Context, bucket, key string, content io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("read content: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("short upload: got %d bytes, want %d", len(data), size)
	}

	sum := md5.Sum(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[bucket]
	if !ok {
		b = make(map[string]*memoryObject)
		s.buckets[bucket] = b
	}
	b[key] = &memoryObject{
		data:        data,
		contentType: contentType,
		etag:        hex.EncodeToString(sum[:]),
		modified:    time.Now().UTC(),
	}
	return nil
}

func (s *InMemoryObjectStore) Download(ctx context.Context, bucket, key string) (io.ReadCloser, *domain.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buckets[bucket]
	if !ok {
		return nil, nil, domain.ErrBucketNotFound
	}
	obj, ok := b[key]
	if !ok {
		return nil, nil, domain.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), &domain.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ETag:         obj.etag,
		LastModified: obj.modified,
	}, nil
}

func (s *InMemoryObjectStore) List(ctx context.Context, bucket string) ([]domain.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buckets[bucket]
	if !ok {
		return nil, domain.ErrBucketNotFound
	}

	objects := make([]domain.ObjectInfo, 0, len(b))
	for key, obj := range b {
		objects = append(objects, domain.ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			ETag:         obj.etag,
			LastModified: obj.modified,
		})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (s *InMemoryObjectStore) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buckets[bucket][key]; !ok {
		return domain.ErrObjectNotFound
	}
	delete(s.buckets[bucket], key)
	return nil
}

func (s *InMemoryObjectStore) Stats(ctx context.Context, bucket string) (*domain.BucketStats, error) {
	objects, err := s.List(ctx, bucket)
	if err != nil {
		return nil, err
	}
	return aggregate(bucket, objects), nil
}

func (s *InMemoryObjectStore) CreateBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = make(map[string]*memoryObject)
	}
	return nil
}

func (s *InMemoryObjectStore) Ping(ctx context.Context) error {
	return nil
}
