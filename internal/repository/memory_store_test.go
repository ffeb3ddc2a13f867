package repository

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/iconidentify/tubevault/internal/domain"
)

func TestInMemoryObjectStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryObjectStore()

	stat, err := s.Stat(ctx, "b", "k.mp3")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if stat.Present {
		t.Error("empty store should not report key present")
	}

	if err := s.Upload(ctx, "b", "k.mp3", strings.NewReader("hello"), 5, "audio/mpeg"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	stat, _ = s.Stat(ctx, "b", "k.mp3")
	if !stat.Present || stat.Size != 5 || stat.ETag == "" {
		t.Errorf("Stat after upload = %+v", stat)
	}

	rc, info, err := s.Download(ctx, "b", "k.mp3")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" || info.Size != 5 {
		t.Errorf("Download = %q (%d bytes)", data, info.Size)
	}

	stats, err := s.Stats(ctx, "b")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Count != 1 || stats.TotalBytes != 5 {
		t.Errorf("Stats = %+v, want 1 object / 5 bytes", stats)
	}

	if err := s.Delete(ctx, "b", "k.mp3"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "b", "k.mp3"); !errors.Is(err, domain.ErrObjectNotFound) {
		t.Errorf("second Delete = %v, want ErrObjectNotFound", err)
	}
}

func TestInMemoryObjectStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryObjectStore()

	if _, _, err := s.Download(ctx, "missing", "k"); !errors.Is(err, domain.ErrBucketNotFound) {
		t.Errorf("Download from missing bucket = %v, want ErrBucketNotFound", err)
	}
	if _, err := s.List(ctx, "missing"); !errors.Is(err, domain.ErrBucketNotFound) {
		t.Errorf("List of missing bucket = %v, want ErrBucketNotFound", err)
	}

	if err := s.CreateBucket(ctx, "b"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}
	if err := s.CreateBucket(ctx, "b"); err != nil {
		t.Errorf("CreateBucket on existing bucket = %v, want nil", err)
	}
	if _, _, err := s.Download(ctx, "b", "k"); !errors.Is(err, domain.ErrObjectNotFound) {
		t.Errorf("Download of missing key = %v, want ErrObjectNotFound", err)
	}
	if err := s.Upload(ctx, "b", "k", strings.NewReader("abc"), 10, ""); err == nil {
		t.Error("Upload with wrong size should fail")
	}
}

func TestInMemoryObjectStore_ListSorted(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryObjectStore()
	for _, k := range []string{"c", "a", "b"} {
		s.Upload(ctx, "b", k, strings.NewReader(k), 1, "")
	}

	objects, err := s.List(ctx, "b")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var keys []string
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	if strings.Join(keys, ",") != "a,b,c" {
		t.Errorf("keys = %v, want [a b c]", keys)
	}
}
