package service

import (
	"context"
	"errors"
	"testing"

	"github.com/iconidentify/tubevault/internal/repository"
)

type stubProber string

func (p stubProber) Version(context.Context) string { return string(p) }

type unreachableStore struct {
	*repository.InMemoryObjectStore
}

func (unreachableStore) Ping(context.Context) error {
	return errors.New("dial tcp 10.0.0.1:9000: connection refused")
}

func TestSystemService_Versions(t *testing.T) {
	svc := NewSystemService(stubProber("2024.08.06"), stubProber("6.1.1"), repository.NewInMemoryObjectStore(), t.TempDir(), 0)

	v := svc.Versions(context.Background())
	if v.YtDlp != "2024.08.06" || v.FFmpeg != "6.1.1" {
		t.Errorf("versions = %+v", v)
	}
	if v.Service != serviceName || v.Timestamp.IsZero() {
		t.Errorf("service = %q, timestamp = %v", v.Service, v.Timestamp)
	}
}

func TestSystemService_Ready(t *testing.T) {
	tests := []struct {
		name    string
		store   repository.ObjectStore
		minFree int64
		want    bool
	}{
		{"healthy", repository.NewInMemoryObjectStore(), 0, true},
		{"store down", unreachableStore{repository.NewInMemoryObjectStore()}, 0, false},
		{"disk full", repository.NewInMemoryObjectStore(), 1 << 62, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewSystemService(stubProber("x"), stubProber("y"), tt.store, t.TempDir(), tt.minFree)
			r := svc.Ready(context.Background())
			if r.Ready != tt.want {
				t.Errorf("Ready = %v, want %v (%+v)", r.Ready, tt.want, r)
			}
		})
	}
}

func TestSystemService_MissingScratchIsNotReady(t *testing.T) {
	svc := NewSystemService(stubProber("x"), stubProber("y"), repository.NewInMemoryObjectStore(), "/does/not/exist", 1)

	if r := svc.Ready(context.Background()); r.Ready || r.ScratchFree != 0 {
		t.Errorf("readiness = %+v, want not ready with no free space", r)
	}
}
