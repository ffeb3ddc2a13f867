package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDownloadStarted(t *testing.T) {
	m := New(prometheus.NewRegistry())

	done := m.DownloadStarted()
	if got := testutil.ToFloat64(m.inProgress); got != 1 {
		t.Errorf("in progress = %v, want 1", got)
	}
	done("uploaded")
	m.DownloadStarted()("cache_hit")
	m.DownloadStarted()("uploaded")

	if got := testutil.ToFloat64(m.inProgress); got != 0 {
		t.Errorf("in progress = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.downloadsTotal.WithLabelValues("uploaded")); got != 2 {
		t.Errorf("uploaded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.downloadsTotal.WithLabelValues("cache_hit")); got != 1 {
		t.Errorf("cache_hit = %v, want 1", got)
	}
}

func TestStoreErrorAndHTTP(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.StoreError("upload")
	m.StoreError("upload")
	m.HTTPRequest(http.MethodPost, "/api/v1/download-and-upload", 401, time.Millisecond)
	m.HTTPRequest(http.MethodPost, "/api/v1/download-and-upload", 200, time.Millisecond)
	m.HTTPRequest(http.MethodPost, "/api/v1/download-and-upload", 201, time.Millisecond)

	if got := testutil.ToFloat64(m.storeErrors.WithLabelValues("upload")); got != 2 {
		t.Errorf("store errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/api/v1/download-and-upload", "2xx")); got != 2 {
		t.Errorf("2xx = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/api/v1/download-and-upload", "4xx")); got != 1 {
		t.Errorf("4xx = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.DownloadStarted()("failed")
	m.ArtifactUploaded(10)
	m.StoreError("stat")
	m.HTTPRequest("GET", "/", 200, 0)
}

func TestRegisterTwicePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	New(reg)
}
