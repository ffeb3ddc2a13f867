package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iconidentify/tubevault/internal/metrics"
)

func TestLogger_RecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r := chi.NewRouter()
	r.Use(Logger(testLogger(), m))
	r.Get("/api/v1/files/{bucket}/*", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/api/v1/files/a/x.mp3", "/api/v1/files/b/y.mp3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	want := `
# HELP tubevault_http_requests_total HTTP requests by method, route and status.
# TYPE tubevault_http_requests_total counter
tubevault_http_requests_total{method="GET",route="/api/v1/files/{bucket}/*",status="4xx"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "tubevault_http_requests_total"); err != nil {
		t.Error(err)
	}
}

func TestResponseWriter_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.Write([]byte("data: x\n\n"))
	rw.Flush()

	if !rec.Flushed {
		t.Error("underlying writer was not flushed")
	}
	if rw.size != len("data: x\n\n") {
		t.Errorf("size = %d", rw.size)
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(w.Body.String(), "internal server error") {
		t.Errorf("body = %q", w.Body.String())
	}
}
