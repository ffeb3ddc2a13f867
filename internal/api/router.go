package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iconidentify/tubevault/internal/api/handler"
	mw "github.com/iconidentify/tubevault/internal/api/middleware"
	"github.com/iconidentify/tubevault/internal/auth"
	"github.com/iconidentify/tubevault/internal/metrics"
)

// Deps groups what the router needs.
type Deps struct {
	Downloads *handler.DownloadHandler
	Admin     *handler.AdminHandler
	System    *handler.SystemHandler
	Validator auth.Validator
	AdminRole string
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger

	// RequestTimeout bounds non-streaming requests. Downloads can run for as
	// long as the media tool timeout, so it should exceed that.
	RequestTimeout time.Duration
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(d.Logger, d.Metrics))
	r.Use(mw.Recovery(d.Logger))
	r.Use(mw.CORS)

	// Probes and metrics (no auth)
	r.Get("/health", d.System.Live)
	r.Get("/ready", d.System.Ready)
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	timeout := func(next http.Handler) http.Handler { return next }
	if d.RequestTimeout > 0 {
		timeout = middleware.Timeout(d.RequestTimeout)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Identity(d.Validator, d.Logger))

		r.Group(func(r chi.Router) {
			r.Use(timeout)

			r.Get("/info", d.Downloads.Info)
			r.Post("/check-file", d.Downloads.CheckFile)
			r.Post("/download-and-upload", d.Downloads.DownloadAndUpload)
			r.Post("/download", d.Downloads.Download)
			r.Get("/files/{bucket}/*", d.Downloads.File)

			r.Get("/system/versions", d.System.Versions)
			r.Get("/system/stats", d.System.Stats)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(mw.RequireRole(d.AdminRole))

			// Live history stream is exempt from the request timeout.
			r.Get("/history/stream", d.Admin.HistoryStream)

			r.Group(func(r chi.Router) {
				r.Use(timeout)

				r.Post("/buckets/{bucket}", d.Admin.CreateBucket)
				r.Get("/buckets/{bucket}/objects", d.Admin.ListObjects)
				r.Delete("/buckets/{bucket}/objects/*", d.Admin.DeleteObject)
				r.Get("/buckets/{bucket}/stats", d.Admin.BucketStats)
				r.Get("/history", d.Admin.History)
				r.Get("/history/stats", d.Admin.HistoryStats)
			})
		})
	})

	return r
}
