package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/tubevault/internal/domain"
	"github.com/iconidentify/tubevault/internal/service"
)

// AdminHandler serves bucket administration and download history.
type AdminHandler struct {
	storage *service.StorageService
	history *service.EventService
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(storage *service.StorageService, history *service.EventService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		storage: storage,
		history: history,
		logger:  logger,
	}
}

// ObjectListResponse lists the objects of a bucket.
type ObjectListResponse struct {
	Bucket  string              `json:"bucketName"`
	Objects []domain.ObjectInfo `json:"objects"`
	Count   int                 `json:"count"`
}

// ListObjects handles GET /api/v1/admin/buckets/{bucket}/objects.
func (h *AdminHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	objects, err := h.storage.ListObjects(r.Context(), bucket)
	if err != nil {
		h.logger.Error("failed to list objects", "bucket", bucket, "error", err)
		writeDomainError(w, err)
		return
	}
	if objects == nil {
		objects = []domain.ObjectInfo{}
	}
	writeJSON(w, http.StatusOK, ObjectListResponse{Bucket: bucket, Objects: objects, Count: len(objects)})
}

// DeleteObject handles DELETE /api/v1/admin/buckets/{bucket}/objects/*.
func (h *AdminHandler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key, err := objectKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid object key")
		return
	}
	if err := h.storage.DeleteObject(r.Context(), bucket, key); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully", "fileName": key})
}

// BucketStats handles GET /api/v1/admin/buckets/{bucket}/stats.
func (h *AdminHandler) BucketStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.storage.Stats(r.Context(), chi.URLParam(r, "bucket"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// CreateBucket handles POST /api/v1/admin/buckets/{bucket}.
func (h *AdminHandler) CreateBucket(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	if err := h.storage.CreateBucket(r.Context(), bucket); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Bucket ready", "bucketName": bucket})
}

// HistoryListResponse contains a page of download history.
type HistoryListResponse struct {
	Events  []domain.Event `json:"events"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	HasMore bool           `json:"has_more"`
}

// History handles GET /api/v1/admin/history
// Query parameters:
//   - outcome: cache_hit, uploaded, failed or rejected
//   - since: only events after this time (RFC3339)
//   - search: search in url, key and message
//   - limit: max events to return (default 50, max 200)
//   - offset: pagination offset
//   - historical: if "true", query SQLite instead of the ring buffer
func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := domain.EventQuery{Limit: 50}

	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			query.Limit = parsed
		}
	}
	if o := q.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			query.Offset = parsed
		}
	}
	if o := q.Get("outcome"); o != "" {
		outcome := domain.EventOutcome(o)
		query.Filter.Outcome = &outcome
	}
	if s := q.Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			query.Filter.Since = &t
		}
	}
	query.Filter.SearchText = q.Get("search")

	var (
		result *domain.EventQueryResult
		err    error
	)
	if q.Get("historical") == "true" {
		result, err = h.history.QueryHistorical(r.Context(), query)
	} else {
		result, err = h.history.Query(r.Context(), query)
	}
	if err != nil {
		h.logger.Error("failed to query history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query history")
		return
	}

	events := result.Events
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, HistoryListResponse{
		Events:  events,
		Total:   result.Total,
		Limit:   query.Limit,
		Offset:  query.Offset,
		HasMore: result.HasMore,
	})
}

// HistoryStats handles GET /api/v1/admin/history/stats.
func (h *AdminHandler) HistoryStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.history.Stats())
}

// HistoryStream handles GET /api/v1/admin/history/stream
// Server-Sent Events endpoint for live download outcomes.
func (h *AdminHandler) HistoryStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, eventCh := h.history.Subscribe()
	defer h.history.Unsubscribe(subID)

	h.logger.Info("SSE client connected", "subscriber_id", subID, "remote_addr", r.RemoteAddr)

	fmt.Fprintf(w, "event: connected\ndata: {\"subscriber_id\": %d}\n\n", subID)
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE client disconnected", "subscriber_id", subID)
			return

		case event, ok := <-eventCh:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("failed to serialize event", "event_id", event.ID, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: download\ndata: %s\n\n", data)
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
