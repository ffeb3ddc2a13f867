package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/tubevault/internal/auth"
	"github.com/iconidentify/tubevault/internal/domain"
	"github.com/iconidentify/tubevault/internal/service"
)

const maxBodyBytes = 64 << 10

// DownloadHandler serves the download, lookup and file endpoints.
type DownloadHandler struct {
	downloads *service.DownloadService
	gate      *auth.Gate
	logger    *slog.Logger
}

// NewDownloadHandler creates a new download handler.
func NewDownloadHandler(downloads *service.DownloadService, gate *auth.Gate, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		downloads: downloads,
		gate:      gate,
		logger:    logger,
	}
}

// DownloadRequest is the JSON body of the download endpoints.
type DownloadRequest struct {
	domain.DownloadRequest
	BucketName string `json:"bucketName,omitempty"`
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidRequest)
	}
	return nil
}

// authorize applies the premium gate and writes the rejection, if any.
func (h *DownloadHandler) authorize(w http.ResponseWriter, r *http.Request, req DownloadRequest) bool {
	err := h.gate.Authorize(req.DownloadRequest, auth.IdentityFrom(r.Context()))
	if err == nil {
		return true
	}
	h.logger.Info("premium download rejected",
		"url", req.URL,
		"tier", domain.ClassifyTier(req.DownloadRequest),
		"error", err,
	)
	h.downloads.RecordRejected(r.Context(), req.DownloadRequest, req.BucketName, err)
	writeDomainError(w, err)
	return false
}

// DownloadAndUpload handles POST /api/v1/download-and-upload.
func (h *DownloadHandler) DownloadAndUpload(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	req.DownloadRequest = req.Normalize()
	if err := req.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if !h.authorize(w, r, req) {
		return
	}

	res, err := h.downloads.DownloadAndUpload(r.Context(), req.DownloadRequest, req.BucketName)
	if err != nil {
		h.logger.Error("download and upload failed", "url", req.URL, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Download handles POST /api/v1/download by streaming the artifact back
// without storing it.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	req.DownloadRequest = req.Normalize()
	if err := req.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if !h.authorize(w, r, req) {
		return
	}

	f, err := h.downloads.Fetch(r.Context(), req.DownloadRequest)
	if err != nil {
		h.logger.Error("download failed", "url", req.URL, "error", err)
		writeDomainError(w, err)
		return
	}
	defer f.Close()

	h.serveAttachment(w, f, f.Name, f.Size)
}

// CheckFile handles POST /api/v1/check-file.
func (h *DownloadHandler) CheckFile(w http.ResponseWriter, r *http.Request) {
	var req service.CheckFileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	res, err := h.downloads.CheckFile(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Info handles GET /api/v1/info?url=.
func (h *DownloadHandler) Info(w http.ResponseWriter, r *http.Request) {
	meta, err := h.downloads.ResolveMetadata(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// File handles GET /api/v1/files/{bucket}/*.
func (h *DownloadHandler) File(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key, err := objectKey(r)
	if err != nil || key == "" {
		writeError(w, http.StatusBadRequest, "invalid object key")
		return
	}

	rc, info, err := h.downloads.OpenObject(r.Context(), bucket, key)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer rc.Close()

	name := domain.SanitizeFilename(path.Base(key))
	if domain.BaseName(name) == "" {
		name = "download" + name
	}
	h.serveAttachment(w, rc, name, info.Size)
}

// serveAttachment streams content as a download named name. name must
// already be sanitized.
func (h *DownloadHandler) serveAttachment(w http.ResponseWriter, content io.Reader, name string, size int64) {
	w.Header().Set("Content-Type", service.ContentType(name))
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	if disposition == "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", disposition)
	if size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if n, err := io.Copy(w, content); err != nil {
		h.logger.Debug("attachment transfer interrupted", "file", name, "written", n, "error", err)
	}
}
