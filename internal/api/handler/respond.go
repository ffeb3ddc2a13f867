package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/tubevault/internal/domain"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// errorStatuses maps domain errors to HTTP statuses, most specific first.
var errorStatuses = []struct {
	err    error
	status int
}{
	{domain.ErrInvalidRequest, http.StatusBadRequest},
	{domain.ErrInvalidToken, http.StatusUnauthorized},
	{domain.ErrUnauthorized, http.StatusUnauthorized},
	{domain.ErrForbidden, http.StatusForbidden},
	{domain.ErrObjectNotFound, http.StatusNotFound},
	{domain.ErrBucketNotFound, http.StatusNotFound},
	{domain.ErrMetadataFailed, http.StatusUnprocessableEntity},
	{domain.ErrDownloadTimeout, http.StatusGatewayTimeout},
	{domain.ErrDownloadFailed, http.StatusInternalServerError},
	{domain.ErrOutputMissing, http.StatusInternalServerError},
	{domain.ErrStoreFailed, http.StatusBadGateway},
}

// writeDomainError writes err with the status and message of the first
// domain error it wraps. Unknown errors become an opaque 500.
func writeDomainError(w http.ResponseWriter, err error) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			msg := e.err.Error()
			if e.status == http.StatusBadRequest {
				msg = err.Error()
			}
			writeJSON(w, e.status, ErrorResponse{Error: msg, Details: domain.Diagnostic(err)})
			return
		}
	}
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// objectKey returns the wildcard object key of a /{bucket}/* route.
func objectKey(r *http.Request) (string, error) {
	key := chi.URLParam(r, "*")
	if r.URL.RawPath == "" {
		return key, nil
	}
	return url.PathUnescape(key)
}
