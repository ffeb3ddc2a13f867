package domain

import "errors"

// Domain errors.
var (
	// ErrInvalidRequest is returned when a download request is missing its URL or is malformed.
	ErrInvalidRequest = errors.New("invalid download request")

	// ErrMetadataFailed is returned when the media tool cannot describe a URL.
	ErrMetadataFailed = errors.New("metadata resolution failed")

	// ErrDownloadFailed is returned when the media tool exits non-zero.
	ErrDownloadFailed = errors.New("download failed")

	// ErrOutputMissing is returned when the media tool exits cleanly but no file was produced.
	ErrOutputMissing = errors.New("download succeeded but file not found")

	// ErrDownloadTimeout is returned when the media tool is killed after the configured timeout.
	ErrDownloadTimeout = errors.New("download timed out")

	// ErrStoreFailed is returned when the object store cannot complete an operation.
	ErrStoreFailed = errors.New("object store operation failed")

	// ErrObjectNotFound is returned when a key does not exist in a bucket.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when a bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrUnauthorized is returned when a privileged operation has no valid identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when an identity lacks the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidToken is returned when a bearer token fails validation.
	ErrInvalidToken = errors.New("invalid token")
)

// DownloadError wraps an error with orchestration context.
// Detail holds the raw diagnostic of the failing layer (stderr, parse error).
type DownloadError struct {
	Op     string
	Key    string
	Detail string
	Err    error
}

func (e *DownloadError) Error() string {
	msg := e.Op
	if e.Key != "" {
		msg += " [" + e.Key + "]"
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// NewDownloadError creates a new DownloadError.
func NewDownloadError(op, key string, err error, detail string) *DownloadError {
	return &DownloadError{
		Op:     op,
		Key:    key,
		Detail: detail,
		Err:    err,
	}
}

// Diagnostic returns the raw diagnostic text carried by err, if any.
func Diagnostic(err error) string {
	var de *DownloadError
	if errors.As(err, &de) {
		return de.Detail
	}
	return ""
}
