package domain

import (
	"net/url"
	"path/filepath"
	"strings"
)

// SanitizeFilename drops every byte outside the ASCII range so the result is
// safe as an object key, a filesystem name and a header value. The mapping is
// lossy: non-ASCII title characters disappear.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		if c := name[i]; c < 0x80 {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// WithQualityLabel inserts " [label]" before the extension of fileName.
func WithQualityLabel(fileName, label string) string {
	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)
	return base + " [" + label + "]" + ext
}

// StoredKey builds the sanitized object key for a title, quality label and extension.
func StoredKey(title, label, ext string) string {
	return SanitizeFilename(WithQualityLabel(toolSafeTitle(title)+ext, label))
}

// ProducedKey derives the object key from the file the media tool wrote.
func ProducedKey(fileName, label string) string {
	return SanitizeFilename(WithQualityLabel(filepath.Base(fileName), label))
}

// toolSafeTitle removes the characters yt-dlp replaces with full-width
// look-alikes when templating titles into filenames; those look-alikes are
// non-ASCII and would be stripped anyway.
func toolSafeTitle(title string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, title)
}

// EscapeKey percent-encodes everything except unreserved characters.
func EscapeKey(key string) string {
	return strings.ReplaceAll(url.QueryEscape(key), "+", "%20")
}

// DownloadReference returns "<bucket>/<escaped key>".
func DownloadReference(bucket, key string) string {
	return bucket + "/" + EscapeKey(key)
}

// BaseName returns the key without its extension.
func BaseName(key string) string {
	return strings.TrimSuffix(key, filepath.Ext(key))
}
