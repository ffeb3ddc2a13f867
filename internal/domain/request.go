package domain

import (
	"fmt"
	"strings"
)

const (
	// DefaultAudioQuality is the bitrate label used when an audio request names none.
	DefaultAudioQuality = "192k"

	// DefaultAudioFormat is the codec used for audio extraction when none is requested.
	DefaultAudioFormat = "mp3"

	// DefaultVideoFormat selects the best video stream merged with the best audio stream.
	DefaultVideoFormat = "bestvideo+bestaudio"

	// UnknownQuality labels requests that name neither a resolution nor a format.
	UnknownQuality = "unknown"
)

// DownloadRequest describes one media download. It carries no identity of its
// own: two requests with equal fields resolve to the same stored artifact.
type DownloadRequest struct {
	URL          string `json:"url"`
	Format       string `json:"format,omitempty"`
	ExtractAudio bool   `json:"extractAudio"`
	AudioFormat  string `json:"audioFormat,omitempty"`
	AudioQuality string `json:"audioQuality,omitempty"`
	Resolution   string `json:"resolution,omitempty"`
	MergeAudio   bool   `json:"mergeAudio"`
}

// Validate checks that the request can be handed to the media tool.
func (r DownloadRequest) Validate() error {
	u := strings.TrimSpace(r.URL)
	if u == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	// A leading dash would be parsed as a tool option.
	if strings.HasPrefix(u, "-") {
		return fmt.Errorf("%w: url must not start with '-'", ErrInvalidRequest)
	}
	if strings.ContainsAny(u, "\r\n\x00") {
		return fmt.Errorf("%w: url contains control characters", ErrInvalidRequest)
	}
	return nil
}

// Normalize returns r with the quality fields trimmed and lower-cased, the
// form used for classification, key derivation and tool arguments.
func (r DownloadRequest) Normalize() DownloadRequest {
	r.URL = strings.TrimSpace(r.URL)
	r.AudioQuality = strings.ToLower(strings.TrimSpace(r.AudioQuality))
	r.Resolution = strings.ToLower(strings.TrimSpace(r.Resolution))
	return r
}

// QualityLabel returns the human label embedded in the stored object key.
func (r DownloadRequest) QualityLabel() string {
	if r.ExtractAudio {
		if r.AudioQuality != "" {
			return r.AudioQuality
		}
		return DefaultAudioQuality
	}
	if r.Resolution != "" {
		return r.Resolution
	}
	if r.Format != "" {
		return r.Format
	}
	return UnknownQuality
}

// AudioCodec returns the requested extraction codec or the default.
func (r DownloadRequest) AudioCodec() string {
	if r.AudioFormat != "" {
		return strings.ToLower(r.AudioFormat)
	}
	return DefaultAudioFormat
}

// Extension returns the file extension of the finished artifact, including the dot.
func (r DownloadRequest) Extension() string {
	if r.ExtractAudio {
		switch codec := r.AudioCodec(); codec {
		case "best", "":
			return "." + DefaultAudioFormat
		case "vorbis":
			return ".ogg"
		default:
			return "." + codec
		}
	}
	return ".mp4"
}
