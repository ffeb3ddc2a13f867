package ytdlp

import (
	"path/filepath"
	"strings"

	"github.com/iconidentify/tubevault/internal/domain"
)

// OutputTemplate is the yt-dlp filename template: the video title with the
// extension the tool picks.
const OutputTemplate = "%(title)s.%(ext)s"

// InfoArgs returns the argument vector that dumps single-video metadata as JSON.
func InfoArgs(url string) []string {
	return []string{url, "--dump-json", "--no-playlist"}
}

// VersionArgs returns the argument vector of a version probe.
func VersionArgs() []string {
	return []string{"--version"}
}

// DownloadArgs builds the argument vector for downloading req into outputDir.
// The URL travels as a single element and is never shell-interpreted.
func DownloadArgs(req domain.DownloadRequest, outputDir string) []string {
	args := []string{
		req.URL,
		"-o", filepath.Join(outputDir, OutputTemplate),
		"--no-playlist",
	}

	if req.ExtractAudio {
		return append(args, audioArgs(req)...)
	}
	return append(args, videoArgs(req)...)
}

func audioArgs(req domain.DownloadRequest) []string {
	format := "bestaudio"
	// A format ending in "k" is a bitrate sent in the wrong field, not a selector.
	if req.Format != "" && !strings.HasSuffix(req.Format, "k") {
		format = req.Format
	}

	quality := req.AudioQuality
	if quality == "" {
		quality = "0"
	}

	return []string{
		"-f", format,
		"-x",
		"--audio-format", req.AudioCodec(),
		"--audio-quality", quality,
	}
}

func videoArgs(req domain.DownloadRequest) []string {
	format := SelectVideoFormat(req)
	args := []string{"-f", format}
	if strings.Contains(format, "+") {
		// Keeps the merged container aligned with the .mp4 object key.
		args = append(args, "--merge-output-format", "mp4")
	}
	return args
}

// SelectVideoFormat returns the format selector for a video request.
func SelectVideoFormat(req domain.DownloadRequest) string {
	if req.Format == "" {
		return domain.DefaultVideoFormat
	}
	if req.MergeAudio && !strings.Contains(req.Format, "+") && !strings.Contains(req.Format, "bestaudio") {
		return req.Format + "+bestaudio"
	}
	return req.Format
}
