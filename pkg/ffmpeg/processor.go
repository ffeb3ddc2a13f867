// Package ffmpeg probes the ffmpeg installation yt-dlp relies on for
// merging and audio extraction.
package ffmpeg

import (
	"context"
	"os/exec"
	"regexp"
	"strings"

	"github.com/iconidentify/tubevault/pkg/command"
)

// UnknownVersion is reported when ffmpeg cannot be probed.
const UnknownVersion = "Unknown"

var versionPattern = regexp.MustCompile(`ffmpeg version ([\d.]+)`)

// Prober reports on the local ffmpeg binary.
type Prober struct {
	path   string
	runner command.Runner
}

// NewProber creates a prober for the ffmpeg executable at path.
func NewProber(path string, runner command.Runner) *Prober {
	if path == "" {
		path = "ffmpeg"
	}
	return &Prober{path: path, runner: runner}
}

// Version returns the numeric ffmpeg version, the first output line when the
// banner has an unexpected shape, or UnknownVersion.
func (p *Prober) Version(ctx context.Context) string {
	res, err := p.runner.Run(ctx, p.path, "-version")
	if err != nil || res.ExitCode != 0 {
		return UnknownVersion
	}
	return ParseVersion(string(res.Stdout))
}

// ParseVersion extracts the version from "ffmpeg -version" output.
func ParseVersion(output string) string {
	if m := versionPattern.FindStringSubmatch(output); m != nil {
		return m[1]
	}
	first, _, _ := strings.Cut(output, "\n")
	if first = strings.TrimSpace(first); first != "" {
		return first
	}
	return UnknownVersion
}

// IsAvailable checks if ffmpeg is on PATH (or at the configured path).
func (p *Prober) IsAvailable() bool {
	_, err := exec.LookPath(p.path)
	return err == nil
}
