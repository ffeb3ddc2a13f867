// Package ytdlp drives the yt-dlp command-line tool: metadata resolution,
// version probing and downloads into a caller-owned directory.
package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iconidentify/tubevault/internal/config"
	"github.com/iconidentify/tubevault/internal/domain"
	"github.com/iconidentify/tubevault/pkg/command"
)

// UnknownVersion is reported when the version probe fails or exits non-zero.
const UnknownVersion = "Unknown"

// toolUnavailable replaces runner errors in diagnostics; they name the
// executable path.
const toolUnavailable = "media tool could not be started"

// DownloadResult describes the file produced by a download.
type DownloadResult struct {
	FilePath string
	FileName string
	Size     int64
}

// Client runs yt-dlp through a command.Runner.
type Client struct {
	path        string
	runner      command.Runner
	timeout     time.Duration
	infoTimeout time.Duration
	logger      *slog.Logger
}

// NewClient creates a yt-dlp client from configuration.
func NewClient(cfg config.YtDlpConfig, runner command.Runner, logger *slog.Logger) *Client {
	path := cfg.ExecutablePath
	if path == "" {
		path = "yt-dlp"
	}
	return &Client{
		path:        path,
		runner:      runner,
		timeout:     cfg.Timeout,
		infoTimeout: cfg.InfoTimeout,
		logger:      logger,
	}
}

// Version returns the trimmed output of "yt-dlp --version", or UnknownVersion.
func (c *Client) Version(ctx context.Context) string {
	res, err := c.runner.Run(ctx, c.path, VersionArgs()...)
	if err != nil {
		c.logger.Warn("yt-dlp version probe failed", "error", err)
		return UnknownVersion
	}
	out := strings.TrimSpace(string(res.Stdout))
	if res.ExitCode != 0 || out == "" {
		return UnknownVersion
	}
	return out
}

// Info resolves the metadata of a single video without downloading it.
func (c *Client) Info(ctx context.Context, url string) (*domain.VideoMetadata, error) {
	ctx, cancel := withTimeout(ctx, c.infoTimeout)
	defer cancel()

	res, err := c.runner.Run(ctx, c.path, InfoArgs(url)...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewDownloadError("resolve metadata", "", domain.ErrDownloadTimeout, "")
		}
		c.logger.Error("yt-dlp could not be run", "error", err)
		return nil, domain.NewDownloadError("resolve metadata", "", domain.ErrMetadataFailed, toolUnavailable)
	}

	if res.ExitCode != 0 || strings.TrimSpace(string(res.Stdout)) == "" {
		return nil, domain.NewDownloadError("resolve metadata", "", domain.ErrMetadataFailed,
			strings.TrimSpace(string(res.Stderr)))
	}

	meta, err := ParseInfo(res.Stdout)
	if err != nil {
		return nil, domain.NewDownloadError("resolve metadata", "", domain.ErrMetadataFailed, err.Error())
	}
	return meta, nil
}

// Download runs the tool for req and returns the file it wrote into outputDir.
// outputDir must be owned by the caller alone: the newest file in it is taken
// as the result, since yt-dlp does not report the templated output path.
func (c *Client) Download(ctx context.Context, req domain.DownloadRequest, outputDir string) (*DownloadResult, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, err := c.runner.Run(ctx, c.path, DownloadArgs(req, outputDir)...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewDownloadError("download", "", domain.ErrDownloadTimeout,
				fmt.Sprintf("killed after %s", c.timeout))
		}
		c.logger.Error("yt-dlp could not be run", "error", err)
		return nil, domain.NewDownloadError("download", "", domain.ErrDownloadFailed, toolUnavailable)
	}

	if res.ExitCode != 0 {
		c.logger.Error("yt-dlp download failed",
			"exit_code", res.ExitCode,
			"stderr", scrub(string(res.Stderr), outputDir),
		)
		return nil, domain.NewDownloadError("download", "", domain.ErrDownloadFailed,
			scrub(strings.TrimSpace(string(res.Stderr)), outputDir))
	}

	path, info, err := newestFile(outputDir)
	if err != nil {
		return nil, fmt.Errorf("scan output dir: %w", err)
	}
	if path == "" {
		c.logger.Error("yt-dlp succeeded but produced no file")
		return nil, domain.NewDownloadError("download", "", domain.ErrOutputMissing, "file not found after download")
	}

	c.logger.Info("yt-dlp download complete",
		"file", info.Name(),
		"size", info.Size(),
		"duration", time.Since(start),
	)

	return &DownloadResult{
		FilePath: path,
		FileName: info.Name(),
		Size:     info.Size(),
	}, nil
}

// newestFile returns the most recently modified regular file in dir.
// Partial downloads (.part, .ytdl) are ignored.
func newestFile(dir string) (string, os.FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", nil, err
	}

	var (
		bestPath string
		bestInfo os.FileInfo
	)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if bestInfo == nil || info.ModTime().After(bestInfo.ModTime()) {
			bestPath = filepath.Join(dir, name)
			bestInfo = info
		}
	}
	return bestPath, bestInfo, nil
}

// scrub removes local scratch paths from diagnostics shown to callers.
func scrub(s, dir string) string {
	if dir == "" {
		return s
	}
	s = strings.ReplaceAll(s, dir+string(filepath.Separator), "")
	return strings.ReplaceAll(s, dir, "")
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
