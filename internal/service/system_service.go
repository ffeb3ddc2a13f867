package service

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/tubevault/internal/repository"
)

const serviceName = "tubevault"

var startTime = time.Now()

// VersionProber reports the version of an external tool.
type VersionProber interface {
	Version(ctx context.Context) string
}

// Versions lists the external tool versions.
type Versions struct {
	YtDlp     string    `json:"ytdlp"`
	FFmpeg    string    `json:"ffmpeg"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

// Readiness is the result of a readiness check.
type Readiness struct {
	Ready          bool   `json:"ready"`
	Store          string `json:"store"`
	ScratchPath    string `json:"scratchPath"`
	ScratchFree    int64  `json:"scratchFreeBytes"`
	ScratchFreeStr string `json:"scratchFree"`
}

// SystemStats contains process resource statistics.
type SystemStats struct {
	Uptime        int64  `json:"uptime_seconds"`
	UptimeHuman   string `json:"uptime_human"`
	MemAlloc      string `json:"mem_alloc"`
	MemSys        string `json:"mem_sys"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	ScratchFree   string `json:"scratch_free"`
}

// SystemService reports tool versions and service health.
type SystemService struct {
	ytdlp   VersionProber
	ffmpeg  VersionProber
	store   repository.ObjectStore
	scratch string
	minFree int64
}

// NewSystemService creates a new system service. Readiness fails when the
// scratch directory has less than minFree bytes available.
func NewSystemService(ytdlp, ffmpeg VersionProber, store repository.ObjectStore, scratch string, minFree int64) *SystemService {
	return &SystemService{
		ytdlp:   ytdlp,
		ffmpeg:  ffmpeg,
		store:   store,
		scratch: scratch,
		minFree: minFree,
	}
}

// Versions probes yt-dlp and ffmpeg.
func (s *SystemService) Versions(ctx context.Context) Versions {
	return Versions{
		YtDlp:     s.ytdlp.Version(ctx),
		FFmpeg:    s.ffmpeg.Version(ctx),
		Service:   serviceName,
		Timestamp: time.Now().UTC(),
	}
}

// Ready checks the object store and the scratch directory.
func (s *SystemService) Ready(ctx context.Context) Readiness {
	free := getFreeDiskSpace(s.scratch)
	r := Readiness{
		Ready:          true,
		Store:          "ok",
		ScratchPath:    s.scratch,
		ScratchFree:    free,
		ScratchFreeStr: humanize.IBytes(uint64(max(free, 0))),
	}
	if err := s.store.Ping(ctx); err != nil {
		r.Ready = false
		r.Store = err.Error()
	}
	if free < s.minFree {
		r.Ready = false
	}
	return r
}

// Stats returns process statistics.
func (s *SystemService) Stats() SystemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)
	return SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAlloc:      humanize.IBytes(m.Alloc),
		MemSys:        humanize.IBytes(m.Sys),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		ScratchFree:   humanize.IBytes(uint64(max(getFreeDiskSpace(s.scratch), 0))),
	}
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
