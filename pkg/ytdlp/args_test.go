package ytdlp

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/iconidentify/tubevault/internal/domain"
)

func TestDownloadArgs(t *testing.T) {
	out := filepath.Join("scratch", "abc")
	tmpl := filepath.Join(out, OutputTemplate)

	tests := []struct {
		name string
		req  domain.DownloadRequest
		want []string
	}{
		{
			name: "audio defaults",
			req:  domain.DownloadRequest{URL: "u", ExtractAudio: true},
			want: []string{"u", "-o", tmpl, "--no-playlist", "-f", "bestaudio", "-x", "--audio-format", "mp3", "--audio-quality", "0"},
		},
		{
			name: "audio with codec and bitrate",
			req:  domain.DownloadRequest{URL: "u", ExtractAudio: true, AudioFormat: "OPUS", AudioQuality: "128k"},
			want: []string{"u", "-o", tmpl, "--no-playlist", "-f", "bestaudio", "-x", "--audio-format", "opus", "--audio-quality", "128k"},
		},
		{
			name: "audio ignores bitrate in format field",
			req:  domain.DownloadRequest{URL: "u", ExtractAudio: true, Format: "320k"},
			want: []string{"u", "-o", tmpl, "--no-playlist", "-f", "bestaudio", "-x", "--audio-format", "mp3", "--audio-quality", "0"},
		},
		{
			name: "audio with explicit selector",
			req:  domain.DownloadRequest{URL: "u", ExtractAudio: true, Format: "140"},
			want: []string{"u", "-o", tmpl, "--no-playlist", "-f", "140", "-x", "--audio-format", "mp3", "--audio-quality", "0"},
		},
		{
			name: "video default merges",
			req:  domain.DownloadRequest{URL: "u"},
			want: []string{"u", "-o", tmpl, "--no-playlist", "-f", "bestvideo+bestaudio", "--merge-output-format", "mp4"},
		},
		{
			name: "video with merge audio",
			req:  domain.DownloadRequest{URL: "u", Format: "137", MergeAudio: true},
			want: []string{"u", "-o", tmpl, "--no-playlist", "-f", "137+bestaudio", "--merge-output-format", "mp4"},
		},
		{
			name: "video single format",
			req:  domain.DownloadRequest{URL: "u", Format: "18"},
			want: []string{"u", "-o", tmpl, "--no-playlist", "-f", "18"},
		},
		{
			name: "shell metacharacters stay in one element",
			req:  domain.DownloadRequest{URL: "https://x/?a=1;rm -rf /", Format: "18"},
			want: []string{"https://x/?a=1;rm -rf /", "-o", tmpl, "--no-playlist", "-f", "18"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DownloadArgs(tt.req, out)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DownloadArgs() =\n %q\nwant\n %q", got, tt.want)
			}
		})
	}
}

func TestSelectVideoFormat(t *testing.T) {
	tests := []struct {
		req  domain.DownloadRequest
		want string
	}{
		{domain.DownloadRequest{}, "bestvideo+bestaudio"},
		{domain.DownloadRequest{Format: "22"}, "22"},
		{domain.DownloadRequest{Format: "22", MergeAudio: true}, "22+bestaudio"},
		{domain.DownloadRequest{Format: "137+140", MergeAudio: true}, "137+140"},
		{domain.DownloadRequest{Format: "bestaudio", MergeAudio: true}, "bestaudio"},
	}
	for _, tt := range tests {
		if got := SelectVideoFormat(tt.req); got != tt.want {
			t.Errorf("SelectVideoFormat(%+v) = %q, want %q", tt.req, got, tt.want)
		}
	}
}
