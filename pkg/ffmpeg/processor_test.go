package ffmpeg

import (
	"context"
	"errors"
	"testing"

	"github.com/iconidentify/tubevault/pkg/command"
)

type stubRunner struct {
	res *command.Result
	err error
}

func (s stubRunner) Run(context.Context, string, ...string) (*command.Result, error) {
	return s.res, s.err
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{"release", "ffmpeg version 6.1.1 Copyright (c) 2000-2023\nbuilt with gcc", "6.1.1"},
		{"git build", "ffmpeg version N-112345-gabc Copyright\n", "ffmpeg version N-112345-gabc Copyright"},
		{"empty", "", UnknownVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseVersion(tt.output); got != tt.want {
				t.Errorf("ParseVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProber_Version(t *testing.T) {
	ok := NewProber("", stubRunner{res: &command.Result{Stdout: []byte("ffmpeg version 7.0 Copyright")}})
	if got := ok.Version(context.Background()); got != "7.0" {
		t.Errorf("Version() = %q, want 7.0", got)
	}

	failed := NewProber("", stubRunner{res: &command.Result{ExitCode: 1, Stdout: []byte("ffmpeg version 7.0")}})
	if got := failed.Version(context.Background()); got != UnknownVersion {
		t.Errorf("Version() on non-zero exit = %q, want %q", got, UnknownVersion)
	}

	missing := NewProber("", stubRunner{err: errors.New("not found")})
	if got := missing.Version(context.Background()); got != UnknownVersion {
		t.Errorf("Version() on start failure = %q, want %q", got, UnknownVersion)
	}
}
