//go:build !windows

package command

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExecRunner_CapturesOutput(t *testing.T) {
	r := NewExecRunner()

	res, err := r.Run(context.Background(), "sh", "-c", "echo out; echo err 1>&2")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if got := strings.TrimSpace(string(res.Stdout)); got != "out" {
		t.Errorf("Stdout = %q, want %q", got, "out")
	}
	if got := strings.TrimSpace(string(res.Stderr)); got != "err" {
		t.Errorf("Stderr = %q, want %q", got, "err")
	}
}

func TestExecRunner_NonZeroExitIsNotAnError(t *testing.T) {
	r := NewExecRunner()

	res, err := r.Run(context.Background(), "sh", "-c", "echo boom 1>&2; exit 3")
	if err != nil {
		t.Fatalf("Run should not fail on non-zero exit: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(string(res.Stderr), "boom") {
		t.Errorf("Stderr = %q, want it to contain boom", res.Stderr)
	}
}

func TestExecRunner_ArgumentsAreNotShellInterpreted(t *testing.T) {
	r := NewExecRunner()
	arg := "https://x/?a=1;rm -rf /"

	// printf receives the URL as one argv element and echoes it verbatim.
	res, err := r.Run(context.Background(), "printf", "%s", arg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if string(res.Stdout) != arg {
		t.Errorf("Stdout = %q, want %q", res.Stdout, arg)
	}
}

func TestExecRunner_MissingExecutable(t *testing.T) {
	r := NewExecRunner()

	_, err := r.Run(context.Background(), "definitely-not-a-real-binary-xyz")
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
}

func TestExecRunner_ContextTimeoutKillsProcess(t *testing.T) {
	r := NewExecRunner()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := r.Run(ctx, "sleep", "5")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if res == nil || res.ExitCode != -1 {
		t.Errorf("result = %+v, want ExitCode -1", res)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("process was not killed on timeout")
	}
}
