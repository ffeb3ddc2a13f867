package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/tubevault/internal/config"
	"github.com/iconidentify/tubevault/internal/domain"
	"github.com/iconidentify/tubevault/internal/repository"
	"github.com/iconidentify/tubevault/pkg/command"
	"github.com/iconidentify/tubevault/pkg/ytdlp"
)

// fakeYtDlp stands in for the yt-dlp executable and counts its invocations.
type fakeYtDlp struct {
	mu            sync.Mutex
	title         string
	calls         int
	infoCalls     int
	downloadCalls int
	downloadDelay time.Duration
	failDownload  bool
	hang          bool

	// noOutput exits 0 leaving only a partial file behind.
	noOutput bool
}

func (f *fakeYtDlp) Run(ctx context.Context, name string, args ...string) (*command.Result, error) {
	f.mu.Lock()
	f.calls++
	switch {
	case hasArg(args, "--version"):
		f.mu.Unlock()
		return &command.Result{Stdout: []byte("2024.08.06\n")}, nil
	case hasArg(args, "--dump-json"):
		f.infoCalls++
		f.mu.Unlock()
		return &command.Result{Stdout: []byte(fmt.Sprintf(`{"title": %q, "formats": []}`, f.title))}, nil
	}
	f.downloadCalls++
	f.mu.Unlock()

	if f.hang {
		<-ctx.Done()
		return &command.Result{ExitCode: -1}, ctx.Err()
	}
	if f.downloadDelay > 0 {
		time.Sleep(f.downloadDelay)
	}
	if f.failDownload {
		return &command.Result{ExitCode: 1, Stderr: []byte("ERROR: Video unavailable")}, nil
	}

	ext := "mp4"
	if hasArg(args, "-x") {
		ext = argAfter(args, "--audio-format")
	}
	path := argAfter(args, "-o")
	path = strings.ReplaceAll(path, "%(title)s", f.title)
	path = strings.ReplaceAll(path, "%(ext)s", ext)
	if f.noOutput {
		path += ".part"
	}
	if err := os.WriteFile(path, []byte("media-bytes"), 0644); err != nil {
		return nil, err
	}
	return &command.Result{}, nil
}

func (f *fakeYtDlp) counts() (total, info, download int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.infoCalls, f.downloadCalls
}

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// failingStore injects errors into an in-memory store.
type failingStore struct {
	*repository.InMemoryObjectStore
	statErr   error
	uploadErr error
	listErr   error
}

func (s *failingStore) Stat(ctx context.Context, bucket, key string) (*domain.ObjectStat, error) {
	if s.statErr != nil {
		return nil, s.statErr
	}
	return s.InMemoryObjectStore.Stat(ctx, bucket, key)
}

func (s *failingStore) Upload(ctx context.Context, bucket, key string, content io.Reader, size int64, contentType string) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	return s.InMemoryObjectStore.Upload(ctx, bucket, key, content, size, contentType)
}

func (s *failingStore) List(ctx context.Context, bucket string) ([]domain.ObjectInfo, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.InMemoryObjectStore.List(ctx, bucket)
}

type testEnv struct {
	svc     *DownloadService
	tool    *fakeYtDlp
	store   repository.ObjectStore
	history *EventService
	scratch string
}

func newTestEnv(t *testing.T, store repository.ObjectStore, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.YtDlp = config.YtDlpConfig{
		ExecutablePath: "yt-dlp",
		ScratchPath:    t.TempDir(),
		Timeout:        5 * time.Second,
		InfoTimeout:    5 * time.Second,
	}
	cfg.Store.Bucket = "media"
	cfg.Download.SerializeByKey = true
	if mutate != nil {
		mutate(cfg)
	}

	history, err := NewEventService(config.HistoryConfig{RingBufferSize: 50}, testLogger())
	if err != nil {
		t.Fatalf("failed to create event service: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	tool := &fakeYtDlp{title: "My Video"}
	svc, err := NewDownloadService(cfg, DownloadServiceDeps{
		Tool:    ytdlp.NewClient(cfg.YtDlp, tool, testLogger()),
		Store:   store,
		History: history,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("failed to create download service: %v", err)
	}
	t.Cleanup(svc.Close)

	return &testEnv{svc: svc, tool: tool, store: store, history: history, scratch: cfg.YtDlp.ScratchPath}
}

func (e *testEnv) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.scratch)
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch dir has %d leftover entries", len(entries))
	}
}

func audioRequest() domain.DownloadRequest {
	return domain.DownloadRequest{
		URL:          "https://www.youtube.com/watch?v=abc",
		ExtractAudio: true,
		AudioFormat:  "mp3",
		AudioQuality: "128k",
	}
}

func TestDownloadAndUpload_UploadsNewArtifact(t *testing.T) {
	store := repository.NewInMemoryObjectStore()
	env := newTestEnv(t, store, nil)

	res, err := env.svc.DownloadAndUpload(context.Background(), audioRequest(), "")
	if err != nil {
		t.Fatalf("DownloadAndUpload failed: %v", err)
	}

	if !res.Success || res.Message != MessageFileReady {
		t.Errorf("result = %+v, want success with %q", res, MessageFileReady)
	}
	if res.FileName != "My Video [128k].mp3" {
		t.Errorf("FileName = %q, want %q", res.FileName, "My Video [128k].mp3")
	}
	if want := "media/My%20Video%20%5B128k%5D.mp3"; res.DownloadReference != want {
		t.Errorf("DownloadReference = %q, want %q", res.DownloadReference, want)
	}

	stat, err := store.Stat(context.Background(), "media", "My Video [128k].mp3")
	if err != nil || !stat.Present {
		t.Fatalf("object not stored: stat=%+v err=%v", stat, err)
	}
	env.assertScratchEmpty(t)

	events := env.history.GetRecent(10)
	if len(events) != 1 || events[0].Outcome != domain.OutcomeUploaded {
		t.Errorf("history = %+v, want one uploaded event", events)
	}
}

func TestDownloadAndUpload_RepeatRequestRunsNoCommands(t *testing.T) {
	env := newTestEnv(t, repository.NewInMemoryObjectStore(), nil)
	ctx := context.Background()

	first, err := env.svc.DownloadAndUpload(ctx, audioRequest(), "")
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	before, _, _ := env.tool.counts()

	second, err := env.svc.DownloadAndUpload(ctx, audioRequest(), "")
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	after, _, _ := env.tool.counts()

	if after != before {
		t.Errorf("second call ran %d commands, want 0", after-before)
	}
	if second.Message != MessageFileExists {
		t.Errorf("Message = %q, want %q", second.Message, MessageFileExists)
	}
	if second.FileName != first.FileName || second.DownloadReference != first.DownloadReference {
		t.Errorf("second = %+v, want same key as %+v", second, first)
	}
}

func TestDownloadAndUpload_StoredObjectSkipsDownload(t *testing.T) {
	store := repository.NewInMemoryObjectStore()
	data := []byte("already here")
	if err := store.Upload(context.Background(), "media", "My Video [128k].mp3", bytes.NewReader(data), int64(len(data)), "audio/mpeg"); err != nil {
		t.Fatalf("seed upload failed: %v", err)
	}
	env := newTestEnv(t, store, nil)

	res, err := env.svc.DownloadAndUpload(context.Background(), audioRequest(), "")
	if err != nil {
		t.Fatalf("DownloadAndUpload failed: %v", err)
	}
	if res.Message != MessageFileExists {
		t.Errorf("Message = %q, want %q", res.Message, MessageFileExists)
	}
	if _, info, download := env.tool.counts(); info != 1 || download != 0 {
		t.Errorf("info calls = %d, download calls = %d; want 1 and 0", info, download)
	}
}

func TestDownloadAndUpload_StaleKeyIsDownloadedAgain(t *testing.T) {
	store := repository.NewInMemoryObjectStore()
	env := newTestEnv(t, store, nil)
	ctx := context.Background()

	if _, err := env.svc.DownloadAndUpload(ctx, audioRequest(), ""); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if err := store.Delete(ctx, "media", "My Video [128k].mp3"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	res, err := env.svc.DownloadAndUpload(ctx, audioRequest(), "")
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if res.Message != MessageFileReady {
		t.Errorf("Message = %q, want %q", res.Message, MessageFileReady)
	}
	if _, _, download := env.tool.counts(); download != 2 {
		t.Errorf("download calls = %d, want 2", download)
	}
}

func TestDownloadAndUpload_ConcurrentRequestsDownloadOnce(t *testing.T) {
	env := newTestEnv(t, repository.NewInMemoryObjectStore(), nil)
	env.tool.downloadDelay = 100 * time.Millisecond

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.DownloadAndUpload(context.Background(), audioRequest(), "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent call failed: %v", err)
		}
	}
	if _, _, download := env.tool.counts(); download != 1 {
		t.Errorf("download calls = %d, want 1", download)
	}
}

func TestDownloadAndUpload_InvalidRequest(t *testing.T) {
	env := newTestEnv(t, repository.NewInMemoryObjectStore(), nil)

	_, err := env.svc.DownloadAndUpload(context.Background(), domain.DownloadRequest{ExtractAudio: true}, "")
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
	if total, _, _ := env.tool.counts(); total != 0 {
		t.Errorf("commands run = %d, want 0", total)
	}
}

func TestDownloadAndUpload_DownloadFailureCleansScratch(t *testing.T) {
	store := repository.NewInMemoryObjectStore()
	env := newTestEnv(t, store, nil)
	env.tool.failDownload = true

	_, err := env.svc.DownloadAndUpload(context.Background(), audioRequest(), "")
	if !errors.Is(err, domain.ErrDownloadFailed) {
		t.Fatalf("err = %v, want ErrDownloadFailed", err)
	}
	if got := domain.Diagnostic(err); !strings.Contains(got, "Video unavailable") {
		t.Errorf("Diagnostic = %q, want the tool's stderr", got)
	}
	env.assertScratchEmpty(t)

	objects, _ := store.List(context.Background(), "media")
	if len(objects) != 0 {
		t.Errorf("store has %d objects, want 0", len(objects))
	}

	events := env.history.GetRecent(10)
	if len(events) != 1 || events[0].Outcome != domain.OutcomeFailed {
		t.Errorf("history = %+v, want one failed event", events)
	}
}

func TestDownloadAndUpload_MissingOutputCleansScratch(t *testing.T) {
	store := repository.NewInMemoryObjectStore()
	env := newTestEnv(t, store, nil)
	env.tool.noOutput = true

	_, err := env.svc.DownloadAndUpload(context.Background(), audioRequest(), "")
	if !errors.Is(err, domain.ErrOutputMissing) {
		t.Fatalf("err = %v, want ErrOutputMissing", err)
	}
	if got := domain.Diagnostic(err); !strings.Contains(got, "file not found") {
		t.Errorf("Diagnostic = %q, want file not found", got)
	}
	env.assertScratchEmpty(t)

	objects, _ := store.List(context.Background(), "media")
	if len(objects) != 0 {
		t.Errorf("store has %d objects, want 0", len(objects))
	}
}

func TestDownloadAndUpload_UploadFailureCleansScratch(t *testing.T) {
	store := &failingStore{
		InMemoryObjectStore: repository.NewInMemoryObjectStore(),
		uploadErr:           errors.New("connection reset"),
	}
	env := newTestEnv(t, store, nil)

	_, err := env.svc.DownloadAndUpload(context.Background(), audioRequest(), "")
	if !errors.Is(err, domain.ErrStoreFailed) {
		t.Fatalf("err = %v, want ErrStoreFailed", err)
	}
	env.assertScratchEmpty(t)
}

func TestDownloadAndUpload_TimeoutCleansScratch(t *testing.T) {
	env := newTestEnv(t, repository.NewInMemoryObjectStore(), func(cfg *config.Config) {
		cfg.YtDlp.Timeout = 50 * time.Millisecond
	})
	env.tool.hang = true

	_, err := env.svc.DownloadAndUpload(context.Background(), audioRequest(), "")
	if !errors.Is(err, domain.ErrDownloadTimeout) {
		t.Fatalf("err = %v, want ErrDownloadTimeout", err)
	}
	env.assertScratchEmpty(t)
}

func TestDownloadAndUpload_ExistenceCheckFailure(t *testing.T) {
	tests := []struct {
		name         string
		missOnError  bool
		wantErr      error
		wantDownload int
	}{
		{"blocks by default", false, domain.ErrStoreFailed, 0},
		{"treated as miss", true, nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &failingStore{
				InMemoryObjectStore: repository.NewInMemoryObjectStore(),
				statErr:             errors.New("dial tcp: connection refused"),
			}
			env := newTestEnv(t, store, func(cfg *config.Config) {
				cfg.Store.MissOnCheckError = tt.missOnError
			})

			_, err := env.svc.DownloadAndUpload(context.Background(), audioRequest(), "")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if _, _, download := env.tool.counts(); download != tt.wantDownload {
				t.Errorf("download calls = %d, want %d", download, tt.wantDownload)
			}
		})
	}
}

func TestCheckFile(t *testing.T) {
	store := repository.NewInMemoryObjectStore()
	data := []byte("x")
	if err := store.Upload(context.Background(), "media", "My Video [128k].mp3", bytes.NewReader(data), 1, "audio/mpeg"); err != nil {
		t.Fatalf("seed upload failed: %v", err)
	}
	env := newTestEnv(t, store, nil)

	tests := []struct {
		name      string
		req       CheckFileRequest
		wantFound bool
		wantName  string
	}{
		{"exact file name", CheckFileRequest{FileName: "My Video [128k].mp3"}, true, "My Video [128k].mp3"},
		{"case-insensitive base name", CheckFileRequest{FileName: "my video [128K].m4a"}, true, "My Video [128k].mp3"},
		{"resolved from url", CheckFileRequest{URL: "https://x/v", QualityLabel: "128k", MediaType: "audio"}, true, "My Video [128k].mp3"},
		{"missing", CheckFileRequest{FileName: "Other.mp3"}, false, ""},
		{"missing bucket", CheckFileRequest{FileName: "My Video [128k].mp3", Bucket: "nope"}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.svc.CheckFile(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("CheckFile failed: %v", err)
			}
			if res.Exists != tt.wantFound || res.FileName != tt.wantName {
				t.Errorf("result = %+v, want exists=%v name=%q", res, tt.wantFound, tt.wantName)
			}
		})
	}
}

func TestCheckFile_StoreErrorReportsAbsent(t *testing.T) {
	store := &failingStore{
		InMemoryObjectStore: repository.NewInMemoryObjectStore(),
		statErr:             errors.New("boom"),
	}
	env := newTestEnv(t, store, nil)

	res, err := env.svc.CheckFile(context.Background(), CheckFileRequest{FileName: "a.mp3"})
	if err != nil {
		t.Fatalf("CheckFile failed: %v", err)
	}
	if res.Exists {
		t.Error("Exists = true, want false on store error")
	}
}

func TestCheckFile_RequiresURLOrFileName(t *testing.T) {
	env := newTestEnv(t, repository.NewInMemoryObjectStore(), nil)

	_, err := env.svc.CheckFile(context.Background(), CheckFileRequest{})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestFetch_CloseRemovesScratch(t *testing.T) {
	env := newTestEnv(t, repository.NewInMemoryObjectStore(), nil)

	f, err := env.svc.Fetch(context.Background(), domain.DownloadRequest{URL: "https://x/v"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if f.Name != "My Video.mp4" {
		t.Errorf("Name = %q, want %q", f.Name, "My Video.mp4")
	}
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "media-bytes" {
		t.Errorf("content = %q", data)
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	env.assertScratchEmpty(t)
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.mp4":     "video/mp4",
		"a.unknown": "application/octet-stream",
	}
	for key, want := range tests {
		if got := ContentType(key); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", key, got, want)
		}
	}
}
