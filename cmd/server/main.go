package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iconidentify/tubevault/internal/api"
	"github.com/iconidentify/tubevault/internal/api/handler"
	"github.com/iconidentify/tubevault/internal/auth"
	"github.com/iconidentify/tubevault/internal/config"
	"github.com/iconidentify/tubevault/internal/metrics"
	"github.com/iconidentify/tubevault/internal/repository"
	"github.com/iconidentify/tubevault/internal/service"
	"github.com/iconidentify/tubevault/pkg/command"
	"github.com/iconidentify/tubevault/pkg/ffmpeg"
	"github.com/iconidentify/tubevault/pkg/ytdlp"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tubevault %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting tubevault",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := newObjectStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	store = repository.NewRetryingObjectStore(store, repository.RetryConfigFrom(cfg.Store), logger)

	// The bucket may not exist yet on a fresh object store.
	if err := store.CreateBucket(ctx, cfg.Store.Bucket); err != nil {
		logger.Warn("failed to ensure default bucket", "bucket", cfg.Store.Bucket, "error", err)
	}

	validator, err := auth.NewValidator(cfg.Auth, logger)
	if err != nil {
		return err
	}

	history, err := service.NewEventService(cfg.History, logger)
	if err != nil {
		return fmt.Errorf("init history: %w", err)
	}
	defer history.Close()

	runner := command.NewExecRunner()
	yt := ytdlp.NewClient(cfg.YtDlp, runner, logger)
	ff := ffmpeg.NewProber(cfg.YtDlp.FFmpegPath, runner)
	if !ff.IsAvailable() {
		logger.Warn("ffmpeg not found in PATH; audio extraction and merging will fail", "path", cfg.YtDlp.FFmpegPath)
	}

	downloads, err := service.NewDownloadService(cfg, service.DownloadServiceDeps{
		Tool:    yt,
		Store:   store,
		History: history,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer downloads.Close()

	minFree, err := cfg.YtDlp.MinFreeBytes()
	if err != nil {
		return err
	}
	system := service.NewSystemService(yt, ff, store, cfg.YtDlp.ScratchPath, minFree)

	router := api.NewRouter(api.Deps{
		Downloads:      handler.NewDownloadHandler(downloads, auth.NewGate(cfg.Auth.PremiumRoles), logger),
		Admin:          handler.NewAdminHandler(service.NewStorageService(store, logger), history, logger),
		System:         handler.NewSystemHandler(system),
		Validator:      validator,
		AdminRole:      cfg.Auth.AdminRole,
		Metrics:        m,
		Gatherer:       reg,
		Logger:         logger,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	// Prune persisted history in the background
	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	defer cancelCleanup()
	go runHistoryCleanup(cleanupCtx, history, logger)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr, "store", cfg.Store.Backend, "auth", cfg.Auth.Mode)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down")
	cancelCleanup()

	// Graceful shutdown lets in-flight downloads finish their cleanup.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func newObjectStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (repository.ObjectStore, error) {
	switch cfg.Backend {
	case "s3":
		return repository.NewS3ObjectStore(ctx, cfg, logger)
	case "http":
		return repository.NewHTTPObjectStore(cfg, logger), nil
	case "memory":
		logger.Warn("using in-memory object store; artifacts are lost on restart")
		return repository.NewInMemoryObjectStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func runHistoryCleanup(ctx context.Context, history *service.EventService, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := history.CleanupOldEvents(ctx); err != nil {
				logger.Warn("history cleanup failed", "error", err)
			}
		}
	}
}
