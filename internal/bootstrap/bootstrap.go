// Package bootstrap builds the dependency graph for the gifforge daemon.
// It owns the once-only engine bootstrap: resolution failure is recorded as
// the session's engine state instead of aborting startup, so the service
// still serves its UI and refuses conversions with the recorded error.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/gifforge/gifforge/internal/config"
	"github.com/gifforge/gifforge/internal/engine"
	"github.com/gifforge/gifforge/internal/engine/install"
	"github.com/gifforge/gifforge/internal/job"
	"github.com/gifforge/gifforge/internal/media"
	"github.com/gifforge/gifforge/internal/server"
	"github.com/gifforge/gifforge/internal/storage"
)

// lockFileName is the single-instance lock inside the scratch directory.
const lockFileName = "gifforged.lock"

// ErrAlreadyRunning is returned when another daemon holds the scratch lock.
var ErrAlreadyRunning = errors.New("bootstrap: another gifforged instance is already running")

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	// Router is the fully wired HTTP handler.
	Router http.Handler
	// ConvertService orchestrates conversions.
	ConvertService *job.ConvertService
	// EngineStatus records the once-only engine bootstrap outcome.
	EngineStatus server.EngineStatus

	lock *flock.Flock
}

// NewDependencies creates and initializes all dependencies for the daemon.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	if err := os.MkdirAll(cfg.ScratchDir, 0o750); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.ScratchDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire scratch lock: %w", err)
	}
	if !locked {
		return nil, ErrAlreadyRunning
	}

	// The once-only engine bootstrap. Failure is terminal for the session:
	// it is recorded, never retried, and every conversion is refused with it.
	paths, status := resolveEngine(ctx, cfg, logger)
	eng := engine.NewFFmpeg(paths)
	prober := media.NewFFprobe(paths.FFprobe)

	store, err := initStorage(cfg, logger)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	repo := job.NewMemoryRepository()

	svc := job.NewConvertService(
		repo,
		store,
		prober,
		eng,
		logger,
		job.WithDefaults(cfg.GIFFrameRate, cfg.GIFWidth),
		job.WithConvertTimeout(cfg.ConvertTimeout),
		job.WithS3KeyPrefix(cfg.S3KeyPrefix),
	)

	handlers := server.NewHandlers(svc, store, logger,
		server.WithEngineStatus(status),
		server.WithMaxUploadBytes(cfg.MaxUploadBytes),
	)
	router := server.NewRouter(handlers, logger, server.Config{CORSOrigin: cfg.CORSOrigin})

	return &Dependencies{
		Router:         router,
		ConvertService: svc,
		EngineStatus:   status,
		lock:           lock,
	}, nil
}

// Close releases the single-instance lock.
func (d *Dependencies) Close() error {
	if d.lock == nil {
		return nil
	}
	return d.lock.Unlock()
}

// resolveEngine locates the engine binaries per the configured mode and
// verifies them with a version probe. Errors become the recorded engine
// state rather than a startup failure.
func resolveEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Paths, server.EngineStatus) {
	var (
		paths engine.Paths
		err   error
	)

	switch cfg.EngineMode {
	case config.EngineModeManaged:
		installer := install.New(cfg.EngineSourceURL, cfg.EngineBuild)
		paths, err = installer.Install(ctx, cfg.EngineInstallDir())
		if err == nil {
			// Managed binaries still have to answer the version probe.
			_, err = engine.Resolve(ctx, cfg.EngineInstallDir())
		}
	default:
		paths, err = engine.Resolve(ctx, cfg.EnginePath)
	}

	if err != nil {
		logger.Error("engine bootstrap failed",
			slog.String("mode", cfg.EngineMode),
			slog.String("error", err.Error()),
		)
		return paths, server.EngineStatus{Ready: false, Error: err.Error()}
	}

	version, err := engine.NewFFmpeg(paths).Version(ctx)
	if err != nil {
		logger.Error("engine version probe failed",
			slog.String("error", err.Error()),
		)
		return paths, server.EngineStatus{Ready: false, Error: err.Error()}
	}

	logger.Info("engine ready",
		slog.String("mode", cfg.EngineMode),
		slog.String("ffmpeg", paths.FFmpeg),
		slog.String("version", version),
	)
	return paths, server.EngineStatus{Ready: true, Version: version}
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.ScratchDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 result push configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("jobs_dir", localStore.JobsDir()),
	)
	return localStore, nil
}
