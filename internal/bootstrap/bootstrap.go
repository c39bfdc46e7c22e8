// Package bootstrap provides dependency initialization for silencecut.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/silencecut/internal/audio"
	"github.com/maauso/silencecut/internal/config"
	"github.com/maauso/silencecut/internal/events"
	"github.com/maauso/silencecut/internal/export"
	"github.com/maauso/silencecut/internal/job"
	"github.com/maauso/silencecut/internal/media"
	"github.com/maauso/silencecut/internal/settings"
	"github.com/maauso/silencecut/internal/storage"
	"github.com/maauso/silencecut/internal/watch"
)

// Dependencies holds all initialized dependencies for the CLI and the
// HTTP server.
type Dependencies struct {
	Service  *job.Service
	Engine   *media.FFmpegEngine
	Hub      *events.Hub
	Settings settings.Settings
	Defaults job.Params

	// Inbox is nil unless a watch directory is configured.
	Inbox *watch.Inbox

	closers []func() error
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	prefs, err := settings.Load(cfg.SettingsPath)
	if err != nil {
		// a broken settings file must not stop a cut
		logger.Warn("failed to load encoder settings, using defaults",
			slog.String("path", cfg.SettingsPath),
			slog.String("error", err.Error()),
		)
	}

	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	repo, closeRepo, err := initRepository(cfg, logger)
	if err != nil {
		return nil, err
	}

	engine := media.NewFFmpegEngine(cfg.FFmpegPath, media.WithFFprobePath(cfg.FFprobePath))
	exporter := export.NewExporter(engine, store,
		export.WithMaxParallel(cfg.MaxParallelSegments),
		export.WithLogger(logger),
	)
	joiner := export.NewConcatenator(engine, store, logger)

	hub := events.NewHub()
	defaults := DefaultParams(cfg)

	svc := job.NewService(
		repo,
		NewDetector(cfg),
		exporter,
		joiner,
		store,
		job.WithHub(hub),
		job.WithServiceLogger(logger),
		job.WithSettings(prefs),
		job.WithDefaults(defaults),
	)

	deps := &Dependencies{
		Service:  svc,
		Engine:   engine,
		Hub:      hub,
		Settings: prefs,
		Defaults: defaults,
	}
	if closeRepo != nil {
		deps.closers = append(deps.closers, closeRepo)
	}

	if cfg.WatchDir != "" {
		deps.Inbox = watch.NewInbox(cfg.WatchDir, job.OutputSuffix, submitTo(svc), watch.WithLogger(logger))
		logger.Info("watch folder configured", slog.String("dir", cfg.WatchDir))
	}

	return deps, nil
}

// Close releases resources held by the dependencies.
func (d *Dependencies) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	d.closers = nil
	return errors.Join(errs...)
}

// DefaultParams returns the detection parameters configured in cfg.
func DefaultParams(cfg *config.Config) job.Params {
	return job.Params{
		ThresholdDB:            cfg.SilenceThresholdDB,
		MinSilenceMs:           cfg.MinSilenceMs,
		MinSpeechMs:            cfg.MinSpeechMs,
		IncludeTrailingSilence: cfg.IncludeTrailingSilence,
		IncludeTrailingKeep:    cfg.IncludeTrailingKeep,
	}
}

// NewDetector returns the silence detector selected by cfg.Detector.
// "engine" delegates to the ffmpeg silencedetect filter, anything else
// scans decoded samples, caching the most recent decodes.
func NewDetector(cfg *config.Config) audio.Detector {
	if cfg.Detector == config.DetectorEngine {
		return audio.NewFFmpegSilenceDetector(cfg.FFmpegPath)
	}
	decoder := audio.NewCachedDecoder(audio.NewFFmpegDecoder(cfg.FFmpegPath, 0), int64(cfg.AudioCacheMB)<<20)
	return audio.NewSampleDetector(decoder)
}

func submitTo(svc *job.Service) watch.SubmitFunc {
	return func(ctx context.Context, path string) error {
		_, err := svc.Submit(ctx, job.CutInput{SourcePath: path})
		return err
	}
}

// initRepository opens the SQLite job store when JOB_DB_PATH is set and
// keeps jobs in memory otherwise.
func initRepository(cfg *config.Config, logger *slog.Logger) (job.Repository, func() error, error) {
	if cfg.JobDBPath == "" {
		logger.Info("job repository configured", slog.String("backend", "memory"))
		return job.NewMemoryRepository(), nil, nil
	}

	repo, err := job.OpenSQLRepository(cfg.JobDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open job database: %w", err)
	}
	logger.Info("job repository configured",
		slog.String("backend", "sqlite"),
		slog.String("path", cfg.JobDBPath),
	)
	return repo, repo.Close, nil
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
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
