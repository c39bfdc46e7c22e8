// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// ErrInvalidConfig is returned when a loaded value is out of range.
var ErrInvalidConfig = errors.New("config: invalid value")

// Detector names accepted by DETECTOR.
const (
	DetectorSamples = "samples"
	DetectorEngine  = "engine"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`

	// Tools
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path" validate:"required"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path" validate:"required"`

	// Storage settings
	TempDir      string `env:"TEMP_DIR, default=/tmp/silencecut" json:"temp_dir" validate:"required"`
	SettingsPath string `env:"SETTINGS_PATH" json:"settings_path,omitempty"`
	JobDBPath    string `env:"JOB_DB_PATH" json:"job_db_path,omitempty"` // empty keeps jobs in memory
	WatchDir     string `env:"WATCH_DIR" json:"watch_dir,omitempty"`

	// Detection settings
	Detector               string  `env:"DETECTOR, default=samples" json:"detector" validate:"oneof=samples engine"`
	SilenceThresholdDB     float64 `env:"SILENCE_THRESHOLD_DB, default=-40" json:"silence_threshold_db" validate:"min=-120,max=0"`
	MinSilenceMs           int     `env:"MIN_SILENCE_MS, default=700" json:"min_silence_ms" validate:"min=0"`
	MinSpeechMs            int     `env:"MIN_SPEECH_MS, default=500" json:"min_speech_ms" validate:"min=0"`
	IncludeTrailingSilence bool    `env:"INCLUDE_TRAILING_SILENCE, default=false" json:"include_trailing_silence"`
	IncludeTrailingKeep    bool    `env:"INCLUDE_TRAILING_KEEP, default=false" json:"include_trailing_keep"`
	AudioCacheMB           int     `env:"AUDIO_CACHE_MB, default=512" json:"audio_cache_mb" validate:"min=0"`

	// Processing settings
	MaxParallelSegments int `env:"MAX_PARALLEL_SEGMENTS, default=1" json:"max_parallel_segments" validate:"min=1,max=64"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=text json"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"` // "debug", "info", "warn", "error"
}

var validate = validator.New()

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return LoadWith(context.Background(), envconfig.OsLookuper())
}

// LoadWith reads configuration from lookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.Detector = strings.ToLower(cfg.Detector)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and that S3 settings come in pairs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if (c.S3Bucket == "") != (c.S3Region == "") {
		return fmt.Errorf("%w: S3_BUCKET and S3_REGION must be set together", ErrInvalidConfig)
	}
	return nil
}

// NewLogger creates a structured logger writing to stdout.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, Detector: %s, SilenceThresholdDB: %g, MinSilenceMs: %d, MinSpeechMs: %d, MaxParallelSegments: %d, JobDBPath: %s, WatchDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.Detector,
		c.SilenceThresholdDB,
		c.MinSilenceMs,
		c.MinSpeechMs,
		c.MaxParallelSegments,
		c.JobDBPath,
		c.WatchDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
