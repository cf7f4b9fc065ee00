// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Engine resolution modes.
const (
	// EngineModePath resolves ffmpeg/ffprobe from ENGINE_PATH or $PATH.
	EngineModePath = "path"
	// EngineModeManaged downloads and installs a static engine build.
	EngineModeManaged = "managed"
)

// Static errors for configuration validation.
var (
	// ErrInvalidEngineMode is returned when ENGINE_MODE is not "path" or "managed".
	ErrInvalidEngineMode = errors.New("config: ENGINE_MODE must be \"path\" or \"managed\"")
	// ErrInvalidFrameRate is returned when GIF_FRAME_RATE is not positive.
	ErrInvalidFrameRate = errors.New("config: GIF_FRAME_RATE must be positive")
	// ErrInvalidWidth is returned when GIF_WIDTH is not positive.
	ErrInvalidWidth = errors.New("config: GIF_WIDTH must be positive")
	// ErrInvalidMaxUpload is returned when MAX_UPLOAD_BYTES is not positive.
	ErrInvalidMaxUpload = errors.New("config: MAX_UPLOAD_BYTES must be positive")
	// ErrInvalidConvertTimeout is returned when CONVERT_TIMEOUT is not positive.
	ErrInvalidConvertTimeout = errors.New("config: CONVERT_TIMEOUT must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port       int    `env:"PORT, default=8080" json:"port"`
	CORSOrigin string `env:"CORS_ORIGIN, default=*" json:"cors_origin"`

	// Scratch space for per-job input/output files
	ScratchDir string `env:"SCRATCH_DIR, default=/tmp/gifforge" json:"scratch_dir"`

	// Engine settings
	EngineMode      string `env:"ENGINE_MODE, default=path" json:"engine_mode"` // "path" or "managed"
	EnginePath      string `env:"ENGINE_PATH" json:"engine_path,omitempty"`     // directory holding ffmpeg/ffprobe; empty means $PATH
	EngineDir       string `env:"ENGINE_DIR" json:"engine_dir,omitempty"`       // managed install target; defaults under ScratchDir
	EngineSourceURL string `env:"ENGINE_SOURCE_URL, default=https://johnvansickle.com/ffmpeg/releases" json:"engine_source_url"`
	EngineBuild     string `env:"ENGINE_BUILD, default=ffmpeg-release-amd64-static" json:"engine_build"`

	// Conversion settings
	GIFFrameRate   int           `env:"GIF_FRAME_RATE, default=10" json:"gif_frame_rate"`
	GIFWidth       int           `env:"GIF_WIDTH, default=320" json:"gif_width"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES, default=536870912" json:"max_upload_bytes"`
	ConvertTimeout time.Duration `env:"CONVERT_TIMEOUT, default=10m" json:"convert_timeout"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3KeyPrefix        string `env:"S3_KEY_PREFIX, default=results" json:"s3_key_prefix"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=json" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
// Credentials may come from the environment or the ambient AWS chain.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// EngineInstallDir returns the managed engine install directory,
// defaulting to a subdirectory of the scratch directory.
func (c *Config) EngineInstallDir() string {
	if c.EngineDir != "" {
		return c.EngineDir
	}
	return filepath.Join(c.ScratchDir, "engine")
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if any value fails validation.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	switch c.EngineMode {
	case EngineModePath, EngineModeManaged:
	default:
		return ErrInvalidEngineMode
	}
	if c.GIFFrameRate <= 0 {
		return ErrInvalidFrameRate
	}
	if c.GIFWidth <= 0 {
		return ErrInvalidWidth
	}
	if c.MaxUploadBytes <= 0 {
		return ErrInvalidMaxUpload
	}
	if c.ConvertTimeout <= 0 {
		return ErrInvalidConvertTimeout
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, ScratchDir: %s, EngineMode: %s, EnginePath: %s, EngineDir: %s, GIFFrameRate: %d, GIFWidth: %d, MaxUploadBytes: %d, ConvertTimeout: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.ScratchDir,
		c.EngineMode,
		c.EnginePath,
		c.EngineInstallDir(),
		c.GIFFrameRate,
		c.GIFWidth,
		c.MaxUploadBytes,
		c.ConvertTimeout,
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
