// Package engine wraps the external media-transcoding engine (ffmpeg).
// It owns the single fixed conversion command the application ever runs and
// surfaces the engine's asynchronous log and progress notifications through
// a callback.
package engine

import (
	"context"
	"errors"
	"time"
)

// Static errors for engine operations.
var (
	// ErrInputRequired is returned when the input path is empty.
	ErrInputRequired = errors.New("engine: input path is required")
	// ErrOutputRequired is returned when the output path is empty.
	ErrOutputRequired = errors.New("engine: output path is required")
	// ErrInvalidFrameRate is returned when the frame rate is not positive.
	ErrInvalidFrameRate = errors.New("engine: frame rate must be positive")
	// ErrInvalidWidth is returned when the output width is not positive.
	ErrInvalidWidth = errors.New("engine: width must be positive")
	// ErrFFmpegNotFound is returned when the ffmpeg binary cannot be resolved.
	ErrFFmpegNotFound = errors.New("engine: ffmpeg binary not found")
	// ErrFFprobeNotFound is returned when the ffprobe binary cannot be resolved.
	ErrFFprobeNotFound = errors.New("engine: ffprobe binary not found")
)

// Paths holds the resolved locations of the engine binaries.
type Paths struct {
	FFmpeg  string `json:"ffmpeg"`
	FFprobe string `json:"ffprobe"`
}

// ConvertSpec describes one GIF conversion.
// Duration is the probed length of the input and drives the progress ratio;
// zero means unknown, in which case the ratio stays at zero until completion.
type ConvertSpec struct {
	InputPath  string
	OutputPath string
	FrameRate  int
	Width      int
	Duration   time.Duration
}

// ProgressUpdate is one notification emitted while a conversion runs.
// Ratio is the fraction of the input duration already rendered, in [0,1].
// Message carries the engine's most recent log line when one arrived since
// the previous update, otherwise it is empty.
type ProgressUpdate struct {
	Ratio   float64
	OutTime time.Duration
	Frame   int64
	FPS     float64
	Speed   string
	Message string
}

// Engine runs conversions against the external transcoding binary.
type Engine interface {
	// Convert runs the fixed GIF conversion command described by spec.
	// The progress callback, if non-nil, receives updates as the engine
	// reports them; it is called from the goroutine driving the conversion.
	Convert(ctx context.Context, spec ConvertSpec, progress func(ProgressUpdate)) error

	// Version reports the engine's version string.
	Version(ctx context.Context) (string, error)
}

func (s ConvertSpec) validate() error {
	if s.InputPath == "" {
		return ErrInputRequired
	}
	if s.OutputPath == "" {
		return ErrOutputRequired
	}
	if s.FrameRate <= 0 {
		return ErrInvalidFrameRate
	}
	if s.Width <= 0 {
		return ErrInvalidWidth
	}
	return nil
}
