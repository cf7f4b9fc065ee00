// Package media inspects input files with ffprobe before conversion.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// commandContext is swapped in tests to avoid spawning real binaries.
var commandContext = exec.CommandContext

// Static errors for media operations.
var (
	// ErrFFprobeExecution is returned when the ffprobe command fails.
	ErrFFprobeExecution = errors.New("media: ffprobe execution failed")
	// ErrNoVideoStream is returned when the input has no usable video stream.
	ErrNoVideoStream = errors.New("media: input has no video stream")
)

// Probe holds what the conversion pipeline needs to know about an input.
// Duration drives the progress ratio; zero means the container did not
// report one.
type Probe struct {
	Duration   time.Duration
	Width      int
	Height     int
	VideoCodec string
	Container  string
	Size       int64
}

// Prober inspects media files.
type Prober interface {
	Probe(ctx context.Context, path string) (*Probe, error)
}

// FFprobe implements Prober using the ffprobe CLI.
type FFprobe struct {
	binaryPath string
}

// Compile-time check that FFprobe implements Prober.
var _ Prober = (*FFprobe)(nil)

// NewFFprobe creates a Prober around the given binary path.
// If binaryPath is empty, it defaults to "ffprobe" (found via PATH).
func NewFFprobe(binaryPath string) *FFprobe {
	if binaryPath == "" {
		binaryPath = "ffprobe"
	}
	return &FFprobe{binaryPath: binaryPath}
}

// Probe runs a single ffprobe JSON call against path and returns the
// parsed result.
func (p *FFprobe) Probe(ctx context.Context, path string) (*Probe, error) {
	// #nosec G204 - binary path is set by the application, not user input
	cmd := commandContext(ctx, p.binaryPath,
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("media: probe cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, strings.TrimSpace(stderr.String()))
	}

	return ParseReport(stdout.Bytes())
}

// ParseReport converts raw ffprobe JSON output into a Probe.
// Exported for testing without a real ffprobe binary.
func ParseReport(data []byte) (*Probe, error) {
	var raw ffprobeReport
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("media: parse ffprobe JSON: %w", err)
	}
	return buildProbe(&raw)
}

// --- ffprobe JSON wire types ---

type ffprobeReport struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

type ffprobeStream struct {
	CodecName   string         `json:"codec_name"`
	CodecType   string         `json:"codec_type"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Duration    string         `json:"duration"`
	Disposition map[string]int `json:"disposition"`
}

// --- Conversion from wire types to the domain type ---

func buildProbe(raw *ffprobeReport) (*Probe, error) {
	var video *ffprobeStream
	for i := range raw.Streams {
		s := &raw.Streams[i]
		// Cover art rides along as an attached picture; it is not a video
		// stream worth converting.
		if s.CodecType == "video" && s.Disposition["attached_pic"] != 1 {
			video = s
			break
		}
	}
	if video == nil {
		return nil, ErrNoVideoStream
	}

	duration, err := parseSeconds(raw.Format.Duration)
	if err != nil {
		return nil, err
	}
	if duration == 0 {
		if duration, err = parseSeconds(video.Duration); err != nil {
			return nil, err
		}
	}

	size, err := parseInt64(raw.Format.Size)
	if err != nil {
		return nil, err
	}

	return &Probe{
		Duration:   duration,
		Width:      video.Width,
		Height:     video.Height,
		VideoCodec: video.CodecName,
		Container:  raw.Format.FormatName,
		Size:       size,
	}, nil
}

// --- Numeric parsing helpers (ffprobe returns numbers as strings) ---

// absentNumber reports values ffprobe uses for "not reported".
func absentNumber(s string) bool {
	return s == "" || s == "N/A"
}

func parseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if absentNumber(s) {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("media: malformed duration %q in ffprobe output: %w", s, err)
	}
	if f <= 0 {
		return 0, nil
	}
	return time.Duration(f * float64(time.Second)), nil
}

func parseInt64(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if absentNumber(s) {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("media: malformed size %q in ffprobe output: %w", s, err)
	}
	return n, nil
}
