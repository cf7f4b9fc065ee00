package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// commandContext is swapped in tests to avoid spawning real binaries.
var commandContext = exec.CommandContext

// maxLogLines bounds the stderr tail kept per conversion.
const maxLogLines = 100

// FFmpeg is the process-spawning Engine implementation.
type FFmpeg struct {
	paths Paths
}

// Compile-time check that FFmpeg implements Engine.
var _ Engine = (*FFmpeg)(nil)

// NewFFmpeg creates an Engine around resolved binary paths.
func NewFFmpeg(paths Paths) *FFmpeg {
	return &FFmpeg{paths: paths}
}

// Binaries returns the resolved binary paths.
func (f *FFmpeg) Binaries() Paths {
	return f.paths
}

// Convert runs the fixed GIF conversion command described by spec.
// Progress batches from the engine's stdout stream and the most recent
// stderr log line are merged into the updates handed to the callback.
func (f *FFmpeg) Convert(ctx context.Context, spec ConvertSpec, progress func(ProgressUpdate)) error {
	if err := spec.validate(); err != nil {
		return err
	}

	args := buildConvertArgs(spec)
	// #nosec G204 - binary path and arguments are built by the application
	cmd := commandContext(ctx, f.paths.FFmpeg, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("engine: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("engine: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("engine: start ffmpeg: %w", err)
	}

	tail := &logTail{}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tail.capture(stderr)
	}()

	// The stdout stream must be drained even without a callback or the
	// engine blocks on a full pipe.
	scanErr := scanProgress(stdout, spec.Duration, func(u ProgressUpdate) {
		if progress == nil {
			return
		}
		u.Message = tail.takeLatest()
		progress(u)
	})

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("engine: conversion cancelled: %w", ctx.Err())
		}
		return &ExecError{Args: args, Stderr: tail.String(), Err: err}
	}
	if scanErr != nil {
		return fmt.Errorf("engine: read progress stream: %w", scanErr)
	}
	return nil
}

// Version reports the engine's version string.
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	// #nosec G204 - binary path is set by the application, not user input
	cmd := commandContext(ctx, f.paths.FFmpeg, "-version")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("engine: version probe cancelled: %w", ctx.Err())
		}
		return "", &ExecError{Args: []string{"-version"}, Stderr: stderr.String(), Err: err}
	}

	return parseVersion(stdout.String()), nil
}

// parseVersion extracts the version token from `ffmpeg -version` output.
func parseVersion(out string) string {
	line, _, _ := strings.Cut(out, "\n")
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) >= 3 && fields[1] == "version" {
		return fields[2]
	}
	return line
}

// ExecError represents a failed engine invocation, including the stderr tail.
type ExecError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("engine: ffmpeg failed: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// logTail keeps the bounded stderr tail of a running conversion and tracks
// which line is the newest since the last progress update consumed one.
type logTail struct {
	mu      sync.Mutex
	lines   []string
	latest  string
	pending bool
}

// capture reads r line by line until EOF.
func (l *logTail) capture(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		l.mu.Lock()
		l.lines = append(l.lines, line)
		if len(l.lines) > maxLogLines {
			l.lines = l.lines[len(l.lines)-maxLogLines:]
		}
		l.latest = line
		l.pending = true
		l.mu.Unlock()
	}
}

// takeLatest returns the newest line once; later calls return an empty
// string until another line arrives.
func (l *logTail) takeLatest() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.pending {
		return ""
	}
	l.pending = false
	return l.latest
}

// String joins the retained tail for error reporting.
func (l *logTail) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}
