package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setHelperCommand(t *testing.T, mode string) *[]string {
	t.Helper()
	var capturedArgs []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		capturedArgs = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("ENGINE_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return &capturedArgs
}

func TestConvert_SpecValidation(t *testing.T) {
	eng := NewFFmpeg(Paths{FFmpeg: "/usr/bin/ffmpeg", FFprobe: "/usr/bin/ffprobe"})

	tests := []struct {
		name    string
		spec    ConvertSpec
		wantErr error
	}{
		{"missing input", ConvertSpec{OutputPath: "o.gif", FrameRate: 10, Width: 320}, ErrInputRequired},
		{"missing output", ConvertSpec{InputPath: "i.mp4", FrameRate: 10, Width: 320}, ErrOutputRequired},
		{"zero frame rate", ConvertSpec{InputPath: "i.mp4", OutputPath: "o.gif", Width: 320}, ErrInvalidFrameRate},
		{"zero width", ConvertSpec{InputPath: "i.mp4", OutputPath: "o.gif", FrameRate: 10}, ErrInvalidWidth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eng.Convert(context.Background(), tt.spec, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConvert_Success(t *testing.T) {
	captured := setHelperCommand(t, "convert")

	eng := NewFFmpeg(Paths{FFmpeg: "ffmpeg", FFprobe: "ffprobe"})
	spec := ConvertSpec{
		InputPath:  "/scratch/input.mp4",
		OutputPath: "/scratch/output.gif",
		FrameRate:  10,
		Width:      320,
		Duration:   4 * time.Second,
	}

	var updates []ProgressUpdate
	err := eng.Convert(context.Background(), spec, func(u ProgressUpdate) {
		updates = append(updates, u)
	})
	require.NoError(t, err)

	// The helper emits two batches; the final one carries the end marker
	require.Len(t, updates, 2)
	assert.InDelta(t, 0.5, updates[0].Ratio, 0.001)
	assert.Equal(t, 1.0, updates[1].Ratio)

	// The fixed command line went to the binary unchanged
	args := *captured
	require.NotEmpty(t, args)
	assert.Contains(t, args, "-progress")
	assert.Contains(t, args, spec.InputPath)
	assert.Equal(t, spec.OutputPath, args[len(args)-1])
}

func TestConvert_NilCallback(t *testing.T) {
	setHelperCommand(t, "convert")

	eng := NewFFmpeg(Paths{FFmpeg: "ffmpeg", FFprobe: "ffprobe"})
	spec := ConvertSpec{
		InputPath:  "/scratch/input.mp4",
		OutputPath: "/scratch/output.gif",
		FrameRate:  10,
		Width:      320,
	}

	// The stdout stream still gets drained without a callback
	require.NoError(t, eng.Convert(context.Background(), spec, nil))
}

func TestConvert_Failure(t *testing.T) {
	setHelperCommand(t, "fail")

	eng := NewFFmpeg(Paths{FFmpeg: "ffmpeg", FFprobe: "ffprobe"})
	spec := ConvertSpec{
		InputPath:  "/scratch/input.mp4",
		OutputPath: "/scratch/output.gif",
		FrameRate:  10,
		Width:      320,
	}

	err := eng.Convert(context.Background(), spec, nil)
	require.Error(t, err)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Stderr, "Invalid data found when processing input")
	assert.Contains(t, execErr.Args, "-nostdin")
}

func TestConvert_ContextCancelled(t *testing.T) {
	setHelperCommand(t, "hang")

	eng := NewFFmpeg(Paths{FFmpeg: "ffmpeg", FFprobe: "ffprobe"})
	spec := ConvertSpec{
		InputPath:  "/scratch/input.mp4",
		OutputPath: "/scratch/output.gif",
		FrameRate:  10,
		Width:      320,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := eng.Convert(ctx, spec, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestVersion(t *testing.T) {
	setHelperCommand(t, "version")

	eng := NewFFmpeg(Paths{FFmpeg: "ffmpeg", FFprobe: "ffprobe"})
	version, err := eng.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "6.1.1-static", version)
}

func TestVersion_Failure(t *testing.T) {
	setHelperCommand(t, "fail")

	eng := NewFFmpeg(Paths{FFmpeg: "ffmpeg", FFprobe: "ffprobe"})
	_, err := eng.Version(context.Background())
	require.Error(t, err)

	var execErr *ExecError
	assert.ErrorAs(t, err, &execErr)
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "static build",
			input:    "ffmpeg version 6.1.1-static https://johnvansickle.com/ffmpeg/\nbuilt with gcc 8",
			expected: "6.1.1-static",
		},
		{
			name:     "distro build",
			input:    "ffmpeg version n7.0 Copyright (c) 2000-2024 the FFmpeg developers",
			expected: "n7.0",
		},
		{
			name:     "unexpected shape",
			input:    "something else entirely\nmore",
			expected: "something else entirely",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseVersion(tt.input))
		})
	}
}

func TestLogTail(t *testing.T) {
	tail := &logTail{}
	tail.capture(strings.NewReader("first line\n\nsecond line\n"))

	// The newest line is handed out once
	assert.Equal(t, "second line", tail.takeLatest())
	assert.Empty(t, tail.takeLatest())

	// The full tail survives for error reporting
	assert.Equal(t, "first line\nsecond line", tail.String())
}

func TestLogTail_Bounded(t *testing.T) {
	var b strings.Builder
	for i := 0; i < maxLogLines+20; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}

	tail := &logTail{}
	tail.capture(strings.NewReader(b.String()))

	lines := strings.Split(tail.String(), "\n")
	assert.Len(t, lines, maxLogLines)
	assert.Equal(t, fmt.Sprintf("line %d", maxLogLines+19), lines[len(lines)-1])
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("ENGINE_HELPER_MODE") {
	case "convert":
		fmt.Fprintln(os.Stderr, "Output #0, gif, to '/scratch/output.gif':")
		fmt.Println("frame=20")
		fmt.Println("fps=40.0")
		fmt.Println("out_time_us=2000000")
		fmt.Println("speed=1.5x")
		fmt.Println("progress=continue")
		fmt.Println("frame=40")
		fmt.Println("out_time_us=4000000")
		fmt.Println("speed=1.4x")
		fmt.Println("progress=end")
		os.Exit(0)
	case "version":
		fmt.Println("ffmpeg version 6.1.1-static https://johnvansickle.com/ffmpeg/")
		fmt.Println("built with gcc 8 (Debian 8.3.0-6)")
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "[mov,mp4,m4a @ 0x5617] Invalid data found when processing input")
		os.Exit(1)
	case "hang":
		time.Sleep(5 * time.Second)
		os.Exit(0)
	default:
		os.Exit(0)
	}
}
