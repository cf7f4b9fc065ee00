package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// Resolve locates the engine binaries for path mode. An empty dir searches
// $PATH; otherwise both binaries must exist inside dir. Each resolved binary
// must answer a version probe before it is accepted.
func Resolve(ctx context.Context, dir string) (Paths, error) {
	var paths Paths

	if dir == "" {
		ffmpeg, err := lookPath("ffmpeg")
		if err != nil {
			return Paths{}, fmt.Errorf("%w: %w", ErrFFmpegNotFound, err)
		}
		ffprobe, err := lookPath("ffprobe")
		if err != nil {
			return Paths{}, fmt.Errorf("%w: %w", ErrFFprobeNotFound, err)
		}
		paths = Paths{FFmpeg: ffmpeg, FFprobe: ffprobe}
	} else {
		paths = Paths{
			FFmpeg:  filepath.Join(dir, "ffmpeg"),
			FFprobe: filepath.Join(dir, "ffprobe"),
		}
		if _, err := os.Stat(paths.FFmpeg); err != nil {
			return Paths{}, fmt.Errorf("%w: %w", ErrFFmpegNotFound, err)
		}
		if _, err := os.Stat(paths.FFprobe); err != nil {
			return Paths{}, fmt.Errorf("%w: %w", ErrFFprobeNotFound, err)
		}
	}

	for _, bin := range []string{paths.FFmpeg, paths.FFprobe} {
		if err := probeBinary(ctx, bin); err != nil {
			return Paths{}, err
		}
	}

	return paths, nil
}

// probeBinary confirms a binary runs and answers -version.
func probeBinary(ctx context.Context, bin string) error {
	// #nosec G204 - binary path is resolved by the application
	cmd := commandContext(ctx, bin, "-version")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("engine: %s failed version probe: %w: %s", filepath.Base(bin), err, firstLine(string(out)))
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
