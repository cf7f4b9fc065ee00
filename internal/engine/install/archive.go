package install

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
)

// extractBinaries unpacks only the ffmpeg and ffprobe members of the tar.xz
// archive into dir, flattening whatever directory prefix the build uses.
func extractBinaries(archivePath, dir string) error {
	f, err := os.Open(archivePath) // #nosec G304 - path is built by the installer
	if err != nil {
		return fmt.Errorf("install: open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	xzr, err := xz.NewReader(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("install: open xz stream: %w", err)
	}

	tr := tar.NewReader(xzr)
	found := map[string]bool{}

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("install: read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Base(hdr.Name)
		if name != "ffmpeg" && name != "ffprobe" {
			continue
		}

		if err := writeExecutable(filepath.Join(dir, name), tr); err != nil {
			return err
		}
		found[name] = true
	}

	if !found["ffmpeg"] || !found["ffprobe"] {
		return ErrArchiveIncomplete
	}
	return nil
}

// writeExecutable writes one binary with the executable bit set.
func writeExecutable(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755) // #nosec G302,G304 - engine binaries must be executable
	if err != nil {
		return fmt.Errorf("install: create %s: %w", filepath.Base(path), err)
	}

	_, copyErr := io.Copy(f, r) // #nosec G110 - archive comes from the configured engine source and is checksum-verified
	closeErr := f.Close()
	if copyErr != nil {
		return fmt.Errorf("install: write %s: %w", filepath.Base(path), copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("install: close %s: %w", filepath.Base(path), closeErr)
	}
	return nil
}
