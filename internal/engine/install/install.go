// Package install fetches a static engine build for managed bootstrap mode.
// Two assets come from the configured source: the build archive and its
// checksum manifest. The archive is verified against the manifest before the
// binaries are unpacked. None of the steps retry; a failed install is left
// to the caller to treat as terminal.
package install

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gifforge/gifforge/internal/engine"
)

// Static errors for install operations.
var (
	// ErrChecksumMismatch is returned when the archive digest does not match the manifest.
	ErrChecksumMismatch = errors.New("install: engine archive checksum mismatch")
	// ErrChecksumMissing is returned when the manifest has no entry for the archive.
	ErrChecksumMissing = errors.New("install: checksum manifest has no entry for the archive")
	// ErrArchiveIncomplete is returned when the archive lacks the ffmpeg or ffprobe binary.
	ErrArchiveIncomplete = errors.New("install: engine archive is missing required binaries")
)

const (
	// markerFile records which build an install directory holds.
	markerFile = ".build"

	userAgent = "gifforge-installer"

	// manifestLimit bounds how much of the checksum manifest is read.
	manifestLimit = 1 << 20
)

// Installer downloads and verifies an engine build.
type Installer struct {
	baseURL string
	build   string
	client  *http.Client
}

// Option configures an Installer.
type Option func(*Installer)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Installer) {
		i.client = c
	}
}

// New creates an Installer for one build under the given source URL.
func New(baseURL, build string, opts ...Option) *Installer {
	inst := &Installer{
		baseURL: strings.TrimRight(baseURL, "/"),
		build:   build,
		client:  &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(inst)
	}
	return inst
}

// Install ensures a verified engine build exists in dir and returns the
// binary paths. A prior install of the same build is reused without
// refetching.
func (i *Installer) Install(ctx context.Context, dir string) (engine.Paths, error) {
	paths := engine.Paths{
		FFmpeg:  filepath.Join(dir, "ffmpeg"),
		FFprobe: filepath.Join(dir, "ffprobe"),
	}

	if i.installed(dir, paths) {
		return paths, nil
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return engine.Paths{}, fmt.Errorf("install: create engine dir: %w", err)
	}

	archiveName := i.build + ".tar.xz"
	archiveURL := i.baseURL + "/" + archiveName

	wantSum, err := i.fetchChecksum(ctx, archiveURL+".sha256", archiveName)
	if err != nil {
		return engine.Paths{}, err
	}

	archivePath := filepath.Join(dir, archiveName)
	if err := i.download(ctx, archiveURL, archivePath); err != nil {
		return engine.Paths{}, err
	}
	defer func() { _ = os.Remove(archivePath) }()

	if err := verifyChecksum(archivePath, wantSum); err != nil {
		return engine.Paths{}, err
	}

	if err := extractBinaries(archivePath, dir); err != nil {
		return engine.Paths{}, err
	}

	if err := os.WriteFile(filepath.Join(dir, markerFile), []byte(i.build+"\n"), 0o644); err != nil {
		return engine.Paths{}, fmt.Errorf("install: write build marker: %w", err)
	}

	return paths, nil
}

// installed reports whether dir already holds this build with both binaries.
func (i *Installer) installed(dir string, paths engine.Paths) bool {
	marker, err := os.ReadFile(filepath.Join(dir, markerFile))
	if err != nil || strings.TrimSpace(string(marker)) != i.build {
		return false
	}
	if _, err := os.Stat(paths.FFmpeg); err != nil {
		return false
	}
	if _, err := os.Stat(paths.FFprobe); err != nil {
		return false
	}
	return true
}

// fetchChecksum downloads the manifest and returns the hex digest recorded
// for archiveName. Manifest lines are "<digest>  <filename>"; a manifest
// holding a single bare digest is also accepted.
func (i *Installer) fetchChecksum(ctx context.Context, url, archiveName string) (string, error) {
	body, err := i.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(io.LimitReader(body, manifestLimit))
	if err != nil {
		return "", fmt.Errorf("install: read checksum manifest: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		fields := strings.Fields(line)
		switch {
		case len(fields) >= 2:
			name := strings.TrimPrefix(fields[1], "*")
			if filepath.Base(name) == archiveName {
				return fields[0], nil
			}
		case len(fields) == 1 && len(fields[0]) == sha256.Size*2:
			return fields[0], nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrChecksumMissing, archiveName)
}

// download fetches url into destPath via a temp file renamed on success.
func (i *Installer) download(ctx context.Context, url, destPath string) error {
	body, err := i.get(ctx, url)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".install-*.tmp")
	if err != nil {
		return fmt.Errorf("install: create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("install: write download: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("install: close temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("install: rename temp file: %w", err)
	}
	return nil
}

// get performs one GET and returns the body on HTTP 200.
func (i *Installer) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("install: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("install: fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("install: HTTP %d from %s", resp.StatusCode, url)
	}
	return resp.Body, nil
}

// verifyChecksum compares the file's SHA-256 digest against want.
func verifyChecksum(path, want string) error {
	f, err := os.Open(path) // #nosec G304 - path is built by the installer
	if err != nil {
		return fmt.Errorf("install: open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, bufio.NewReader(f)); err != nil {
		return fmt.Errorf("install: hash archive: %w", err)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, want)
	}
	return nil
}
