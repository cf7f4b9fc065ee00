package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage implements the Storage interface using local disk.
// Each job gets one directory under <root>/jobs holding its fixed-name
// input and output files. It does not support S3 operations unless
// wrapped with S3Storage.
type LocalStorage struct {
	jobsDir string
}

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// NewLocalStorage creates a new LocalStorage instance.
// The scratchDir parameter is the root of the scratch namespace.
// If scratchDir is empty, a directory under os.TempDir() is used.
// The jobs directory is created if it doesn't exist.
func NewLocalStorage(scratchDir string) (*LocalStorage, error) {
	if scratchDir == "" {
		scratchDir = filepath.Join(os.TempDir(), "gifforge")
	}

	jobsDir := filepath.Join(scratchDir, "jobs")
	if err := os.MkdirAll(jobsDir, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create jobs directory: %w", err)
	}

	return &LocalStorage{jobsDir: jobsDir}, nil
}

// JobsDir returns the root directory job scratch directories live under.
func (s *LocalStorage) JobsDir() string {
	return s.jobsDir
}

// SaveInput creates the job's scratch directory and streams data into it
// under input<ext>, where ext comes from the original upload name.
func (s *LocalStorage) SaveInput(ctx context.Context, jobID, originalName string, data io.Reader) (string, int64, error) {
	select {
	case <-ctx.Done():
		return "", 0, fmt.Errorf("storage: context cancelled: %w", ctx.Err())
	default:
	}

	dir, err := s.jobDir(jobID)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", 0, fmt.Errorf("storage: create job directory: %w", err)
	}

	path := filepath.Join(dir, InputBaseName+inputExt(originalName))
	f, err := os.Create(path) // #nosec G304 - path is built from a validated job ID
	if err != nil {
		return "", 0, fmt.Errorf("storage: create input file: %w", err)
	}

	size, err := io.Copy(f, data)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("storage: write input file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("storage: close input file: %w", err)
	}

	return path, size, nil
}

// ResultPath returns the fixed output path for a job. The job ID must have
// been validated by a prior SaveInput for the same job.
func (s *LocalStorage) ResultPath(jobID string) string {
	return filepath.Join(s.jobsDir, jobID, ResultFileName)
}

// OpenResult opens the job's produced GIF and reports its size.
func (s *LocalStorage) OpenResult(ctx context.Context, jobID string) (io.ReadSeekCloser, int64, error) {
	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("storage: context cancelled: %w", ctx.Err())
	default:
	}

	if _, err := s.jobDir(jobID); err != nil {
		return nil, 0, err
	}

	path := s.ResultPath(jobID)
	f, err := os.Open(path) // #nosec G304 - path is built from a validated job ID
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrResultNotFound, jobID)
		}
		return nil, 0, fmt.Errorf("storage: open result: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("storage: stat result: %w", err)
	}

	return f, info.Size(), nil
}

// PushResult is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) PushResult(_ context.Context, _, _ string) (string, error) {
	return "", ErrS3NotConfigured
}

// jobDir validates jobID as a single path component and returns the job's
// scratch directory. IDs that could escape the jobs root are rejected.
func (s *LocalStorage) jobDir(jobID string) (string, error) {
	if jobID == "" || jobID == "." || jobID == ".." {
		return "", ErrInvalidJobID
	}
	if strings.ContainsAny(jobID, `/\`) {
		return "", ErrInvalidJobID
	}
	return filepath.Join(s.jobsDir, jobID), nil
}

// inputExt derives the stored input extension from the original upload
// name: lowercased, defaulting to .bin when the name carries none.
func inputExt(originalName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	if ext == "" || ext == "." {
		return ".bin"
	}
	return ext
}
