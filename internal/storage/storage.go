// Package storage owns the engine's private scratch namespace: a per-job
// directory holding the fixed-name input and output files a conversion works
// on. It defines the Storage interface (port) for hexagonal architecture and
// implementations for local disk with optional S3 result push.
package storage

import (
	"context"
	"errors"
	"io"
)

// Static errors for storage operations.
var (
	// ErrS3NotConfigured is returned when a result push is attempted
	// without S3 configuration.
	ErrS3NotConfigured = errors.New("storage: S3 is not configured")
	// ErrInvalidJobID is returned when a job ID is not a safe path component.
	ErrInvalidJobID = errors.New("storage: invalid job ID")
	// ErrResultNotFound is returned when a job has no output file yet.
	ErrResultNotFound = errors.New("storage: result not found")
)

// InputBaseName is the fixed basename inputs are stored under; the
// extension of the original upload is appended.
const InputBaseName = "input"

// ResultFileName is the fixed name of the produced GIF inside a job's
// scratch directory.
const ResultFileName = "output.gif"

// Storage is the scratch namespace the engine reads from and writes to.
// Files live for the process lifetime; nothing is deleted or revoked.
type Storage interface {
	// SaveInput creates the job's scratch directory and streams data into
	// it under a fixed name derived from the original file's extension
	// (input.mp4, input.webm, ...). It returns the written path and size.
	SaveInput(ctx context.Context, jobID, originalName string, data io.Reader) (path string, size int64, err error)

	// ResultPath returns the path the engine must write the job's GIF to.
	ResultPath(jobID string) string

	// OpenResult opens the job's produced GIF for reading and reports its
	// size. The caller is responsible for closing the returned reader.
	// Returns ErrResultNotFound if the output file does not exist.
	OpenResult(ctx context.Context, jobID string) (io.ReadSeekCloser, int64, error)

	// PushResult uploads the job's produced GIF to object storage under
	// key and returns the object URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	PushResult(ctx context.Context, jobID, key string) (url string, err error)
}
