// Package job provides the Job aggregate for GIF conversion requests.
// It includes the Job entity with state machine transitions, repository
// interfaces for in-memory persistence, and the service orchestrating one
// conversion attempt per job.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/gifforge/gifforge/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is created but processing has not started.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the conversion is executing.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job encountered an error during execution.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
// Terminal states are absorbing.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Job represents one video-to-GIF conversion request.
// Fields are written directly only while the job is still private to its
// creator; once shared, all mutation goes through the locked methods.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// InputName is the original name of the uploaded file.
	InputName string
	// InputSize is the uploaded file size in bytes.
	InputSize int64
	// InputPath is where the input bytes were written for the engine.
	InputPath string
	// FrameRate is the output GIF frame rate.
	FrameRate int
	// Width is the output GIF width in pixels.
	Width int
	// Duration is the probed length of the input.
	Duration time.Duration
	// Progress is the fraction of the conversion done, in [0,1].
	Progress float64
	// Message is the engine's most recent log line.
	Message string
	// Error contains the error message if the job failed.
	Error string
	// OutputPath is the path to the produced GIF.
	OutputPath string
	// OutputSize is the produced GIF size in bytes.
	OutputSize int64
	// PushToS3 indicates whether to upload the result to object storage.
	PushToS3 bool
	// ResultURL is the object storage URL if PushToS3 was set.
	ResultURL string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.New())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE
// status. Useful for testing or when the ID is externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED state.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to FAILED state with an error message.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// UpdateProgress records the two pieces of state the engine reports while
// converting: the progress ratio, clamped to [0,1], and the latest log
// message. An empty message keeps the previous one.
func (j *Job) UpdateProgress(ratio float64, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	j.Progress = ratio
	if message != "" {
		j.Message = message
	}
	j.UpdatedAt = time.Now()
}

// SetDuration records the probed input duration.
func (j *Job) SetDuration(d time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Duration = d
	j.UpdatedAt = time.Now()
}

// SetOutput records the produced GIF and optional object storage URL.
func (j *Job) SetOutput(outputPath string, size int64, resultURL string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = outputPath
	j.OutputSize = size
	j.ResultURL = resultURL
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:          j.ID,
		Status:      j.Status,
		InputName:   j.InputName,
		InputSize:   j.InputSize,
		InputPath:   j.InputPath,
		FrameRate:   j.FrameRate,
		Width:       j.Width,
		Duration:    j.Duration,
		Progress:    j.Progress,
		Message:     j.Message,
		Error:       j.Error,
		OutputPath:  j.OutputPath,
		OutputSize:  j.OutputSize,
		PushToS3:    j.PushToS3,
		ResultURL:   j.ResultURL,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
