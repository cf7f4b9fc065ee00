// Package server provides the HTTP layer of the GIF conversion service.
// It includes handlers, middleware, routes, the embedded browser UI, and
// DTOs separated from domain types.
package server

import (
	"time"

	"github.com/gifforge/gifforge/internal/job"
)

// ConvertOptions are the optional per-request knobs accepted alongside the
// uploaded file. Zero values fall back to the service defaults.
type ConvertOptions struct {
	// FrameRate is the output GIF frame rate in frames per second.
	FrameRate int `validate:"omitempty,min=1,max=30"`
	// Width is the output GIF width in pixels.
	Width int `validate:"omitempty,min=16,max=1920"`
	// PushToS3 indicates whether to upload the result to object storage.
	PushToS3 bool
}

// JobResponse is the HTTP representation of a job.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the current job status.
	Status string `json:"status"`
	// InputName is the original name of the uploaded file.
	InputName string `json:"input_name"`
	// InputSize is the uploaded file size in bytes.
	InputSize int64 `json:"input_size"`
	// FrameRate is the requested output frame rate.
	FrameRate int `json:"frame_rate"`
	// Width is the requested output width in pixels.
	Width int `json:"width"`
	// Progress is the fraction of the conversion done, in [0,1].
	Progress float64 `json:"progress"`
	// Message is the engine's most recent log line, if any.
	Message string `json:"message,omitempty"`
	// Error contains the failure text if the job failed.
	Error string `json:"error,omitempty"`
	// OutputSize is the produced GIF size in bytes (when completed).
	OutputSize int64 `json:"output_size,omitempty"`
	// ResultURL is where the GIF can be fetched once completed.
	ResultURL string `json:"result_url,omitempty"`
	// S3URL is the object storage URL if the result was pushed.
	S3URL string `json:"s3_url,omitempty"`
	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when processing finished (zero until terminal).
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobListResponse is the HTTP response for listing jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// EngineStatus describes the once-only engine bootstrap outcome.
type EngineStatus struct {
	// Ready is true when the engine answered its version probe at startup.
	Ready bool `json:"ready"`
	// Version is the engine's reported version when ready.
	Version string `json:"version,omitempty"`
	// Error is the recorded bootstrap error when not ready.
	Error string `json:"error,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is "ok" when the engine is ready, "degraded" otherwise.
	Status string `json:"status"`
	// Engine reports the engine bootstrap state.
	Engine EngineStatus `json:"engine"`
}

// Error codes returned in ErrorResponse.Code.
const (
	codeInvalidRequest       = "INVALID_REQUEST"
	codeValidationError      = "VALIDATION_ERROR"
	codeFileTooLarge         = "FILE_TOO_LARGE"
	codeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	codeEngineUnavailable    = "ENGINE_UNAVAILABLE"
	codeJobNotFound          = "JOB_NOT_FOUND"
	codeResultNotReady       = "RESULT_NOT_READY"
	codeInternalError        = "INTERNAL_ERROR"
)

// toJobResponse converts a job aggregate into its HTTP representation.
func toJobResponse(jb *job.Job) JobResponse {
	resp := JobResponse{
		ID:        jb.ID,
		Status:    string(jb.Status),
		InputName: jb.InputName,
		InputSize: jb.InputSize,
		FrameRate: jb.FrameRate,
		Width:     jb.Width,
		Progress:  jb.Progress,
		Message:   jb.Message,
		Error:     jb.Error,
		CreatedAt: jb.CreatedAt,
	}
	if jb.Status == job.StatusCompleted {
		resp.OutputSize = jb.OutputSize
		resp.ResultURL = "/jobs/" + jb.ID + "/result"
		resp.S3URL = jb.ResultURL
	}
	if !jb.CompletedAt.IsZero() {
		completed := jb.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}
