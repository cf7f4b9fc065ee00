// Package apiclient provides a typed HTTP client for the gifforge service,
// used by the companion CLI.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Static errors for client operations.
var (
	// ErrJobIDRequired is returned when the job ID is not provided.
	ErrJobIDRequired = errors.New("apiclient: job ID is required")
	// ErrFileRequired is returned when the upload path is not provided.
	ErrFileRequired = errors.New("apiclient: input file is required")
)

// Options are the per-conversion knobs sent with an upload.
type Options struct {
	// FrameRate is the output GIF frame rate; zero uses the server default.
	FrameRate int
	// Width is the output GIF width in pixels; zero uses the server default.
	Width int
	// PushToS3 asks the server to also push the result to object storage.
	PushToS3 bool
}

// Job mirrors the service's job representation.
type Job struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	InputName   string     `json:"input_name"`
	InputSize   int64      `json:"input_size"`
	FrameRate   int        `json:"frame_rate"`
	Width       int        `json:"width"`
	Progress    float64    `json:"progress"`
	Message     string     `json:"message,omitempty"`
	Error       string     `json:"error,omitempty"`
	OutputSize  int64      `json:"output_size,omitempty"`
	ResultURL   string     `json:"result_url,omitempty"`
	S3URL       string     `json:"s3_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has reached a final status.
func (j *Job) Terminal() bool {
	return j.Status == "COMPLETED" || j.Status == "FAILED"
}

// EngineStatus mirrors the service's engine bootstrap state.
type EngineStatus struct {
	Ready   bool   `json:"ready"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Health mirrors the service's health response.
type Health struct {
	Status string       `json:"status"`
	Engine EngineStatus `json:"engine"`
}

// APIError is a structured error returned by the service.
type APIError struct {
	// Status is the HTTP status code.
	Status int
	// Code is the service's error code (VALIDATION_ERROR, JOB_NOT_FOUND, ...).
	Code string
	// Message is the human-readable error text.
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apiclient: %s (%s, HTTP %d)", e.Message, e.Code, e.Status)
}

// Client defines the operations the CLI needs against the service.
type Client interface {
	// Health fetches the service and engine state.
	Health(ctx context.Context) (*Health, error)

	// Create uploads the file at filePath and returns the created job.
	Create(ctx context.Context, filePath string, opts Options) (*Job, error)

	// Get fetches one job by ID.
	Get(ctx context.Context, id string) (*Job, error)

	// List fetches all jobs, newest first.
	List(ctx context.Context) ([]*Job, error)

	// Wait polls the job until it reaches a terminal status. onUpdate, if
	// non-nil, receives every observed state, including the final one.
	Wait(ctx context.Context, id string, interval time.Duration, onUpdate func(*Job)) (*Job, error)

	// Download writes the job's produced GIF to dst.
	Download(ctx context.Context, id, dst string) error
}

// HTTPClient is the HTTP implementation of Client.
type HTTPClient struct {
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
	getTimeout  time.Duration
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithBaseURL sets the service base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *HTTPClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.baseBackoff = d
	}
}

// WithGetTimeout sets the per-request timeout for the small GET calls.
func WithGetTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.getTimeout = d
	}
}

// New creates a client against baseURL (default http://localhost:8080).
// The underlying http.Client carries no global timeout: Create streams an
// upload of arbitrary size and Download streams the result, so only the
// small GET calls get a per-request deadline.
func New(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:     "http://localhost:8080",
		httpClient:  &http.Client{},
		maxRetries:  3,
		baseBackoff: 500 * time.Millisecond,
		getTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health fetches the service and engine state.
func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var health Health
	if err := c.getWithRetry(ctx, c.baseURL+"/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Create uploads the file at filePath as a multipart request. Uploads are
// not retried: the body streams from disk and a duplicate submission would
// create a duplicate job.
func (c *HTTPClient) Create(ctx context.Context, filePath string, opts Options) (*Job, error) {
	if filePath == "" {
		return nil, ErrFileRequired
	}

	f, err := os.Open(filePath) // #nosec G304 - path comes from the CLI user
	if err != nil {
		return nil, fmt.Errorf("apiclient: open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		err := writeUploadForm(form, f, filepath.Base(filePath), opts)
		if closeErr := form.Close(); err == nil {
			err = closeErr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", pr)
	if err != nil {
		return nil, fmt.Errorf("apiclient: create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apiclient: upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var created Job
	if err := decodeResponse(resp, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Get fetches one job by ID.
func (c *HTTPClient) Get(ctx context.Context, id string) (*Job, error) {
	if id == "" {
		return nil, ErrJobIDRequired
	}
	var jb Job
	if err := c.getWithRetry(ctx, c.baseURL+"/jobs/"+id, &jb); err != nil {
		return nil, err
	}
	return &jb, nil
}

// List fetches all jobs, newest first.
func (c *HTTPClient) List(ctx context.Context) ([]*Job, error) {
	var resp struct {
		Jobs []*Job `json:"jobs"`
	}
	if err := c.getWithRetry(ctx, c.baseURL+"/jobs", &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Wait polls the job every interval until it reaches a terminal status.
func (c *HTTPClient) Wait(ctx context.Context, id string, interval time.Duration, onUpdate func(*Job)) (*Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		jb, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(jb)
		}
		if jb.Terminal() {
			return jb, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("apiclient: wait cancelled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Download writes the job's produced GIF to dst.
func (c *HTTPClient) Download(ctx context.Context, id, dst string) error {
	if id == "" {
		return ErrJobIDRequired
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+id+"/result", nil)
	if err != nil {
		return fmt.Errorf("apiclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return apiErrorFrom(resp)
	}

	out, err := os.Create(dst) // #nosec G304 - path comes from the CLI user
	if err != nil {
		return fmt.Errorf("apiclient: create output file: %w", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("apiclient: write output file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("apiclient: close output file: %w", err)
	}
	return nil
}

// writeUploadForm emits option fields before the file part; the server
// requires that ordering so it can stream the upload.
func writeUploadForm(form *multipart.Writer, file io.Reader, fileName string, opts Options) error {
	if opts.FrameRate > 0 {
		if err := form.WriteField("frame_rate", strconv.Itoa(opts.FrameRate)); err != nil {
			return err
		}
	}
	if opts.Width > 0 {
		if err := form.WriteField("width", strconv.Itoa(opts.Width)); err != nil {
			return err
		}
	}
	if opts.PushToS3 {
		if err := form.WriteField("push_to_s3", "true"); err != nil {
			return err
		}
	}

	fw, err := form.CreateFormFile("file", fileName)
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, file)
	return err
}

// getWithRetry performs a GET with exponential backoff on transient
// failures: transport errors, 5xx, and 429. Other API errors return
// immediately as *APIError.
func (c *HTTPClient) getWithRetry(ctx context.Context, url string, result any) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("apiclient: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		err := c.get(ctx, url, result)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("apiclient: max retries exceeded: %w", lastErr)
}

// get performs a single GET request with a per-attempt deadline.
func (c *HTTPClient) get(ctx context.Context, url string, result any) error {
	if c.getTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.getTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("apiclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("apiclient: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		apiErr := apiErrorFrom(resp)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: apiErr}
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("apiclient: decode response: %w", err)
	}
	return nil
}

// decodeResponse decodes a 2xx JSON body into result, or surfaces the
// service's error envelope.
func decodeResponse(resp *http.Response, result any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiErrorFrom(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("apiclient: decode response: %w", err)
	}
	return nil
}

// apiErrorFrom builds an *APIError from a non-2xx response, tolerating
// bodies that are not the standard envelope.
func apiErrorFrom(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var envelope struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == "" {
		return &APIError{
			Status:  resp.StatusCode,
			Code:    "UNEXPECTED_RESPONSE",
			Message: resp.Status,
		}
	}
	return &APIError{
		Status:  resp.StatusCode,
		Code:    envelope.Code,
		Message: envelope.Error,
	}
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
