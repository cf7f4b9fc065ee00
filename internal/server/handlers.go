package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/gifforge/gifforge/internal/job"
	"github.com/gifforge/gifforge/internal/storage"
)

// sniffLen is how many leading bytes of an upload feed content detection.
const sniffLen = 3072

// containerTypes are non-"video/*" content types accepted as known media
// containers.
var containerTypes = map[string]struct{}{
	"application/mp4":        {},
	"application/x-matroska": {},
	"application/ogg":        {},
}

// Handlers contains the HTTP handlers for the service.
type Handlers struct {
	service        *job.ConvertService
	store          storage.Storage
	validator      *validator.Validate
	logger         *slog.Logger
	engineStatus   EngineStatus
	maxUploadBytes int64
	asyncConvert   bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithEngineStatus records the once-only engine bootstrap outcome. When the
// engine is not ready every conversion request is refused with the recorded
// error; there is no retry.
func WithEngineStatus(status EngineStatus) HandlerOption {
	return func(h *Handlers) {
		h.engineStatus = status
	}
}

// WithMaxUploadBytes caps the accepted upload size.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithAsyncConversion enables or disables background conversion.
// When disabled, CreateJob only creates the job and returns immediately
// without starting the conversion; tests use this to observe intake state.
func WithAsyncConversion(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.asyncConvert = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.ConvertService, store storage.Storage, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:        service,
		store:          store,
		validator:      validator.New(),
		logger:         logger,
		engineStatus:   EngineStatus{Ready: true},
		maxUploadBytes: 512 << 20,
		asyncConvert:   true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if !h.engineStatus.Ready {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: status,
		Engine: h.engineStatus,
	})
}

// CreateJob handles POST /jobs requests: a multipart upload holding the
// video under "file" plus optional frame_rate, width, and push_to_s3
// fields. The non-file fields must precede the file part so the job can be
// created while the upload streams. On success the conversion is kicked
// off in the background and 202 is returned with the job representation.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	if !h.engineStatus.Ready {
		msg := "transcoding engine is unavailable"
		if h.engineStatus.Error != "" {
			msg = "transcoding engine is unavailable: " + h.engineStatus.Error
		}
		writeError(w, http.StatusServiceUnavailable, msg, codeEngineUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "request must be multipart/form-data", codeInvalidRequest)
		return
	}

	opts, filePart, err := readUploadForm(mr)
	if err != nil {
		h.uploadError(w, err)
		return
	}
	defer func() { _ = filePart.Close() }()

	if err := h.validator.Struct(opts); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), codeValidationError)
		return
	}

	fileName := filepath.Base(filePart.FileName())
	body, err := sniffVideo(filePart)
	if err != nil {
		h.uploadError(w, err)
		return
	}

	createdJob, err := h.service.CreateJob(r.Context(), job.CreateInput{
		FileName:  fileName,
		Data:      body,
		FrameRate: opts.FrameRate,
		Width:     opts.Width,
		PushToS3:  opts.PushToS3,
	})
	if err != nil {
		h.uploadError(w, err)
		return
	}

	// Convert in the background with a detached context so the attempt
	// survives the end of this request.
	if h.asyncConvert {
		go func(ctx context.Context, jobID string) {
			if convErr := h.service.Convert(ctx, jobID); convErr != nil {
				h.logger.Error("background conversion failed",
					slog.String("job_id", jobID),
					slog.String("error", convErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID)
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.String("input_name", fileName),
		slog.String("input_size", humanize.IBytes(uint64(createdJob.InputSize))),
	)

	writeJSON(w, http.StatusAccepted, toJobResponse(createdJob))
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", codeJobNotFound)
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", codeInternalError)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(foundJob))
}

// ListJobs handles GET /jobs requests, newest job first.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list jobs", codeInternalError)
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, jb := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(jb))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetResult handles GET /jobs/{id}/result requests, serving the produced
// GIF inline. The result stays downloadable for the life of the process.
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", codeJobNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get job", codeInternalError)
		return
	}

	if foundJob.Status != job.StatusCompleted {
		writeError(w, http.StatusConflict, "conversion has not completed", codeResultNotReady)
		return
	}

	result, _, err := h.store.OpenResult(r.Context(), jobID)
	if err != nil {
		h.logger.Error("failed to open result",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to open result", codeInternalError)
		return
	}
	defer func() { _ = result.Close() }()

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", resultFileName(foundJob.InputName)))
	http.ServeContent(w, r, "", foundJob.CompletedAt, result)
}

// uploadError maps intake failures onto the error envelope.
func (h *Handlers) uploadError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		msg := fmt.Sprintf("file exceeds the %s upload limit", humanize.IBytes(uint64(h.maxUploadBytes)))
		writeError(w, http.StatusRequestEntityTooLarge, msg, codeFileTooLarge)
	case errors.Is(err, errNotVideo):
		writeError(w, http.StatusUnsupportedMediaType, err.Error(), codeUnsupportedMediaType)
	case errors.Is(err, errMissingFile), errors.Is(err, errBadForm):
		writeError(w, http.StatusBadRequest, err.Error(), codeInvalidRequest)
	default:
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", codeInternalError)
	}
}

// Intake errors surfaced to clients.
var (
	errMissingFile = errors.New(`multipart form has no "file" part`)
	errNotVideo    = errors.New("uploaded file is not a recognized video")
	errBadForm     = errors.New("malformed multipart form")
)

// readUploadForm walks the multipart stream, collecting option fields until
// the file part is reached. The file part is returned still unread so the
// upload can stream into storage.
func readUploadForm(mr *multipart.Reader) (ConvertOptions, *multipart.Part, error) {
	var opts ConvertOptions

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return opts, nil, errMissingFile
		}
		if err != nil {
			return opts, nil, fmt.Errorf("%w: %w", errBadForm, err)
		}

		if part.FormName() == "file" {
			return opts, part, nil
		}

		value, err := readFormValue(part)
		if err != nil {
			return opts, nil, err
		}

		switch part.FormName() {
		case "frame_rate":
			opts.FrameRate, err = strconv.Atoi(value)
		case "width":
			opts.Width, err = strconv.Atoi(value)
		case "push_to_s3":
			opts.PushToS3, err = strconv.ParseBool(value)
		default:
			// Unknown fields are ignored.
			continue
		}
		if err != nil {
			return opts, nil, fmt.Errorf("%w: invalid %s value %q", errBadForm, part.FormName(), value)
		}
	}
}

// readFormValue reads one small non-file field.
func readFormValue(part *multipart.Part) (string, error) {
	defer func() { _ = part.Close() }()
	data, err := io.ReadAll(io.LimitReader(part, 256))
	if err != nil {
		return "", fmt.Errorf("%w: read field %s: %w", errBadForm, part.FormName(), err)
	}
	return strings.TrimSpace(string(data)), nil
}

// sniffVideo detects the upload's content type from its leading bytes and
// rejects anything that is not video. The consumed bytes are stitched back
// onto the returned reader.
func sniffVideo(file io.Reader) (io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: read upload: %w", errBadForm, err)
	}
	head = head[:n]

	mtype := mimetype.Detect(head)
	if !isVideoType(mtype) {
		return nil, fmt.Errorf("%w (detected %s)", errNotVideo, mtype.String())
	}

	return io.MultiReader(bytes.NewReader(head), file), nil
}

// isVideoType accepts video/* plus the known container types some muxers
// are detected as.
func isVideoType(mtype *mimetype.MIME) bool {
	if strings.HasPrefix(mtype.String(), "video/") {
		return true
	}
	_, ok := containerTypes[mtype.String()]
	return ok
}

// resultFileName derives the download name from the input name.
func resultFileName(inputName string) string {
	base := strings.TrimSuffix(inputName, filepath.Ext(inputName))
	if base == "" {
		base = "output"
	}
	return base + ".gif"
}
