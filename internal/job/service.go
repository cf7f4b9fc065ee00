package job

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gifforge/gifforge/internal/engine"
	"github.com/gifforge/gifforge/internal/media"
	"github.com/gifforge/gifforge/internal/storage"
)

// defaultConvertTimeout bounds one conversion attempt.
const defaultConvertTimeout = 10 * time.Minute

// CreateInput contains the input parameters for creating a conversion job.
type CreateInput struct {
	// FileName is the original name of the uploaded file.
	FileName string
	// Data streams the uploaded file's bytes.
	Data io.Reader
	// FrameRate is the output GIF frame rate; zero uses the service default.
	FrameRate int
	// Width is the output GIF width in pixels; zero uses the service default.
	Width int
	// PushToS3 indicates whether to upload the result to object storage.
	PushToS3 bool
}

// ConvertService orchestrates one conversion attempt per job: probe the
// input, run the engine's fixed command while mirroring its progress into
// the job, record the result, and optionally push it to object storage.
// Any failure at any step takes the single catch-all path: the job is
// marked FAILED with the error text and its scratch files are left in
// place.
type ConvertService struct {
	repo   Repository
	store  storage.Storage
	prober media.Prober
	engine engine.Engine
	logger *slog.Logger

	defaultFrameRate int
	defaultWidth     int
	convertTimeout   time.Duration
	s3KeyPrefix      string
}

// ServiceOption configures a ConvertService.
type ServiceOption func(*ConvertService)

// WithDefaults sets the frame rate and width applied when a request does
// not specify them.
func WithDefaults(frameRate, width int) ServiceOption {
	return func(s *ConvertService) {
		if frameRate > 0 {
			s.defaultFrameRate = frameRate
		}
		if width > 0 {
			s.defaultWidth = width
		}
	}
}

// WithConvertTimeout bounds each conversion attempt.
func WithConvertTimeout(d time.Duration) ServiceOption {
	return func(s *ConvertService) {
		if d > 0 {
			s.convertTimeout = d
		}
	}
}

// WithS3KeyPrefix sets the key prefix for pushed results.
func WithS3KeyPrefix(prefix string) ServiceOption {
	return func(s *ConvertService) {
		s.s3KeyPrefix = prefix
	}
}

// NewConvertService creates a new ConvertService.
func NewConvertService(
	repo Repository,
	store storage.Storage,
	prober media.Prober,
	eng engine.Engine,
	logger *slog.Logger,
	opts ...ServiceOption,
) *ConvertService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ConvertService{
		repo:             repo,
		store:            store,
		prober:           prober,
		engine:           eng,
		logger:           logger,
		defaultFrameRate: 10,
		defaultWidth:     320,
		convertTimeout:   defaultConvertTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob creates a job, streams the upload into its scratch directory,
// and persists it in IN_QUEUE status, ready for Convert.
func (s *ConvertService) CreateJob(ctx context.Context, input CreateInput) (*Job, error) {
	jb := New()
	jb.InputName = input.FileName
	jb.FrameRate = input.FrameRate
	jb.Width = input.Width
	jb.PushToS3 = input.PushToS3

	if jb.FrameRate <= 0 {
		jb.FrameRate = s.defaultFrameRate
	}
	if jb.Width <= 0 {
		jb.Width = s.defaultWidth
	}

	path, size, err := s.store.SaveInput(ctx, jb.ID, input.FileName, input.Data)
	if err != nil {
		return nil, fmt.Errorf("save input: %w", err)
	}
	jb.InputPath = path
	jb.InputSize = size

	s.logger.Info("creating new job",
		slog.String("job_id", jb.ID),
		slog.String("input_name", jb.InputName),
		slog.Int64("input_size", size),
		slog.Int("frame_rate", jb.FrameRate),
		slog.Int("width", jb.Width),
		slog.Bool("push_to_s3", jb.PushToS3),
	)

	if err := s.repo.Save(ctx, jb); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", jb.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return jb.Clone(), nil
}

// GetJob retrieves a job by ID.
func (s *ConvertService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, newest first.
func (s *ConvertService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// Convert runs the conversion attempt for a previously created job.
// The attempt is bounded by the configured timeout. It is intended to run
// on a background goroutine; the returned error mirrors what was already
// recorded on the job.
func (s *ConvertService) Convert(ctx context.Context, jobID string) error {
	jb, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.convertTimeout)
	defer cancel()

	if err := s.runAttempt(ctx, jb); err != nil {
		s.fail(jb, err)
		return err
	}

	if err := jb.Complete(); err != nil {
		s.fail(jb, err)
		return err
	}
	s.persist(jb)

	s.logger.Info("conversion completed",
		slog.String("job_id", jb.ID),
		slog.String("output_path", jb.OutputPath),
		slog.Int64("output_size", jb.OutputSize),
	)
	return nil
}

// runAttempt drives one attempt through its steps. Each step's error is
// returned unwound for the caller's catch-all handling.
func (s *ConvertService) runAttempt(ctx context.Context, jb *Job) error {
	if err := jb.Start(); err != nil {
		return err
	}
	s.persist(jb)

	probe, err := s.prober.Probe(ctx, jb.InputPath)
	if err != nil {
		return fmt.Errorf("probe input: %w", err)
	}
	jb.SetDuration(probe.Duration)
	s.persist(jb)

	s.logger.Info("conversion started",
		slog.String("job_id", jb.ID),
		slog.String("codec", probe.VideoCodec),
		slog.String("container", probe.Container),
		slog.Duration("duration", probe.Duration),
	)

	spec := engine.ConvertSpec{
		InputPath:  jb.InputPath,
		OutputPath: s.store.ResultPath(jb.ID),
		FrameRate:  jb.FrameRate,
		Width:      jb.Width,
		Duration:   probe.Duration,
	}

	err = s.engine.Convert(ctx, spec, func(u engine.ProgressUpdate) {
		jb.UpdateProgress(u.Ratio, u.Message)
		s.persist(jb)
	})
	if err != nil {
		return fmt.Errorf("run engine: %w", err)
	}

	result, size, err := s.store.OpenResult(ctx, jb.ID)
	if err != nil {
		return fmt.Errorf("read result: %w", err)
	}
	_ = result.Close()

	var resultURL string
	if jb.PushToS3 {
		resultURL, err = s.store.PushResult(ctx, jb.ID, s.resultKey(jb.ID))
		if err != nil {
			return fmt.Errorf("push result: %w", err)
		}
	}

	jb.SetOutput(spec.OutputPath, size, resultURL)
	jb.UpdateProgress(1, "")
	return nil
}

// fail takes the catch-all error path: FAILED with the error text.
// Scratch files are intentionally left in place.
func (s *ConvertService) fail(jb *Job, cause error) {
	s.logger.Error("conversion failed",
		slog.String("job_id", jb.ID),
		slog.String("error", cause.Error()),
	)
	if err := jb.Fail(cause.Error()); err != nil {
		// Already terminal; keep the first recorded outcome.
		s.logger.Warn("could not mark job failed",
			slog.String("job_id", jb.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.persist(jb)
}

// persist saves the job without letting repository errors disturb the
// attempt; the in-memory repository cannot fail, but the port can.
func (s *ConvertService) persist(jb *Job) {
	if err := s.repo.Save(context.Background(), jb); err != nil {
		s.logger.Warn("failed to persist job state",
			slog.String("job_id", jb.ID),
			slog.String("error", err.Error()),
		)
	}
}

// resultKey builds the object storage key for a job's pushed result.
func (s *ConvertService) resultKey(jobID string) string {
	if s.s3KeyPrefix == "" {
		return jobID + ".gif"
	}
	return s.s3KeyPrefix + "/" + jobID + ".gif"
}
