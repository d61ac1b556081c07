package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-scheduler-api/internal/dto"
	appErrors "github.com/noah-isme/exam-scheduler-api/pkg/errors"
	"github.com/noah-isme/exam-scheduler-api/pkg/jobs"
)

const examGenerateJobKind = "exam-schedule.generate"

type examGenerator interface {
	Generate(ctx context.Context, req dto.GenerateExamScheduleRequest) (*dto.ExamScheduleProposalResponse, error)
}

// ExamJobConfig sizes the generation worker pool.
type ExamJobConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
	Retention  time.Duration
}

// ExamJobService runs generations in the background and tracks their status in memory.
type ExamJobService struct {
	generator examGenerator
	queue     *jobs.Queue
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	retention time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	jobs map[string]*dto.ExamJobResponse
}

// NewExamJobService builds the service and its queue. Call Start before Enqueue.
func NewExamJobService(generator examGenerator, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg ExamJobConfig) *ExamJobService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	svc := &ExamJobService{
		generator: generator,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		retention: cfg.Retention,
		now:       time.Now,
		jobs:      make(map[string]*dto.ExamJobResponse),
	}
	svc.queue = jobs.NewQueue("exam-generation", svc.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		OnFailure:  svc.fail,
		Logger:     logger,
	})
	return svc
}

// Start launches the workers.
func (s *ExamJobService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for the workers to exit. Queued jobs are abandoned.
func (s *ExamJobService) Stop() {
	s.queue.Stop()
}

// Enqueue validates the request and queues a generation.
func (s *ExamJobService) Enqueue(ctx context.Context, req dto.GenerateExamScheduleRequest) (*dto.ExamJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam schedule generation payload")
	}
	now := s.now().UTC()
	record := &dto.ExamJobResponse{JobID: uuid.NewString(), Status: dto.ExamJobQueued, CreatedAt: now, UpdatedAt: now}

	s.mu.Lock()
	s.jobs[record.JobID] = record
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: record.JobID, Kind: examGenerateJobKind, Payload: req}); err != nil {
		s.mu.Lock()
		delete(s.jobs, record.JobID)
		s.mu.Unlock()
		if errors.Is(err, jobs.ErrQueueClosed) {
			return nil, appErrors.Wrap(err, appErrors.ErrServiceDisabled.Code, appErrors.ErrServiceDisabled.Status, "generation queue is not running")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue generation")
	}
	return s.Status(ctx, record.JobID)
}

// Status returns a snapshot of a job.
func (s *ExamJobService) Status(ctx context.Context, jobID string) (*dto.ExamJobResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.jobs[jobID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
	}
	clone := *record
	return &clone, nil
}

// Prune forgets finished jobs older than the retention window.
func (s *ExamJobService) Prune() int {
	cutoff := s.now().UTC().Add(-s.retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, record := range s.jobs {
		finished := record.Status == dto.ExamJobSucceeded || record.Status == dto.ExamJobFailed
		if finished && record.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

func (s *ExamJobService) handle(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.GenerateExamScheduleRequest)
	if !ok {
		return jobs.Permanent(errors.New("unexpected job payload"))
	}
	s.update(job.ID, func(r *dto.ExamJobResponse) {
		r.Status = dto.ExamJobRunning
		r.Attempts = job.Attempt + 1
	})

	resp, err := s.generator.Generate(ctx, req)
	if err != nil {
		if appErrors.FromError(err).Status < http.StatusInternalServerError {
			return jobs.Permanent(err)
		}
		return err
	}

	s.update(job.ID, func(r *dto.ExamJobResponse) {
		r.Status = dto.ExamJobSucceeded
		r.ProposalID = resp.ProposalID
		r.Error = ""
	})
	s.metrics.RecordJob(string(dto.ExamJobSucceeded))
	return nil
}

func (s *ExamJobService) fail(job jobs.Job, err error) {
	s.update(job.ID, func(r *dto.ExamJobResponse) {
		r.Status = dto.ExamJobFailed
		r.Error = appErrors.FromError(err).Message
	})
	s.metrics.RecordJob(string(dto.ExamJobFailed))
}

func (s *ExamJobService) update(jobID string, fn func(*dto.ExamJobResponse)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.jobs[jobID]
	if !ok {
		return
	}
	fn(record)
	record.UpdatedAt = s.now().UTC()
}
