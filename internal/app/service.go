// Package app provides the admission service that implements the
// dependencies required by the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ShagaDAO/gap/internal/adapters/http/api"
	jobqueue "github.com/ShagaDAO/gap/internal/adapters/mq/queue"
	workerpool "github.com/ShagaDAO/gap/internal/adapters/mq/worker"
	repository "github.com/ShagaDAO/gap/internal/adapters/repository"
	"github.com/ShagaDAO/gap/internal/admission"
	"github.com/ShagaDAO/gap/internal/config"
	"github.com/ShagaDAO/gap/internal/domain/model"
	"github.com/ShagaDAO/gap/internal/domain/pathguard"
	"github.com/ShagaDAO/gap/pkg/logger"
	"github.com/ShagaDAO/gap/pkg/metrics"
)

// ErrNotStarted is returned by Submit before Start or after Stop.
var ErrNotStarted = errors.New("service not started")

// Service queues admissions and runs them on a worker pool.
type Service struct {
	mu sync.RWMutex

	cfg      *config.Config
	admitter workerpool.Admitter
	newID    func() string

	queue   *jobqueue.InMemoryQueue
	store   *repository.MemoryStore
	pool    *workerpool.Pool
	sources *pathguard.Guard

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAdmitter replaces the pipeline built from configuration.
func WithAdmitter(a workerpool.Admitter) Option {
	return func(s *Service) {
		if a != nil {
			s.admitter = a
		}
	}
}

// WithIDGenerator sets how job IDs are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New constructs a Service. Nothing runs until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg:   cfg,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the pipeline if needed and launches the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting admission service...")

	if s.admitter == nil {
		p, err := NewPipeline(s.cfg, s.logger)
		if err != nil {
			return fmt.Errorf("build pipeline: %w", err)
		}
		s.admitter = p
	}

	if root := s.cfg.SourceRoot; root != "" {
		g, err := pathguard.New(root)
		if err != nil {
			return fmt.Errorf("source root: %w", err)
		}
		s.sources = g
	} else {
		s.logger.Warn(ctx, "source_root is not set, any local path can be submitted")
	}

	s.queue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.cfg.QueueSize))
	s.store = repository.NewMemoryStore(repository.WithRetention(s.cfg.ReportRetention))
	s.pool = workerpool.NewPool(s.cfg.WorkerCount, s.queue, s.admitter, s.store,
		workerpool.WithJobTimeout(s.cfg.ValidationTimeout()),
		workerpool.WithLogger(s.logger.Named("worker")),
	)
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "admission service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queue.Cap()),
		logger.Int("retention", s.cfg.ReportRetention),
	)
	return nil
}

// Stop refuses new submissions and lets queued admissions finish until ctx
// expires.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping admission service...")
	s.started = false
	err := s.pool.Shutdown(ctx)
	s.logger.Info(ctx, "admission service stopped", logger.Int64("processed", s.pool.Processed()))
	return err
}

// Defaults returns the request fields used when a submission omits them.
func (s *Service) Defaults() model.AdmissionRequest {
	return model.AdmissionRequest{
		Profile:     s.cfg.DefaultProfile,
		Strict:      s.cfg.Strict,
		UpdateCache: s.cfg.UpdateCache,
	}
}

// Submit records an admission and queues it. A full queue fails the job
// immediately and returns an error wrapping api.ErrBackpressure.
func (s *Service) Submit(ctx context.Context, req model.AdmissionRequest) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return model.Job{}, ErrNotStarted
	}
	if s.sources != nil {
		path, err := admission.ConfineSource(s.sources, req.Source)
		if err != nil {
			s.logger.Warn(ctx, "source refused", logger.String("source", req.Source), logger.Error(err))
			return model.Job{}, fmt.Errorf("%w: %w", api.ErrBadRequest, err)
		}
		req.Source = path
	}
	job := model.Job{ID: s.newID(), Status: model.JobPending, Request: req}
	if err := s.store.Create(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("record job: %w", err)
	}
	if !s.queue.Enqueue(ctx, job) {
		_, _ = s.store.Update(context.WithoutCancel(ctx), job.ID, func(j *model.Job) {
			j.Status = model.JobFailed
			j.Error = "rejected: queue full"
		})
		s.logger.Warn(ctx, "admission rejected", logger.String("job", job.ID), logger.String("source", req.Source))
		return model.Job{}, fmt.Errorf("queue full: %w", api.ErrBackpressure)
	}
	s.logger.Debug(ctx, "admission queued",
		logger.String("job", job.ID),
		logger.String("source", req.Source),
		logger.String("profile", req.Profile),
	)
	return job, nil
}

// Job returns a submitted admission by ID.
func (s *Service) Job(ctx context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()

	if store == nil {
		return model.Job{}, fmt.Errorf("job %s: %w", id, api.ErrNotFound)
	}
	j, err := store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Job{}, fmt.Errorf("%w: %w", api.ErrNotFound, err)
	}
	return j, err
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.cfg.WorkerCount,
		"queueSize":   s.cfg.QueueSize,
	}
	if s.queue == nil {
		return stats
	}

	queueLen := s.queue.Len(ctx)
	st := s.store.Stats(ctx)
	stats["queueLength"] = queueLen
	stats["processed"] = s.pool.Processed()
	stats["jobs"] = map[string]int{
		"total":   st.Total,
		"pending": st.Pending,
		"running": st.Running,
		"done":    st.Done,
		"failed":  st.Failed,
		"evicted": st.Evicted,
	}

	metrics.UpdateQueueSize(queueLen)
	return stats
}
