// Package worker runs queued admission jobs with a fixed number of
// goroutines, which caps how many shards are validated at once.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShagaDAO/gap/internal/domain/model"
	"github.com/ShagaDAO/gap/pkg/logger"
	"github.com/ShagaDAO/gap/pkg/metrics"
)

const (
	defaultJobTimeout   = 5 * time.Minute
	poolShutdownTimeout = 30 * time.Second
)

// Admitter runs one admission.
type Admitter interface {
	Admit(ctx context.Context, req model.AdmissionRequest) (*model.AdmissionReport, error)
}

// Recorder persists job state transitions.
type Recorder interface {
	Update(ctx context.Context, id string, fn func(*model.Job)) (model.Job, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Job
}

// Worker processes jobs until its queue closes or ctx is cancelled.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue      Queue
	admitter   Admitter
	recorder   Recorder
	name       string
	jobTimeout time.Duration

	processed atomic.Int64

	done   chan struct{}
	logger logger.Logger
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(queue Queue, admitter Admitter, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      queue,
		admitter:   admitter,
		recorder:   recorder,
		name:       "worker",
		jobTimeout: defaultJobTimeout,
		done:       make(chan struct{}),
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run consumes jobs until the queue is closed and drained or ctx ends.
func (w *InMemoryWorker) Run(ctx context.Context) {
	w.consume(ctx, w.queue.Dequeue(ctx))
}

func (w *InMemoryWorker) consume(ctx context.Context, jobs <-chan model.Job) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, j)
		}
	}
}

// Shutdown waits for Run to return. The caller stops Run by closing the
// queue or cancelling its context.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns how many jobs this worker finished.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

func (w *InMemoryWorker) process(ctx context.Context, j model.Job) { //nolint:gocritic // jobs arrive by value
	metrics.AddWorkersActive(1)
	defer metrics.AddWorkersActive(-1)

	if _, err := w.recorder.Update(ctx, j.ID, func(job *model.Job) { job.Status = model.JobRunning }); err != nil {
		// The job was evicted or never recorded; running it would be wasted.
		w.logger.Warn(ctx, "dropping unknown job", logger.String("job", j.ID), logger.Error(err))
		metrics.RecordErrorByComponent("worker", "unknown_job")
		return
	}

	jctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	start := time.Now()
	report, err := w.admitter.Admit(jctx, j.Request)
	cancel()

	status := model.JobDone
	if err != nil {
		status = model.JobFailed
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("admission exceeded %s: %w", w.jobTimeout, err)
		}
		metrics.RecordErrorByComponent("worker", "admission_failed")
		w.logger.Error(ctx, "admission failed", logger.String("job", j.ID), logger.Error(err))
	}

	// Persist the outcome even when ctx was cancelled mid-run.
	if _, uerr := w.recorder.Update(context.WithoutCancel(ctx), j.ID, func(job *model.Job) {
		job.Status = status
		job.Report = report
		if err != nil {
			job.Error = err.Error()
		}
	}); uerr != nil {
		w.logger.Warn(ctx, "job finished after eviction", logger.String("job", j.ID), logger.Error(uerr))
	}

	w.processed.Add(1)
	metrics.RecordJob(string(status))
	w.logger.Debug(ctx, "job finished",
		logger.String("job", j.ID),
		logger.String("status", string(status)),
		logger.Duration("elapsed", time.Since(start)))
}

// Pool manages a fixed set of workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	logger logger.Logger
}

// NewPool creates workerCount workers. A count below one means one worker
// per CPU.
func NewPool(workerCount int, queue Queue, admitter Admitter, recorder Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	base := &InMemoryWorker{logger: logger.Discard()}
	for _, opt := range opts {
		opt(base)
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  base.logger.Named("pool"),
	}
	for i := range workerCount {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(queue, admitter, recorder, wopts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start launches every worker. Workers share one dequeue channel so an
// idle worker always picks up the next job.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	jobs := p.queue.Dequeue(ctx)
	for _, w := range p.workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.consume(ctx, jobs)
		}()
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of jobs finished by all workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Shutdown closes the queue and lets workers drain it. Workers still busy
// when ctx (or the pool's own bound) expires are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error
	p.once.Do(func() {
		if closer, ok := p.queue.(interface{ Close() error }); ok {
			if cerr := closer.Close(); cerr != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(cerr))
			}
		}

		drained := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(drained)
		}()

		sctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
		defer cancel()
		select {
		case <-drained:
		case <-sctx.Done():
			p.logger.Warn(ctx, "worker drain timed out, cancelling running jobs")
			err = fmt.Errorf("worker drain: %w", sctx.Err())
		}
		if p.cancel != nil {
			p.cancel()
		}
		<-drained
	})
	return err
}
