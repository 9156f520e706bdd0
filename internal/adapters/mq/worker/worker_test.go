package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	queue "github.com/ShagaDAO/gap/internal/adapters/mq/queue"
	worker "github.com/ShagaDAO/gap/internal/adapters/mq/worker"
	"github.com/ShagaDAO/gap/internal/adapters/repository"
	model "github.com/ShagaDAO/gap/internal/domain/model"
	logging "github.com/ShagaDAO/gap/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// mockAdmitter returns a fixed report, or an error for sources it was told
// to fail. Sources named "slow" block until the context ends.
type mockAdmitter struct {
	mu       sync.Mutex
	failures map[string]error
	active   atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func newMockAdmitter() *mockAdmitter {
	return &mockAdmitter{failures: map[string]error{}}
}

func (m *mockAdmitter) setError(source string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[source] = err
}

func (m *mockAdmitter) Admit(ctx context.Context, req model.AdmissionRequest) (*model.AdmissionReport, error) {
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if req.Source == "slow" {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	err := m.failures[req.Source]
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &model.AdmissionReport{
		Source:     req.Source,
		Validation: &model.ValidationReport{Valid: true},
		Decision:   &model.AdmissionDecision{Action: model.ActionAccept, RiskLevel: model.RiskLow},
	}, nil
}

func submit(ctx context.Context, q *queue.InMemoryQueue, store *repository.MemoryStore, id, source string) {
	j := model.Job{ID: id, Status: model.JobPending, Request: model.AdmissionRequest{Source: source}}
	convey.So(store.Create(ctx, j), convey.ShouldBeNil)
	convey.So(q.Enqueue(ctx, j), convey.ShouldBeTrue)
}

func waitTerminal(ctx context.Context, store *repository.MemoryStore, id string) model.Job {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, err := store.Get(ctx, id)
		if err == nil && j.Status.Terminal() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	j, _ := store.Get(ctx, id)
	return j
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a queue and a job store", t, func() {
		_ = logging.InitWriter(&discard{})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		store := repository.NewMemoryStore()
		admitter := newMockAdmitter()
		w := worker.NewInMemoryWorker(q, admitter, store,
			worker.WithName("test-worker"), worker.WithJobTimeout(50*time.Millisecond))
		go w.Run(ctx)

		convey.Convey("A successful admission marks the job done with its report", func() {
			submit(ctx, q, store, "j1", "/shards/a")
			j := waitTerminal(ctx, store, "j1")
			convey.So(j.Status, convey.ShouldEqual, model.JobDone)
			convey.So(j.Report, convey.ShouldNotBeNil)
			convey.So(j.Report.Source, convey.ShouldEqual, "/shards/a")
			convey.So(j.Error, convey.ShouldBeEmpty)
		})

		convey.Convey("A failing admission marks the job failed", func() {
			admitter.setError("/shards/bad", errors.New("source not found: bad"))
			submit(ctx, q, store, "j2", "/shards/bad")
			j := waitTerminal(ctx, store, "j2")
			convey.So(j.Status, convey.ShouldEqual, model.JobFailed)
			convey.So(j.Report, convey.ShouldBeNil)
			convey.So(j.Error, convey.ShouldContainSubstring, "source not found")
		})

		convey.Convey("A job over its time budget is failed, not left running", func() {
			submit(ctx, q, store, "j3", "slow")
			j := waitTerminal(ctx, store, "j3")
			convey.So(j.Status, convey.ShouldEqual, model.JobFailed)
			convey.So(j.Error, convey.ShouldContainSubstring, "exceeded 50ms")
		})

		convey.Convey("Jobs missing from the store are skipped", func() {
			convey.So(q.Enqueue(ctx, model.Job{ID: "ghost"}), convey.ShouldBeTrue)
			submit(ctx, q, store, "j4", "/shards/b")
			j := waitTerminal(ctx, store, "j4")
			convey.So(j.Status, convey.ShouldEqual, model.JobDone)
			convey.So(w.Processed(), convey.ShouldEqual, int64(1))
		})

		convey.Convey("Closing the queue stops the worker", func() {
			convey.So(q.Close(), convey.ShouldBeNil)
			sctx, scancel := context.WithTimeout(ctx, time.Second)
			defer scancel()
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of three workers", t, func() {
		_ = logging.InitWriter(&discard{})

		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		store := repository.NewMemoryStore()
		admitter := newMockAdmitter()
		admitter.delay = 10 * time.Millisecond
		pool := worker.NewPool(3, q, admitter, store)
		convey.So(pool.Size(), convey.ShouldEqual, 3)
		pool.Start(ctx)

		convey.Convey("Every job finishes and concurrency never exceeds the pool size", func() {
			for i := range 20 {
				submit(ctx, q, store, fmt.Sprintf("j%d", i), fmt.Sprintf("/shards/%d", i))
			}
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			st := store.Stats(ctx)
			convey.So(st.Done, convey.ShouldEqual, 20)
			convey.So(pool.Processed(), convey.ShouldEqual, int64(20))
			convey.So(admitter.peak.Load(), convey.ShouldBeLessThanOrEqualTo, int32(3))
		})

		convey.Convey("Shutdown is idempotent and refuses new work", func() {
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, model.Job{ID: "late"}), convey.ShouldBeFalse)
		})
	})
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }
