package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ShagaDAO/gap/internal/domain/model"
)

func job(id string) Job {
	return Job{ID: id, Status: model.JobPending, Request: model.AdmissionRequest{Source: "/shards/" + id}}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Cap(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	if !q.Enqueue(ctx, job("j1")) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.ID != "j1" || got.Request.Source != "/shards/j1" {
		t.Errorf("unexpected job %+v", got)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, job("j1")) || !q.Enqueue(ctx, job("j2")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, job("j3")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, job("j1")) {
		t.Error("expected enqueue to fail with a cancelled context")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(16))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const producers, perProducer = 8, 50

	var wg sync.WaitGroup
	for i := range producers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := range perProducer {
				for !q.Enqueue(ctx, job(fmt.Sprintf("j%d_%d", id, j))) {
					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}

	seen := make(chan string, producers*perProducer)
	for range 4 {
		go func() {
			for j := range q.Dequeue(ctx) {
				seen <- j.ID
			}
		}()
	}

	wg.Wait()
	ids := map[string]bool{}
	timeout := time.After(5 * time.Second)
	for len(ids) < producers*perProducer {
		select {
		case id := <-seen:
			if ids[id] {
				t.Fatalf("job %s delivered twice", id)
			}
			ids[id] = true
		case <-timeout:
			t.Fatalf("consumed %d of %d jobs", len(ids), producers*perProducer)
		}
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, job("j1")) || !q.Enqueue(ctx, job("j2")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if q.Enqueue(ctx, job("j3")) {
		t.Error("expected enqueue to fail after closing")
	}

	// Pending jobs drain, then the channel closes.
	var drained []string
	timeout := time.After(time.Second)
	ch := q.Dequeue(ctx)
	for {
		select {
		case j, ok := <-ch:
			if !ok {
				if len(drained) != 2 {
					t.Errorf("expected 2 drained jobs, got %v", drained)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			drained = append(drained, j.ID)
		case <-timeout:
			t.Fatal("expected dequeue channel to close")
		}
	}
}
