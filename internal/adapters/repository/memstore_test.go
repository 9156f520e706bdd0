package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ShagaDAO/gap/internal/domain/model"
)

func pending(id string) model.Job {
	return model.Job{ID: id, Status: model.JobPending, Request: model.AdmissionRequest{Source: id}}
}

func finish(s *MemoryStore, t *testing.T, id string) {
	t.Helper()
	if _, err := s.Update(context.Background(), id, func(j *model.Job) { j.Status = model.JobDone }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMemoryStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := NewMemoryStore(WithClock(func() time.Time { return clock }))

	if st := store.Stats(ctx); st.Total != 0 {
		t.Errorf("expected empty store, got %+v", st)
	}

	if err := store.Create(ctx, pending("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Create(ctx, pending("a")); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	got, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != model.JobPending || !got.CreatedAt.Equal(clock) {
		t.Errorf("unexpected job %+v", got)
	}

	clock = clock.Add(time.Second)
	updated, err := store.Update(ctx, "a", func(j *model.Job) {
		j.Status = model.JobRunning
		j.ID = "renamed"
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ID != "a" || updated.Status != model.JobRunning {
		t.Errorf("unexpected job %+v", updated)
	}
	if !updated.UpdatedAt.Equal(clock) {
		t.Errorf("expected UpdatedAt %v, got %v", clock, updated.UpdatedAt)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Update(ctx, "missing", func(*model.Job) {}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Create(ctx, pending("a"))

	got, _ := store.Get(ctx, "a")
	got.Status = model.JobFailed

	again, _ := store.Get(ctx, "a")
	if again.Status != model.JobPending {
		t.Errorf("stored job changed through a copy: %+v", again)
	}
}

func TestMemoryStore_Retention(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithRetention(2))

	for i := range 5 {
		if err := store.Create(ctx, pending(fmt.Sprintf("j%d", i))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// Only finished jobs count toward the cap.
	if st := store.Stats(ctx); st.Total != 5 || st.Pending != 5 {
		t.Errorf("unexpected stats %+v", st)
	}

	finish(store, t, "j3")
	finish(store, t, "j0")
	finish(store, t, "j1")

	// j0 is the oldest finished job.
	if _, err := store.Get(ctx, "j0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected j0 evicted, got %v", err)
	}
	for _, id := range []string{"j1", "j2", "j3", "j4"} {
		if _, err := store.Get(ctx, id); err != nil {
			t.Errorf("expected %s kept, got %v", id, err)
		}
	}

	st := store.Stats(ctx)
	if st.Done != 2 || st.Pending != 2 || st.Evicted != 1 || st.Total != 4 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestMemoryStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithRetention(10))

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("j%d", i)
			if err := store.Create(ctx, pending(id)); err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			_, _ = store.Update(ctx, id, func(j *model.Job) { j.Status = model.JobRunning })
			_, _ = store.Update(ctx, id, func(j *model.Job) { j.Status = model.JobFailed })
		}(i)
	}
	wg.Wait()

	st := store.Stats(ctx)
	if st.Failed != 10 || st.Evicted != 40 {
		t.Errorf("unexpected stats %+v", st)
	}
}
