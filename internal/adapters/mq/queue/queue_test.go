package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pixelcode/pixelsync/internal/domain/model"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if err := q.Enqueue(ctx, model.SyncJob{Index: 0, UserID: "u1", Username: "alice"}); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}
	if l := q.Len(); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	job := <-q.Dequeue()
	if job.UserID != "u1" || job.Username != "alice" {
		t.Errorf("unexpected job %+v", job)
	}
	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(ctx, model.SyncJob{Index: i}); err != nil {
			t.Fatalf("unexpected enqueue error: %v", err)
		}
	}

	if err := q.Enqueue(ctx, model.SyncJob{Index: 2}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if l := q.Len(); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CloseDrains(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(3))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ctx, model.SyncJob{Index: i}); err != nil {
			t.Fatalf("unexpected enqueue error: %v", err)
		}
	}
	if err := q.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}

	if err := q.Enqueue(ctx, model.SyncJob{Index: 9}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}

	var got []int
	for job := range q.Dequeue() {
		got = append(got, job.Index)
	}
	if len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Errorf("expected FIFO drain of 3 jobs, got %v", got)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// with a free slot the send may still be chosen, so fill it first
	_ = q.Enqueue(context.Background(), model.SyncJob{})
	if err := q.Enqueue(ctx, model.SyncJob{}); err == nil {
		t.Error("expected enqueue to fail")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000))
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if err := q.Enqueue(ctx, model.SyncJob{Index: p*100 + j}); err != nil {
					t.Errorf("unexpected enqueue error: %v", err)
				}
			}
		}(p)
	}
	wg.Wait()
	_ = q.Close()

	seen := make(map[int]bool)
	for job := range q.Dequeue() {
		seen[job.Index] = true
	}
	if len(seen) != 1000 {
		t.Errorf("expected 1000 distinct jobs, got %d", len(seen))
	}
}
