package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/radio-control/commandd/internal/logging"
)

func TestLoopRunsTasksInOrder(t *testing.T) {
	loop := NewLoop(logging.Discard())

	var mu sync.Mutex
	var got []int
	for i := 0; i < 50; i++ {
		i := i
		if err := loop.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Post() failed: %v", err)
		}
	}

	if err := loop.Close(context.Background()); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 50 {
		t.Fatalf("Expected 50 tasks, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("Tasks ran out of order: %v", got)
		}
	}
}

func TestLoopPostAfterClose(t *testing.T) {
	loop := NewLoop(logging.Discard())
	if err := loop.Close(context.Background()); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if err := loop.Post(func() {}); !errors.Is(err, ErrLoopClosed) {
		t.Errorf("Expected ErrLoopClosed, got %v", err)
	}
	select {
	case <-loop.Done():
	default:
		t.Error("Done should be closed after Close")
	}
}

func TestLoopRecoversPanics(t *testing.T) {
	loop := NewLoop(logging.Discard())
	defer loop.Close(context.Background())

	ran := make(chan struct{})
	_ = loop.Post(func() { panic("task failure") })
	_ = loop.Post(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("Loop stopped after a panicking task")
	}
}

func TestLoopTasksNeverOverlap(t *testing.T) {
	loop := NewLoop(logging.Discard())

	var mu sync.Mutex
	active, maxActive := 0, 0
	var order []int
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_ = loop.Post(func() {
					mu.Lock()
					active++
					if active > maxActive {
						maxActive = active
					}
					order = append(order, g)
					mu.Unlock()

					time.Sleep(50 * time.Microsecond)

					mu.Lock()
					active--
					mu.Unlock()
				})
			}
		}(g)
	}
	wg.Wait()
	_ = loop.Close(context.Background())

	if maxActive != 1 {
		t.Errorf("Expected tasks to run one at a time, saw %d concurrently", maxActive)
	}
	if len(order) != 100 {
		t.Errorf("Expected 100 tasks, got %d", len(order))
	}
}

func TestLoopCloseTimeout(t *testing.T) {
	loop := NewLoop(logging.Discard())
	release := make(chan struct{})
	started := make(chan struct{})
	_ = loop.Post(func() {
		close(started)
		<-release
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := loop.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}

	close(release)
	<-loop.Done()
	if loop.Pending() != 0 {
		t.Errorf("Expected no pending tasks, got %d", loop.Pending())
	}
}
