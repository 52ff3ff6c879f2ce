//
//
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrLoopClosed is returned by Post after Close.
var ErrLoopClosed = errors.New("loop closed")

// Scheduler runs posted tasks later, never on the caller's stack.
type Scheduler interface {
	Post(task func()) error
}

// Loop is a serial task scheduler: one goroutine runs posted tasks in FIFO order.
type Loop struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

var _ Scheduler = (*Loop)(nil)

// NewLoop creates a loop and starts its worker goroutine.
func NewLoop(logger *slog.Logger) *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.worker()
	return l
}

// Post queues task behind everything already posted.
func (l *Loop) Post(task func()) error {
	if task == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of posted tasks not yet started.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// Close stops accepting tasks and waits for the worker to finish the ones
// already posted, or for ctx to expire.
func (l *Loop) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("loop shutdown: %w", ctx.Err())
	}
}

// Done is closed when the worker exits.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// worker runs tasks in FIFO order until the loop is closed and empty.
func (l *Loop) worker() {
	defer close(l.done)

	for {
		l.mu.Lock()
		for len(l.tasks) == 0 {
			if l.closed {
				l.mu.Unlock()
				return
			}
			l.mu.Unlock()
			<-l.wake
			l.mu.Lock()
		}
		task := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		l.run(task)
	}
}

func (l *Loop) run(task func()) {
	defer func() {
		if r := recover(); r != nil && l.logger != nil {
			l.logger.Error("loop task panicked", "panic", r)
		}
	}()
	task()
}
