// Package surface models the host environment the expansion engine runs
// in: a single-threaded event loop and the editing surfaces (flat text
// fields and rich node documents) that raise input notifications.
package surface

import (
	"context"
	"errors"
	"sync"

	"snippetd/internal/logging"
)

// ErrLoopClosed is returned by Run after Close.
var ErrLoopClosed = errors.New("surface: loop closed")

// Loop runs tasks one at a time in FIFO order. Every mutation of engine
// state and editing surfaces happens on the loop, so no other locking is
// needed around them. A panicking task is recovered and logged; the loop
// keeps going.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool

	logger *logging.Logger
	crash  *logging.CrashHandler
}

// NewLoop creates an idle loop. crash may be nil.
func NewLoop(logger *logging.Logger, crash *logging.CrashHandler) *Loop {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("loop")
	if crash == nil {
		crash = logging.NewCrashHandler(logger, "")
	}
	return &Loop{
		wake:   make(chan struct{}, 1),
		logger: logger,
		crash:  crash,
	}
}

// Post queues task to run after everything already queued. It is safe to
// call from any goroutine. Tasks posted after Close are dropped.
func (l *Loop) Post(task func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Defer schedules task for a later turn of the loop. Called from a running
// task, it runs only after that task has returned.
func (l *Loop) Defer(task func()) {
	l.Post(task)
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Loop) runTask(task func()) {
	l.crash.Recover("loop task", task)
}

// Drain runs queued tasks, including ones queued while draining, until the
// queue is empty. It returns the number of tasks run. Drain must not be
// called concurrently with Run.
func (l *Loop) Drain() int {
	n := 0
	for {
		task, ok := l.next()
		if !ok {
			return n
		}
		l.runTask(task)
		n++
	}
}

// Run processes tasks until ctx is cancelled or the loop is closed.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("event loop started")
	defer l.logger.Debug("event loop stopped")

	for {
		l.Drain()

		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return ErrLoopClosed
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and wakes Run so it can return.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}
