// Package eventloop provides the host's single event-processing goroutine.
//
// Every piece of host state (shell model, topic counters, subscription
// table) is confined to the loop. Other goroutines, such as transport
// readers, hand work to the loop with Post or Call; tasks run one at a time
// to completion, in submission order, so every mutation happens-before any
// later read without locks.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	// ErrStopped is returned when submitting to a loop that has stopped
	ErrStopped = errors.New("event loop stopped")
	// ErrAlreadyRunning is returned when Run is called twice
	ErrAlreadyRunning = errors.New("event loop already running")
)

// DefaultQueueSize is the task queue capacity used when none is given
const DefaultQueueSize = 256

// Loop runs submitted tasks serially on one goroutine.
type Loop struct {
	tasks   chan func()
	done    chan struct{}
	stop    sync.Once
	running atomic.Bool
	logger  *slog.Logger
}

// New creates a loop with the given task queue capacity.
func New(queueSize int, logger *slog.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{
		tasks:  make(chan func(), queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run executes tasks until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case task := <-l.tasks:
			l.execute(task)
		}
	}
}

// Stop terminates the loop. Pending tasks are discarded.
func (l *Loop) Stop() {
	l.stop.Do(func() {
		close(l.done)
	})
}

// Done returns a channel closed when the loop stops
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post enqueues fn without waiting for it to run.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}

	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Task states of a Call. A queued task runs only if it moves from
// taskQueued to taskClaimed; a caller that gives up moves it to
// taskAbandoned first.
const (
	taskQueued int32 = iota
	taskClaimed
	taskAbandoned
)

// Call runs fn on the loop and waits for it to finish.
// A panic inside fn is returned as an error.
//
// If ctx is done or the loop stops before fn starts, Call returns an error
// and fn never runs. Once fn has started, Call waits for it regardless of
// ctx. A nil error therefore always means fn ran.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	var state atomic.Int32
	finished := make(chan error, 1)
	task := func() {
		if !state.CompareAndSwap(taskQueued, taskClaimed) {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				finished <- fmt.Errorf("event loop task panicked: %v", r)
			}
		}()
		fn()
		finished <- nil
	}

	select {
	case l.tasks <- task:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-finished:
		return err
	case <-l.done:
		if state.CompareAndSwap(taskQueued, taskAbandoned) {
			return ErrStopped
		}
	case <-ctx.Done():
		if state.CompareAndSwap(taskQueued, taskAbandoned) {
			return ctx.Err()
		}
	}
	// fn is running or has run
	return <-finished
}

// execute runs a posted task, keeping the loop alive if it panics
func (l *Loop) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop task panicked", "panic", r)
		}
	}()
	task()
}
