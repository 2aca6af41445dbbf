// File: internal/eventloop/loop.go
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrStopped is returned when work is offered to a loop that is no longer running.
var ErrStopped = errors.New("event loop stopped")

// Task is a unit of work run on a loop. The context it receives identifies
// the loop, so nested Do calls from inside a task run inline.
type Task func(ctx context.Context)

type loopKey struct{}

// Loop runs tasks one at a time on a single goroutine. State owned by a
// component is only ever touched from tasks on that component's loop.
type Loop struct {
	name   string
	logger *zap.Logger

	tasks   chan Task
	done    chan struct{}
	started atomic.Bool
	once    sync.Once

	dropped atomic.Int64
}

// New creates a loop with the given queue capacity. The loop does nothing
// until Run is called.
func New(name string, logger *zap.Logger, queueSize int) *Loop {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Loop{
		name:   name,
		logger: logger.Named("loop").With(zap.String("loop", name)),
		tasks:  make(chan Task, queueSize),
		done:   make(chan struct{}),
	}
}

// Name returns the loop's name.
func (l *Loop) Name() string { return l.name }

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Dropped returns how many tasks TryPost discarded because the queue was full.
func (l *Loop) Dropped() int64 { return l.dropped.Load() }

// Run processes tasks until ctx is cancelled. Tasks still queued at that
// point are discarded. Run may only be called once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return fmt.Errorf("event loop %q already running", l.name)
	}
	defer l.once.Do(func() { close(l.done) })

	taskCtx := context.WithValue(ctx, loopKey{}, l)
	l.logger.Debug("Event loop started.")
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("Event loop stopped.", zap.Int("discarded", len(l.tasks)))
			return nil
		case task := <-l.tasks:
			l.exec(taskCtx, task)
		}
	}
}

// exec runs a single task, containing any panic so the loop survives it.
func (l *Loop) exec(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Task panicked; loop continues.", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	task(ctx)
}

// Post enqueues task, blocking while the queue is full.
func (l *Loop) Post(ctx context.Context, task Task) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.tasks <- task:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPost enqueues task without blocking. It is meant for callbacks that must
// never stall, such as CDP event listeners. It reports whether the task was
// accepted.
func (l *Loop) TryPost(task Task) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- task:
		return true
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			l.logger.Warn("Event loop queue full; dropping task.", zap.Int64("dropped_total", n))
		}
		return false
	}
}

// Do runs task on the loop and waits for it to finish. Called from a task
// already running on this loop, it runs task inline.
func (l *Loop) Do(ctx context.Context, task Task) error {
	if l.On(ctx) {
		task(ctx)
		return nil
	}

	finished := make(chan struct{})
	err := l.Post(ctx, func(taskCtx context.Context) {
		defer close(finished)
		task(taskCtx)
	})
	if err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		// The loop may have exited after running the task.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// On reports whether ctx belongs to a task running on l.
func (l *Loop) On(ctx context.Context) bool {
	owner, _ := ctx.Value(loopKey{}).(*Loop)
	return owner == l
}
