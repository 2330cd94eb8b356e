// Package schedule runs cancellable periodic tasks whose lifetime is owned
// by the caller: nothing runs before Start and nothing runs after Stop returns.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"minibus.schoolride.org/internal/clock"
	"minibus.schoolride.org/internal/logging"
)

// Func is one run of a task. Its context is cancelled when the task stops
// or when the run exceeds the task interval.
type Func func(ctx context.Context) error

type Option func(*Task)

// WithImmediateRun runs the task once as soon as it starts instead of
// waiting for the first tick.
func WithImmediateRun() Option {
	return func(t *Task) { t.immediate = true }
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Task) { t.logger = logger }
}

type Task struct {
	name      string
	interval  time.Duration
	clock     clock.Clock
	fn        Func
	immediate bool
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTask(name string, interval time.Duration, clk clock.Clock, fn Func, opts ...Option) *Task {
	if clk == nil {
		clk = clock.RealClock{}
	}
	t := &Task{
		name:     name,
		interval: interval,
		clock:    clk,
		fn:       fn,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(slog.String("component", "schedule"), slog.String("task", name))
	return t
}

func (t *Task) Name() string { return t.name }

// Start launches the task loop. Starting a running task does nothing and
// returns false. A stopped task may be started again.
func (t *Task) Start(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	ticker := t.clock.NewTicker(t.interval)
	done := make(chan struct{})
	t.cancel, t.done = cancel, done

	go t.loop(ctx, ticker, done)
	return true
}

// Stop cancels the task and waits for an in-flight run to return. It must
// not be called from within the task's own Func.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the task has been started and not stopped.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func (t *Task) loop(ctx context.Context, ticker clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	if t.immediate {
		t.run(ctx)
	}
	for {
		select {
		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			t.run(ctx)
		case <-ctx.Done():
			logging.LogOperation(t.logger, "scheduled_task_stopped")
			return
		}
	}
}

func (t *Task) run(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, t.interval)
	defer cancel()

	if err := t.fn(ctx); err != nil && parent.Err() == nil {
		logging.LogError(t.logger, "scheduled task failed", err)
	}
}
