// Package worker runs detached background tasks after an HTTP response has
// already been sent.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/crypto"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/metrics"
)

// ErrShuttingDown is returned by Go and GoWithTimeout once Shutdown has started.
var ErrShuttingDown = errors.New("executor is shutting down")

// Task is a unit of background work. It must honor ctx cancellation.
type Task func(ctx context.Context)

// Executor supervises background tasks: it bounds how many run at once,
// gives each a deadline, and recovers panics. Tasks are detached from the
// request that spawned them.
type Executor struct {
	base    context.Context
	cancel  context.CancelFunc
	sem     chan struct{}
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewExecutor creates an executor running at most workers tasks at once,
// each limited to timeout.
func NewExecutor(workers int, timeout time.Duration, logger zerolog.Logger) *Executor {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		base:    ctx,
		cancel:  cancel,
		sem:     make(chan struct{}, workers),
		timeout: timeout,
		logger:  logger.With().Str("component", "executor").Logger(),
	}
}

// Go schedules task and returns without waiting for it to start. Tasks beyond
// the concurrency limit queue until a slot frees up.
func (e *Executor) Go(name string, task Task) error {
	return e.GoWithTimeout(name, e.timeout, task)
}

// GoWithTimeout is Go with a task-specific deadline. A zero timeout leaves
// the task bounded only by Shutdown.
func (e *Executor) GoWithTimeout(name string, timeout time.Duration, task Task) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		metrics.BackgroundTasks.WithLabelValues("rejected").Inc()
		return fmt.Errorf("task %s: %w", name, ErrShuttingDown)
	}
	e.wg.Add(1)
	e.mu.Unlock()

	id := crypto.NewTaskID()
	go e.run(id, name, timeout, task)
	return nil
}

func (e *Executor) run(id, name string, timeout time.Duration, task Task) {
	defer e.wg.Done()

	select {
	case e.sem <- struct{}{}:
	case <-e.base.Done():
		metrics.BackgroundTasks.WithLabelValues("cancelled").Inc()
		return
	}
	defer func() { <-e.sem }()

	ctx := e.base
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(e.base, timeout)
		defer cancel()
	}

	log := e.logger.With().Str("task", name).Str("task_id", id).Logger()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			metrics.BackgroundTasks.WithLabelValues("panic").Inc()
			log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("background task panicked")
		}
	}()

	task(ctx)

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		metrics.BackgroundTasks.WithLabelValues("timeout").Inc()
		log.Warn().Dur("elapsed", time.Since(start)).Msg("background task hit its deadline")
	default:
		metrics.BackgroundTasks.WithLabelValues("done").Inc()
		log.Debug().Dur("elapsed", time.Since(start)).Msg("background task finished")
	}
}

// Shutdown stops accepting tasks and waits for running ones. When ctx
// expires first, running tasks are cancelled and ctx.Err is returned.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}
