// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/hubtide/hubtide/private/sync2"
	"github.com/hubtide/hubtide/storage"
)

// Handler executes one kind of job.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Policy decides whether a failed job runs again. attempts counts the try
// that just failed, starting at 1.
type Policy interface {
	Retry(err error, attempts int) (delay time.Duration, retry bool)
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(err error, attempts int) (time.Duration, bool)

// Retry implements Policy.
func (fn PolicyFunc) Retry(err error, attempts int) (time.Duration, bool) {
	return fn(err, attempts)
}

// Discard is the policy that never retries.
var Discard = PolicyFunc(func(error, int) (time.Duration, bool) {
	return 0, false
})

// Config is the config struct for the job runtime.
type Config struct {
	Concurrency   int           `help:"how many jobs may run at once" default:"4"`
	DrainInterval time.Duration `help:"how often the queue is polled for work" default:"1s"`
	QueueName     string        `help:"name of the shared job queue" default:"jobs"`
}

type registration struct {
	handler Handler
	policy  Policy
}

// Runtime drains the shared queue and dispatches jobs to registered
// handlers under a concurrency limit.
//
// architecture: Service
type Runtime struct {
	log   *zap.Logger
	queue *Queue

	Loop    *sync2.Cycle
	limiter *sync2.Limiter

	handlers map[string]registration

	nowFn func() time.Time
}

// NewRuntime constructs a job runtime on top of queue.
func NewRuntime(log *zap.Logger, queue *Queue, config Config) *Runtime {
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	interval := config.DrainInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &Runtime{
		log:      log,
		queue:    queue,
		Loop:     sync2.NewCycle(interval),
		limiter:  sync2.NewLimiter(concurrency),
		handlers: map[string]registration{},
	}
}

// Register wires a handler and its retry policy to a job kind. All
// registrations happen during peer wiring, before Run.
func (runtime *Runtime) Register(kind string, handler Handler, policy Policy) {
	if _, exists := runtime.handlers[kind]; exists {
		panic("jobs: duplicate handler for kind " + kind)
	}
	runtime.handlers[kind] = registration{handler: handler, policy: policy}
}

// SetNow overrides the time source used for retry visibility. Tests only.
func (runtime *Runtime) SetNow(now func() time.Time) {
	runtime.nowFn = now
}

func (runtime *Runtime) now() time.Time {
	if runtime.nowFn != nil {
		return runtime.nowFn()
	}
	return time.Now()
}

// Run drains the queue until ctx is canceled, then waits for in-flight
// jobs to return.
func (runtime *Runtime) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer runtime.limiter.Wait()
	return runtime.Loop.Run(ctx, runtime.drain)
}

// Close stops the drain loop.
func (runtime *Runtime) Close() error {
	runtime.Loop.Close()
	return nil
}

// drain hands every visible job to a worker slot. Queue trouble is logged
// and retried on the next cycle rather than stopping the loop.
func (runtime *Runtime) drain(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := runtime.queue.Dequeue(ctx)
		if storage.ErrEmptyQueue.Has(err) {
			return nil
		}
		if err != nil {
			runtime.log.Error("failed to dequeue job", zap.Error(err))
			return nil
		}

		if !runtime.limiter.Go(ctx, func() { runtime.process(ctx, job) }) {
			return ctx.Err()
		}
	}
}

// process runs one job and applies its retry policy on failure.
func (runtime *Runtime) process(ctx context.Context, job Job) {
	registered, ok := runtime.handlers[job.Kind]
	if !ok {
		mon.Counter("jobs_unknown_kind").Inc(1)
		runtime.log.Error("dropping job of unknown kind",
			zap.Stringer("id", job.ID),
			zap.String("kind", job.Kind))
		return
	}

	jobErr := registered.handler(ctx, job.Payload)
	if jobErr == nil {
		mon.Counter("jobs_completed").Inc(1)
		return
	}

	attempts := job.Attempts + 1
	delay, retry := registered.policy.Retry(jobErr, attempts)
	if !retry {
		mon.Counter("jobs_discarded").Inc(1)
		runtime.log.Error("job failed, discarding",
			zap.Stringer("id", job.ID),
			zap.String("kind", job.Kind),
			zap.Int("attempts", attempts),
			zap.Error(jobErr))
		return
	}

	job.Attempts = attempts
	if err := runtime.queue.enqueueJob(ctx, job, runtime.now().Add(delay)); err != nil {
		runtime.log.Error("failed to re-enqueue job, it is lost",
			zap.Stringer("id", job.ID),
			zap.String("kind", job.Kind),
			zap.Int("attempts", attempts),
			zap.Error(errs.Combine(jobErr, err)))
		return
	}

	mon.Counter("jobs_retried").Inc(1)
	runtime.log.Warn("job failed, retrying",
		zap.Stringer("id", job.ID),
		zap.String("kind", job.Kind),
		zap.Int("attempts", attempts),
		zap.Duration("delay", delay),
		zap.Error(jobErr))
}
