// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package jobs_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hubtide/hubtide/harvester/jobs"
	"github.com/hubtide/hubtide/private/testcontext"
	"github.com/hubtide/hubtide/storage"
	"github.com/hubtide/hubtide/storage/testqueue"
)

func TestQueueEnvelope(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	queue := jobs.NewQueue(testqueue.New())

	_, err := queue.Dequeue(ctx)
	require.True(t, storage.ErrEmptyQueue.Has(err))

	require.NoError(t, queue.Enqueue(ctx, jobs.KindFetchUser, jobs.FetchUserPayload{Login: "octocat"}))
	job, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotEqual(t, uuid.UUID{}, job.ID)
	require.Equal(t, jobs.KindFetchUser, job.Kind)
	require.Zero(t, job.Attempts)
	require.WithinDuration(t, time.Now().UTC(), job.EnqueuedAt, time.Minute)

	var payload jobs.FetchUserPayload
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	require.Equal(t, "octocat", payload.Login)

	// raw payloads pass through verbatim
	require.NoError(t, queue.Enqueue(ctx, jobs.KindHandleEvent, json.RawMessage(`{"id":"e1"}`)))
	job, err = queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, jobs.KindHandleEvent, job.Kind)
	require.JSONEq(t, `{"id":"e1"}`, string(job.Payload))
}

type runtimeEnv struct {
	backing *testqueue.Queue
	queue   *jobs.Queue
	runtime *jobs.Runtime
	logs    *observer.ObservedLogs

	cancel context.CancelFunc
	done   chan error
}

func newRuntimeEnv(t *testing.T, config jobs.Config) *runtimeEnv {
	observed, logs := observer.New(zap.DebugLevel)
	log := zaptest.NewLogger(t, zaptest.WrapOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, observed)
	})))

	backing := testqueue.New()
	queue := jobs.NewQueue(backing)
	return &runtimeEnv{
		backing: backing,
		queue:   queue,
		runtime: jobs.NewRuntime(log, queue, config),
		logs:    logs,
	}
}

// start launches the runtime after all registrations happened.
func (env *runtimeEnv) start(ctx *testcontext.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	env.cancel = cancel
	env.done = make(chan error, 1)
	ctx.Go(func() error {
		env.done <- env.runtime.Run(runCtx)
		return nil
	})
}

func (env *runtimeEnv) stop(t *testing.T) {
	env.cancel()
	select {
	case err := <-env.done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop in time")
	}
	require.NoError(t, env.runtime.Close())
}

func TestRuntime_DispatchesByKind(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	env := newRuntimeEnv(t, jobs.Config{Concurrency: 2, DrainInterval: 5 * time.Millisecond})

	var mu sync.Mutex
	users := []string{}
	repos := []string{}

	env.runtime.Register(jobs.KindFetchUser, func(ctx context.Context, payload json.RawMessage) error {
		var p jobs.FetchUserPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		users = append(users, p.Login)
		return nil
	}, jobs.Discard)
	env.runtime.Register(jobs.KindFetchRepository, func(ctx context.Context, payload json.RawMessage) error {
		var p jobs.FetchRepositoryPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		repos = append(repos, p.Owner+"/"+p.Name)
		return nil
	}, jobs.Discard)

	require.NoError(t, env.queue.Enqueue(ctx, jobs.KindFetchUser, jobs.FetchUserPayload{Login: "alice"}))
	require.NoError(t, env.queue.Enqueue(ctx, jobs.KindFetchRepository, jobs.FetchRepositoryPayload{Owner: "alice", Name: "widgets"}))
	require.NoError(t, env.queue.Enqueue(ctx, jobs.KindFetchUser, jobs.FetchUserPayload{Login: "bob"}))

	env.start(ctx)
	defer env.stop(t)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(users) == 2 && len(repos) == 1
	}, 5*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []string{"alice", "bob"}, users)
	require.Equal(t, []string{"alice/widgets"}, repos)
	require.Zero(t, env.backing.Len())
}

func TestRuntime_RetriesWithDelay(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	env := newRuntimeEnv(t, jobs.Config{Concurrency: 1, DrainInterval: 5 * time.Millisecond})

	var mu sync.Mutex
	current := time.Now()
	tick := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(d)
	}
	env.backing.SetNow(tick)
	env.runtime.SetNow(tick)

	var calls atomic.Int64
	env.runtime.Register("flaky", func(ctx context.Context, payload json.RawMessage) error {
		if calls.Add(1) == 1 {
			return errs.New("transient failure")
		}
		return nil
	}, jobs.PolicyFunc(func(err error, attempts int) (time.Duration, bool) {
		return 10 * time.Minute, attempts < 3
	}))

	require.NoError(t, env.queue.Enqueue(ctx, "flaky", nil))

	env.start(ctx)
	defer env.stop(t)

	// first try fails and the retry hides behind its delay
	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, 5*time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	require.EqualValues(t, 1, calls.Load())

	retries := env.logs.FilterMessage("job failed, retrying").All()
	require.Len(t, retries, 1)
	require.EqualValues(t, 1, retries[0].ContextMap()["attempts"])

	// the delay elapses and the retry succeeds
	advance(11 * time.Minute)
	require.Eventually(t, func() bool {
		return calls.Load() == 2 && env.backing.Len() == 0
	}, 5*time.Second, time.Millisecond)
}

func TestRuntime_DiscardsWhenPolicyGivesUp(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	env := newRuntimeEnv(t, jobs.Config{Concurrency: 1, DrainInterval: 5 * time.Millisecond})

	var calls atomic.Int64
	env.runtime.Register("doomed", func(ctx context.Context, payload json.RawMessage) error {
		calls.Add(1)
		return errs.New("permanent failure")
	}, jobs.PolicyFunc(func(err error, attempts int) (time.Duration, bool) {
		return 0, attempts < 2
	}))

	require.NoError(t, env.queue.Enqueue(ctx, "doomed", nil))

	env.start(ctx)
	defer env.stop(t)

	require.Eventually(t, func() bool {
		return len(env.logs.FilterMessage("job failed, discarding").All()) == 1
	}, 5*time.Second, time.Millisecond)

	// two tries total, nothing left behind
	require.EqualValues(t, 2, calls.Load())
	require.Zero(t, env.backing.Len())
}

func TestRuntime_DropsUnknownKinds(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	env := newRuntimeEnv(t, jobs.Config{Concurrency: 1, DrainInterval: 5 * time.Millisecond})

	require.NoError(t, env.queue.Enqueue(ctx, "mystery", nil))

	env.start(ctx)
	defer env.stop(t)

	require.Eventually(t, func() bool {
		return len(env.logs.FilterMessage("dropping job of unknown kind").All()) == 1
	}, 5*time.Second, time.Millisecond)
	require.Zero(t, env.backing.Len())
}

func TestRuntime_LimitsConcurrency(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	env := newRuntimeEnv(t, jobs.Config{Concurrency: 2, DrainInterval: 5 * time.Millisecond})

	var inflight, peak atomic.Int64
	release := make(chan struct{})
	var done atomic.Int64

	env.runtime.Register("slow", func(ctx context.Context, payload json.RawMessage) error {
		cur := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			observed := peak.Load()
			if cur <= observed || peak.CompareAndSwap(observed, cur) {
				break
			}
		}
		<-release
		done.Add(1)
		return nil
	}, jobs.Discard)

	for i := 0; i < 4; i++ {
		require.NoError(t, env.queue.Enqueue(ctx, "slow", nil))
	}

	env.start(ctx)

	require.Eventually(t, func() bool {
		return inflight.Load() == 2
	}, 5*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 2, inflight.Load())

	close(release)
	require.Eventually(t, func() bool {
		return done.Load() == 4
	}, 5*time.Second, time.Millisecond)
	require.LessOrEqual(t, peak.Load(), int64(2))

	env.stop(t)
}

func TestRuntime_WaitsForInflightJobs(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	env := newRuntimeEnv(t, jobs.Config{Concurrency: 1, DrainInterval: 5 * time.Millisecond})

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	env.runtime.Register("blocking", func(ctx context.Context, payload json.RawMessage) error {
		close(started)
		<-release
		finished.Store(true)
		return nil
	}, jobs.Discard)

	require.NoError(t, env.queue.Enqueue(ctx, "blocking", nil))

	env.start(ctx)

	<-started
	env.cancel()

	// shutdown holds until the running job returns
	select {
	case <-env.done:
		t.Fatal("runtime returned while a job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-env.done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop in time")
	}
	require.True(t, finished.Load())
	require.NoError(t, env.runtime.Close())
}

func TestRuntime_DuplicateRegistrationPanics(t *testing.T) {
	env := newRuntimeEnv(t, jobs.Config{})

	handler := func(ctx context.Context, payload json.RawMessage) error { return nil }
	env.runtime.Register("once", handler, jobs.Discard)
	require.Panics(t, func() {
		env.runtime.Register("once", handler, jobs.Discard)
	})
}
