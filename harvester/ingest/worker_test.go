// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package ingest_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hubtide/hubtide/harvester/ingest"
	"github.com/hubtide/hubtide/harvester/jobs"
	"github.com/hubtide/hubtide/pkg/github"
	"github.com/hubtide/hubtide/private/testcontext"
	"github.com/hubtide/hubtide/storage/testqueue"
)

func observedLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	observed, logs := observer.New(zap.DebugLevel)
	log := zaptest.NewLogger(t, zaptest.WrapOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, observed)
	})))
	return log, logs
}

func newWorkerEnv(t *testing.T, server *httptest.Server, interval time.Duration) (*ingest.Worker, *testqueue.Queue, *observer.ObservedLogs) {
	log, logs := observedLogger(t)
	client := github.NewClient(log.Named("github"), github.ClientConfig{
		ServerAddress:  server.URL,
		RequestTimeout: 5 * time.Second,
		UserAgent:      "hubtide-test",
	}, nil)

	backing := testqueue.New()
	service := ingest.NewService(log.Named("ingest"), client, jobs.NewQueue(backing))
	worker := ingest.NewWorker(log.Named("worker"), service, ingest.Config{Interval: interval})
	return worker, backing, logs
}

func TestWorker_PollsUntilCanceled(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(`[` + pushElementAlice + `]`))
	}))
	defer server.Close()

	worker, backing, _ := newWorkerEnv(t, server, 10*time.Millisecond)

	runCtx, cancel := context.WithCancel(ctx)
	returned := make(chan error, 1)
	ctx.Go(func() error {
		returned <- worker.Run(runCtx)
		return nil
	})

	require.True(t, worker.Polled(ctx))
	require.Eventually(t, func() bool {
		return requests.Load() >= 2
	}, 5*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-returned:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop in time")
	}

	require.NotZero(t, backing.Len())
	require.NoError(t, worker.Close())
}

func TestWorker_RateLimitedBacksOff(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	// default backoffs: the worker should park inside the rate limit sleep
	worker, _, logs := newWorkerEnv(t, server, 10*time.Millisecond)

	runCtx, cancel := context.WithCancel(ctx)
	returned := make(chan error, 1)
	ctx.Go(func() error {
		returned <- worker.Run(runCtx)
		return nil
	})

	require.Eventually(t, func() bool {
		return len(logs.FilterMessage("rate limited, backing off").All()) > 0
	}, 5*time.Second, time.Millisecond)

	// parked in the backoff, no further polls go out
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, requests.Load())

	// no poll succeeded, so the fence stays closed
	waitCtx, waitCancel := context.WithTimeout(ctx, 20*time.Millisecond)
	require.False(t, worker.Polled(waitCtx))
	waitCancel()

	// shutdown interrupts the backoff promptly
	cancel()
	select {
	case err := <-returned:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop in time")
	}
	require.NoError(t, worker.Close())
}

func TestWorker_SurvivesUpstreamFailures(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[` + pushElementAlice + `]`))
	}))
	defer server.Close()

	worker, backing, logs := newWorkerEnv(t, server, 5*time.Millisecond)
	worker.SetBackoff(time.Millisecond, time.Millisecond)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx.Go(func() error {
		err := worker.Run(runCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	require.Eventually(t, func() bool {
		return backing.Len() > 0
	}, 5*time.Second, time.Millisecond)

	require.NotEmpty(t, logs.FilterMessage("poll failed upstream").All())
	cancel()
	require.NoError(t, worker.Close())
}

func TestPollInterval(t *testing.T) {
	log, logs := observedLogger(t)

	t.Setenv("INGESTION_POLL_INTERVAL", "")
	worker := ingest.NewWorker(log, nil, ingest.Config{})
	require.Equal(t, ingest.DefaultInterval, worker.Loop.Interval())

	t.Setenv("INGESTION_POLL_INTERVAL", "90")
	worker = ingest.NewWorker(log, nil, ingest.Config{})
	require.Equal(t, 90*time.Second, worker.Loop.Interval())

	// an explicit interval beats the environment
	worker = ingest.NewWorker(log, nil, ingest.Config{Interval: 30 * time.Second})
	require.Equal(t, 30*time.Second, worker.Loop.Interval())

	t.Setenv("INGESTION_POLL_INTERVAL", "soon")
	worker = ingest.NewWorker(log, nil, ingest.Config{})
	require.Equal(t, ingest.DefaultInterval, worker.Loop.Interval())

	t.Setenv("INGESTION_POLL_INTERVAL", "0")
	worker = ingest.NewWorker(log, nil, ingest.Config{})
	require.Equal(t, ingest.DefaultInterval, worker.Loop.Interval())

	warns := logs.FilterMessage("invalid INGESTION_POLL_INTERVAL, using default").All()
	require.Len(t, warns, 2)
}
