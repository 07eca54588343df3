// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package ingest_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hubtide/hubtide/harvester/ingest"
	"github.com/hubtide/hubtide/harvester/jobs"
	"github.com/hubtide/hubtide/pkg/github"
	"github.com/hubtide/hubtide/private/testcontext"
	"github.com/hubtide/hubtide/storage"
	"github.com/hubtide/hubtide/storage/testqueue"
)

// Feed elements are written compactly so the enqueued payloads compare
// bytewise against them.
const (
	pushElementAlice = `{"id":"100","type":"PushEvent","actor":{"id":1,"login":"alice","url":"https://api.github.com/users/alice"},"repo":{"id":10,"name":"alice/widgets"},"payload":{"push_id":7,"ref":"refs/heads/main","head":"aa","before":"bb"}}`
	watchElementBob  = `{"id":"101","type":"WatchEvent","actor":{"id":2,"login":"bob","url":"https://api.github.com/users/bob"},"repo":{"id":11,"name":"bob/gears"},"payload":{}}`
	pushElementCarol = `{"id":"102","type":"PushEvent","actor":{"id":3,"login":"carol","url":"https://api.github.com/users/carol"},"repo":{"id":12,"name":"carol/cogs"},"payload":{"push_id":8,"ref":"refs/heads/dev","head":"cc","before":"dd"}}`

	feedBody = `[` + pushElementAlice + `,` + watchElementBob + `,` + pushElementCarol + `]`
)

type ingestEnv struct {
	backing *testqueue.Queue
	queue   *jobs.Queue
	service *ingest.Service
}

func newIngestEnv(t *testing.T, server *httptest.Server) *ingestEnv {
	log := zaptest.NewLogger(t)
	client := github.NewClient(log.Named("github"), github.ClientConfig{
		ServerAddress:  server.URL,
		RequestTimeout: 5 * time.Second,
		UserAgent:      "hubtide-test",
	}, nil)

	backing := testqueue.New()
	queue := jobs.NewQueue(backing)
	return &ingestEnv{
		backing: backing,
		queue:   queue,
		service: ingest.NewService(log.Named("ingest"), client, queue),
	}
}

func drainJobs(ctx context.Context, t *testing.T, queue *jobs.Queue) []jobs.Job {
	var drained []jobs.Job
	for {
		job, err := queue.Dequeue(ctx)
		if storage.ErrEmptyQueue.Has(err) {
			return drained
		}
		require.NoError(t, err)
		drained = append(drained, job)
	}
}

func TestRunCycle(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/events", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(feedBody))
	}))
	defer server.Close()
	env := newIngestEnv(t, server)

	result, err := env.service.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, ingest.Result{EventsFetched: 3, JobsEnqueued: 2}, result)

	queued := drainJobs(ctx, t, env.queue)
	require.Len(t, queued, 2)
	for _, job := range queued {
		require.Equal(t, jobs.KindHandleEvent, job.Kind)
	}
	require.JSONEq(t, pushElementAlice, string(queued[0].Payload))
	require.JSONEq(t, pushElementCarol, string(queued[1].Payload))
}

func TestRunCycle_NotModified(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()
	env := newIngestEnv(t, server)

	result, err := env.service.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, ingest.Result{}, result)
	require.Zero(t, env.backing.Len())
}

func TestRunCycle_ConditionalRequests(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var served atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		if r.Header.Get("If-None-Match") == `"etag-1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"etag-1"`)
		_, _ = w.Write([]byte(feedBody))
	}))
	defer server.Close()
	env := newIngestEnv(t, server)

	result, err := env.service.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.JobsEnqueued)

	// the second poll rides the stored etag
	result, err = env.service.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, ingest.Result{}, result)
	require.EqualValues(t, 2, served.Load())
	require.Equal(t, 2, env.backing.Len())
}

func TestRunCycle_UpstreamErrors(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()
	env := newIngestEnv(t, server)

	_, err := env.service.RunCycle(ctx)
	require.Error(t, err)
	require.True(t, github.ErrServer.Has(err))

	require.Zero(t, env.backing.Len())
}

func TestRunCycle_RateLimited(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()
	env := newIngestEnv(t, server)

	_, err := env.service.RunCycle(ctx)
	require.Error(t, err)
	require.True(t, github.ErrRateLimited.Has(err))
}
