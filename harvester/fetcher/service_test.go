// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package fetcher_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hubtide/hubtide/harvester/fetcher"
	"github.com/hubtide/hubtide/harvester/harvesterdb"
	"github.com/hubtide/hubtide/harvester/harvesterdb/testdb"
	"github.com/hubtide/hubtide/harvester/jobs"
	"github.com/hubtide/hubtide/pkg/github"
	"github.com/hubtide/hubtide/private/testcontext"
	"github.com/hubtide/hubtide/storage"
	"github.com/hubtide/hubtide/storage/testqueue"
)

// apiServer serves canned profile responses and counts the requests that
// reach it.
type apiServer struct {
	*httptest.Server
	requests atomic.Int64
}

func newAPIServer(t *testing.T, handler http.Handler) *apiServer {
	server := &apiServer{}
	server.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server.requests.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func jsonHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

type fetcherEnv struct {
	db      *testdb.DB
	backing *testqueue.Queue
	queue   *jobs.Queue
	service *fetcher.Service
}

func newFetcherEnv(t *testing.T, server *apiServer, threshold time.Duration) *fetcherEnv {
	log := zaptest.NewLogger(t)
	client := github.NewClient(log.Named("github"), github.ClientConfig{
		ServerAddress:  server.URL,
		RequestTimeout: 5 * time.Second,
		UserAgent:      "hubtide-test",
	}, nil)

	db := testdb.New()
	backing := testqueue.New()
	queue := jobs.NewQueue(backing)
	return &fetcherEnv{
		db:      db,
		backing: backing,
		queue:   queue,
		service: fetcher.NewService(log.Named("fetcher"), client, db, queue, fetcher.NewGuard(threshold)),
	}
}

// drainJobs empties the queue and returns the decoded envelopes.
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

func TestFetchUser(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := newAPIServer(t, jsonHandler(http.StatusOK, `{
		"login": "octocat", "id": 42,
		"avatar_url": "https://avatars.githubusercontent.com/u/42?v=4",
		"created_at": "2011-01-25T18:44:36Z", "updated_at": "2025-01-02T03:04:05Z"
	}`))
	env := newFetcherEnv(t, server, 5*time.Minute)

	user, err := env.service.FetchUser(ctx, "octocat")
	require.NoError(t, err)
	require.EqualValues(t, 42, user.ID)
	require.Equal(t, "octocat", user.Login)
	require.EqualValues(t, 1, server.requests.Load())

	// the verbatim body landed in the raw column
	require.Contains(t, string(user.Raw), `"login": "octocat"`)

	// the avatar job carries the id and the url
	queued := drainJobs(ctx, t, env.queue)
	require.Len(t, queued, 1)
	require.Equal(t, jobs.KindProcessAvatar, queued[0].Kind)

	var payload jobs.ProcessAvatarPayload
	require.NoError(t, json.Unmarshal(queued[0].Payload, &payload))
	require.Equal(t, jobs.ProcessAvatarPayload{
		UserID:    42,
		AvatarURL: "https://avatars.githubusercontent.com/u/42?v=4",
	}, payload)
}

func TestFetchUser_SkipsFresh(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := newAPIServer(t, jsonHandler(http.StatusOK, `{"login": "octocat", "id": 42}`))
	env := newFetcherEnv(t, server, 5*time.Minute)

	// a row updated two minutes ago exists
	env.db.SetNow(func() time.Time { return time.Now().Add(-2 * time.Minute) })
	require.NoError(t, env.db.Users().Upsert(ctx, &github.User{ID: 42, Login: "octocat"}))
	env.db.SetNow(nil)

	user, err := env.service.FetchUser(ctx, "octocat")
	require.NoError(t, err)
	require.EqualValues(t, 42, user.ID)

	// no upstream call, no queued avatar job
	require.Zero(t, server.requests.Load())
	require.Empty(t, drainJobs(ctx, t, env.queue))
}

func TestFetchUser_StaleRefetches(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := newAPIServer(t, jsonHandler(http.StatusOK, `{"login": "octocat", "id": 42}`))
	env := newFetcherEnv(t, server, 5*time.Minute)

	env.db.SetNow(func() time.Time { return time.Now().Add(-time.Hour) })
	require.NoError(t, env.db.Users().Upsert(ctx, &github.User{ID: 42, Login: "octocat"}))
	env.db.SetNow(nil)

	user, err := env.service.FetchUser(ctx, "octocat")
	require.NoError(t, err)
	require.EqualValues(t, 1, server.requests.Load())
	require.True(t, user.UpdatedAt.After(time.Now().Add(-time.Minute)))
}

func TestFetchUser_NoAvatarNoJob(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := newAPIServer(t, jsonHandler(http.StatusOK, `{"login": "ghost", "id": 7}`))
	env := newFetcherEnv(t, server, 5*time.Minute)

	_, err := env.service.FetchUser(ctx, "ghost")
	require.NoError(t, err)
	require.Empty(t, drainJobs(ctx, t, env.queue))
}

func TestFetchUser_ZeroThresholdAlwaysFetches(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := newAPIServer(t, jsonHandler(http.StatusOK, `{"login": "octocat", "id": 42}`))
	env := newFetcherEnv(t, server, 0)

	for i := 0; i < 3; i++ {
		_, err := env.service.FetchUser(ctx, "octocat")
		require.NoError(t, err)
	}
	require.EqualValues(t, 3, server.requests.Load())
}

func TestFetchRepository(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := newAPIServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/octocat/Hello-World", r.URL.Path)
		jsonHandler(http.StatusOK, `{
			"id": 7, "full_name": "octocat/Hello-World",
			"owner": {"login": "octocat", "id": 42, "type": "User"}
		}`).ServeHTTP(w, r)
	}))
	env := newFetcherEnv(t, server, 5*time.Minute)

	repo, err := env.service.FetchRepository(ctx, "octocat", "Hello-World")
	require.NoError(t, err)
	require.EqualValues(t, 7, repo.ID)
	require.Equal(t, "octocat/Hello-World", repo.FullName)
	require.NotNil(t, repo.OwnerID)
	require.EqualValues(t, 42, *repo.OwnerID)

	// second call inside the threshold is served locally
	_, err = env.service.FetchRepository(ctx, "octocat", "Hello-World")
	require.NoError(t, err)
	require.EqualValues(t, 1, server.requests.Load())
}

func TestFetchOrganization(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := newAPIServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orgs/github", r.URL.Path)
		jsonHandler(http.StatusOK, `{"id": 9919, "login": "github"}`).ServeHTTP(w, r)
	}))
	env := newFetcherEnv(t, server, 5*time.Minute)

	org, err := env.service.FetchOrganization(ctx, "github")
	require.NoError(t, err)
	require.EqualValues(t, 9919, org.ID)
	require.Equal(t, "github", org.Login)
}

func TestFetch_PropagatesUpstreamErrors(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := newAPIServer(t, jsonHandler(http.StatusBadGateway, `upstream broke`))
	env := newFetcherEnv(t, server, 5*time.Minute)

	_, err := env.service.FetchUser(ctx, "octocat")
	require.Error(t, err)
	require.True(t, github.ErrServer.Has(err))

	_, err = env.service.FetchRepository(ctx, "octocat", "Hello-World")
	require.Error(t, err)
	require.True(t, github.ErrServer.Has(err))

	_, err = env.service.FetchOrganization(ctx, "github")
	require.Error(t, err)
	require.True(t, github.ErrServer.Has(err))
}

func TestFetchUser_LookupErrorStillFetches(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := newAPIServer(t, jsonHandler(http.StatusOK, `{"login": "octocat", "id": 42}`))
	env := newFetcherEnv(t, server, 5*time.Minute)

	// lookups fail, the guard is advisory and the fetch proceeds; the save
	// fails too, so the error surfaces from the upsert.
	env.db.SetError(harvesterdb.ErrRetryable.New("connection dropped"))
	_, err := env.service.FetchUser(ctx, "octocat")
	require.Error(t, err)
	require.True(t, harvesterdb.ErrRetryable.Has(err))
	require.EqualValues(t, 1, server.requests.Load())
}

func TestPolicy(t *testing.T) {
	policy := fetcher.Policy()

	// rate limit rejections wait out the window, three times
	delay, retry := policy.Retry(github.ErrRateLimited.New("slow down"), 1)
	require.True(t, retry)
	require.Equal(t, time.Hour, delay)
	_, retry = policy.Retry(github.ErrRateLimited.New("slow down"), 3)
	require.False(t, retry)

	// server trouble backs off steeply
	delay, retry = policy.Retry(github.ErrServer.New("boom"), 1)
	require.True(t, retry)
	require.Equal(t, 3*time.Second, delay)
	delay, retry = policy.Retry(github.ErrServer.New("boom"), 4)
	require.True(t, retry)
	require.Equal(t, 258*time.Second, delay)
	_, retry = policy.Retry(github.ErrServer.New("boom"), 5)
	require.False(t, retry)

	// client errors and anything unclassified are discarded
	_, retry = policy.Retry(github.ErrClient.New("bad request"), 1)
	require.False(t, retry)
	_, retry = policy.Retry(errors.New("unclassified"), 1)
	require.False(t, retry)
}
