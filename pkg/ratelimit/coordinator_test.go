// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package ratelimit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hubtide/hubtide/pkg/ratelimit"
	"github.com/hubtide/hubtide/private/testcontext"
	"github.com/hubtide/hubtide/storage"
	"github.com/hubtide/hubtide/storage/redis"
	"github.com/hubtide/hubtide/storage/redisserver"
	"github.com/hubtide/hubtide/storage/teststore"
)

func newCoordinator(t *testing.T, store storage.Store) *ratelimit.Coordinator {
	return ratelimit.NewCoordinator(zaptest.NewLogger(t), store, ratelimit.Config{
		Buffer:   150 * time.Millisecond,
		MinSleep: 10 * time.Millisecond,
	})
}

func putRecord(ctx context.Context, t *testing.T, store storage.Store, resource string, record ratelimit.Record) {
	value, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, storage.Key("rate_limit:"+resource), value))
}

func TestCheckLimit_NoState(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	coordinator := newCoordinator(t, teststore.New())
	require.NoError(t, coordinator.CheckLimit(ctx, "core"))
}

func TestCheckLimit_BudgetRemaining(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	coordinator := newCoordinator(t, store)

	putRecord(ctx, t, store, "core", ratelimit.Record{
		Limit:     5000,
		Remaining: 4990,
		Reset:     time.Now().Add(time.Hour).Unix(),
	})

	start := time.Now()
	require.NoError(t, coordinator.CheckLimit(ctx, "core"))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestCheckLimit_ExhaustedWaitsForReset(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	coordinator := newCoordinator(t, store)

	reset := time.Now().Add(time.Hour).Truncate(time.Second)
	putRecord(ctx, t, store, "core", ratelimit.Record{
		Limit:     60,
		Remaining: 0,
		Reset:     reset.Unix(),
	})

	// pin now 50ms before the reset so the wait is 50ms + buffer
	coordinator.SetNow(func() time.Time { return reset.Add(-50 * time.Millisecond) })

	start := time.Now()
	require.NoError(t, coordinator.CheckLimit(ctx, "core"))
	require.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

	// the stale record is gone, the next call does not wait
	_, err := store.Get(ctx, storage.Key("rate_limit:core"))
	require.True(t, storage.ErrKeyNotFound.Has(err))
}

func TestCheckLimit_ExhaustedHonorsCancel(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	coordinator := newCoordinator(t, store)

	putRecord(ctx, t, store, "core", ratelimit.Record{
		Limit:     60,
		Remaining: 0,
		Reset:     time.Now().Add(time.Hour).Unix(),
	})

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := coordinator.CheckLimit(timeoutCtx, "core")
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestCheckLimit_StaleExhaustedRecord(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	coordinator := newCoordinator(t, store)

	putRecord(ctx, t, store, "core", ratelimit.Record{
		Limit:     60,
		Remaining: 0,
		Reset:     time.Now().Add(-time.Minute).Unix(),
	})

	start := time.Now()
	require.NoError(t, coordinator.CheckLimit(ctx, "core"))
	require.Less(t, time.Since(start), 100*time.Millisecond)

	_, err := store.Get(ctx, storage.Key("rate_limit:core"))
	require.True(t, storage.ErrKeyNotFound.Has(err))
}

func rateHeaders(limit, remaining, reset int64) http.Header {
	header := http.Header{}
	header.Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	header.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	header.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
	return header
}

func TestRecordLimit(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	coordinator := newCoordinator(t, store)

	reset := time.Now().Add(30 * time.Minute).Unix()
	require.NoError(t, coordinator.RecordLimit(ctx, "core", rateHeaders(5000, 4990, reset)))

	value, err := store.Get(ctx, storage.Key("rate_limit:core"))
	require.NoError(t, err)

	var record ratelimit.Record
	require.NoError(t, json.Unmarshal(value, &record))
	require.Equal(t, ratelimit.Record{Limit: 5000, Remaining: 4990, Reset: reset}, record)
}

func TestRecordLimit_IgnoresPartialHeaders(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	coordinator := newCoordinator(t, store)

	header := http.Header{}
	header.Set("X-RateLimit-Limit", "5000")
	require.NoError(t, coordinator.RecordLimit(ctx, "core", header))

	_, err := store.Get(ctx, storage.Key("rate_limit:core"))
	require.True(t, storage.ErrKeyNotFound.Has(err))
}

func TestRecordLimit_TTL(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server, err := redisserver.Start()
	require.NoError(t, err)
	defer server.Close()

	client, err := redis.OpenClient(ctx, server.Addr(), "", 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, client.Close()) }()

	coordinator := newCoordinator(t, client)

	// a reset in the past still gets the floor TTL
	require.NoError(t, coordinator.RecordLimit(ctx, "core", rateHeaders(5000, 0, time.Now().Unix())))
	require.GreaterOrEqual(t, server.TTL("rate_limit:core"), 30*time.Second)

	// far future resets expire a little after the window rolls
	reset := time.Now().Add(30 * time.Minute)
	require.NoError(t, coordinator.RecordLimit(ctx, "core", rateHeaders(5000, 10, reset.Unix())))
	require.Greater(t, server.TTL("rate_limit:core"), 29*time.Minute)
}

func TestConsumeLocal(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	coordinator := newCoordinator(t, store)

	reset := time.Now().Add(time.Hour).Unix()
	require.NoError(t, coordinator.RecordLimit(ctx, "core", rateHeaders(5000, 3, reset)))

	for _, want := range []int64{2, 1, 0, 0} {
		remaining, err := coordinator.ConsumeLocal(ctx, "core")
		require.NoError(t, err)
		require.Equal(t, want, remaining)
	}
}
