// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hubtide/hubtide/private/testcontext"
	"github.com/hubtide/hubtide/storage"
	"github.com/hubtide/hubtide/storage/redisserver"
	"github.com/hubtide/hubtide/storage/testsuite"
)

func TestSuite(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server, err := redisserver.Start()
	require.NoError(t, err)
	defer server.Close()

	client, err := OpenClient(ctx, server.Addr(), "", 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, client.Close()) }()

	testsuite.RunTests(t, client)
}

func TestQueueSuite(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server, err := redisserver.Start()
	require.NoError(t, err)
	defer server.Close()

	client, err := OpenClient(ctx, server.Addr(), "", 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, client.Close()) }()

	queue := NewQueue(client, "test")

	now := time.Now()
	queue.SetNow(func() time.Time { return now })

	testsuite.RunQueueTests(t, queue, func(d time.Duration) {
		now = now.Add(d)
	})
}

func TestPutWithTTL(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server, err := redisserver.Start()
	require.NoError(t, err)
	defer server.Close()

	client, err := OpenClient(ctx, server.Addr(), "", 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, client.Close()) }()

	key := storage.Key("expiring")
	require.NoError(t, client.PutWithTTL(ctx, key, storage.Value("v"), time.Minute))

	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, value.Equal(storage.Value("v")))

	server.FastForward(2 * time.Minute)

	_, err = client.Get(ctx, key)
	require.True(t, storage.ErrKeyNotFound.Has(err), "expected not found, got %v", err)
}

func TestDecrKeepsTTL(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server, err := redisserver.Start()
	require.NoError(t, err)
	defer server.Close()

	client, err := OpenClient(ctx, server.Addr(), "", 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, client.Close()) }()

	key := storage.Key("budget")
	require.NoError(t, client.PutWithTTL(ctx, key, storage.Value("10"), time.Minute))

	next, err := client.DecrBy(ctx, key, 3)
	require.NoError(t, err)
	require.EqualValues(t, 7, next)

	// the deadline set by PutWithTTL survives the decrement
	server.FastForward(2 * time.Minute)
	_, err = client.Get(ctx, key)
	require.True(t, storage.ErrKeyNotFound.Has(err), "expected not found, got %v", err)
}

func TestOpenClientFrom(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server, err := redisserver.Start()
	require.NoError(t, err)
	defer server.Close()

	client, err := OpenClientFrom(ctx, "redis://"+server.Addr()+"?db=0")
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = OpenClientFrom(ctx, "http://"+server.Addr())
	require.Error(t, err)
}
