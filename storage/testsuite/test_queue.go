// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package testsuite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hubtide/hubtide/private/testcontext"
	"github.com/hubtide/hubtide/storage"
)

// RunQueueTests runs common storage.Queue tests. forward advances the
// queue's notion of time, so delayed visibility is testable without
// real waiting.
func RunQueueTests(t *testing.T, queue storage.Queue, forward func(time.Duration)) {
	t.Run("FIFO", func(t *testing.T) { testQueueFIFO(t, queue) })
	t.Run("Empty", func(t *testing.T) { testQueueEmpty(t, queue) })
	t.Run("Delayed", func(t *testing.T) { testQueueDelayed(t, queue, forward) })
}

func testQueueFIFO(t *testing.T, queue storage.Queue) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	values := storage.Values{
		storage.Value("first"),
		storage.Value("second"),
		storage.Value("third"),
	}
	for _, value := range values {
		require.NoError(t, queue.Enqueue(ctx, value, time.Time{}))
	}

	for _, want := range values {
		got, err := queue.Dequeue(ctx)
		require.NoError(t, err)
		require.True(t, got.Equal(want), "got %q want %q", got, want)
	}
}

func testQueueEmpty(t *testing.T, queue storage.Queue) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	_, err := queue.Dequeue(ctx)
	require.True(t, storage.ErrEmptyQueue.Has(err), "expected empty queue, got %v", err)
}

func testQueueDelayed(t *testing.T, queue storage.Queue, forward func(time.Duration)) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	require.NoError(t, queue.Enqueue(ctx, storage.Value("later"), time.Now().Add(time.Hour)))
	require.NoError(t, queue.Enqueue(ctx, storage.Value("now"), time.Time{}))

	got, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, got.Equal(storage.Value("now")))

	_, err = queue.Dequeue(ctx)
	require.True(t, storage.ErrEmptyQueue.Has(err), "delayed item should be invisible, got %v", err)

	forward(2 * time.Hour)

	got, err = queue.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, got.Equal(storage.Value("later")))
}
