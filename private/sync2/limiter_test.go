// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package sync2_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hubtide/hubtide/private/sync2"
)

func TestLimiter_Limits(t *testing.T) {
	t.Parallel()

	const limit = 3
	limiter := sync2.NewLimiter(limit)

	var current, peak int64
	for i := 0; i < limit*4; i++ {
		started := limiter.Go(context.Background(), func() {
			now := atomic.AddInt64(&current, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if now <= old || atomic.CompareAndSwapInt64(&peak, old, now) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&current, -1)
		})
		require.True(t, started)
	}

	limiter.Wait()
	require.LessOrEqual(t, atomic.LoadInt64(&peak), int64(limit))
}

func TestLimiter_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	limiter := sync2.NewLimiter(1)
	started := limiter.Go(ctx, func() {
		t.Error("should not run")
	})
	require.False(t, started)
	limiter.Wait()
}
