// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package sync2

import (
	"context"
	"time"
)

// Sleep blocks for duration or until the context is canceled, whichever
// comes first. It returns true when the full duration elapsed.
func Sleep(ctx context.Context, duration time.Duration) bool {
	if duration <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
