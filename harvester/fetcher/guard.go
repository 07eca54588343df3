// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package fetcher

import (
	"time"
)

// Guard decides whether a stored profile is stale enough to refresh. It is
// advisory only: two workers may race past it and both fetch, the
// idempotent savers keep that harmless.
type Guard struct {
	threshold time.Duration
	nowFn     func() time.Time
}

// NewGuard constructs a guard. A zero or negative threshold disables
// freshness checks entirely, every lookup fetches.
func NewGuard(threshold time.Duration) *Guard {
	return &Guard{threshold: threshold}
}

// SetNow overrides the time source. Tests only.
func (guard *Guard) SetNow(now func() time.Time) {
	guard.nowFn = now
}

func (guard *Guard) now() time.Time {
	if guard.nowFn != nil {
		return guard.nowFn()
	}
	return time.Now()
}

// ShouldFetch reports whether the upstream profile needs fetching. Absent
// records always fetch, existing records fetch once updatedAt falls behind
// the threshold.
func (guard *Guard) ShouldFetch(updatedAt time.Time, exists bool) bool {
	if guard.threshold <= 0 {
		return true
	}
	if !exists {
		return true
	}
	return updatedAt.Before(guard.now().Add(-guard.threshold))
}
