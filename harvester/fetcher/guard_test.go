// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package fetcher_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hubtide/hubtide/harvester/fetcher"
)

func TestGuard(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	guard := fetcher.NewGuard(5 * time.Minute)
	guard.SetNow(func() time.Time { return now })

	// absent records always fetch
	require.True(t, guard.ShouldFetch(time.Time{}, false))

	// a record updated two minutes ago is fresh
	require.False(t, guard.ShouldFetch(now.Add(-2*time.Minute), true))

	// exactly at the threshold still counts as fresh
	require.False(t, guard.ShouldFetch(now.Add(-5*time.Minute), true))

	// past the threshold fetches
	require.True(t, guard.ShouldFetch(now.Add(-5*time.Minute-time.Second), true))
	require.True(t, guard.ShouldFetch(now.Add(-time.Hour), true))
}

func TestGuard_ZeroThresholdDisables(t *testing.T) {
	guard := fetcher.NewGuard(0)
	require.True(t, guard.ShouldFetch(time.Now(), true))
	require.True(t, guard.ShouldFetch(time.Time{}, false))

	negative := fetcher.NewGuard(-time.Minute)
	require.True(t, negative.ShouldFetch(time.Now(), true))
}

func TestConfigThreshold(t *testing.T) {
	require.Equal(t, 5*time.Minute, fetcher.Config{StalenessThresholdMinutes: 5}.Threshold())
	require.Equal(t, time.Duration(0), fetcher.Config{}.Threshold())
}
