// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package boltdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hubtide/hubtide/private/testcontext"
	"github.com/hubtide/hubtide/storage"
	"github.com/hubtide/hubtide/storage/testsuite"
)

func TestSuite(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	client, err := New(ctx.File("bolt", "suite.db"))
	require.NoError(t, err)
	defer func() { require.NoError(t, client.Close()) }()

	testsuite.RunTests(t, client)
}

func TestTTLEnforcedOnRead(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	client, err := New(ctx.File("bolt", "ttl.db"))
	require.NoError(t, err)
	defer func() { require.NoError(t, client.Close()) }()

	now := time.Now()
	client.SetNow(func() time.Time { return now })

	key := storage.Key("expiring")
	require.NoError(t, client.PutWithTTL(ctx, key, storage.Value("v"), time.Minute))

	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, value.Equal(storage.Value("v")))

	now = now.Add(2 * time.Minute)
	_, err = client.Get(ctx, key)
	require.True(t, storage.ErrKeyNotFound.Has(err), "expected not found, got %v", err)

	// the expired row is gone, not merely hidden
	err = client.Range(ctx, func(_ context.Context, k storage.Key, _ storage.Value) error {
		if k.Equal(key) {
			t.Fatalf("expired key still present: %q", k)
		}
		return nil
	})
	require.NoError(t, err)
}
