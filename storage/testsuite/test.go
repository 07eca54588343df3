// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package testsuite runs common conformance tests over storage.Store
// implementations.
package testsuite

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hubtide/hubtide/private/testcontext"
	"github.com/hubtide/hubtide/storage"
)

// RunTests runs common storage.Store tests.
func RunTests(t *testing.T, store storage.Store) {
	t.Run("CRUD", func(t *testing.T) { testCRUD(t, store) })
	t.Run("Constraints", func(t *testing.T) { testConstraints(t, store) })
	t.Run("Range", func(t *testing.T) { testRange(t, store) })
	t.Run("CompareAndSwap", func(t *testing.T) { testCompareAndSwap(t, store) })
	t.Run("Counters", func(t *testing.T) { testCounters(t, store) })
}

func newItem(key, value string) storage.Item {
	return storage.Item{
		Key:   storage.Key(key),
		Value: storage.Value(value),
	}
}

func cleanupItems(t testing.TB, ctx *testcontext.Context, store storage.Store, items storage.Items) {
	for _, item := range items {
		_ = store.Delete(ctx, item.Key)
	}
}

func testCRUD(t *testing.T, store storage.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	items := storage.Items{
		newItem("0001/noise", "qRNqDjhvTCNYbgLOYPkYTy"),
		newItem("0002/something", "h1Cw7tYzzeuWPtfHhkrTrC"),
		newItem("0003/else", "eAcctwXoDeeIV9wdhmDqTr"),
	}
	defer cleanupItems(t, ctx, store, items)

	for _, item := range items {
		require.NoError(t, store.Put(ctx, item.Key, item.Value))
	}

	for _, item := range items {
		value, err := store.Get(ctx, item.Key)
		require.NoError(t, err)
		require.True(t, value.Equal(item.Value), "got %q want %q", value, item.Value)
	}

	// update in place
	updated := storage.Value("wjPbKnmTwBrmoCCVXhrbSi")
	require.NoError(t, store.Put(ctx, items[0].Key, updated))

	value, err := store.Get(ctx, items[0].Key)
	require.NoError(t, err)
	require.True(t, value.Equal(updated))

	for _, item := range items {
		require.NoError(t, store.Delete(ctx, item.Key))
	}

	for _, item := range items {
		_, err := store.Get(ctx, item.Key)
		require.True(t, storage.ErrKeyNotFound.Has(err), "expected not found, got %v", err)
	}
}

func testConstraints(t *testing.T, store storage.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	err := store.Put(ctx, nil, storage.Value("xyz"))
	require.True(t, storage.ErrEmptyKey.Has(err), "putting empty key should fail, got %v", err)

	_, err = store.Get(ctx, nil)
	require.True(t, storage.ErrEmptyKey.Has(err), "getting empty key should fail, got %v", err)

	err = store.Delete(ctx, nil)
	require.True(t, storage.ErrEmptyKey.Has(err), "deleting empty key should fail, got %v", err)
}

func testRange(t *testing.T, store storage.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	items := storage.Items{
		newItem("range/a", "a"),
		newItem("range/b", "b"),
		newItem("range/c", "c"),
	}
	defer cleanupItems(t, ctx, store, items)

	for _, item := range items {
		require.NoError(t, store.Put(ctx, item.Key, item.Value))
	}

	var got storage.Items
	err := store.Range(ctx, func(ctx context.Context, key storage.Key, value storage.Value) error {
		got = append(got, storage.Item{
			Key:   append(storage.Key{}, key...),
			Value: append(storage.Value{}, value...),
		})
		return nil
	})
	require.NoError(t, err)

	sort.Sort(got)
	require.Equal(t, len(items), got.Len())
	for i, item := range items {
		require.True(t, got[i].Key.Equal(item.Key))
		require.True(t, got[i].Value.Equal(item.Value))
	}

	// callback errors abort iteration
	boom := storage.ErrValueChanged.New("boom")
	err = store.Range(ctx, func(context.Context, storage.Key, storage.Value) error {
		return boom
	})
	require.Error(t, err)
}

func testCounters(t *testing.T, store storage.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	key := storage.Key("counter/key")
	defer func() { _ = store.Delete(ctx, key) }()

	// missing key counts as zero
	next, err := store.IncrBy(ctx, key, 3)
	require.NoError(t, err)
	require.EqualValues(t, 3, next)

	next, err = store.IncrBy(ctx, key, 4)
	require.NoError(t, err)
	require.EqualValues(t, 7, next)

	next, err = store.DecrBy(ctx, key, 5)
	require.NoError(t, err)
	require.EqualValues(t, 2, next)

	// decrement saturates at zero, never negative
	next, err = store.DecrBy(ctx, key, 10)
	require.NoError(t, err)
	require.EqualValues(t, 0, next)

	next, err = store.DecrBy(ctx, storage.Key("counter/missing"), 1)
	require.NoError(t, err)
	require.EqualValues(t, 0, next)
	defer func() { _ = store.Delete(ctx, storage.Key("counter/missing")) }()

	// non-numeric values are rejected
	require.NoError(t, store.Put(ctx, key, storage.Value("not a number")))
	_, err = store.IncrBy(ctx, key, 1)
	require.True(t, storage.ErrNotNumeric.Has(err), "expected not numeric, got %v", err)
	_, err = store.DecrBy(ctx, key, 1)
	require.True(t, storage.ErrNotNumeric.Has(err), "expected not numeric, got %v", err)
}

func testCompareAndSwap(t *testing.T, store storage.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	key := storage.Key("cas/key")
	defer func() { _ = store.Delete(ctx, key) }()

	// missing key with an expected old value
	err := store.CompareAndSwap(ctx, key, storage.Value("old"), storage.Value("new"))
	require.True(t, storage.ErrKeyNotFound.Has(err), "expected not found, got %v", err)

	// create when old value is nil
	require.NoError(t, store.CompareAndSwap(ctx, key, nil, storage.Value("one")))

	value, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, value.Equal(storage.Value("one")))

	// mismatched old value
	err = store.CompareAndSwap(ctx, key, storage.Value("mismatch"), storage.Value("two"))
	require.True(t, storage.ErrValueChanged.Has(err), "expected value changed, got %v", err)

	// matching swap
	require.NoError(t, store.CompareAndSwap(ctx, key, storage.Value("one"), storage.Value("two")))

	value, err = store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, value.Equal(storage.Value("two")))

	// swap to nil deletes
	require.NoError(t, store.CompareAndSwap(ctx, key, storage.Value("two"), nil))

	_, err = store.Get(ctx, key)
	require.True(t, storage.ErrKeyNotFound.Has(err))
}
